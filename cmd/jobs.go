package main

import (
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/lead-scorer/internal/model"
	"github.com/sells-group/lead-scorer/internal/store"
)

var (
	jobsStatus string
	jobsLimit  int
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List recent batch jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("jobs"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		jobs, err := st.ListJobs(ctx, store.JobFilter{Status: model.JobStatus(jobsStatus), Limit: jobsLimit})
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		defer tw.Flush()

		cmd.SetOut(tw)
		cmd.Println("JOB ID\tSTATUS\tTOTAL\tOK\tFAILED\tCREATED")
		for _, j := range jobs {
			cmd.Printf("%s\t%s\t%d\t%d\t%d\t%s\n",
				j.ID, j.Status, j.Total, j.Successful, j.Failed,
				j.CreatedAt.Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	jobsCmd.Flags().StringVar(&jobsStatus, "status", "", "filter by status (processing, completed, failed)")
	jobsCmd.Flags().IntVar(&jobsLimit, "limit", 20, "max jobs to list")
	rootCmd.AddCommand(jobsCmd)
}
