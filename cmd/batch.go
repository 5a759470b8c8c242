package main

import (
	"fmt"
	"os/signal"
	"sort"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-scorer/internal/enrich"
	"github.com/sells-group/lead-scorer/internal/input"
	"github.com/sells-group/lead-scorer/internal/model"
)

var (
	batchInput   string
	batchOutput  string
	batchWebhook string
	batchNoCache bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Score a CSV or XLSX file of domains",
	Long: `Reads domains from a CSV or XLSX file (website/domain/url column,
or first column when headerless), runs the full enrichment and scoring
pipeline, and writes a scored CSV sorted best-first.

Examples:
  lead-scorer batch --input leads.csv --output scored.csv
  lead-scorer batch --input leads.xlsx --output scored.csv --webhook https://hooks.example.com/done`,
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().StringVar(&batchInput, "input", "", "input CSV or XLSX file (required)")
	batchCmd.Flags().StringVar(&batchOutput, "output", "scored.csv", "output CSV file")
	batchCmd.Flags().StringVar(&batchWebhook, "webhook", "", "webhook URL notified on completion")
	batchCmd.Flags().BoolVar(&batchNoCache, "no-cache", false, "bypass the scored-domain cache")
	_ = batchCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := initEnv(ctx, "batch")
	if err != nil {
		return err
	}
	defer env.Close()

	domains, err := input.ReadDomains(batchInput)
	if err != nil {
		return err
	}
	if len(domains) == 0 {
		return eris.Errorf("batch: no domains found in %s", batchInput)
	}

	log := zap.L().With(zap.String("command", "batch"))
	log.Info("starting batch", zap.Int("domains", len(domains)), zap.String("input", batchInput))

	job, err := env.Store.CreateJob(ctx, len(domains), batchWebhook)
	if err != nil {
		return eris.Wrap(err, "batch: create job")
	}

	result, err := env.Orchestrator.Process(ctx, enrich.ProcessOptions{
		JobID:      job.ID,
		Domains:    domains,
		WebhookURL: batchWebhook,
		UseCache:   env.CacheDefault && !batchNoCache,
	})
	if err != nil {
		return err
	}

	if err := input.WriteResultsFile(batchOutput, result.Domains); err != nil {
		return err
	}

	printSummary(cmd, result)
	log.Info("batch complete", zap.String("job_id", job.ID), zap.String("output", batchOutput))
	return nil
}

func printSummary(cmd *cobra.Command, result *model.BatchResult) {
	s := result.Summary
	cmd.Printf("Scored %d domains: %d successful, %d failed, average %.2f\n",
		s.Total, s.Successful, s.Failed, s.AverageScore)

	grades := make([]string, 0, len(s.GradeDistribution))
	for g := range s.GradeDistribution {
		grades = append(grades, g)
	}
	sort.Strings(grades)
	for _, g := range grades {
		cmd.Printf("  %-3s %d\n", g, s.GradeDistribution[g])
	}

	if len(s.TopLeads) > 0 {
		cmd.Println("Top leads:")
		for _, lead := range s.TopLeads {
			cmd.Printf("  %-30s %6.2f  %s\n", lead.Domain, lead.Score, lead.Grade)
		}
	}
	fmt.Fprintln(cmd.OutOrStdout())
}
