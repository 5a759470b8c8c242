package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var scoreNoCache bool

var scoreCmd = &cobra.Command{
	Use:   "score <domain> [domain...]",
	Short: "Score one or more domains",
	Long: `Fetches enrichment data for each domain (Store Leads first,
Company Enrich as fallback) and prints the scored result as JSON.

Examples:
  # Score a single domain
  lead-scorer score allbirds.com

  # Score several, bypassing the cache
  lead-scorer score --no-cache allbirds.com gymshark.com`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "score")
		if err != nil {
			return err
		}
		defer env.Close()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		var failed int
		for _, domain := range args {
			result, err := env.Orchestrator.ScoreDomain(ctx, domain, env.CacheDefault && !scoreNoCache)
			if err != nil {
				zap.L().Error("scoring failed", zap.String("domain", domain), zap.Error(err))
				failed++
				continue
			}
			if err := enc.Encode(result); err != nil {
				return err
			}
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d domains failed", failed, len(args))
		}
		return nil
	},
}

func init() {
	scoreCmd.Flags().BoolVar(&scoreNoCache, "no-cache", false, "bypass the scored-domain cache")
	rootCmd.AddCommand(scoreCmd)
}
