package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/sofmeright/distrobaker/src/config"
	"github.com/sofmeright/distrobaker/src/output"
	"github.com/sofmeright/distrobaker/src/preflight"
)

var (
	preflightTimeout time.Duration
	preflightURLs    []string
)

var preflightCmd = &cobra.Command{
	Use:   "preflight <scmurl|file>",
	Short: "Check that the configured endpoints are reachable over TLS",
	Args:  cobra.ExactArgs(1),
	RunE:  runPreflight,
}

func init() {
	preflightCmd.Flags().DurationVar(&preflightTimeout, "timeout", 30*time.Second, "per-endpoint timeout")
	preflightCmd.Flags().StringSliceVar(&preflightURLs, "url", nil, "additional URLs to check")

	rootCmd.AddCommand(preflightCmd)
}

func runPreflight(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	start := time.Now()

	var cfg *config.Config
	if _, err := os.Stat(args[0]); err == nil {
		c, warnings, err := config.Load(args[0])
		for _, w := range warnings {
			logger.Warn().Msg(w)
		}
		if err != nil {
			return err
		}
		cfg = c
	} else {
		snap, err := newHolder(options(args[0]), nil).Load(ctx)
		if err != nil {
			return err
		}
		cfg = snap.Config
	}

	urls := append(cfg.URLs(), preflightURLs...)
	results, err := preflight.New(preflightTimeout).Check(ctx, urls)
	output.Preflight(cmd.OutOrStdout(), results, time.Since(start), output.UseColor())
	if err != nil {
		return fmt.Errorf("preflight: %w", err)
	}
	return nil
}
