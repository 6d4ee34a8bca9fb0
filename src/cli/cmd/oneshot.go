package cmd

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/sofmeright/distrobaker/src/baker"
	"github.com/sofmeright/distrobaker/src/distgitsync"
	"github.com/sofmeright/distrobaker/src/output"
)

var oneshotSelect string

var oneshotCmd = &cobra.Command{
	Use:   "oneshot <scmurl>",
	Short: "Synchronize components once and exit",
	Long: `Synchronize components once and exit.

Without --select every latest build tagged in the rpms trigger tag is
processed. Components are given as namespace/component, for example
"rpms/gzip rpms/bash".`,
	Args: cobra.ExactArgs(1),
	RunE: runOneshot,
}

func init() {
	oneshotCmd.Flags().StringVarP(&oneshotSelect, "select", "s", "", "space-separated list of namespace/component to process")

	rootCmd.AddCommand(oneshotCmd)
}

func runOneshot(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	start := time.Now()
	opts := options(args[0])

	holder := newHolder(opts, nil)
	if _, err := holder.Load(ctx); err != nil {
		logger.Error().Err(err).Msg("configuration could not be loaded, exiting")
		return &ExitError{Code: 128, Err: err}
	}

	sessions := newSessions()
	defer sessions.Close(ctx)

	bk := baker.New(holder, sessions, opts, logger, nil)
	if opts.DistroGitSync != "" {
		bk.Syncer = distgitsync.New(opts.DistroGitSync)
	}

	res, err := bk.Oneshot(ctx, strings.Fields(oneshotSelect))
	if err != nil {
		return err
	}
	output.Summary(cmd.OutOrStdout(), res.Synced, res.Skipped, time.Since(start), output.UseColor())
	return nil
}
