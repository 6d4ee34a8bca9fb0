package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/sofmeright/distrobaker/src/baker"
	"github.com/sofmeright/distrobaker/src/distgitsync"
	"github.com/sofmeright/distrobaker/src/kerberos"
	"github.com/sofmeright/distrobaker/src/messaging"
	"github.com/sofmeright/distrobaker/src/metrics"
	"github.com/sofmeright/distrobaker/src/server"
	"github.com/sofmeright/distrobaker/src/version"
	"golang.org/x/sync/errgroup"
)

var (
	runUpdate          int
	runBatchInterval   time.Duration
	runWaitRepoTimeout time.Duration
	runMessagingConfig string
	runMetricsAddr     string
	runKeytab          string
	runPrincipal       string
	runRenewInterval   time.Duration
	runConcurrency     int
)

var runCmd = &cobra.Command{
	Use:   "run <scmurl>",
	Short: "Run the synchronization daemon",
	Long: `Run the synchronization daemon.

The configuration is loaded from the distrobaker.yaml file in the git
repository at <scmurl> (link#branch) and refreshed periodically. Tagging
events from the message bus are batched and rebuilt downstream.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().IntVarP(&runUpdate, "update", "u", 5, "configuration update interval in minutes")
	runCmd.Flags().DurationVar(&runBatchInterval, "batch-interval", 2*time.Second, "quiet period before queued tagging events are processed")
	runCmd.Flags().DurationVar(&runWaitRepoTimeout, "wait-repo-timeout", 15*time.Minute, "how long to wait for the downstream buildroot to regenerate")
	runCmd.Flags().StringVar(&runMessagingConfig, "messaging-config", messaging.DefaultConfigPath, "fedora-messaging configuration file")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", ":8080", "listen address for /metrics and /healthz (empty disables)")
	runCmd.Flags().StringVar(&runKeytab, "keytab", "", "keytab used to renew Kerberos credentials (empty disables renewal)")
	runCmd.Flags().StringVar(&runPrincipal, "principal", "", "Kerberos principal for --keytab")
	runCmd.Flags().DurationVar(&runRenewInterval, "renew-interval", kerberos.DefaultInterval, "Kerberos credential renewal interval")
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 8, "parallel build system lookups")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := options(args[0])
	opts.ConfigInterval = time.Duration(runUpdate) * time.Minute
	opts.BatchInterval = runBatchInterval
	opts.WaitRepoTimeout = runWaitRepoTimeout
	opts.Concurrency = runConcurrency

	logger.Info().Str("version", version.Version).Str("scmurl", opts.SCMURL).Bool("dry_run", opts.DryRun).Msg("starting distrobaker")

	msgCfg, err := messaging.LoadConfig(runMessagingConfig)
	if err != nil {
		return err
	}

	m := metrics.New()
	holder := newHolder(opts, m)
	if _, err := holder.Load(ctx); err != nil {
		logger.Error().Err(err).Msg("configuration could not be loaded, exiting")
		return &ExitError{Code: 128, Err: err}
	}

	sessions := newSessions()
	defer sessions.Close(context.Background())

	bk := baker.New(holder, sessions, opts, logger, m)
	if opts.DistroGitSync != "" {
		bk.Syncer = distgitsync.New(opts.DistroGitSync)
	}

	g, ctx := errgroup.WithContext(ctx)
	if runKeytab != "" {
		r := kerberos.NewRenewer(runKeytab, runPrincipal, logger, m)
		r.Interval = runRenewInterval
		g.Go(func() error { return r.Run(ctx) })
	}
	if runMetricsAddr != "" {
		srv := server.New(runMetricsAddr, server.Router(holder, nil), logger)
		g.Go(func() error { return srv.Run(ctx) })
	}
	g.Go(func() error {
		holder.Run(ctx, opts.ConfigInterval)
		return nil
	})
	g.Go(func() error {
		bk.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return messaging.NewConsumer(msgCfg, logger).Consume(ctx, bk.HandleMessage)
	})

	err = g.Wait()
	logger.Info().Msg("distrobaker stopped")
	return err
}
