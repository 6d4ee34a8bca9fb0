package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/sofmeright/distrobaker/src/config"
	"github.com/sofmeright/distrobaker/src/configrepo"
	"github.com/sofmeright/distrobaker/src/contentresolver"
	"github.com/sofmeright/distrobaker/src/koji"
	"github.com/sofmeright/distrobaker/src/metrics"
	"github.com/sofmeright/distrobaker/src/scm"
)

var (
	logLevel      string
	logFormat     string
	retries       int
	dryRun        bool
	distroGitSync string
	kojiConfig    []string
	logger        zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "distrobaker",
	Short: "Downstream distribution rebuild bot",
	Long: `DistroBaker keeps a downstream distribution in sync with its upstream.

It watches the upstream build system for tagged builds and rebuilds the
configured components from the same sources in the downstream build system.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging(cmd.ErrOrStderr())
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&logLevel, "loglevel", "l", "info", "log level: debug, info, warning, error or critical")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format: json or console")
	rootCmd.PersistentFlags().IntVarP(&retries, "retry", "r", 3, "number of retries for network operations")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "do not tag or submit builds, only log what would be done")
	rootCmd.PersistentFlags().StringVar(&distroGitSync, "distrogitsync-endpoint", "", "DistroGitSync API endpoint to sync dist-git before builds (e.g. http://distrogitsync:8080/)")
	rootCmd.PersistentFlags().StringSliceVar(&kojiConfig, "koji-config", nil, "koji configuration files (default: /etc/koji.conf, /etc/koji.conf.d/*.conf, ~/.koji/config)")
}

// ExitError carries a specific process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }
func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode maps an Execute error to the process exit code.
func ExitCode(err error) int {
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return 1
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}

func parseLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(s) {
	case "warning":
		return zerolog.WarnLevel, nil
	case "critical":
		return zerolog.FatalLevel, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q", s)
	}
	return lvl, nil
}

func setupLogging(w io.Writer) error {
	lvl, err := parseLevel(logLevel)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)

	switch logFormat {
	case "json":
	case "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	default:
		return fmt.Errorf("invalid log format %q", logFormat)
	}
	logger = zerolog.New(w).With().Timestamp().Logger()
	return nil
}

// options collects the runtime options shared by all commands.
func options(scmurl string) config.Options {
	opts := config.DefaultOptions()
	opts.SCMURL = scmurl
	opts.Retries = retries
	opts.DryRun = dryRun
	opts.DistroGitSync = distroGitSync
	return opts
}

func newHolder(opts config.Options, m *metrics.Collector) *configrepo.Holder {
	fetcher := &scm.Fetcher{Retries: opts.Retries, Logger: logger}
	return configrepo.NewHolder(opts.SCMURL, fetcher, contentresolver.New(60, logger), logger, m)
}

func newSessions() *koji.Sessions {
	s := koji.NewSessions(logger)
	if len(kojiConfig) > 0 {
		paths := kojiConfig
		s.Load = func(name string) (koji.Profile, error) { return koji.LoadProfile(name, paths...) }
	}
	return s
}
