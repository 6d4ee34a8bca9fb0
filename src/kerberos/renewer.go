// Package kerberos keeps a Kerberos credential cache fresh from a keytab.
package kerberos

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	execute "github.com/alexellis/go-execute/v2"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/sofmeright/distrobaker/src/metrics"
)

// DefaultInterval is how often credentials are renewed.
const DefaultInterval = time.Hour

// Renewer runs kinit from a keytab on a fixed interval and whenever the
// keytab file is replaced.
type Renewer struct {
	Keytab    string
	Principal string
	Interval  time.Duration
	Logger    zerolog.Logger
	Metrics   *metrics.Collector

	// run executes kinit; replaceable in tests.
	run func(ctx context.Context, args []string) error
}

// NewRenewer creates a renewer for principal using keytab.
func NewRenewer(keytab, principal string, logger zerolog.Logger, m *metrics.Collector) *Renewer {
	return &Renewer{
		Keytab:    keytab,
		Principal: principal,
		Interval:  DefaultInterval,
		Logger:    logger,
		Metrics:   m,
		run:       kinit,
	}
}

// Args returns the kinit arguments.
func (r *Renewer) Args() []string {
	return []string{"-k", "-t", r.Keytab, r.Principal}
}

// Renew obtains fresh credentials once.
func (r *Renewer) Renew(ctx context.Context) error {
	err := r.run(ctx, r.Args())
	r.Metrics.Renewal(err)
	if err != nil {
		return fmt.Errorf("renewing credentials for %s: %w", r.Principal, err)
	}
	r.Logger.Info().Str("principal", r.Principal).Msg("kerberos credentials renewed")
	return nil
}

// Run renews immediately, then on every tick and keytab change until ctx
// is cancelled. Failures are logged and retried on the next trigger.
func (r *Renewer) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(r.Keytab)); err != nil {
		return fmt.Errorf("watch keytab directory: %w", err)
	}

	if err := r.Renew(ctx); err != nil {
		r.Logger.Error().Err(err).Msg("initial credential renewal failed")
	}

	interval := r.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	base := filepath.Base(r.Keytab)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.Renew(ctx); err != nil {
				r.Logger.Error().Err(err).Msg("credential renewal failed")
			}
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			r.Logger.Debug().Str("event", event.Op.String()).Str("file", event.Name).Msg("keytab changed")
			if err := r.Renew(ctx); err != nil {
				r.Logger.Error().Err(err).Msg("credential renewal failed")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.Logger.Warn().Err(err).Msg("keytab watcher error")
		}
	}
}

func kinit(ctx context.Context, args []string) error {
	task := execute.ExecTask{
		Command: "kinit",
		Args:    args,
		Env:     os.Environ(),
	}
	res, err := task.Execute(ctx)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("kinit exited with %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}
