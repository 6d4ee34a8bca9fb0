// Package configrepo keeps the DistroBaker configuration in sync with its
// git repository.
package configrepo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sofmeright/distrobaker/src/config"
	"github.com/sofmeright/distrobaker/src/metrics"
	"github.com/sofmeright/distrobaker/src/scm"
)

var (
	// ErrNotConfigured is returned when no configuration has been loaded yet.
	ErrNotConfigured = errors.New("distrobaker is not configured")

	// ErrConfigUnavailable is returned when the configuration ref cannot be
	// resolved in the remote.
	ErrConfigUnavailable = errors.New("the configuration repository is unavailable")
)

// Snapshot is an immutable view of a loaded configuration.
type Snapshot struct {
	Config     *config.Config
	Components *config.Components
	Ref        string // commit the configuration was loaded from
	LoadedAt   time.Time
}

// PackageLister returns the automatic package list of a Content Resolver view.
type PackageLister interface {
	Packages(ctx context.Context, base, view string, arches, sources []string) ([]string, error)
}

// Holder provides thread-safe access to the configuration with periodic
// refresh from the configuration repository.
type Holder struct {
	mu       sync.RWMutex
	current  *Snapshot

	scmurl  string
	fetcher *scm.Fetcher
	lister  PackageLister
	logger  zerolog.Logger
	metrics *metrics.Collector

	// remoteRef is scm.RemoteRef, replaceable in tests.
	remoteRef func(ctx context.Context, scmurl string) (string, error)
}

// NewHolder creates a holder for the configuration at scmurl. Nothing is
// loaded until Load is called.
func NewHolder(scmurl string, fetcher *scm.Fetcher, lister PackageLister, logger zerolog.Logger, m *metrics.Collector) *Holder {
	return &Holder{
		scmurl:    scmurl,
		fetcher:   fetcher,
		lister:    lister,
		logger:    logger,
		metrics:   m,
		remoteRef: scm.RemoteRef,
	}
}

// Get returns the current snapshot, or nil before the first successful Load.
func (h *Holder) Get() *Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Current returns the current snapshot or ErrNotConfigured.
func (h *Holder) Current() (*Snapshot, error) {
	if s := h.Get(); s != nil {
		return s, nil
	}
	return nil, ErrNotConfigured
}

// Load fetches the configuration repository and replaces the current
// snapshot. On failure the previous snapshot is kept.
func (h *Holder) Load(ctx context.Context) (*Snapshot, error) {
	snap, err := h.load(ctx)
	if err != nil {
		h.metrics.ConfigReload(err, 0, 0)
		return nil, err
	}
	h.metrics.ConfigReload(nil, len(snap.Components.RPMs), len(snap.Components.Modules))

	h.mu.Lock()
	h.current = snap
	h.mu.Unlock()
	return snap, nil
}

func (h *Holder) load(ctx context.Context) (*Snapshot, error) {
	dir, err := os.MkdirTemp("", "distrobaker-")
	if err != nil {
		return nil, fmt.Errorf("creating checkout dir: %w", err)
	}
	defer os.RemoveAll(dir)

	h.logger.Info().Str("scmurl", h.scmurl).Str("dir", dir).Msg("fetching configuration")
	ref, err := h.fetcher.Fetch(ctx, h.scmurl, dir)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, config.FileName)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("configuration repository does not contain %s", config.FileName)
	}

	cfg, warnings, err := config.Load(path)
	for _, w := range warnings {
		h.logger.Warn().Msg(w)
	}
	if err != nil {
		return nil, err
	}
	h.logger.Debug().Str("path", path).Msg("configuration loaded, processing")

	for _, ns := range config.Namespaces {
		n := len(cfg.Control.Exclude.RPMs)
		if ns == config.Modules {
			n = len(cfg.Control.Exclude.Modules)
		}
		if n > 0 {
			h.logger.Info().Int("count", n).Str("namespace", string(ns)).Msg("excluding components")
		} else {
			h.logger.Info().Str("namespace", string(ns)).Msg("not excluding any components")
		}
	}

	var auto []string
	if apl := cfg.Control.AutoPackageList; cfg.Components == nil && apl != nil {
		if h.lister == nil {
			return nil, fmt.Errorf("autopackagelist configured but no content resolver client available")
		}
		auto, err = h.lister.Packages(ctx, apl.ContentResolver, apl.View, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("fetching automatic package list: %w", err)
		}
	}

	comps, err := config.DeriveComponents(cfg, auto)
	if err != nil {
		return nil, fmt.Errorf("deriving components: %w", err)
	}
	for _, ns := range config.Namespaces {
		h.logger.Info().Int("count", len(comps.Names(ns))).Str("namespace", string(ns)).Msg("found configured components")
	}

	if cfg.Control.IsStrict() {
		h.logger.Info().Msg("running in the strict mode, only configured components will be processed")
	} else {
		h.logger.Info().Msg("running in the non-strict mode, all trigger components will be processed")
	}
	if comps.Len() == 0 {
		if cfg.Control.IsStrict() {
			h.logger.Warn().Msg("no components configured while running in the strict mode, nothing to do")
		} else {
			h.logger.Info().Msg("no components explicitly configured")
		}
	}

	return &Snapshot{
		Config:     cfg,
		Components: comps,
		Ref:        ref,
		LoadedAt:   time.Now(),
	}, nil
}

// Update reloads the configuration when the remote ref moved. A
// configuration using the automatic package list is always reloaded since
// the list may change without a commit.
func (h *Holder) Update(ctx context.Context) error {
	h.logger.Info().Msg("updating configuration")

	ref, err := h.remoteRef(ctx, h.scmurl)
	if err != nil {
		h.metrics.ConfigReload(err, 0, 0)
		if errors.Is(err, scm.ErrUnknownRef) {
			return fmt.Errorf("%w: %v", ErrConfigUnavailable, err)
		}
		return fmt.Errorf("resolving configuration ref: %w", err)
	}

	cur := h.Get()
	if cur != nil && cur.Ref == ref && cur.Config.Control.AutoPackageList == nil {
		h.logger.Debug().Str("ref", ref).Msg("configuration not changed, skipping update")
		return nil
	}

	_, err = h.Load(ctx)
	return err
}

// Run calls Update every interval until ctx is cancelled. Failures keep
// the previous configuration and are retried on the next tick.
func (h *Holder) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.Update(ctx); err != nil {
				h.logger.Error().Err(err).Dur("interval", interval).Msg("configuration update failed, checking again later")
			}
		}
	}
}
