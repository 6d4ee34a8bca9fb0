package baker

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/sofmeright/distrobaker/src/config"
	"github.com/sofmeright/distrobaker/src/koji"
	"golang.org/x/sync/semaphore"
)

// ErrNoTrigger is returned when the configuration has no rpms trigger tag.
var ErrNoTrigger = errors.New("trigger.rpms is not configured")

var selectionRx = regexp.MustCompile(`^(rpms|modules)/([A-Za-z0-9:._+-]+)$`)

// OneshotResult summarizes a oneshot run.
type OneshotResult struct {
	Synced  int
	Skipped int
}

// Oneshot synchronizes the selected `namespace/component` entries once.
// An empty selection means every latest build tagged in the rpms trigger.
func (b *Baker) Oneshot(ctx context.Context, selection []string) (OneshotResult, error) {
	snap, err := b.Config.Current()
	if err != nil {
		return OneshotResult{}, err
	}
	cfg := snap.Config
	if cfg.Trigger.RPMs == "" {
		return OneshotResult{}, ErrNoTrigger
	}

	src, err := b.Systems.Get(ctx, koji.Source, cfg.Source.Profile)
	if err != nil {
		return OneshotResult{}, err
	}

	set := make(map[string]struct{}, len(selection))
	for _, s := range selection {
		set[s] = struct{}{}
	}
	if len(set) == 0 {
		b.Logger.Debug().Msg("no components selected, gathering components from triggers")
		tagged, err := src.ListTagged(ctx, cfg.Trigger.RPMs, true)
		if err != nil {
			return OneshotResult{}, fmt.Errorf("listing builds tagged in %s: %w", cfg.Trigger.RPMs, err)
		}
		for _, t := range tagged {
			set[string(config.RPMs)+"/"+t.PackageName] = struct{}{}
		}
	}

	entries := make([]string, 0, len(set))
	for e := range set {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return strings.ToLower(entries[i]) < strings.ToLower(entries[j])
	})
	b.Logger.Info().Int("count", len(entries)).Msg("processing components")

	type candidate struct {
		ns   config.Namespace
		comp string
	}
	var cands []candidate
	for _, e := range entries {
		m := selectionRx.FindStringSubmatch(e)
		if m == nil {
			b.Metrics.Skipped("invalid")
			b.Logger.Error().Str("entry", e).Msg("cannot process entry, looks like garbage")
			continue
		}
		ns, comp := config.Namespace(m[1]), m[2]
		b.Logger.Info().Str("entry", e).Msg("processing")

		if reason := b.skipReason(snap, ns, comp); reason != "" {
			b.Metrics.Skipped(reason)
			b.Logger.Info().Str("entry", e).Str("reason", reason).Msg("skipping component")
			continue
		}
		if ns == config.Modules {
			b.Metrics.Skipped("unsupported")
			b.Logger.Info().Str("entry", e).Msg("module rebuilds are not handled, skipping")
			continue
		}
		cands = append(cands, candidate{ns: ns, comp: comp})
	}

	builds := make([]*Build, len(cands))
	sem := semaphore.NewWeighted(int64(max(b.Options.Concurrency, 1)))
	var wg sync.WaitGroup
	for i, c := range cands {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			bld, err := b.lookupBuild(ctx, src, cfg.Trigger.RPMs, c.ns, c.comp)
			if err != nil {
				b.Metrics.Skipped("lookup")
				b.Logger.Error().Err(err).Str("component", c.comp).Msg("build lookup failed")
				return
			}
			if bld == nil {
				b.Metrics.Skipped("untagged")
				b.Logger.Info().Str("component", c.comp).Str("tag", cfg.Trigger.RPMs).Msg("component's build not tagged in the source tag")
				return
			}
			builds[i] = bld
		}()
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return OneshotResult{}, err
	}

	var scheduled []Build
	for _, bld := range builds {
		if bld != nil {
			b.Logger.Debug().Str("component", bld.Component).Msg("scheduled for rebuild")
			scheduled = append(scheduled, *bld)
		}
	}

	b.BuildComponents(ctx, snap, cfg.Build.Target, scheduled)

	res := OneshotResult{Synced: len(scheduled), Skipped: len(entries) - len(scheduled)}
	b.Logger.Info().Msgf("synchronized %d component(s), %d skipped", res.Synced, res.Skipped)
	return res, nil
}

// lookupBuild finds the latest build of comp in tag together with its
// dereferenced source. It returns nil when nothing is tagged.
func (b *Baker) lookupBuild(ctx context.Context, hub koji.Hub, tag string, ns config.Namespace, comp string) (*Build, error) {
	latest, err := hub.LatestBuild(ctx, tag, comp)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, nil
	}

	id := latest.BuildID
	if id == 0 {
		id = latest.ID
	}
	info, err := hub.GetBuild(ctx, id)
	if err != nil {
		return nil, err
	}
	if info.Source == "" {
		return nil, fmt.Errorf("build %s has no source", info.NVR)
	}
	return &Build{Namespace: ns, Component: comp, NVR: info.NVR, SCMURL: info.Source}, nil
}
