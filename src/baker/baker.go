// Package baker rebuilds upstream builds in the downstream build system.
//
// Tagging events from the source koji instance are collected into batches,
// split per downstream build target, optionally tagged into the target and
// then rebuilt from the same dereferenced source commit.
package baker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sofmeright/distrobaker/src/config"
	"github.com/sofmeright/distrobaker/src/configrepo"
	"github.com/sofmeright/distrobaker/src/koji"
	"github.com/sofmeright/distrobaker/src/messaging"
	"github.com/sofmeright/distrobaker/src/metrics"
)

// BuildSystems hands out hub sessions for either side.
type BuildSystems interface {
	Get(ctx context.Context, side koji.Side, profile string) (koji.Hub, error)
}

// ConfigSource provides the current configuration snapshot.
type ConfigSource interface {
	Current() (*configrepo.Snapshot, error)
}

// Syncer asks a dist-git mirror to sync a component before it is built.
type Syncer interface {
	Trigger(ctx context.Context, namespace, component string) error
}

// Build is a single upstream build scheduled for rebuild.
type Build struct {
	Namespace config.Namespace
	Component string
	NVR       string
	SCMURL    string // dereferenced source the upstream build came from
}

// Baker is the synchronization engine.
type Baker struct {
	Config  ConfigSource
	Systems BuildSystems
	Waiter  *RepoWaiter
	Syncer  Syncer // optional
	Options config.Options
	Logger  zerolog.Logger
	Metrics *metrics.Collector

	batcher *Batcher
}

// New creates a Baker with a fresh repo waiter and batcher.
func New(cfg ConfigSource, systems BuildSystems, opts config.Options, logger zerolog.Logger, m *metrics.Collector) *Baker {
	b := &Baker{
		Config:  cfg,
		Systems: systems,
		Waiter:  NewRepoWaiter(),
		Options: opts,
		Logger:  logger,
		Metrics: m,
	}
	b.batcher = NewBatcher(opts.BatchInterval, b.ProcessBatch)
	return b
}

// Run drives the batcher until ctx is cancelled.
func (b *Baker) Run(ctx context.Context) {
	b.batcher.Run(ctx)
}

// HandleMessage is the messaging.Handler for build system events.
func (b *Baker) HandleMessage(ctx context.Context, msg messaging.Message) error {
	b.Logger.Debug().Str("topic", msg.Topic).Msg("received a message")

	if messaging.IsRepoDone(msg.Topic) {
		b.Metrics.Message("repo.done")
		body, err := msg.RepoDone()
		if err != nil {
			return err
		}
		if n := b.Waiter.Done(body.Tag); n > 0 {
			b.Logger.Info().Str("tag", body.Tag).Int("waiters", n).Msg("repo has regenerated")
		}
		return nil
	}

	if !messaging.IsTag(msg.Topic) {
		b.Metrics.Message("ignored")
		b.Logger.Debug().Str("topic", msg.Topic).Msg("unable to handle topic, ignoring")
		return nil
	}

	b.Metrics.Message("tag")
	return b.batcher.Add(ctx, msg)
}

// ProcessBatch splits a batch per target and rebuilds every target
// concurrently.
func (b *Baker) ProcessBatch(ctx context.Context, batch []messaging.Message) {
	log := b.Logger.With().Str("batch", uuid.NewString()).Logger()
	b.Metrics.Batch(len(batch))

	snap, err := b.Config.Current()
	if err != nil {
		log.Error().Err(err).Int("messages", len(batch)).Msg("dropping batch")
		return
	}
	log.Info().Int("messages", len(batch)).Msg("processing batch")

	targets := b.SplitBatch(ctx, snap, batch)

	var wg sync.WaitGroup
	for target, builds := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.RebuildBatch(ctx, snap, target, builds)
		}()
	}
	wg.Wait()
}

// SplitBatch groups the tagging messages of a batch by downstream target.
func (b *Baker) SplitBatch(ctx context.Context, snap *configrepo.Snapshot, batch []messaging.Message) map[string][]Build {
	cfg := snap.Config
	upstreamBuildTag := strings.ReplaceAll(cfg.Trigger.RPMs, "-gate", "-build")
	targets := make(map[string][]Build)

	for _, msg := range batch {
		body, err := msg.Tag()
		if err != nil {
			b.Logger.Warn().Err(err).Msg("skipping malformed message")
			continue
		}
		log := b.Logger.With().Str("nvr", body.NVR()).Str("tag", body.Tag).Logger()

		switch {
		case body.Tag == "":
			log.Warn().Msg("message carries no tag, ignoring")
		case body.Tag == cfg.Trigger.RPMs:
			if reason := b.skipReason(snap, config.RPMs, body.Name); reason != "" {
				b.Metrics.Skipped(reason)
				log.Info().Str("reason", reason).Msg("skipping component")
				continue
			}
			scmurl, err := b.sourceSCMURL(ctx, cfg, body.BuildID)
			if err != nil {
				b.Metrics.Skipped("lookup")
				log.Error().Err(err).Int("build_id", body.BuildID).Msg("could not retrieve the build source")
				continue
			}
			target := cfg.Build.Target
			targets[target] = append(targets[target], Build{
				Namespace: config.RPMs,
				Component: body.Name,
				NVR:       body.NVR(),
				SCMURL:    scmurl,
			})
		case body.Tag == cfg.Trigger.Modules:
			log.Info().Msg("module rebuilds are not handled, ignoring")
		case upstreamBuildTag != "" && strings.HasPrefix(body.Tag, upstreamBuildTag) && strings.HasSuffix(body.Tag, "-stack-gate"),
			upstreamBuildTag != "" && strings.HasPrefix(body.Tag, upstreamBuildTag+"-side"):
			log.Info().Msg("stack gate and side tag rebuilds are not handled, ignoring")
		default:
			log.Debug().Msg("message tag not configured as a trigger, ignoring")
		}
	}
	return targets
}

// skipReason returns why a component is not synchronized, or "" if it is.
func (b *Baker) skipReason(snap *configrepo.Snapshot, ns config.Namespace, comp string) string {
	if snap.Config.Control.Excluded(ns, comp) {
		return "excluded"
	}
	if snap.Config.Control.IsStrict() {
		if _, ok := snap.Components.Get(ns, comp); !ok {
			return "unconfigured"
		}
	}
	return ""
}

func (b *Baker) sourceSCMURL(ctx context.Context, cfg *config.Config, buildID int) (string, error) {
	hub, err := b.Systems.Get(ctx, koji.Source, cfg.Source.Profile)
	if err != nil {
		return "", err
	}
	info, err := hub.GetBuild(ctx, buildID)
	if err != nil {
		return "", err
	}
	if info.Source == "" {
		return "", fmt.Errorf("build %d has no source", buildID)
	}
	return info.Source, nil
}

// RebuildBatch tags the builds into target when both sides share a build
// system, waits for the buildroot to regenerate and submits the rebuilds.
func (b *Baker) RebuildBatch(ctx context.Context, snap *configrepo.Snapshot, target string, builds []Build) {
	cfg := snap.Config
	if cfg.Control.BuildEnabled() && !b.Options.DryRun && cfg.Source.Profile == cfg.Destination.Profile {
		if err := b.tagAndWait(ctx, cfg, target, builds); err != nil {
			b.Logger.Error().Err(err).Str("target", target).Msg("tagging failed, building anyway")
		}
	}
	b.BuildComponents(ctx, snap, target, builds)
}

func (b *Baker) tagAndWait(ctx context.Context, cfg *config.Config, target string, builds []Build) error {
	hub, err := b.Systems.Get(ctx, koji.Destination, cfg.Destination.Profile)
	if err != nil {
		return err
	}

	tagged := 0
	for _, bld := range builds {
		b.Logger.Info().Str("nvr", bld.NVR).Str("target", target).Msg("tagging build")
		if _, err := hub.TagBuild(ctx, target, bld.NVR); err != nil {
			b.Logger.Error().Err(err).Str("nvr", bld.NVR).Msg("tagging failed")
			continue
		}
		tagged++
	}
	b.Metrics.Tagged(target, tagged)

	info, err := hub.GetBuildTarget(ctx, target)
	if err != nil {
		return fmt.Errorf("resolving target %s: %w", target, err)
	}

	b.Logger.Info().Str("tag", info.BuildTagName).Msg("waiting for repo to regenerate")
	err = b.Waiter.Wait(ctx, info.BuildTagName, b.Options.WaitRepoTimeout)
	switch {
	case err == nil:
		b.Metrics.RepoWait("done")
	case errors.Is(err, ErrRepoTimeout):
		// The repo most likely regenerated before the wait started.
		b.Metrics.RepoWait("timeout")
		b.Logger.Warn().Str("tag", info.BuildTagName).Msg("timed out waiting for repo, proceeding")
	default:
		b.Metrics.RepoWait("cancelled")
		return err
	}
	return nil
}

// BuildComponents submits a rebuild of every build to target and returns
// the number of submitted builds. Nothing is submitted in dry-run mode or
// when control.build is off.
func (b *Baker) BuildComponents(ctx context.Context, snap *configrepo.Snapshot, target string, builds []Build) int {
	cfg := snap.Config
	if !cfg.Control.BuildEnabled() {
		for _, bld := range builds {
			b.Metrics.Skipped("disabled")
			b.Logger.Info().Str("component", bld.Component).Str("target", target).Msg("builds are disabled by control.build, not building")
		}
		return 0
	}
	scratch := cfg.Build.IsScratch()

	dry := ""
	if b.Options.DryRun {
		dry = "DRY-RUN: "
	}
	verb := "Building"
	if scratch {
		verb = "Scratch-building"
	}

	var hub koji.Hub
	if !b.Options.DryRun {
		var err error
		hub, err = b.Systems.Get(ctx, koji.Destination, cfg.Destination.Profile)
		if err != nil {
			b.Logger.Error().Err(err).Str("target", target).Int("builds", len(builds)).Msg("destination build system unavailable")
			for range builds {
				b.Metrics.Submitted(target, scratch, err)
			}
			return 0
		}
	}

	submitted := 0
	for _, bld := range builds {
		ref := config.ParseSCMURL(bld.SCMURL).Ref
		scmurl := fmt.Sprintf("%s/%s/%s#%s", cfg.Build.Prefix, bld.Namespace, bld.Component, ref)
		b.Logger.Info().Msgf("%s%s %s for %s", dry, verb, scmurl, target)

		if b.Options.DryRun {
			continue
		}
		if b.Syncer != nil {
			if err := b.Syncer.Trigger(ctx, string(bld.Namespace), bld.Component); err != nil {
				b.Logger.Warn().Err(err).Str("component", bld.Component).Msg("dist-git sync request failed")
			}
		}
		task, err := hub.Build(ctx, scmurl, target, scratch)
		b.Metrics.Submitted(target, scratch, err)
		if err != nil {
			b.Logger.Error().Err(err).Str("scmurl", scmurl).Msg("build submission failed")
			continue
		}
		b.Logger.Info().Int("task", task).Str("scmurl", scmurl).Msg("build submitted")
		submitted++
	}
	return submitted
}
