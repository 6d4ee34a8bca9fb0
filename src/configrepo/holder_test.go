package configrepo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/sofmeright/distrobaker/src/config"
	"github.com/sofmeright/distrobaker/src/scm"
	"github.com/sofmeright/distrobaker/src/scm/scmtest"
)

func fixture(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "config", "testdata", "distrobaker.yaml"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return string(data)
}

type fakeLister struct {
	calls    int
	packages []string
}

func (f *fakeLister) Packages(ctx context.Context, base, view string, arches, sources []string) ([]string, error) {
	f.calls++
	return f.packages, nil
}

func newHolder(t *testing.T, repo *scmtest.Repo, lister PackageLister) *Holder {
	t.Helper()
	return NewHolder(repo.URL("master"), &scm.Fetcher{Retries: 1, Logger: zerolog.Nop()}, lister, zerolog.Nop(), nil)
}

func TestHolderLoad(t *testing.T) {
	repo := scmtest.New(t, map[string]string{config.FileName: fixture(t)})
	h := newHolder(t, repo, nil)

	if _, err := h.Current(); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Current before Load = %v, want ErrNotConfigured", err)
	}

	snap, err := h.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap.Ref != repo.Head(t) {
		t.Errorf("Ref = %s, want %s", snap.Ref, repo.Head(t))
	}

	ipa, ok := snap.Components.Get(config.RPMs, "ipa")
	if !ok {
		t.Fatal("rpms/ipa not configured")
	}
	if ipa.Source != "freeipa.git#f33" || ipa.Destination != "ipa.git#fluff-42.0.0-alpha" {
		t.Errorf("ipa = %+v", ipa)
	}
	if h.Get() != snap {
		t.Error("Get does not return the loaded snapshot")
	}
}

func TestHolderLoadMissingFile(t *testing.T) {
	repo := scmtest.New(t, nil)
	h := newHolder(t, repo, nil)

	_, err := h.Load(context.Background())
	if err == nil || !strings.Contains(err.Error(), "does not contain distrobaker.yaml") {
		t.Fatalf("Load error = %v", err)
	}
}

func TestHolderLoadKeepsPreviousOnError(t *testing.T) {
	repo := scmtest.New(t, map[string]string{config.FileName: fixture(t)})
	h := newHolder(t, repo, nil)

	first, err := h.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	broken := strings.Replace(fixture(t), "    profile: koji\n", "", 1)
	repo.Commit(t, "Break config", map[string]string{config.FileName: broken})

	_, err = h.Load(context.Background())
	if err == nil || !strings.Contains(err.Error(), "source.profile missing") {
		t.Fatalf("Load error = %v, want source.profile missing", err)
	}
	if h.Get() != first {
		t.Error("failed load replaced the snapshot")
	}
}

func TestHolderUpdate(t *testing.T) {
	repo := scmtest.New(t, map[string]string{config.FileName: fixture(t)})
	h := newHolder(t, repo, nil)

	ctx := context.Background()
	first, err := h.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := h.Update(ctx); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if h.Get() != first {
		t.Error("unchanged update reloaded the configuration")
	}

	updated := strings.Replace(fixture(t), "    gzip:\n", "    gzip:\n    bash:\n", 1)
	head := repo.Commit(t, "Add bash", map[string]string{config.FileName: updated})

	if err := h.Update(ctx); err != nil {
		t.Fatalf("Update: %v", err)
	}
	snap := h.Get()
	if snap == first {
		t.Fatal("changed update did not reload the configuration")
	}
	if snap.Ref != head {
		t.Errorf("Ref = %s, want %s", snap.Ref, head)
	}
	if _, ok := snap.Components.Get(config.RPMs, "bash"); !ok {
		t.Error("rpms/bash missing after update")
	}
}

func TestHolderUpdateUnknownRef(t *testing.T) {
	repo := scmtest.New(t, map[string]string{config.FileName: fixture(t)})
	h := NewHolder(repo.URL("gone"), &scm.Fetcher{Retries: 1, Logger: zerolog.Nop()}, nil, zerolog.Nop(), nil)

	err := h.Update(context.Background())
	if !errors.Is(err, ErrConfigUnavailable) {
		t.Errorf("Update error = %v, want ErrConfigUnavailable", err)
	}
}

func TestHolderAutoPackageList(t *testing.T) {
	doc := fixture(t)
	doc = doc[:strings.Index(doc, "components:\n")]
	doc = strings.Replace(doc, "    strict: true\n", "    strict: false\n    autopackagelist:\n      view: eln\n", 1)

	repo := scmtest.New(t, map[string]string{config.FileName: doc})
	lister := &fakeLister{packages: []string{"bash", "gzip", "kernel"}}
	h := newHolder(t, repo, lister)

	ctx := context.Background()
	snap, err := h.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := snap.Components.Names(config.RPMs); strings.Join(got, ",") != "bash,gzip,kernel" {
		t.Errorf("rpms = %v", got)
	}

	// The package list may change without a commit, so every update reloads.
	if err := h.Update(ctx); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if lister.calls != 2 {
		t.Errorf("lister calls = %d, want 2", lister.calls)
	}
}
