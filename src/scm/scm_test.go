package scm

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/rs/zerolog"
	"github.com/sofmeright/distrobaker/src/scm/scmtest"
)

var hashRe = regexp.MustCompile(`^[0-9a-f]{40}$`)

func TestRemoteRef(t *testing.T) {
	repo := scmtest.New(t, nil)
	head := repo.Head(t)

	got, err := RemoteRef(context.Background(), repo.URL("master"))
	if err != nil {
		t.Fatalf("RemoteRef: %v", err)
	}
	if !hashRe.MatchString(got) {
		t.Errorf("RemoteRef = %q, not a commit hash", got)
	}
	if got != head {
		t.Errorf("RemoteRef = %s, want %s", got, head)
	}

	_, err = RemoteRef(context.Background(), repo.URL("doesnotexist"))
	if !errors.Is(err, ErrUnknownRef) {
		t.Errorf("RemoteRef(doesnotexist) error = %v, want ErrUnknownRef", err)
	}
}

func TestRemoteRefFollowsNewCommits(t *testing.T) {
	repo := scmtest.New(t, nil)
	first, err := RemoteRef(context.Background(), repo.URL(""))
	if err != nil {
		t.Fatalf("RemoteRef: %v", err)
	}

	second := repo.Commit(t, "Update", map[string]string{"README": "changed\n"})
	got, err := RemoteRef(context.Background(), repo.URL(""))
	if err != nil {
		t.Fatalf("RemoteRef: %v", err)
	}
	if got == first || got != second {
		t.Errorf("RemoteRef = %s, want %s (previous %s)", got, second, first)
	}
}

func TestFetch(t *testing.T) {
	repo := scmtest.New(t, map[string]string{"distrobaker.yaml": "on master\n"})
	repo.Branch(t, "prod")
	prodHead := repo.Commit(t, "Prod config", map[string]string{"distrobaker.yaml": "on prod\n"})

	f := &Fetcher{Retries: 2, Logger: zerolog.Nop()}

	tests := []struct {
		ref  string
		want string
	}{
		{"", "on master\n"},
		{"master", "on master\n"},
		{"prod", "on prod\n"},
		{prodHead, "on prod\n"},
	}
	for _, tt := range tests {
		t.Run("ref="+tt.ref, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "clone")
			if _, err := f.Fetch(context.Background(), repo.URL(tt.ref), dir); err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			data, err := os.ReadFile(filepath.Join(dir, "distrobaker.yaml"))
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("content = %q, want %q", data, tt.want)
			}
		})
	}
}

func TestFetchUnknownRef(t *testing.T) {
	repo := scmtest.New(t, nil)
	f := &Fetcher{Retries: 3, Logger: zerolog.Nop()}

	dir := filepath.Join(t.TempDir(), "clone")
	_, err := f.Fetch(context.Background(), repo.URL("nope"), dir)
	if !errors.Is(err, ErrUnknownRef) {
		t.Errorf("Fetch error = %v, want ErrUnknownRef", err)
	}
}

func TestFetchMissingRepository(t *testing.T) {
	f := &Fetcher{Retries: 2, Logger: zerolog.Nop()}

	dir := filepath.Join(t.TempDir(), "clone")
	if _, err := f.Fetch(context.Background(), filepath.Join(t.TempDir(), "missing")+"#master", dir); err == nil {
		t.Fatal("Fetch succeeded, want error")
	}
}

func TestFetchCancelled(t *testing.T) {
	repo := scmtest.New(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := &Fetcher{Retries: 3, Logger: zerolog.Nop()}
	_, err := f.Fetch(ctx, repo.URL("master"), filepath.Join(t.TempDir(), "clone"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Fetch error = %v, want context.Canceled", err)
	}
}

func TestSSHLinksRejected(t *testing.T) {
	f := &Fetcher{Retries: 3, Logger: zerolog.Nop()}
	for _, scmurl := range []string{
		"ssh://pkgs.example.com/distrobaker-config.git#main",
		"git@pkgs.example.com:distrobaker-config.git#main",
	} {
		t.Run(scmurl, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "clone")
			if _, err := f.Fetch(context.Background(), scmurl, dir); !errors.Is(err, ErrUnsupportedTransport) {
				t.Errorf("Fetch error = %v, want ErrUnsupportedTransport", err)
			}
			if _, err := RemoteRef(context.Background(), scmurl); !errors.Is(err, ErrUnsupportedTransport) {
				t.Errorf("RemoteRef error = %v, want ErrUnsupportedTransport", err)
			}
		})
	}
}
