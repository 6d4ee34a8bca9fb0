// Package scmtest builds throwaway git repositories for tests.
package scmtest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Repo is a local repository usable as a clone source.
type Repo struct {
	Dir  string // worktree
	repo *git.Repository
}

// URL returns the clone URL of the repository, optionally with a #ref.
func (r *Repo) URL(ref string) string {
	u := filepath.Join(r.Dir, ".git")
	if ref != "" {
		u += "#" + ref
	}
	return u
}

// New initializes a repository whose first commit on master contains a
// README and the given files.
func New(t *testing.T, files map[string]string) *Repo {
	t.Helper()

	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	r := &Repo{Dir: dir, repo: repo}

	all := map[string]string{"README": "test\n"}
	for k, v := range files {
		all[k] = v
	}
	r.Commit(t, "Initial commit", all)
	return r
}

// Commit writes files and commits them on the current branch. It returns
// the new commit hash.
func (r *Repo) Commit(t *testing.T, msg string, files map[string]string) string {
	t.Helper()

	wt, err := r.repo.Worktree()
	if err != nil {
		t.Fatalf("worktree: %v", err)
	}
	for name, content := range files {
		path := filepath.Join(r.Dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		if _, err := wt.Add(name); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
	}

	hash, err := wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "John Doe",
			Email: "jdoe@example.com",
			When:  time.Now(),
		},
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	return hash.String()
}

// Branch creates a branch at HEAD and checks it out.
func (r *Repo) Branch(t *testing.T, name string) {
	t.Helper()

	wt, err := r.repo.Worktree()
	if err != nil {
		t.Fatalf("worktree: %v", err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(name),
		Create: true,
	}); err != nil {
		t.Fatalf("checkout -b %s: %v", name, err)
	}
}

// Head returns the HEAD commit hash.
func (r *Repo) Head(t *testing.T) string {
	t.Helper()

	ref, err := r.repo.Head()
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	return ref.Hash().String()
}
