// Package scm fetches the DistroBaker configuration repository and resolves
// its remote refs. It is built on go-git so no git binary is needed for
// remote repositories.
package scm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/rs/zerolog"
	"github.com/sofmeright/distrobaker/src/config"
)

// DefaultRef is checked out when the SCMURL carries no #ref.
const DefaultRef = "master"

// ErrUnknownRef is returned when a ref does not exist in the remote.
var ErrUnknownRef = errors.New("unknown ref")

// ErrUnsupportedTransport is returned for ssh links. The ssh client setup
// written by `distrobaker prepare` (GSSAPI, ~/.ssh/config) is not honoured
// by the built-in transport, so the configuration repository must be
// reachable over https, http, git or file.
var ErrUnsupportedTransport = errors.New("unsupported transport for the configuration repository")

func checkTransport(link string) error {
	ep, err := transport.NewEndpoint(link)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", link, err)
	}
	if ep.Protocol == "ssh" {
		return fmt.Errorf("%w: %s (use an https URL)", ErrUnsupportedTransport, link)
	}
	return nil
}

// Fetcher clones configuration repositories.
type Fetcher struct {
	Retries int
	Logger  zerolog.Logger
}

// Fetch clones the repository named by scmurl into dir and checks out its
// ref. Each failed attempt is logged and retried up to f.Retries times.
// dir must not exist or be empty.
func (f *Fetcher) Fetch(ctx context.Context, scmurl, dir string) (string, error) {
	u := config.ParseSCMURL(scmurl)
	ref := u.Ref
	if ref == "" {
		ref = DefaultRef
	}

	if err := checkTransport(u.Link); err != nil {
		return "", err
	}

	retries := f.Retries
	if retries < 1 {
		retries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		hash, err := checkout(ctx, u.Link, ref, dir)
		if err == nil {
			f.Logger.Info().Str("scmurl", scmurl).Str("commit", hash).Msg("configuration fetched successfully")
			return hash, nil
		}
		lastErr = err
		f.Logger.Warn().Err(err).Int("attempt", attempt).Msg("failed to fetch configuration, retrying")

		// A partial clone leaves files behind that block the next attempt.
		if rmErr := clearDir(dir); rmErr != nil {
			return "", fmt.Errorf("cleaning %s: %w", dir, rmErr)
		}
	}

	f.Logger.Error().Str("scmurl", scmurl).Msg("failed to fetch configuration, giving up")
	return "", fmt.Errorf("fetching %s: %w", scmurl, lastErr)
}

func checkout(ctx context.Context, link, ref, dir string) (string, error) {
	repo, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{URL: link})
	if err != nil {
		return "", fmt.Errorf("cloning %s: %w", link, err)
	}

	hash, err := resolve(repo, ref)
	if err != nil {
		return "", err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("opening worktree: %w", err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true}); err != nil {
		return "", fmt.Errorf("checking out %s: %w", ref, err)
	}
	return hash.String(), nil
}

// resolve finds ref as a remote branch, a tag or a revision, in that order.
func resolve(repo *git.Repository, ref string) (*plumbing.Hash, error) {
	for _, rev := range []string{
		plumbing.NewRemoteReferenceName(git.DefaultRemoteName, ref).String(),
		plumbing.NewTagReferenceName(ref).String(),
		ref,
	} {
		if h, err := repo.ResolveRevision(plumbing.Revision(rev)); err == nil {
			return h, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownRef, ref)
}

func clearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// RemoteRef resolves the branch named by scmurl's ref to the commit hash it
// points to in the remote, like `git ls-remote --heads`.
func RemoteRef(ctx context.Context, scmurl string) (string, error) {
	u := config.ParseSCMURL(scmurl)
	ref := u.Ref
	if ref == "" {
		ref = DefaultRef
	}

	if err := checkTransport(u.Link); err != nil {
		return "", err
	}

	remote := git.NewRemote(memory.NewStorage(), &gitconfig.RemoteConfig{
		Name: git.DefaultRemoteName,
		URLs: []string{u.Link},
	})
	refs, err := remote.ListContext(ctx, &git.ListOptions{})
	if err != nil {
		return "", fmt.Errorf("listing %s: %w", u.Link, err)
	}

	want := plumbing.NewBranchReferenceName(ref)
	for _, r := range refs {
		if r.Name() == want {
			return r.Hash().String(), nil
		}
	}
	return "", fmt.Errorf("%w: %s not found in %s", ErrUnknownRef, ref, u.Link)
}
