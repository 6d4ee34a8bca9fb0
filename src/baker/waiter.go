package baker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrRepoTimeout is returned by Wait when the repository did not
// regenerate in time.
var ErrRepoTimeout = errors.New("timed out waiting for repository")

// RepoWaiter lets batches wait for a buildroot repository to regenerate.
// Done is driven by buildsys.repo.done messages.
type RepoWaiter struct {
	mu      sync.Mutex
	waiters map[string][]chan struct{}
}

// NewRepoWaiter returns an empty waiter.
func NewRepoWaiter() *RepoWaiter {
	return &RepoWaiter{waiters: make(map[string][]chan struct{})}
}

// Wait blocks until Done(tag) is called, timeout elapses or ctx is done.
func (w *RepoWaiter) Wait(ctx context.Context, tag string, timeout time.Duration) error {
	ch := make(chan struct{})
	w.mu.Lock()
	w.waiters[tag] = append(w.waiters[tag], ch)
	w.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return nil
	case <-timer.C:
		w.remove(tag, ch)
		return ErrRepoTimeout
	case <-ctx.Done():
		w.remove(tag, ch)
		return ctx.Err()
	}
}

// Done releases every waiter for tag and returns how many there were.
func (w *RepoWaiter) Done(tag string) int {
	w.mu.Lock()
	chans := w.waiters[tag]
	delete(w.waiters, tag)
	w.mu.Unlock()

	for _, ch := range chans {
		close(ch)
	}
	return len(chans)
}

// pending returns the number of waiters for tag.
func (w *RepoWaiter) pending(tag string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.waiters[tag])
}

func (w *RepoWaiter) remove(tag string, ch chan struct{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	list := w.waiters[tag]
	for i, c := range list {
		if c == ch {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(w.waiters, tag)
	} else {
		w.waiters[tag] = list
	}
}
