package baker

import (
	"context"
	"time"

	"github.com/sofmeright/distrobaker/src/messaging"
)

// Batcher collects tagging messages and flushes them as one batch once no
// new message arrived for Interval.
type Batcher struct {
	Interval time.Duration

	in    chan messaging.Message
	flush func(ctx context.Context, batch []messaging.Message)
}

// NewBatcher creates a batcher calling flush for every completed batch.
// flush runs in its own goroutine so slow batches never block intake.
func NewBatcher(interval time.Duration, flush func(ctx context.Context, batch []messaging.Message)) *Batcher {
	return &Batcher{
		Interval: interval,
		in:       make(chan messaging.Message, 64),
		flush:    flush,
	}
}

// Add queues msg and restarts the quiet period.
func (b *Batcher) Add(ctx context.Context, msg messaging.Message) error {
	select {
	case b.in <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run owns the batch timer until ctx is cancelled. Messages still pending
// at cancellation are dropped.
func (b *Batcher) Run(ctx context.Context) {
	timer := time.NewTimer(b.Interval)
	timer.Stop()
	defer timer.Stop()

	var pending []messaging.Message
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.in:
			pending = append(pending, msg)
			timer.Reset(b.Interval)
		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			batch := pending
			pending = nil
			go b.flush(ctx, batch)
		}
	}
}
