package community

import (
	"context"
	"sync"

	"github.com/Lllllllleong/croppulse/internal/models"
)

// SnapshotSource yields full snapshots of the post collection until it is stopped or
// its context is canceled.
type SnapshotSource interface {
	Next() ([]*models.Post, error)
	Stop()
}

// Feed turns a live listener into per-subscriber snapshot streams.
type Feed struct {
	Watch func(ctx context.Context) SnapshotSource
}

// Subscription delivers filtered snapshots. A slow reader only sees the newest snapshot;
// undelivered older ones are dropped.
type Subscription struct {
	ch     chan []*models.Post
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Subscribe starts listening. The subscription ends when ctx is canceled, Close is called
// or the listener fails; its channel is then closed.
func (f *Feed) Subscribe(ctx context.Context, userID string, filter Filter) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		ch:     make(chan []*models.Post, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	src := f.Watch(ctx)
	go sub.run(ctx, src, userID, filter)
	return sub
}

// C returns the snapshot channel.
func (s *Subscription) C() <-chan []*models.Post {
	return s.ch
}

// Err returns the listener error that ended the subscription, if any. Cancellation is not an error.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the listener and waits for the delivery goroutine to exit.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

func (s *Subscription) run(ctx context.Context, src SnapshotSource, userID string, filter Filter) {
	defer close(s.done)
	defer close(s.ch)
	defer src.Stop()

	for {
		posts, err := src.Next()
		if err != nil {
			if ctx.Err() == nil {
				s.mu.Lock()
				s.err = err
				s.mu.Unlock()
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		s.deliver(filter.Apply(posts, userID))
	}
}

// deliver replaces any snapshot the reader has not picked up yet. run is the only
// sender, so the second send cannot block.
func (s *Subscription) deliver(posts []*models.Post) {
	select {
	case s.ch <- posts:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	s.ch <- posts
}
