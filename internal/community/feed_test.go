package community

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Lllllllleong/croppulse/internal/models"
)

// chanSource feeds snapshots pushed by the test.
type chanSource struct {
	ctx     context.Context
	snaps   chan []*models.Post
	fail    chan error
	calls   atomic.Int32
	stopped atomic.Bool
}

func (c *chanSource) Next() ([]*models.Post, error) {
	c.calls.Add(1)
	select {
	case <-c.ctx.Done():
		return nil, c.ctx.Err()
	case err := <-c.fail:
		return nil, err
	case s := <-c.snaps:
		return s, nil
	}
}

func (c *chanSource) Stop() { c.stopped.Store(true) }

func newFeed() (*Feed, chan *chanSource) {
	sources := make(chan *chanSource, 1)
	return &Feed{Watch: func(ctx context.Context) SnapshotSource {
		src := &chanSource{ctx: ctx, snaps: make(chan []*models.Post), fail: make(chan error)}
		sources <- src
		return src
	}}, sources
}

func snapshot(ids ...string) []*models.Post {
	var out []*models.Post
	for _, id := range ids {
		out = append(out, &models.Post{ID: id, AuthorID: "alice", Tag: "Corn"})
	}
	return out
}

func TestFeed_DeliversAndClosesOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	feed, sources := newFeed()
	ctx, cancel := context.WithCancel(context.Background())
	sub := feed.Subscribe(ctx, "alice", Filter{Kind: FilterAll})
	src := <-sources

	src.snaps <- snapshot("p1")
	got := <-sub.C()
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].ID)

	cancel()
	_, open := <-sub.C()
	assert.False(t, open)
	sub.Close()
	assert.True(t, src.stopped.Load())
	assert.NoError(t, sub.Err())
}

func TestFeed_SlowReaderSeesNewestOnly(t *testing.T) {
	defer goleak.VerifyNone(t)

	feed, sources := newFeed()
	sub := feed.Subscribe(context.Background(), "alice", Filter{})
	defer sub.Close()
	src := <-sources

	src.snaps <- snapshot("v1")
	src.snaps <- snapshot("v1", "v2")
	src.snaps <- snapshot("v1", "v2", "v3")
	// the fourth Next call means the third snapshot has been handed over
	require.Eventually(t, func() bool { return src.calls.Load() >= 4 }, time.Second, 5*time.Millisecond)

	got := <-sub.C()
	assert.Len(t, got, 3)

	select {
	case extra := <-sub.C():
		t.Fatalf("unexpected extra snapshot %v", extra)
	default:
	}
}

func TestFeed_AppliesFilter(t *testing.T) {
	defer goleak.VerifyNone(t)

	feed, sources := newFeed()
	sub := feed.Subscribe(context.Background(), "bob", Filter{Kind: FilterMyPosts})
	defer sub.Close()
	src := <-sources

	src.snaps <- snapshot("p1", "p2")
	got := <-sub.C()
	assert.Empty(t, got)
}

func TestFeed_ListenerErrorEndsSubscription(t *testing.T) {
	defer goleak.VerifyNone(t)

	feed, sources := newFeed()
	sub := feed.Subscribe(context.Background(), "alice", Filter{})
	src := <-sources

	src.fail <- errors.New("permission denied")
	_, open := <-sub.C()
	assert.False(t, open)
	sub.Close()
	assert.EqualError(t, sub.Err(), "permission denied")
}
