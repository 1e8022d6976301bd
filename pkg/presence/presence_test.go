package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocomet/ridematch/pkg/logger"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newLocalWithClock() (*LocalIndex, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)}
	idx := NewLocalIndex()
	idx.now = clock.Now
	return idx, clock
}

func TestLocalIndex_TouchExpireAndRefresh(t *testing.T) {
	ctx := context.Background()
	idx, clock := newLocalWithClock()

	require.NoError(t, idx.Touch(ctx, Entry{UserID: "u-1", ConnID: "c-1"}, time.Minute))
	require.NoError(t, idx.Touch(ctx, Entry{UserID: "u-1", ConnID: "c-2"}, time.Minute))

	ids, _ := idx.Connections(ctx, "u-1")
	assert.Equal(t, []string{"c-1", "c-2"}, ids)

	clock.Advance(45 * time.Second)
	require.NoError(t, idx.Touch(ctx, Entry{UserID: "u-1", ConnID: "c-1"}, time.Minute)) // heartbeat

	clock.Advance(30 * time.Second)
	ids, _ = idx.Connections(ctx, "u-1")
	assert.Equal(t, []string{"c-1"}, ids, "c-2 missed its heartbeat")

	removed, _ := idx.Sweep(ctx)
	assert.Equal(t, 1, removed)
}

func TestLocalIndex_RemoveReportsRemaining(t *testing.T) {
	ctx := context.Background()
	idx, _ := newLocalWithClock()

	_ = idx.Touch(ctx, Entry{UserID: "u-1", ConnID: "c-1"}, time.Minute)
	_ = idx.Touch(ctx, Entry{UserID: "u-1", ConnID: "c-2"}, time.Minute)

	n, _ := idx.Remove(ctx, "u-1", "c-1")
	assert.Equal(t, 1, n)
	n, _ = idx.Remove(ctx, "u-1", "c-2")
	assert.Equal(t, 0, n)
	n, _ = idx.Remove(ctx, "ghost", "c-9")
	assert.Equal(t, 0, n)
}

func TestLocalIndex_RefreshKeepsConnectedAt(t *testing.T) {
	ctx := context.Background()
	idx, clock := newLocalWithClock()
	first := clock.Now()

	_ = idx.Touch(ctx, Entry{UserID: "u-1", ConnID: "c-1", Role: "rider"}, time.Minute)
	clock.Advance(10 * time.Second)
	_ = idx.Touch(ctx, Entry{UserID: "u-1", ConnID: "c-1", Role: "rider"}, time.Minute)

	snap := idx.Snapshot()
	require.Len(t, snap, 1)
	assert.True(t, snap[0].ConnectedAt.Equal(first))
	assert.True(t, snap[0].ExpiresAt.Equal(first.Add(70*time.Second)))
}

func TestLocalIndex_LookupReturnsLiveEntry(t *testing.T) {
	ctx := context.Background()
	idx, clock := newLocalWithClock()

	_ = idx.Touch(ctx, Entry{UserID: "u-1", ConnID: "c-1", Role: "driver"}, time.Minute)

	e, ok, err := idx.Lookup(ctx, "u-1", "c-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "driver", e.Role)

	clock.Advance(2 * time.Minute)
	_, ok, _ = idx.Lookup(ctx, "u-1", "c-1")
	assert.False(t, ok)
	_, ok, _ = idx.Lookup(ctx, "ghost", "c-1")
	assert.False(t, ok)
}

type flakyShared struct {
	*LocalIndex
	mu   sync.Mutex
	down bool
}

var errDown = errors.New("connection refused")

func (f *flakyShared) setDown(down bool) {
	f.mu.Lock()
	f.down = down
	f.mu.Unlock()
}

func (f *flakyShared) err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errDown
	}
	return nil
}

func (f *flakyShared) Ping(ctx context.Context) error { return f.err() }

func (f *flakyShared) Touch(ctx context.Context, e Entry, ttl time.Duration) error {
	if err := f.err(); err != nil {
		return err
	}
	return f.LocalIndex.Touch(ctx, e, ttl)
}

func (f *flakyShared) Connections(ctx context.Context, userID string) ([]string, error) {
	if err := f.err(); err != nil {
		return nil, err
	}
	return f.LocalIndex.Connections(ctx, userID)
}

func TestFallbackIndex_DegradesAndRecovers(t *testing.T) {
	ctx := context.Background()
	shared := &flakyShared{LocalIndex: NewLocalIndex()}
	idx := NewFallbackIndex(ctx, shared, logger.NewNop())
	require.True(t, idx.Shared())

	// another instance's connection, visible only through the shared index
	require.NoError(t, shared.LocalIndex.Touch(ctx, Entry{UserID: "u-1", ConnID: "remote"}, time.Minute))
	require.NoError(t, idx.Touch(ctx, Entry{UserID: "u-1", ConnID: "local"}, time.Minute))

	ids, err := idx.Connections(ctx, "u-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"remote", "local"}, ids)

	shared.setDown(true)
	ids, err = idx.Connections(ctx, "u-1")
	require.NoError(t, err, "presence never surfaces cache failures")
	assert.Equal(t, []string{"local"}, ids)
	assert.False(t, idx.Shared())

	require.NoError(t, idx.Touch(ctx, Entry{UserID: "u-2", ConnID: "while-down"}, time.Minute))

	shared.setDown(false)
	_, err = idx.Sweep(ctx)
	require.NoError(t, err)
	assert.True(t, idx.Shared())

	ids, _ = shared.LocalIndex.Connections(ctx, "u-2")
	assert.Equal(t, []string{"while-down"}, ids, "entries written while degraded are republished")
}

func TestFallbackIndex_UnreachableRedisUsesLocal(t *testing.T) {
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	idx := NewFallbackIndex(ctx, NewRedisIndex(client), logger.NewNop())
	assert.False(t, idx.Shared())

	require.NoError(t, idx.Touch(ctx, Entry{UserID: "u-1", ConnID: "c-1"}, time.Minute))
	ids, err := idx.Connections(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"c-1"}, ids)

	n, err := idx.Remove(ctx, "u-1", "c-1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestFallbackIndex_NilSharedIsLocalOnly(t *testing.T) {
	idx := NewFallbackIndex(context.Background(), nil, logger.NewNop())
	assert.False(t, idx.Shared())

	_, err := idx.Sweep(context.Background())
	assert.NoError(t, err)
}

func TestRunSweeper_StopsOnCancel(t *testing.T) {
	idx, clock := newLocalWithClock()
	_ = idx.Touch(context.Background(), Entry{UserID: "u-1", ConnID: "c-1"}, time.Second)
	clock.Advance(2 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunSweeper(ctx, idx, 5*time.Millisecond, logger.NewNop())
		close(done)
	}()

	assert.Eventually(t, func() bool {
		idx.mu.Lock()
		defer idx.mu.Unlock()
		return len(idx.entries) == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
