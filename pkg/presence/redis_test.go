package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedRedis answers commands in place of a server and records what was sent.
type scriptedRedis struct {
	mu     sync.Mutex
	sent   [][]interface{}
	fields map[string]string
	score  *float64
}

func (h *scriptedRedis) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *scriptedRedis) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.answer(cmd)
		return cmd.Err()
	}
}

func (h *scriptedRedis) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		for _, cmd := range cmds {
			h.answer(cmd)
		}
		return nil
	}
}

func (h *scriptedRedis) answer(cmd redis.Cmder) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, cmd.Args())

	switch c := cmd.(type) {
	case *redis.MapStringStringCmd:
		c.SetVal(h.fields)
	case *redis.FloatCmd:
		if h.score == nil {
			c.SetErr(redis.Nil)
			return
		}
		c.SetVal(*h.score)
	}
}

func (h *scriptedRedis) commands() [][]interface{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([][]interface{}(nil), h.sent...)
}

func newScriptedIndex(t *testing.T, h *scriptedRedis, now time.Time) *RedisIndex {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	client.AddHook(h)
	t.Cleanup(func() { _ = client.Close() })

	idx := NewRedisIndex(client)
	idx.now = func() time.Time { return now }
	return idx
}

func TestRedisIndex_TouchStoresEntryMetadata(t *testing.T) {
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	h := &scriptedRedis{}
	idx := newScriptedIndex(t, h, now)
	connectedAt := now.Add(-time.Minute)

	err := idx.Touch(context.Background(), Entry{
		UserID:      "driver-1",
		ConnID:      "c-1",
		Role:        "driver",
		Instance:    "api-1",
		ConnectedAt: connectedAt,
	}, 90*time.Second)
	require.NoError(t, err)

	sent := h.commands()
	assert.Contains(t, sent, []interface{}{"hset", "presence:conn:c-1", "user", "driver-1", "role", "driver", "instance", "api-1"})
	assert.Contains(t, sent, []interface{}{"hsetnx", "presence:conn:c-1", "connected_at", millis(connectedAt)})
	assert.Contains(t, sent, []interface{}{"expire", "presence:conn:c-1", int64(90)})
	assert.Contains(t, sent, []interface{}{"expire", "presence:user:driver-1", int64(90)})
}

func TestRedisIndex_RemoveDropsEntryMetadata(t *testing.T) {
	h := &scriptedRedis{}
	idx := newScriptedIndex(t, h, time.Now())

	_, err := idx.Remove(context.Background(), "driver-1", "c-1")
	require.NoError(t, err)
	assert.Contains(t, h.commands(), []interface{}{"del", "presence:conn:c-1"})
}

func TestRedisIndex_LookupRestoresRoleAndConnectedAt(t *testing.T) {
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	connectedAt := now.Add(-5 * time.Minute)
	expiry := float64(now.Add(time.Minute).UnixMilli())
	h := &scriptedRedis{
		fields: map[string]string{
			"user":         "driver-1",
			"role":         "driver",
			"instance":     "api-1",
			"connected_at": millis(connectedAt),
		},
		score: &expiry,
	}
	idx := newScriptedIndex(t, h, now)

	e, ok, err := idx.Lookup(context.Background(), "driver-1", "c-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "driver", e.Role)
	assert.Equal(t, "api-1", e.Instance)
	assert.True(t, connectedAt.Equal(e.ConnectedAt))
	assert.True(t, now.Add(time.Minute).Equal(e.ExpiresAt))
}

func TestRedisIndex_LookupMissingOrExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

	_, ok, err := newScriptedIndex(t, &scriptedRedis{}, now).Lookup(context.Background(), "driver-1", "c-1")
	require.NoError(t, err)
	assert.False(t, ok)

	expired := float64(now.Add(-time.Second).UnixMilli())
	_, ok, err = newScriptedIndex(t, &scriptedRedis{score: &expired}, now).Lookup(context.Background(), "driver-1", "c-1")
	require.NoError(t, err)
	assert.False(t, ok)
}
