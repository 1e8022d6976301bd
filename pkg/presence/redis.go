package presence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix     = "presence:user:"
	connKeyPrefix = "presence:conn:"
)

// RedisIndex stores presence in one sorted set per user: member = connection id,
// score = expiry in unix milliseconds. The key itself carries a TTL so abandoned
// users disappear without a sweeper. Entry metadata lives in a hash per connection
// with the same TTL.
type RedisIndex struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedisIndex creates a Redis-backed index
func NewRedisIndex(client redis.UniversalClient) *RedisIndex {
	return &RedisIndex{client: client, now: time.Now}
}

func userKey(userID string) string {
	return keyPrefix + userID
}

func connKey(connID string) string {
	return connKeyPrefix + connID
}

func millis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// Ping checks the connection
func (r *RedisIndex) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Touch implements Index
func (r *RedisIndex) Touch(ctx context.Context, e Entry, ttl time.Duration) error {
	now := r.now()
	key := userKey(e.UserID)
	meta := connKey(e.ConnID)
	connectedAt := e.ConnectedAt
	if connectedAt.IsZero() {
		connectedAt = now
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.Add(ttl).UnixMilli()), Member: e.ConnID})
		pipe.ZRemRangeByScore(ctx, key, "-inf", millis(now))
		pipe.Expire(ctx, key, ttl)
		pipe.HSet(ctx, meta, "user", e.UserID, "role", e.Role, "instance", e.Instance)
		// a refresh keeps the first connect time
		pipe.HSetNX(ctx, meta, "connected_at", millis(connectedAt))
		pipe.Expire(ctx, meta, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("presence touch: %w", err)
	}
	return nil
}

// Remove implements Index
func (r *RedisIndex) Remove(ctx context.Context, userID, connID string) (int, error) {
	key := userKey(userID)

	var count *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, key, connID)
		pipe.Del(ctx, connKey(connID))
		count = pipe.ZCount(ctx, key, "("+millis(r.now()), "+inf")
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("presence remove: %w", err)
	}
	return int(count.Val()), nil
}

// Connections implements Index
func (r *RedisIndex) Connections(ctx context.Context, userID string) ([]string, error) {
	ids, err := r.client.ZRangeByScore(ctx, userKey(userID), &redis.ZRangeBy{
		Min: "(" + millis(r.now()),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("presence lookup: %w", err)
	}
	return ids, nil
}

// Lookup implements Index
func (r *RedisIndex) Lookup(ctx context.Context, userID, connID string) (Entry, bool, error) {
	var meta *redis.MapStringStringCmd
	var score *redis.FloatCmd
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		meta = pipe.HGetAll(ctx, connKey(connID))
		score = pipe.ZScore(ctx, userKey(userID), connID)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return Entry{}, false, fmt.Errorf("presence lookup: %w", err)
	}
	if errors.Is(score.Err(), redis.Nil) {
		return Entry{}, false, nil
	}

	expiresAt := time.UnixMilli(int64(score.Val())).UTC()
	if !expiresAt.After(r.now()) {
		return Entry{}, false, nil
	}

	fields := meta.Val()
	e := Entry{
		UserID:    userID,
		ConnID:    connID,
		Role:      fields["role"],
		Instance:  fields["instance"],
		ExpiresAt: expiresAt,
	}
	if ms, err := strconv.ParseInt(fields["connected_at"], 10, 64); err == nil {
		e.ConnectedAt = time.UnixMilli(ms).UTC()
	}
	return e, true, nil
}

// Sweep implements Index. Expired members are trimmed on every Touch and ignored
// by reads, and idle keys expire on their own.
func (r *RedisIndex) Sweep(ctx context.Context) (int, error) {
	return 0, nil
}
