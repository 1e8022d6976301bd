package presence

import (
	"context"
	"sync"
	"time"

	"github.com/gocomet/ridematch/pkg/logger"
	"github.com/gocomet/ridematch/pkg/monitoring"
)

// SharedIndex is a horizontally visible index that can be health checked
type SharedIndex interface {
	Index
	Ping(ctx context.Context) error
}

// FallbackIndex serves presence from the shared index while it is healthy and from
// an in-process index otherwise. Every write also goes to the local index so a
// switch loses nothing this instance knows about. It never returns an error.
type FallbackIndex struct {
	shared SharedIndex
	local  *LocalIndex
	logger *logger.Logger

	mu       sync.RWMutex
	degraded bool
}

// NewFallbackIndex selects the shared index when it answers a ping and the local
// index otherwise. shared may be nil, which pins the index to local mode.
func NewFallbackIndex(ctx context.Context, shared SharedIndex, log *logger.Logger) *FallbackIndex {
	f := &FallbackIndex{shared: shared, local: NewLocalIndex(), logger: log}
	if shared == nil {
		f.degraded = true
		log.Warn("No shared presence cache configured, presence is limited to this instance")
	} else if err := shared.Ping(ctx); err != nil {
		f.degrade(err)
	} else {
		monitoring.PresenceMode.Set(1)
	}
	return f
}

// Shared reports whether the shared index is currently in use.
func (f *FallbackIndex) Shared() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return !f.degraded
}

func (f *FallbackIndex) degrade(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.degraded {
		return
	}
	f.degraded = true
	monitoring.PresenceMode.Set(0)
	f.logger.Warn("Shared presence cache unavailable, falling back to local presence", logger.Err(err))
}

// Touch implements Index
func (f *FallbackIndex) Touch(ctx context.Context, e Entry, ttl time.Duration) error {
	_ = f.local.Touch(ctx, e, ttl)
	if f.Shared() {
		if err := f.shared.Touch(ctx, e, ttl); err != nil {
			f.degrade(err)
		}
	}
	return nil
}

// Remove implements Index
func (f *FallbackIndex) Remove(ctx context.Context, userID, connID string) (int, error) {
	remaining, _ := f.local.Remove(ctx, userID, connID)
	if f.Shared() {
		n, err := f.shared.Remove(ctx, userID, connID)
		if err == nil {
			return n, nil
		}
		f.degrade(err)
	}
	return remaining, nil
}

// Connections implements Index
func (f *FallbackIndex) Connections(ctx context.Context, userID string) ([]string, error) {
	if f.Shared() {
		ids, err := f.shared.Connections(ctx, userID)
		if err == nil {
			return ids, nil
		}
		f.degrade(err)
	}
	ids, _ := f.local.Connections(ctx, userID)
	return ids, nil
}

// Lookup implements Index
func (f *FallbackIndex) Lookup(ctx context.Context, userID, connID string) (Entry, bool, error) {
	if f.Shared() {
		e, ok, err := f.shared.Lookup(ctx, userID, connID)
		if err == nil {
			return e, ok, nil
		}
		f.degrade(err)
	}
	e, ok, _ := f.local.Lookup(ctx, userID, connID)
	return e, ok, nil
}

// Sweep implements Index. While degraded it also probes the shared index and
// switches back, republishing local entries, once the probe succeeds.
func (f *FallbackIndex) Sweep(ctx context.Context) (int, error) {
	removed, _ := f.local.Sweep(ctx)
	if f.shared == nil {
		return removed, nil
	}

	if f.Shared() {
		if _, err := f.shared.Sweep(ctx); err != nil {
			f.degrade(err)
		}
		return removed, nil
	}

	if err := f.shared.Ping(ctx); err != nil {
		return removed, nil
	}
	f.restore(ctx)
	return removed, nil
}

func (f *FallbackIndex) restore(ctx context.Context) {
	now := time.Now()
	for _, e := range f.local.Snapshot() {
		ttl := e.ExpiresAt.Sub(now)
		if ttl <= 0 {
			continue
		}
		if err := f.shared.Touch(ctx, e, ttl); err != nil {
			f.logger.Warn("Shared presence cache still failing, staying local", logger.Err(err))
			return
		}
	}

	f.mu.Lock()
	f.degraded = false
	f.mu.Unlock()
	monitoring.PresenceMode.Set(1)
	f.logger.Info("Shared presence cache recovered")
}
