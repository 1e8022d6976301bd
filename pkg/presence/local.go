package presence

import (
	"context"
	"sort"
	"sync"
	"time"
)

// LocalIndex is an in-process presence map scoped to the current instance
type LocalIndex struct {
	mu      sync.Mutex
	entries map[string]map[string]Entry // userID -> connID -> entry
	now     func() time.Time
}

// NewLocalIndex creates an empty index
func NewLocalIndex() *LocalIndex {
	return &LocalIndex{
		entries: make(map[string]map[string]Entry),
		now:     time.Now,
	}
}

// Touch implements Index
func (l *LocalIndex) Touch(ctx context.Context, e Entry, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	conns, ok := l.entries[e.UserID]
	if !ok {
		conns = make(map[string]Entry)
		l.entries[e.UserID] = conns
	}
	if prev, ok := conns[e.ConnID]; ok && !prev.ConnectedAt.IsZero() {
		e.ConnectedAt = prev.ConnectedAt
	}
	if e.ConnectedAt.IsZero() {
		e.ConnectedAt = now
	}
	e.ExpiresAt = now.Add(ttl)
	conns[e.ConnID] = e
	return nil
}

// Remove implements Index
func (l *LocalIndex) Remove(ctx context.Context, userID, connID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	conns, ok := l.entries[userID]
	if !ok {
		return 0, nil
	}
	delete(conns, connID)

	now := l.now()
	live := 0
	for _, e := range conns {
		if e.ExpiresAt.After(now) {
			live++
		}
	}
	if len(conns) == 0 {
		delete(l.entries, userID)
	}
	return live, nil
}

// Connections implements Index
func (l *LocalIndex) Connections(ctx context.Context, userID string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	ids := make([]string, 0, len(l.entries[userID]))
	for id, e := range l.entries[userID] {
		if e.ExpiresAt.After(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Lookup implements Index
func (l *LocalIndex) Lookup(ctx context.Context, userID, connID string) (Entry, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[userID][connID]
	if !ok || !e.ExpiresAt.After(l.now()) {
		return Entry{}, false, nil
	}
	return e, true, nil
}

// Sweep implements Index
func (l *LocalIndex) Sweep(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for userID, conns := range l.entries {
		for connID, e := range conns {
			if !e.ExpiresAt.After(now) {
				delete(conns, connID)
				removed++
			}
		}
		if len(conns) == 0 {
			delete(l.entries, userID)
		}
	}
	return removed, nil
}

// Snapshot returns every non-expired entry. Used to repopulate the shared index
// after it recovers.
func (l *LocalIndex) Snapshot() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	out := make([]Entry, 0)
	for _, conns := range l.entries {
		for _, e := range conns {
			if e.ExpiresAt.After(now) {
				out = append(out, e)
			}
		}
	}
	return out
}
