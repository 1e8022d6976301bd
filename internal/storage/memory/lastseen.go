package memory

import (
	"context"
	"sync"
	"time"
)

// LastSeenStore records when each user last dropped their final connection
type LastSeenStore struct {
	mu   sync.RWMutex
	seen map[string]time.Time
}

// NewLastSeenStore creates an empty store
func NewLastSeenStore() *LastSeenStore {
	return &LastSeenStore{seen: make(map[string]time.Time)}
}

// RecordLastSeen stores at when it is newer than the recorded value
func (s *LastSeenStore) RecordLastSeen(ctx context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.seen[userID]; !ok || at.After(prev) {
		s.seen[userID] = at
	}
	return nil
}

// LastSeen returns the recorded timestamp, ok=false when the user was never seen
func (s *LastSeenStore) LastSeen(ctx context.Context, userID string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	at, ok := s.seen[userID]
	return at, ok, nil
}
