package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// LastSeenStore persists last-seen timestamps in the user_presence table
type LastSeenStore struct {
	db *sql.DB
}

// NewLastSeenStore creates a new last-seen store
func NewLastSeenStore(db *sql.DB) *LastSeenStore {
	return &LastSeenStore{db: db}
}

// RecordLastSeen upserts the timestamp, never moving it backwards
func (s *LastSeenStore) RecordLastSeen(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_presence (user_id, last_seen_at) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET last_seen_at = GREATEST(user_presence.last_seen_at, EXCLUDED.last_seen_at)
	`, userID, at)
	return err
}

// LastSeen returns the recorded timestamp, ok=false when the user was never seen
func (s *LastSeenStore) LastSeen(ctx context.Context, userID string) (time.Time, bool, error) {
	var at time.Time
	err := s.db.QueryRowContext(ctx, `SELECT last_seen_at FROM user_presence WHERE user_id = $1`, userID).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return at, true, nil
}
