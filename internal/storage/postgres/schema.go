package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Constraint names are matched when translating unique violations.
const (
	constraintActiveRider  = "trips_one_active_per_rider"
	constraintActiveDriver = "trips_one_active_per_driver"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS trips (
		id          UUID PRIMARY KEY,
		rider_id    TEXT NOT NULL,
		driver_id   TEXT,
		status      TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL,
		version     BIGINT NOT NULL,
		doc         JSONB NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ` + constraintActiveRider + `
		ON trips (rider_id) WHERE status IN ('REQUESTED', 'ACCEPTED', 'IN_PROGRESS')`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ` + constraintActiveDriver + `
		ON trips (driver_id) WHERE status IN ('ACCEPTED', 'IN_PROGRESS')`,
	`CREATE INDEX IF NOT EXISTS trips_status_created_at ON trips (status, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS trips_rider_created_at ON trips (rider_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS trips_driver_created_at ON trips (driver_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS drivers (
		id                   TEXT PRIMARY KEY,
		vehicle_type         TEXT NOT NULL,
		plate                TEXT NOT NULL DEFAULT '',
		online_status        TEXT NOT NULL DEFAULT 'OFFLINE',
		lat                  DOUBLE PRECISION NOT NULL DEFAULT 0,
		lng                  DOUBLE PRECISION NOT NULL DEFAULT 0,
		last_location_update TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS drivers_online ON drivers (online_status)`,
	`CREATE TABLE IF NOT EXISTS user_presence (
		user_id      TEXT PRIMARY KEY,
		last_seen_at TIMESTAMPTZ NOT NULL
	)`,
}

// Migrate creates the tables and indexes used by the Postgres stores.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
