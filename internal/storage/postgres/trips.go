package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/gocomet/ridematch/internal/domain/trip"
	apperrors "github.com/gocomet/ridematch/pkg/errors"
)

const uniqueViolation = "23505"

// TripRepository stores each trip as a JSONB document next to the columns the
// uniqueness indexes and listings need.
type TripRepository struct {
	db *sql.DB
}

// NewTripRepository creates a new trip repository
func NewTripRepository(db *sql.DB) *TripRepository {
	return &TripRepository{db: db}
}

// Create implements trip.Repository
func (r *TripRepository) Create(ctx context.Context, t *trip.Trip) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	doc, err := json.Marshal(t)
	if err != nil {
		return apperrors.Wrap(err, "failed to encode trip")
	}

	query := `
		INSERT INTO trips (id, rider_id, driver_id, status, created_at, version, doc)
		VALUES ($1, $2, $3, $4, $5, 1, $6)
	`
	_, err = r.db.ExecContext(ctx, query, t.ID, t.RiderID, nullable(t.AssignedDriver()), string(t.Status), t.CreatedAt, doc)
	if err != nil {
		return mapWriteError(err)
	}

	t.Version = 1
	return nil
}

// Get implements trip.Repository
func (r *TripRepository) Get(ctx context.Context, id string) (*trip.Trip, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, trip.ErrTripNotFound
	}

	row := r.db.QueryRowContext(ctx, `SELECT doc, version FROM trips WHERE id = $1`, id)
	t, err := scanTrip(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, trip.ErrTripNotFound
	}
	return t, err
}

// Update implements trip.Repository
func (r *TripRepository) Update(ctx context.Context, t *trip.Trip) error {
	doc, err := json.Marshal(t)
	if err != nil {
		return apperrors.Wrap(err, "failed to encode trip")
	}

	query := `
		UPDATE trips
		SET driver_id = $2, status = $3, doc = $4, version = version + 1
		WHERE id = $1 AND version = $5
	`
	result, err := r.db.ExecContext(ctx, query, t.ID, nullable(t.AssignedDriver()), string(t.Status), doc, t.Version)
	if err != nil {
		return mapWriteError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		var exists bool
		if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM trips WHERE id = $1)`, t.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return trip.ErrTripNotFound
		}
		return trip.ErrVersionConflict
	}

	t.Version++
	return nil
}

// ActiveByRider implements trip.Repository
func (r *TripRepository) ActiveByRider(ctx context.Context, riderID string) (*trip.Trip, error) {
	return r.one(ctx, `
		SELECT doc, version FROM trips
		WHERE rider_id = $1 AND status IN ('REQUESTED', 'ACCEPTED', 'IN_PROGRESS')
		ORDER BY created_at DESC LIMIT 1
	`, riderID)
}

// ActiveByDriver implements trip.Repository
func (r *TripRepository) ActiveByDriver(ctx context.Context, driverID string) (*trip.Trip, error) {
	return r.one(ctx, `
		SELECT doc, version FROM trips
		WHERE driver_id = $1 AND status IN ('ACCEPTED', 'IN_PROGRESS')
		ORDER BY created_at DESC LIMIT 1
	`, driverID)
}

// ActiveDriverIDs implements trip.Repository
func (r *TripRepository) ActiveDriverIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT driver_id FROM trips
		WHERE driver_id IS NOT NULL AND status IN ('ACCEPTED', 'IN_PROGRESS')
		ORDER BY driver_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListByStatus implements trip.Repository
func (r *TripRepository) ListByStatus(ctx context.Context, status trip.Status) ([]*trip.Trip, error) {
	return r.many(ctx, `SELECT doc, version FROM trips WHERE status = $1 ORDER BY created_at DESC`, string(status))
}

// HistoryByRider implements trip.Repository
func (r *TripRepository) HistoryByRider(ctx context.Context, riderID string) ([]*trip.Trip, error) {
	return r.many(ctx, `SELECT doc, version FROM trips WHERE rider_id = $1 ORDER BY created_at DESC`, riderID)
}

// HistoryByDriver implements trip.Repository
func (r *TripRepository) HistoryByDriver(ctx context.Context, driverID string) ([]*trip.Trip, error) {
	return r.many(ctx, `SELECT doc, version FROM trips WHERE driver_id = $1 ORDER BY created_at DESC`, driverID)
}

func (r *TripRepository) one(ctx context.Context, query string, args ...interface{}) (*trip.Trip, error) {
	t, err := scanTrip(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

func (r *TripRepository) many(ctx context.Context, query string, args ...interface{}) ([]*trip.Trip, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trips := make([]*trip.Trip, 0)
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		trips = append(trips, t)
	}
	return trips, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTrip(s scanner) (*trip.Trip, error) {
	var (
		doc     []byte
		version int64
	)
	if err := s.Scan(&doc, &version); err != nil {
		return nil, err
	}

	var t trip.Trip
	if err := json.Unmarshal(doc, &t); err != nil {
		return nil, apperrors.Wrap(err, "failed to decode trip")
	}
	t.Version = version
	return &t, nil
}

// mapWriteError translates partial unique index violations into domain errors.
func mapWriteError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return err
	}
	switch pqErr.Constraint {
	case constraintActiveRider:
		return trip.ErrRiderHasActiveTrip
	case constraintActiveDriver:
		return trip.ErrDriverHasActiveTrip
	}
	return trip.ErrVersionConflict
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
