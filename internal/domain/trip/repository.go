package trip

import (
	"context"
	"errors"
)

// Repository is the document store for trips. Writes are optimistic: Update succeeds
// only when the stored Version equals t.Version, and bumps it on success.
type Repository interface {
	// Create assigns ID and Version and stores a new trip. It fails with
	// ErrRiderHasActiveTrip when the rider already holds an active trip.
	Create(ctx context.Context, t *Trip) error

	// Get returns ErrTripNotFound when absent.
	Get(ctx context.Context, id string) (*Trip, error)

	// Update fails with ErrVersionConflict on a stale version and with
	// ErrDriverHasActiveTrip when the write would give a driver two active trips.
	Update(ctx context.Context, t *Trip) error

	// ActiveByRider returns the rider's active trip or nil.
	ActiveByRider(ctx context.Context, riderID string) (*Trip, error)

	// ActiveByDriver returns the driver's ACCEPTED/IN_PROGRESS trip or nil.
	ActiveByDriver(ctx context.Context, driverID string) (*Trip, error)

	// ActiveDriverIDs lists drivers currently holding an ACCEPTED/IN_PROGRESS trip.
	ActiveDriverIDs(ctx context.Context) ([]string, error)

	// ListByStatus returns trips in the given status, newest first.
	ListByStatus(ctx context.Context, status Status) ([]*Trip, error)

	// HistoryByRider and HistoryByDriver return all trips of a user, newest first.
	HistoryByRider(ctx context.Context, riderID string) ([]*Trip, error)
	HistoryByDriver(ctx context.Context, driverID string) ([]*Trip, error)
}

var (
	ErrTripNotFound        = errors.New("trip not found")
	ErrVersionConflict     = errors.New("trip was modified concurrently")
	ErrRiderHasActiveTrip  = errors.New("rider already has an active trip")
	ErrDriverHasActiveTrip = errors.New("driver already has an active trip")
)
