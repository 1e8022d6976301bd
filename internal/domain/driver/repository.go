package driver

import (
	"context"
	"time"

	"github.com/gocomet/ridematch/internal/domain/trip"
)

// Repository defines the interface for driver availability data access
type Repository interface {
	// Get retrieves a driver by ID
	Get(ctx context.Context, id string) (*Driver, error)

	// ListOnline returns every driver whose status is ONLINE
	ListOnline(ctx context.Context) ([]*Driver, error)

	// UpdateLocation updates driver location
	UpdateLocation(ctx context.Context, id string, loc trip.Coordinate, at time.Time) error

	// UpdateStatus updates driver status
	UpdateStatus(ctx context.Context, id string, status OnlineStatus) error

	// Upsert stores a full record; used by onboarding collaborators and tests
	Upsert(ctx context.Context, d *Driver) error
}
