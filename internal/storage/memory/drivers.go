package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gocomet/ridematch/internal/domain/driver"
	"github.com/gocomet/ridematch/internal/domain/trip"
)

// DriverRepository keeps driver availability records in memory
type DriverRepository struct {
	mu      sync.RWMutex
	drivers map[string]driver.Driver
}

// NewDriverRepository creates an empty store
func NewDriverRepository() *DriverRepository {
	return &DriverRepository{drivers: make(map[string]driver.Driver)}
}

// Get implements driver.Repository
func (r *DriverRepository) Get(ctx context.Context, id string) (*driver.Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.drivers[id]
	if !ok {
		return nil, driver.ErrDriverNotFound
	}
	return &d, nil
}

// ListOnline implements driver.Repository
func (r *DriverRepository) ListOnline(ctx context.Context) ([]*driver.Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*driver.Driver, 0, len(r.drivers))
	for _, d := range r.drivers {
		if d.IsOnline() {
			out = append(out, &d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateLocation implements driver.Repository
func (r *DriverRepository) UpdateLocation(ctx context.Context, id string, loc trip.Coordinate, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.drivers[id]
	if !ok {
		return driver.ErrDriverNotFound
	}
	d.SetLocation(loc, at)
	r.drivers[id] = d
	return nil
}

// UpdateStatus implements driver.Repository
func (r *DriverRepository) UpdateStatus(ctx context.Context, id string, status driver.OnlineStatus) error {
	if !status.IsValid() {
		return driver.ErrInvalidDriverStatus
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.drivers[id]
	if !ok {
		return driver.ErrDriverNotFound
	}
	d.OnlineStatus = status
	r.drivers[id] = d
	return nil
}

// Upsert implements driver.Repository
func (r *DriverRepository) Upsert(ctx context.Context, d *driver.Driver) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.drivers[d.ID] = *d
	return nil
}
