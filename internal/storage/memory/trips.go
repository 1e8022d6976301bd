package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/gocomet/ridematch/internal/domain/trip"
)

type tripRecord struct {
	trip *trip.Trip
	seq  uint64
}

// TripRepository is an in-process trip store. Uniqueness of active trips per rider
// and per driver is checked inside the same critical section as the write, which is
// the in-memory equivalent of the partial unique indexes of the Postgres store.
type TripRepository struct {
	mu    sync.RWMutex
	trips map[string]*tripRecord
	seq   uint64
}

// NewTripRepository creates an empty store
func NewTripRepository() *TripRepository {
	return &TripRepository{trips: make(map[string]*tripRecord)}
}

// Create implements trip.Repository
func (r *TripRepository) Create(ctx context.Context, t *trip.Trip) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if _, exists := r.trips[t.ID]; exists {
		return trip.ErrVersionConflict
	}
	if err := r.checkUnique(t); err != nil {
		return err
	}

	t.Version = 1
	r.seq++
	r.trips[t.ID] = &tripRecord{trip: t.Clone(), seq: r.seq}
	return nil
}

// Get implements trip.Repository
func (r *TripRepository) Get(ctx context.Context, id string) (*trip.Trip, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.trips[id]
	if !ok {
		return nil, trip.ErrTripNotFound
	}
	return rec.trip.Clone(), nil
}

// Update implements trip.Repository
func (r *TripRepository) Update(ctx context.Context, t *trip.Trip) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.trips[t.ID]
	if !ok {
		return trip.ErrTripNotFound
	}
	if rec.trip.Version != t.Version {
		return trip.ErrVersionConflict
	}
	if err := r.checkUnique(t); err != nil {
		return err
	}

	t.Version++
	rec.trip = t.Clone()
	return nil
}

// checkUnique must be called with the write lock held.
func (r *TripRepository) checkUnique(t *trip.Trip) error {
	for id, rec := range r.trips {
		if id == t.ID {
			continue
		}
		other := rec.trip
		if t.Status.IsActive() && other.Status.IsActive() && other.RiderID == t.RiderID {
			return trip.ErrRiderHasActiveTrip
		}
		if t.Status.IsDriverActive() && other.Status.IsDriverActive() &&
			t.AssignedDriver() != "" && other.AssignedDriver() == t.AssignedDriver() {
			return trip.ErrDriverHasActiveTrip
		}
	}
	return nil
}

// ActiveByRider implements trip.Repository
func (r *TripRepository) ActiveByRider(ctx context.Context, riderID string) (*trip.Trip, error) {
	return r.first(func(t *trip.Trip) bool {
		return t.RiderID == riderID && t.Status.IsActive()
	}), nil
}

// ActiveByDriver implements trip.Repository
func (r *TripRepository) ActiveByDriver(ctx context.Context, driverID string) (*trip.Trip, error) {
	return r.first(func(t *trip.Trip) bool {
		return t.AssignedDriver() == driverID && t.Status.IsDriverActive()
	}), nil
}

// ActiveDriverIDs implements trip.Repository
func (r *TripRepository) ActiveDriverIDs(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0)
	for _, rec := range r.trips {
		if rec.trip.Status.IsDriverActive() && rec.trip.AssignedDriver() != "" {
			ids = append(ids, rec.trip.AssignedDriver())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ListByStatus implements trip.Repository
func (r *TripRepository) ListByStatus(ctx context.Context, status trip.Status) ([]*trip.Trip, error) {
	return r.filter(func(t *trip.Trip) bool { return t.Status == status }), nil
}

// HistoryByRider implements trip.Repository
func (r *TripRepository) HistoryByRider(ctx context.Context, riderID string) ([]*trip.Trip, error) {
	return r.filter(func(t *trip.Trip) bool { return t.RiderID == riderID }), nil
}

// HistoryByDriver implements trip.Repository
func (r *TripRepository) HistoryByDriver(ctx context.Context, driverID string) ([]*trip.Trip, error) {
	return r.filter(func(t *trip.Trip) bool { return t.AssignedDriver() == driverID }), nil
}

func (r *TripRepository) first(match func(*trip.Trip) bool) *trip.Trip {
	found := r.filter(match)
	if len(found) == 0 {
		return nil
	}
	return found[0]
}

// filter returns clones of the matching trips, newest first.
func (r *TripRepository) filter(match func(*trip.Trip) bool) []*trip.Trip {
	r.mu.RLock()
	defer r.mu.RUnlock()

	recs := make([]*tripRecord, 0)
	for _, rec := range r.trips {
		if match(rec.trip) {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i].trip.CreatedAt, recs[j].trip.CreatedAt
		if !a.Equal(b) {
			return a.After(b)
		}
		return recs[i].seq > recs[j].seq
	})

	out := make([]*trip.Trip, len(recs))
	for i, rec := range recs {
		out[i] = rec.trip.Clone()
	}
	return out
}
