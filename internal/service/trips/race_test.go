package trips

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocomet/ridematch/internal/domain/trip"
	apperrors "github.com/gocomet/ridematch/pkg/errors"
)

func TestConcurrentAccept_SingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.CreateRequest(ctx, request("rider-1"))
	require.NoError(t, err)

	const drivers = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  []string
		rejected int
	)
	for i := 0; i < drivers; i++ {
		driverID := fmt.Sprintf("driver-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Accept(ctx, created.ID, driverID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners = append(winners, driverID)
				return
			}
			assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
			rejected++
		}()
	}
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, drivers-1, rejected)

	stored, err := f.trips.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, winners[0], stored.AssignedDriver())
	assert.Zero(t, f.svc.locks.size(), "locks are released")
}

func TestConcurrentCreateRequest_OneTripPerRider(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const attempts = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateRequest(ctx, request("rider-1"))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			assert.ErrorIs(t, err, apperrors.ErrConflictingActiveTrip)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	active, err := f.trips.ListByStatus(ctx, trip.StatusRequested)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestConcurrentAccept_DriverTakesOneTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const riders = 8
	ids := make([]string, 0, riders)
	for i := 0; i < riders; i++ {
		created, err := f.svc.CreateRequest(ctx, request(fmt.Sprintf("rider-%d", i)))
		require.NoError(t, err)
		ids = append(ids, created.ID)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.Accept(ctx, id, "driver-1")
		}()
	}
	wg.Wait()

	history, err := f.svc.DriverHistory(ctx, "driver-1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestConcurrentCancelAndAccept_Consistent(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		ctx := context.Background()

		created, err := f.svc.CreateRequest(ctx, request("rider-1"))
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = f.svc.Accept(ctx, created.ID, "driver-1")
		}()
		go func() {
			defer wg.Done()
			_, _ = f.svc.Cancel(ctx, "rider-1")
		}()
		wg.Wait()

		stored, err := f.trips.Get(ctx, created.ID)
		require.NoError(t, err)
		// cancel runs either first or after accept; both end cancelled
		assert.Equal(t, trip.StatusCancelled, stored.Status)
	}
}
