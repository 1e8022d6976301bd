package trip

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRequested() *Trip {
	return &Trip{ID: "t-1", RiderID: "rider-1", Status: StatusRequested, PaymentStatus: PaymentPending}
}

func TestParseVehicleType(t *testing.T) {
	tests := []struct {
		raw      string
		expected VehicleType
		known    bool
	}{
		{"4_SEAT", VehicleFourSeat, true},
		{"4 SEAT", VehicleFourSeat, true},
		{"7-seat", VehicleSevenSeat, true},
		{" motorbike ", VehicleMotorbike, true},
		{"HOVERCRAFT", DefaultVehicleType, false},
		{"", DefaultVehicleType, false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			v, ok := ParseVehicleType(tt.raw)
			assert.Equal(t, tt.expected, v)
			assert.Equal(t, tt.known, ok)
		})
	}
}

func TestTrip_ForwardOnlyLifecycle(t *testing.T) {
	now := time.Now()
	tr := newRequested()

	require.NoError(t, tr.Accept("driver-1", now))
	assert.Equal(t, StatusAccepted, tr.Status)
	assert.Equal(t, "driver-1", tr.AssignedDriver())

	require.NoError(t, tr.MarkPickup(now))
	assert.Equal(t, StatusInProgress, tr.Status)

	require.NoError(t, tr.MarkComplete(now))
	assert.Equal(t, StatusCompleted, tr.Status)
	assert.Equal(t, PaymentPaid, tr.PaymentStatus)

	var transitionErr *TransitionError
	assert.ErrorAs(t, tr.Cancel("rider-1", now), &transitionErr)
	assert.ErrorAs(t, tr.Accept("driver-2", now), &transitionErr)
	assert.Equal(t, StatusCompleted, tr.Status)
}

func TestTrip_CannotSkipStates(t *testing.T) {
	now := time.Now()

	tr := newRequested()
	err := tr.MarkPickup(now)
	var transitionErr *TransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, StatusRequested, transitionErr.From)
	assert.Equal(t, StatusInProgress, transitionErr.To)

	assert.Error(t, tr.MarkComplete(now))
	assert.Nil(t, tr.PickupAt)
	assert.Nil(t, tr.CompletedAt)
}

func TestTrip_CancelOnlyBeforePickup(t *testing.T) {
	now := time.Now()

	tr := newRequested()
	require.NoError(t, tr.Accept("driver-1", now))
	require.NoError(t, tr.Cancel("rider-1", now))
	assert.Equal(t, "rider-1", tr.CancelledBy)
	assert.Equal(t, "driver-1", tr.AssignedDriver(), "driver stays recorded after an accepted trip is cancelled")

	started := newRequested()
	require.NoError(t, started.Accept("driver-1", now))
	require.NoError(t, started.MarkPickup(now))
	assert.Error(t, started.Cancel("rider-1", now))
}

func TestTrip_CloneIsDeep(t *testing.T) {
	now := time.Now()
	tr := newRequested()
	tr.Path = []Coordinate{{Lat: 1, Lng: 2}}
	require.NoError(t, tr.Accept("driver-1", now))

	c := tr.Clone()
	*c.DriverID = "driver-2"
	c.Path[0].Lat = 9

	assert.Equal(t, "driver-1", tr.AssignedDriver())
	assert.Equal(t, 1.0, tr.Path[0].Lat)
}

func TestStatus_Predicates(t *testing.T) {
	assert.True(t, StatusRequested.IsActive())
	assert.False(t, StatusRequested.IsDriverActive())
	assert.True(t, StatusInProgress.IsDriverActive())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, StatusAccepted.IsTerminal())
}
