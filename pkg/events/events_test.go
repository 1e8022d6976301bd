package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_KeysByTripID(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	msg, err := Encode(TripEvent{
		Type:          TripCompleted,
		TripID:        "t-1",
		RiderID:       "rider-1",
		DriverID:      "driver-1",
		Status:        "COMPLETED",
		Fare:          12,
		PaymentMethod: "CASH",
		OccurredAt:    at,
	})
	require.NoError(t, err)

	assert.Equal(t, []byte("t-1"), msg.Key)
	assert.True(t, msg.Time.Equal(at))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "trip.completed", string(msg.Headers[0].Value))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "driver-1", decoded["driverId"])
	assert.Equal(t, 12.0, decoded["fare"])
	assert.NotContains(t, decoded, "cancelledBy")
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), TripEvent{TripID: "t-1"}))
	assert.NoError(t, p.Close())
}
