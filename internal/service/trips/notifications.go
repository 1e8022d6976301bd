package trips

import (
	"time"

	"github.com/gocomet/ridematch/internal/domain/driver"
	"github.com/gocomet/ridematch/internal/domain/trip"
	"github.com/gocomet/ridematch/pkg/websocket"
)

// Real-time event names
const (
	EventNewRideRequest = "new-ride-request"
	EventTripAccepted   = "trip-accepted"
	EventTripPickedUp   = "trip-picked-up"
	EventTripCompleted  = "trip-completed"
	EventTripCancelled  = "trip-cancelled"
	EventDriverLocation = "driver-location-update"
)

// Notifier delivers real-time events. Implementations must not block.
type Notifier interface {
	SendToUser(userID string, message websocket.Message)
	BroadcastToRoom(room string, message websocket.Message)
}

// TripUpdate is the payload of every trip state event
type TripUpdate struct {
	TripID        string             `json:"tripId"`
	Status        trip.Status        `json:"status"`
	PaymentStatus trip.PaymentStatus `json:"paymentStatus,omitempty"`
	CancelledBy   string             `json:"cancelledBy,omitempty"`
	Driver        *driver.Summary    `json:"driver,omitempty"`
	Trip          *trip.Trip         `json:"trip"`
	At            time.Time          `json:"at"`
}

// LocationUpdate is the payload of driver-location-update
type LocationUpdate struct {
	TripID    string          `json:"tripId"`
	DriverID  string          `json:"driverId"`
	Location  trip.Coordinate `json:"location"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func tripMessage(eventType string, t *trip.Trip, at time.Time) websocket.Message {
	return websocket.Message{Type: eventType, Data: TripUpdate{
		TripID:        t.ID,
		Status:        t.Status,
		PaymentStatus: t.PaymentStatus,
		CancelledBy:   t.CancelledBy,
		Trip:          t,
		At:            at,
	}}
}

func (s *Service) notifyRequested(t *trip.Trip) {
	s.notifier.BroadcastToRoom(websocket.RoomDrivers, tripMessage(EventNewRideRequest, t, t.CreatedAt))
}

func (s *Service) notifyAccepted(t *trip.Trip, summary *driver.Summary) {
	msg := tripMessage(EventTripAccepted, t, *t.AcceptedAt)
	update := msg.Data.(TripUpdate)
	update.Driver = summary
	msg.Data = update

	s.notifier.SendToUser(t.RiderID, msg)
	s.notifier.BroadcastToRoom(websocket.TripRoom(t.ID), msg)
}

func (s *Service) notifyPickedUp(t *trip.Trip) {
	msg := tripMessage(EventTripPickedUp, t, *t.PickupAt)
	s.notifier.SendToUser(t.RiderID, msg)
	s.notifier.BroadcastToRoom(websocket.TripRoom(t.ID), msg)
}

func (s *Service) notifyCompleted(t *trip.Trip) {
	msg := tripMessage(EventTripCompleted, t, *t.CompletedAt)
	s.notifier.SendToUser(t.RiderID, msg)
	s.notifier.SendToUser(t.AssignedDriver(), msg)
	s.notifier.BroadcastToRoom(websocket.TripRoom(t.ID), msg)
}

func (s *Service) notifyCancelled(t *trip.Trip, previous trip.Status) {
	msg := tripMessage(EventTripCancelled, t, *t.CancelledAt)

	if t.CancelledBy == t.RiderID {
		if d := t.AssignedDriver(); d != "" {
			s.notifier.SendToUser(d, msg)
		}
	} else {
		s.notifier.SendToUser(t.RiderID, msg)
	}
	s.notifier.BroadcastToRoom(websocket.TripRoom(t.ID), msg)
	if previous == trip.StatusRequested {
		// lets drivers drop the request from their open list
		s.notifier.BroadcastToRoom(websocket.RoomDrivers, msg)
	}
}

func (s *Service) notifyLocation(t *trip.Trip, driverID string, loc trip.Coordinate, at time.Time) {
	s.notifier.BroadcastToRoom(websocket.TripRoom(t.ID), websocket.Message{
		Type: EventDriverLocation,
		Data: LocationUpdate{TripID: t.ID, DriverID: driverID, Location: loc, UpdatedAt: at},
	})
}
