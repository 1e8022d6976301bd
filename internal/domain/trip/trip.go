package trip

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a trip
type Status string

const (
	StatusRequested  Status = "REQUESTED"
	StatusAccepted   Status = "ACCEPTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// ActiveStatuses are the statuses that count towards the one-active-trip-per-rider rule.
var ActiveStatuses = []Status{StatusRequested, StatusAccepted, StatusInProgress}

// DriverActiveStatuses are the statuses that count towards the one-trip-per-driver rule.
var DriverActiveStatuses = []Status{StatusAccepted, StatusInProgress}

// IsActive reports whether the trip still blocks its rider from requesting another.
func (s Status) IsActive() bool {
	return s == StatusRequested || s == StatusAccepted || s == StatusInProgress
}

// IsDriverActive reports whether the trip occupies its driver.
func (s Status) IsDriverActive() bool {
	return s == StatusAccepted || s == StatusInProgress
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// VehicleType is the vehicle class requested by the rider
type VehicleType string

const (
	VehicleMotorbike VehicleType = "MOTORBIKE"
	VehicleFourSeat  VehicleType = "4_SEAT"
	VehicleSevenSeat VehicleType = "7_SEAT"
)

// DefaultVehicleType is used whenever a client sends an unknown vehicle class.
const DefaultVehicleType = VehicleFourSeat

// IsValid validates the vehicle type
func (v VehicleType) IsValid() bool {
	switch v {
	case VehicleMotorbike, VehicleFourSeat, VehicleSevenSeat:
		return true
	}
	return false
}

// ParseVehicleType normalises client input ("4 seat", "4-SEAT", "motorbike") to a
// known vehicle type. Unknown values resolve to DefaultVehicleType with ok=false.
func ParseVehicleType(raw string) (VehicleType, bool) {
	normalised := strings.ToUpper(strings.TrimSpace(raw))
	normalised = strings.NewReplacer(" ", "_", "-", "_").Replace(normalised)
	v := VehicleType(normalised)
	if v.IsValid() {
		return v, true
	}
	return DefaultVehicleType, false
}

// PaymentMethod is how the rider settles the fare
type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "CASH"
	PaymentWallet PaymentMethod = "WALLET"
)

// IsValid validates the payment method
func (m PaymentMethod) IsValid() bool {
	return m == PaymentCash || m == PaymentWallet
}

// PaymentStatus is the settlement flag recorded on the trip
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
)

// Coordinate is a bare lat/lng pair
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Location is a coordinate with a human readable address
type Location struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

// Coordinate drops the address.
func (l Location) Coordinate() Coordinate {
	return Coordinate{Lat: l.Lat, Lng: l.Lng}
}

// IsValid checks the coordinate ranges.
func (c Coordinate) IsValid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// Trip is a single ride transaction from request to terminal state
type Trip struct {
	ID              string        `json:"id"`
	RiderID         string        `json:"riderId"`
	DriverID        *string       `json:"driverId"`
	PickupLocation  Location      `json:"pickupLocation"`
	DropoffLocation Location      `json:"dropoffLocation"`
	VehicleType     VehicleType   `json:"vehicleType"`
	PaymentMethod   PaymentMethod `json:"paymentMethod"`
	PaymentStatus   PaymentStatus `json:"paymentStatus"`
	Fare            float64       `json:"fare"`
	DistanceMeters  int           `json:"distanceMeters"`
	DurationSeconds int           `json:"durationSeconds"`
	Path            []Coordinate  `json:"path"`
	Status          Status        `json:"status"`
	CreatedAt       time.Time     `json:"createdAt"`
	AcceptedAt      *time.Time    `json:"acceptedAt,omitempty"`
	PickupAt        *time.Time    `json:"pickupAt,omitempty"`
	CompletedAt     *time.Time    `json:"completedAt,omitempty"`
	CancelledAt     *time.Time    `json:"cancelledAt,omitempty"`
	CancelledBy     string        `json:"cancelledBy,omitempty"`
	Version         int64         `json:"-"`
}

// TransitionError is returned when a lifecycle event is not allowed from the current status.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

// AssignedDriver returns the driver id or "" when the trip is unassigned.
func (t *Trip) AssignedDriver() string {
	if t.DriverID == nil {
		return ""
	}
	return *t.DriverID
}

// IsParticipant reports whether userID is the rider or the assigned driver.
func (t *Trip) IsParticipant(userID string) bool {
	return userID != "" && (t.RiderID == userID || t.AssignedDriver() == userID)
}

// Accept assigns the driver. Only a REQUESTED trip can be accepted.
func (t *Trip) Accept(driverID string, at time.Time) error {
	if t.Status != StatusRequested {
		return &TransitionError{From: t.Status, To: StatusAccepted}
	}
	t.DriverID = &driverID
	t.AcceptedAt = &at
	t.Status = StatusAccepted
	return nil
}

// MarkPickup starts the ride.
func (t *Trip) MarkPickup(at time.Time) error {
	if t.Status != StatusAccepted {
		return &TransitionError{From: t.Status, To: StatusInProgress}
	}
	t.PickupAt = &at
	t.Status = StatusInProgress
	return nil
}

// MarkComplete ends the ride. Cash is treated as settled on completion and wallet
// settlement is triggered downstream from the completion event, so both are PAID here.
func (t *Trip) MarkComplete(at time.Time) error {
	if t.Status != StatusInProgress {
		return &TransitionError{From: t.Status, To: StatusCompleted}
	}
	t.CompletedAt = &at
	t.Status = StatusCompleted
	t.PaymentStatus = PaymentPaid
	return nil
}

// Cancel is allowed while the trip is REQUESTED or ACCEPTED.
func (t *Trip) Cancel(actorID string, at time.Time) error {
	if t.Status != StatusRequested && t.Status != StatusAccepted {
		return &TransitionError{From: t.Status, To: StatusCancelled}
	}
	t.CancelledAt = &at
	t.CancelledBy = actorID
	t.Status = StatusCancelled
	return nil
}

// Clone returns a deep copy so stored documents are never aliased by callers.
func (t *Trip) Clone() *Trip {
	c := *t
	if t.DriverID != nil {
		d := *t.DriverID
		c.DriverID = &d
	}
	c.AcceptedAt = cloneTime(t.AcceptedAt)
	c.PickupAt = cloneTime(t.PickupAt)
	c.CompletedAt = cloneTime(t.CompletedAt)
	c.CancelledAt = cloneTime(t.CancelledAt)
	if t.Path != nil {
		c.Path = append([]Coordinate(nil), t.Path...)
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
