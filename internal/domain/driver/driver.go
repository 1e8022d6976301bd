package driver

import (
	"time"

	"github.com/gocomet/ridematch/internal/domain/trip"
)

// OnlineStatus represents driver availability
type OnlineStatus string

const (
	StatusOnline  OnlineStatus = "ONLINE"
	StatusOffline OnlineStatus = "OFFLINE"
)

// IsValid validates the status
func (s OnlineStatus) IsValid() bool {
	return s == StatusOnline || s == StatusOffline
}

// Vehicle describes the car or bike a driver operates
type Vehicle struct {
	Type  trip.VehicleType `json:"type"`
	Plate string           `json:"plate"`
}

// Driver is the availability record read by matching. It is created at onboarding
// elsewhere and only mutated by the driver's own location and status updates.
type Driver struct {
	ID                 string          `json:"id"`
	Vehicle            Vehicle         `json:"vehicle"`
	OnlineStatus       OnlineStatus    `json:"onlineStatus"`
	CurrentLocation    trip.Coordinate `json:"currentLocation"`
	LastLocationUpdate time.Time       `json:"lastLocationUpdate"`
}

// IsOnline returns true if driver can be offered trips
func (d *Driver) IsOnline() bool {
	return d.OnlineStatus == StatusOnline
}

// SetLocation updates the driver's current location
func (d *Driver) SetLocation(loc trip.Coordinate, at time.Time) {
	d.CurrentLocation = loc
	d.LastLocationUpdate = at
}

// Summary is the driver view attached to rider notifications.
type Summary struct {
	ID              string          `json:"id"`
	Vehicle         Vehicle         `json:"vehicle"`
	CurrentLocation trip.Coordinate `json:"currentLocation"`
}

// Summary returns the rider-facing view of the driver.
func (d *Driver) Summary() Summary {
	return Summary{ID: d.ID, Vehicle: d.Vehicle, CurrentLocation: d.CurrentLocation}
}
