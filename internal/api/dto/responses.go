package dto

import "github.com/gocomet/ridematch/internal/domain/trip"

// TripResponse wraps a single trip
type TripResponse struct {
	Trip *trip.Trip `json:"trip"`
}

// CancelResponse is returned by the cancel endpoint
type CancelResponse struct {
	Status trip.Status `json:"status"`
	Trip   *trip.Trip  `json:"trip"`
}

// DriverLocationResponse acknowledges a location update
type DriverLocationResponse struct {
	DriverID string          `json:"driverId"`
	Location trip.Coordinate `json:"location"`
}

// DriverStatusResponse acknowledges a status change
type DriverStatusResponse struct {
	DriverID string `json:"driverId"`
	Status   string `json:"status"`
}

// Error response
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
