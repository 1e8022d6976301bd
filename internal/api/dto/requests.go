package dto

// LocationInput is a point sent by a client. Pointers let a missing coordinate be
// told apart from 0.
type LocationInput struct {
	Lat     *float64 `json:"lat" binding:"required,gte=-90,lte=90"`
	Lng     *float64 `json:"lng" binding:"required,gte=-180,lte=180"`
	Address string   `json:"address"`
}

// CreateTripRequest represents a rider's trip request
type CreateTripRequest struct {
	PickupLocation  LocationInput `json:"pickupLocation"`
	DropoffLocation LocationInput `json:"dropoffLocation"`
	VehicleType     string        `json:"vehicleType"`
	PaymentMethod   string        `json:"paymentMethod" binding:"required,oneof=CASH WALLET"`
}

// EstimateRequest prices a route without creating a trip
type EstimateRequest struct {
	PickupLocation  LocationInput `json:"pickupLocation"`
	DropoffLocation LocationInput `json:"dropoffLocation"`
	VehicleType     string        `json:"vehicleType"`
}

// UpdateLocationRequest represents a driver location update
type UpdateLocationRequest struct {
	Lat *float64 `json:"lat" binding:"required,gte=-90,lte=90"`
	Lng *float64 `json:"lng" binding:"required,gte=-180,lte=180"`
}

// UpdateStatusRequest switches a driver online or offline
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=ONLINE OFFLINE"`
}
