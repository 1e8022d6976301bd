package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gocomet/ridematch/internal/api/dto"
	"github.com/gocomet/ridematch/internal/domain/trip"
	"github.com/gocomet/ridematch/internal/service/trips"
	apperrors "github.com/gocomet/ridematch/pkg/errors"
	"github.com/gocomet/ridematch/pkg/logger"
)

func toLocation(in dto.LocationInput) trip.Location {
	return trip.Location{Lat: *in.Lat, Lng: *in.Lng, Address: in.Address}
}

// CreateTrip handles POST /v1/trips/request
func (h *Handlers) CreateTrip(c *gin.Context) {
	var req dto.CreateTripRequest
	if !h.bindJSON(c, &req) {
		return
	}

	t, err := h.Trips.CreateRequest(c.Request.Context(), trips.RequestInput{
		RiderID:       caller(c).UserID,
		Pickup:        toLocation(req.PickupLocation),
		Dropoff:       toLocation(req.DropoffLocation),
		VehicleType:   req.VehicleType,
		PaymentMethod: trip.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.TripResponse{Trip: t})
}

// EstimateTrip handles POST /v1/trips/estimate
func (h *Handlers) EstimateTrip(c *gin.Context) {
	var req dto.EstimateRequest
	if !h.bindJSON(c, &req) {
		return
	}

	est, err := h.Trips.Estimate(c.Request.Context(), trips.EstimateInput{
		Pickup:      toLocation(req.PickupLocation),
		Dropoff:     toLocation(req.DropoffLocation),
		VehicleType: req.VehicleType,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, est)
}

// GetCurrentTrip handles GET /v1/trips/current
func (h *Handlers) GetCurrentTrip(c *gin.Context) {
	userID := caller(c).UserID
	t, err := h.Trips.GetCurrentTrip(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if t == nil {
		h.respondError(c, apperrors.NewAppError(apperrors.CodeNoActiveTrip, "no current trip", http.StatusNotFound, nil))
		return
	}

	c.JSON(http.StatusOK, dto.TripResponse{Trip: t})
}

// CancelTrip handles PATCH /v1/trips/cancel
func (h *Handlers) CancelTrip(c *gin.Context) {
	t, err := h.Trips.Cancel(c.Request.Context(), caller(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.CancelResponse{Status: t.Status, Trip: t})
}

// GetAvailableTrips handles GET /v1/trips/available
func (h *Handlers) GetAvailableTrips(c *gin.Context) {
	list, err := h.Trips.GetAvailableTrips(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(list))
}

// AcceptTrip handles PATCH /v1/trips/:id/accept
func (h *Handlers) AcceptTrip(c *gin.Context) {
	h.driverTransition(c, "accept", h.Trips.Accept)
}

// PickupTrip handles PATCH /v1/trips/:id/pickup
func (h *Handlers) PickupTrip(c *gin.Context) {
	h.driverTransition(c, "pickup", h.Trips.MarkPickup)
}

// CompleteTrip handles PATCH /v1/trips/:id/complete
func (h *Handlers) CompleteTrip(c *gin.Context) {
	h.driverTransition(c, "complete", h.Trips.MarkComplete)
}

func (h *Handlers) driverTransition(c *gin.Context, action string, apply func(ctx context.Context, tripID, driverID string) (*trip.Trip, error)) {
	tripID := c.Param("id")
	driverID := caller(c).UserID

	t, err := apply(c.Request.Context(), tripID, driverID)
	if err != nil {
		h.Logger.Debug("Trip transition rejected",
			logger.String("action", action),
			logger.String("trip_id", tripID),
			logger.String("driver_id", driverID),
			logger.Err(err),
		)
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.TripResponse{Trip: t})
}

// GetTrip handles GET /v1/trips/:id
func (h *Handlers) GetTrip(c *gin.Context) {
	t, err := h.Trips.GetTrip(c.Request.Context(), c.Param("id"), caller(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.TripResponse{Trip: t})
}

// RiderHistory handles GET /v1/trips/history
func (h *Handlers) RiderHistory(c *gin.Context) {
	list, err := h.Trips.RiderHistory(c.Request.Context(), caller(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(list))
}

// DriverHistory handles GET /v1/trips/driver-history
func (h *Handlers) DriverHistory(c *gin.Context) {
	list, err := h.Trips.DriverHistory(c.Request.Context(), caller(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(list))
}

// nonNil keeps empty lists rendering as [] rather than null.
func nonNil(list []*trip.Trip) []*trip.Trip {
	if list == nil {
		return []*trip.Trip{}
	}
	return list
}
