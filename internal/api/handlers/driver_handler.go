package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gocomet/ridematch/internal/api/dto"
	"github.com/gocomet/ridematch/internal/domain/driver"
	"github.com/gocomet/ridematch/internal/domain/trip"
)

// UpdateDriverLocation handles POST /v1/drivers/location
func (h *Handlers) UpdateDriverLocation(c *gin.Context) {
	var req dto.UpdateLocationRequest
	if !h.bindJSON(c, &req) {
		return
	}

	driverID := caller(c).UserID
	loc := trip.Coordinate{Lat: *req.Lat, Lng: *req.Lng}
	if err := h.Trips.UpdateDriverLocation(c.Request.Context(), driverID, loc); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.DriverLocationResponse{DriverID: driverID, Location: loc})
}

// UpdateDriverStatus handles PATCH /v1/drivers/status
func (h *Handlers) UpdateDriverStatus(c *gin.Context) {
	var req dto.UpdateStatusRequest
	if !h.bindJSON(c, &req) {
		return
	}

	driverID := caller(c).UserID
	if err := h.Trips.SetDriverStatus(c.Request.Context(), driverID, driver.OnlineStatus(req.Status)); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.DriverStatusResponse{DriverID: driverID, Status: req.Status})
}
