package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"

	"github.com/gocomet/ridematch/internal/api/handlers"
	"github.com/gocomet/ridematch/internal/api/middleware"
	"github.com/gocomet/ridematch/pkg/identity"
	"github.com/gocomet/ridematch/pkg/logger"
	"github.com/gocomet/ridematch/pkg/monitoring"
)

// SetupRoutes configures all API routes
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, verifier identity.Verifier, log *logger.Logger, nrApp *newrelic.Application) {
	// Add New Relic middleware if enabled
	if nrApp != nil {
		r.Use(nrgin.Middleware(nrApp))
	}
	r.Use(monitoring.GinMetrics())

	r.GET("/health", h.Health)
	r.GET("/metrics", monitoring.MetricsHandler())

	// API v1 routes
	v1 := r.Group("/v1", middleware.Authenticate(verifier, log))
	{
		// WebSocket connection
		v1.GET("/ws", h.HandleWebSocket)

		rider := middleware.RequireRole(identity.RoleRider)
		driver := middleware.RequireRole(identity.RoleDriver)

		trips := v1.Group("/trips")
		{
			trips.POST("/request", rider, h.CreateTrip)
			trips.POST("/estimate", h.EstimateTrip)
			trips.GET("/current", h.GetCurrentTrip)
			trips.PATCH("/cancel", h.CancelTrip)
			trips.GET("/available", driver, h.GetAvailableTrips)
			trips.GET("/history", rider, h.RiderHistory)
			trips.GET("/driver-history", driver, h.DriverHistory)
			trips.GET("/:id", h.GetTrip)
			trips.PATCH("/:id/accept", driver, h.AcceptTrip)
			trips.PATCH("/:id/pickup", driver, h.PickupTrip)
			trips.PATCH("/:id/complete", driver, h.CompleteTrip)
		}

		drivers := v1.Group("/drivers", driver)
		{
			drivers.POST("/location", h.UpdateDriverLocation)
			drivers.PATCH("/status", h.UpdateDriverStatus)
		}
	}
}
