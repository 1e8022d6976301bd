package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"

	"github.com/gocomet/ridematch/internal/api/middleware"
	"github.com/gocomet/ridematch/internal/domain/trip"
	"github.com/gocomet/ridematch/internal/service/trips"
	apperrors "github.com/gocomet/ridematch/pkg/errors"
	"github.com/gocomet/ridematch/pkg/logger"
	"github.com/gocomet/ridematch/pkg/websocket"
)

type websocketUpgrader = gorilla.Upgrader

func newUpgrader(readBuffer, writeBuffer int) websocketUpgrader {
	return gorilla.Upgrader{
		ReadBufferSize:  readBuffer,
		WriteBufferSize: writeBuffer,
		// callers are authenticated by bearer token, not by origin
		CheckOrigin: func(r *http.Request) bool { return true },
	}
}

// HandleWebSocket handles GET /v1/ws. The caller has already been authenticated
// from the Authorization header or the token query parameter.
func (h *Handlers) HandleWebSocket(c *gin.Context) {
	principal := middleware.Principal(c)
	if principal == nil {
		h.respondError(c, apperrors.Unauthenticated("a bearer token is required", nil))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Error("Failed to upgrade to WebSocket", logger.Err(err))
		return
	}

	client := websocket.NewClient(h.Hub, conn, principal, h.Logger)
	h.Hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

// SocketGateway lets socket clients reach the trip service without the websocket
// package depending on it.
type SocketGateway struct {
	trips *trips.Service
}

// NewSocketGateway adapts the trip service for the hub
func NewSocketGateway(svc *trips.Service) *SocketGateway {
	return &SocketGateway{trips: svc}
}

// CanJoinTrip implements websocket.Gateway
func (g *SocketGateway) CanJoinTrip(ctx context.Context, userID, tripID string) (bool, error) {
	return g.trips.CanJoinTrip(ctx, userID, tripID)
}

// UpdateDriverLocation implements websocket.Gateway
func (g *SocketGateway) UpdateDriverLocation(ctx context.Context, driverID string, lat, lng float64) error {
	return g.trips.UpdateDriverLocation(ctx, driverID, trip.Coordinate{Lat: lat, Lng: lng})
}
