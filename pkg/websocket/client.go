package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/gocomet/ridematch/pkg/identity"
	"github.com/gocomet/ridematch/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	requestTimeout = 5 * time.Second
)

// Inbound message types
const (
	TypeJoinTrip       = "join-trip"
	TypeLeaveTrip      = "leave-trip"
	TypeHeartbeat      = "heartbeat"
	TypeUpdateLocation = "update-location"
)

// Outbound message types produced by the socket layer itself
const (
	TypeJoinedTrip = "joined-trip"
	TypeLeftTrip   = "left-trip"
	TypeError      = "error"
)

// Client represents a WebSocket client connection
type Client struct {
	ID          string
	UserID      string
	Role        identity.Role
	ConnectedAt time.Time
	Hub         *Hub
	Conn        *websocket.Conn
	Send        chan []byte
	logger      *logger.Logger
}

// ClientMessage represents a message from the client
type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type tripRef struct {
	TripID string `json:"tripId"`
}

type locationUpdate struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

// ErrorPayload is sent back when an inbound message is rejected
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	TripID  string `json:"tripId,omitempty"`
}

// NewClient creates a new WebSocket client
func NewClient(hub *Hub, conn *websocket.Conn, principal *identity.Principal, log *logger.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		ID:          id,
		UserID:      principal.UserID,
		Role:        principal.Role,
		ConnectedAt: time.Now(),
		Hub:         hub,
		Conn:        conn,
		Send:        make(chan []byte, hub.config.SendBuffer),
		logger:      log.With(logger.String("client_id", id), logger.String("user_id", principal.UserID)),
	}
}

// ReadPump pumps messages from the WebSocket connection to the hub
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		c.Hub.refresh(c)
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket read error", logger.Err(err))
			}
			break
		}

		c.handleMessage(message)
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// one JSON document per frame
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes incoming messages from the client
func (c *Client) handleMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Warn("Failed to unmarshal client message", logger.Err(err))
		c.sendError("VALIDATION_ERROR", "message must be a JSON object with a type", "")
		return
	}

	// any traffic proves the connection is alive
	c.Hub.refresh(c)

	switch msg.Type {
	case TypeHeartbeat:
	case TypeJoinTrip:
		c.joinTrip(msg.Data)
	case TypeLeaveTrip:
		var ref tripRef
		if err := json.Unmarshal(msg.Data, &ref); err != nil || ref.TripID == "" {
			c.sendError("VALIDATION_ERROR", "tripId is required", "")
			return
		}
		c.Hub.Leave(c, TripRoom(ref.TripID))
		c.SendMessage(Message{Type: TypeLeftTrip, Data: ref})
	case TypeUpdateLocation:
		c.updateLocation(msg.Data)
	default:
		c.logger.Warn("Unknown message type", logger.String("type", msg.Type))
		c.sendError("VALIDATION_ERROR", "unknown message type "+msg.Type, "")
	}
}

func (c *Client) joinTrip(data json.RawMessage) {
	var ref tripRef
	if err := json.Unmarshal(data, &ref); err != nil || ref.TripID == "" {
		c.sendError("VALIDATION_ERROR", "tripId is required", "")
		return
	}
	if c.Hub.gateway == nil {
		c.sendError("INTERNAL_ERROR", "trip rooms are unavailable", ref.TripID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	ok, err := c.Hub.gateway.CanJoinTrip(ctx, c.UserID, ref.TripID)
	if err != nil {
		c.logger.Warn("Trip room authorisation failed", logger.String("trip_id", ref.TripID), logger.Err(err))
		c.sendError("TRIP_NOT_FOUND", "trip not found", ref.TripID)
		return
	}
	if !ok {
		c.sendError("FORBIDDEN", "only the rider and the assigned driver may join a trip", ref.TripID)
		return
	}

	c.Hub.Join(c, TripRoom(ref.TripID))
	c.SendMessage(Message{Type: TypeJoinedTrip, Data: ref})
}

func (c *Client) updateLocation(data json.RawMessage) {
	if c.Role != identity.RoleDriver {
		c.sendError("FORBIDDEN", "only drivers publish locations", "")
		return
	}
	var loc locationUpdate
	if err := json.Unmarshal(data, &loc); err != nil || loc.Lat == nil || loc.Lng == nil {
		c.sendError("VALIDATION_ERROR", "lat and lng are required", "")
		return
	}
	if c.Hub.gateway == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := c.Hub.gateway.UpdateDriverLocation(ctx, c.UserID, *loc.Lat, *loc.Lng); err != nil {
		c.logger.Warn("Driver location update rejected", logger.Err(err))
		c.sendError("VALIDATION_ERROR", err.Error(), "")
	}
}

func (c *Client) sendError(code, message, tripID string) {
	c.SendMessage(Message{Type: TypeError, Data: ErrorPayload{Code: code, Message: message, TripID: tripID}})
}

// SendMessage sends a message to the client
func (c *Client) SendMessage(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("Failed to marshal message", logger.Err(err))
		return
	}
	c.Hub.sendDirect(c, data)
}
