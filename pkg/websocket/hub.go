package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gocomet/ridematch/pkg/identity"
	"github.com/gocomet/ridematch/pkg/logger"
	"github.com/gocomet/ridematch/pkg/monitoring"
	"github.com/gocomet/ridematch/pkg/presence"
)

// RoomDrivers receives every new trip request.
const RoomDrivers = "drivers"

// TripRoom returns the room scoped to one trip
func TripRoom(tripID string) string {
	return "trip:" + tripID
}

// Message represents a WebSocket message
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Gateway answers the inbound requests a socket can make
type Gateway interface {
	CanJoinTrip(ctx context.Context, userID, tripID string) (bool, error)
	UpdateDriverLocation(ctx context.Context, driverID string, lat, lng float64) error
}

// Config holds hub configuration
type Config struct {
	InstanceID  string
	PresenceTTL time.Duration
	Workers     int
	QueueSize   int
	SendBuffer  int
}

type emission struct {
	userID  string
	room    string
	payload []byte
}

// Hub tracks the sockets held by this instance, the rooms they joined, and fans
// emissions out locally and through the backplane.
type Hub struct {
	clients    map[*Client]bool
	byConn     map[string]*Client
	rooms      map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	queue      chan emission
	done       chan struct{}
	mu         sync.RWMutex

	presence  presence.Index
	lastSeen  presence.LastSeenStore
	backplane Backplane
	gateway   Gateway
	config    Config
	logger    *logger.Logger
}

// NewHub creates a new WebSocket hub. backplane and lastSeen may be nil.
func NewHub(idx presence.Index, lastSeen presence.LastSeenStore, backplane Backplane, log *logger.Logger, config Config) *Hub {
	if config.InstanceID == "" {
		config.InstanceID = uuid.NewString()
	}
	if config.PresenceTTL <= 0 {
		config.PresenceTTL = 90 * time.Second
	}
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 1024
	}
	if config.SendBuffer <= 0 {
		config.SendBuffer = 256
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		byConn:     make(map[string]*Client),
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		queue:      make(chan emission, config.QueueSize),
		done:       make(chan struct{}),
		presence:   idx,
		lastSeen:   lastSeen,
		backplane:  backplane,
		config:     config,
		logger:     log,
	}
}

// SetGateway wires the inbound request handler. Must be called before Run.
func (h *Hub) SetGateway(g Gateway) {
	h.gateway = g
}

// InstanceID identifies this process on the backplane
func (h *Hub) InstanceID() string {
	return h.config.InstanceID
}

// Run starts the fan-out workers and the backplane listener, then serves
// registrations until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < h.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.work(ctx)
		}()
	}
	if h.backplane != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.listen(ctx)
		}()
	}

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.byConn[client.ID] = client
			if client.Role == identity.RoleDriver {
				h.joinLocked(client, RoomDrivers)
			}
			h.mu.Unlock()
			// presence may only name connections that are already addressable
			h.touch(client)
			monitoring.SocketConnections.Inc()
			h.logger.Info("Client registered",
				logger.String("client_id", client.ID),
				logger.String("user_id", client.UserID),
				logger.String("role", string(client.Role)),
			)

		case client := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[client]
			if ok {
				h.removeLocked(client)
			}
			h.mu.Unlock()
			if ok {
				monitoring.SocketConnections.Dec()
				go h.release(client)
				h.logger.Info("Client unregistered", logger.String("client_id", client.ID))
			}

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				h.removeLocked(client)
			}
			h.mu.Unlock()
			close(h.done)
			wg.Wait()
			return
		}
	}
}

// removeLocked must be called with h.mu held.
func (h *Hub) removeLocked(client *Client) {
	delete(h.clients, client)
	delete(h.byConn, client.ID)
	for room, members := range h.rooms {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	close(client.Send)
}

// release drops the presence entry and records last-seen when it was the user's
// final connection.
func (h *Hub) release(client *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	remaining, _ := h.presence.Remove(ctx, client.UserID, client.ID)
	if remaining > 0 || h.lastSeen == nil {
		return
	}
	if err := h.lastSeen.RecordLastSeen(ctx, client.UserID, time.Now()); err != nil {
		h.logger.Warn("Failed to record last seen", logger.String("user_id", client.UserID), logger.Err(err))
	}
}

// Register hands the client to the run loop, which records its presence
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.Send)
	}
}

// Unregister unregisters a client
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// refresh extends the presence entry of a registered client.
func (h *Hub) refresh(client *Client) {
	h.mu.RLock()
	registered := h.clients[client]
	h.mu.RUnlock()
	if registered {
		h.touch(client)
	}
}

func (h *Hub) touch(client *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_ = h.presence.Touch(ctx, presence.Entry{
		UserID:      client.UserID,
		ConnID:      client.ID,
		Role:        string(client.Role),
		Instance:    h.config.InstanceID,
		ConnectedAt: client.ConnectedAt,
	}, h.config.PresenceTTL)
}

// Join adds the client to room
func (h *Hub) Join(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[client] {
		h.joinLocked(client, room)
	}
}

func (h *Hub) joinLocked(client *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]bool)
		h.rooms[room] = members
	}
	members[client] = true
}

// Leave removes the client from room
func (h *Hub) Leave(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// SendToUser queues message for every live connection of userID on any instance.
// Users without a connection simply miss it.
func (h *Hub) SendToUser(userID string, message Message) {
	h.enqueue(emission{userID: userID}, message)
}

// BroadcastToRoom queues message for every member of room on any instance.
func (h *Hub) BroadcastToRoom(room string, message Message) {
	h.enqueue(emission{room: room}, message)
}

func (h *Hub) enqueue(e emission, message Message) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal message", logger.Err(err))
		return
	}
	e.payload = data

	select {
	case h.queue <- e:
	default:
		monitoring.FanoutDropped.WithLabelValues("queue_full").Inc()
		h.logger.Warn("Fan-out queue full, dropping message",
			logger.String("type", message.Type),
			logger.String("room", e.room),
			logger.String("user_id", e.userID),
		)
	}
}

func (h *Hub) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-h.queue:
			h.emit(ctx, e)
		}
	}
}

func (h *Hub) emit(ctx context.Context, e emission) {
	env := Envelope{Origin: h.config.InstanceID, Room: e.room, Payload: e.payload}

	if e.userID != "" {
		ids, _ := h.presence.Connections(ctx, e.userID)
		if len(ids) == 0 {
			monitoring.FanoutDropped.WithLabelValues("no_connection").Inc()
			h.logger.Debug("No live connection for user, dropping message", logger.String("user_id", e.userID))
			return
		}
		env.ConnIDs = ids
	}

	h.deliver(env)

	if h.backplane == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.backplane.Publish(pubCtx, env); err != nil {
		h.logger.Warn("Backplane publish failed, delivered locally only", logger.Err(err))
	}
}

func (h *Hub) listen(ctx context.Context) {
	err := h.backplane.Subscribe(ctx, func(env Envelope) {
		if env.Origin == h.config.InstanceID {
			return
		}
		h.deliver(env)
	})
	if err != nil && ctx.Err() == nil {
		h.logger.Warn("Backplane subscription ended", logger.Err(err))
	}
}

// deliver writes the envelope to the matching sockets held by this instance
// without ever blocking on a slow client.
func (h *Hub) deliver(env Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var targets []*Client
	if env.Room != "" {
		for client := range h.rooms[env.Room] {
			targets = append(targets, client)
		}
	}
	for _, id := range env.ConnIDs {
		if client, ok := h.byConn[id]; ok {
			targets = append(targets, client)
		}
	}

	for _, client := range targets {
		select {
		case client.Send <- env.Payload:
		default:
			monitoring.FanoutDropped.WithLabelValues("slow_client").Inc()
			h.logger.Warn("Client send buffer full, dropping message",
				logger.String("client_id", client.ID),
				logger.String("user_id", client.UserID),
			)
		}
	}
}

// sendDirect queues data for one registered client
func (h *Hub) sendDirect(client *Client, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.clients[client] {
		return
	}
	select {
	case client.Send <- data:
	default:
		monitoring.FanoutDropped.WithLabelValues("slow_client").Inc()
		h.logger.Warn("Client send buffer full", logger.String("client_id", client.ID))
	}
}

// GetActiveConnections returns the number of active connections
func (h *Hub) GetActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetClientsByRole returns count of clients by role
func (h *Hub) GetClientsByRole(role identity.Role) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for client := range h.clients {
		if client.Role == role {
			count++
		}
	}
	return count
}
