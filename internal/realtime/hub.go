// Package realtime fans chat events out to websocket connections and runs
// the client command protocol.
package realtime

import (
	"buildtrack-backend/internal/auth"
	"buildtrack-backend/internal/metrics"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrClientClosed is returned when sending to a disconnected client.
var ErrClientClosed = errors.New("client closed")

// Client is one authenticated realtime connection.
type Client struct {
	ID        string
	Principal auth.Principal

	send chan []byte

	mu     sync.Mutex // guards closed, send close and rooms
	closed bool
	rooms  map[uuid.UUID]struct{}
}

// Send is the outbound queue drained by the connection's writer. It is
// closed when the client is dropped or disconnected.
func (c *Client) Send() <-chan []byte {
	return c.send
}

// enqueue never blocks. A full buffer closes the client and reports false.
func (c *Client) enqueue(data []byte) (ok bool, dropped bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, false
	}
	select {
	case c.send <- data:
		return true, false
	default:
		c.closed = true
		close(c.send)
		return false, true
	}
}

type room struct {
	mu      sync.Mutex
	members map[*Client]struct{}
}

// Hub tracks chat room membership in memory. Membership changes are
// serialized under the hub lock; each room's broadcasts are serialized under
// the room lock so every member sees a room's events in the same order.
type Hub struct {
	mu         sync.Mutex
	rooms      map[uuid.UUID]*room
	clients    map[*Client]struct{}
	sendBuffer int
	logger     zerolog.Logger
}

const defaultSendBuffer = 256

// NewHub creates a new Hub. sendBuffer is the per-client queue length.
func NewHub(sendBuffer int, logger zerolog.Logger) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	return &Hub{
		rooms:      make(map[uuid.UUID]*room),
		clients:    make(map[*Client]struct{}),
		sendBuffer: sendBuffer,
		logger:     logger.With().Str("component", "Hub").Logger(),
	}
}

// NewClient creates a client bound to p. It joins no rooms.
func (h *Hub) NewClient(p auth.Principal) *Client {
	c := &Client{
		ID:        uuid.New().String(),
		Principal: p,
		send:      make(chan []byte, h.sendBuffer),
		rooms:     make(map[uuid.UUID]struct{}),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

// Join adds c to the room of chatID. Joining twice is a no-op.
func (h *Hub) Join(c *Client, chatID uuid.UUID) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	c.rooms[chatID] = struct{}{}
	c.mu.Unlock()

	r, ok := h.rooms[chatID]
	if !ok {
		r = &room{members: make(map[*Client]struct{})}
		h.rooms[chatID] = r
	}
	r.mu.Lock()
	r.members[c] = struct{}{}
	r.mu.Unlock()
	return nil
}

// Leave removes c from the room of chatID.
func (h *Hub) Leave(c *Client, chatID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.mu.Lock()
	delete(c.rooms, chatID)
	c.mu.Unlock()
	h.removeLocked(c, chatID)
}

// Disconnect removes c from every room and closes its send queue. It is
// safe to call more than once.
func (h *Hub) Disconnect(c *Client) {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	rooms := make([]uuid.UUID, 0, len(c.rooms))
	for id := range c.rooms {
		rooms = append(rooms, id)
	}
	c.rooms = make(map[uuid.UUID]struct{})
	c.mu.Unlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
	for _, id := range rooms {
		h.removeLocked(c, id)
	}
}

// DisconnectAll disconnects every client, which makes their write pumps send
// a close frame. Used on shutdown.
func (h *Hub) DisconnectAll() int {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.Disconnect(c)
	}
	return len(clients)
}

// removeLocked requires h.mu.
func (h *Hub) removeLocked(c *Client, chatID uuid.UUID) {
	r, ok := h.rooms[chatID]
	if !ok {
		return
	}
	r.mu.Lock()
	delete(r.members, c)
	empty := len(r.members) == 0
	r.mu.Unlock()
	if empty {
		delete(h.rooms, chatID)
	}
}

// envelope is the wire shape of every server event.
type envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

func encode(event string, payload interface{}) ([]byte, error) {
	return json.Marshal(envelope{Event: event, Data: payload})
}

// Broadcast delivers an event to every member of the chat's room, the
// sender included. Members whose queue is full are dropped; the caller is
// never blocked.
func (h *Hub) Broadcast(chatID uuid.UUID, event string, payload interface{}) {
	data, err := encode(event, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("failed to encode broadcast")
		return
	}

	h.mu.Lock()
	r, ok := h.rooms[chatID]
	h.mu.Unlock()
	if !ok {
		return
	}

	var dropped []*Client
	r.mu.Lock()
	for c := range r.members {
		if _, drop := c.enqueue(data); drop {
			dropped = append(dropped, c)
		}
	}
	r.mu.Unlock()
	metrics.BroadcastsTotal.WithLabelValues(event).Inc()

	for _, c := range dropped {
		h.drop(c, chatID)
	}
}

// SendTo delivers an event to a single client.
func (h *Hub) SendTo(c *Client, event string, payload interface{}) error {
	data, err := encode(event, payload)
	if err != nil {
		return err
	}
	ok, drop := c.enqueue(data)
	if drop {
		h.drop(c, uuid.Nil)
	}
	if !ok {
		return ErrClientClosed
	}
	return nil
}

func (h *Hub) drop(c *Client, chatID uuid.UUID) {
	metrics.DroppedConnections.Inc()
	h.logger.Warn().
		Str("client_id", c.ID).
		Str("user_id", c.Principal.UserID.String()).
		Str("chat_id", chatID.String()).
		Msg("send buffer full, dropping connection")
	h.Disconnect(c)
}

// IsMember reports whether c is in the room of chatID.
func (h *Hub) IsMember(c *Client, chatID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[chatID]
	return ok
}

// RoomSize returns the number of members in the room of chatID.
func (h *Hub) RoomSize(chatID uuid.UUID) int {
	h.mu.Lock()
	r, ok := h.rooms[chatID]
	h.mu.Unlock()
	if !ok {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// RoomCount returns the number of rooms with at least one member.
func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}
