// Package websocket provides the socket transport: a hub of connected clients
// grouped into rooms, and an interpreter that replays client frames as virtual
// HTTP requests against the server's router.
package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/sails/pkg/constants"
)

// Hub maintains active WebSocket connections, their room memberships and
// broadcasts messages to them.
type Hub struct {
	clients   map[*Client]bool
	byID      map[string]*Client
	rooms     map[string]map[*Client]bool
	broadcast chan envelope
	done      chan struct{}
	once      sync.Once
	mu        sync.RWMutex
	logger    *zerolog.Logger
}

type envelope struct {
	room    string
	exclude string
	message Message
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *zerolog.Logger) *Hub {
	return &Hub{
		clients:   make(map[*Client]bool),
		byID:      make(map[string]*Client),
		rooms:     make(map[string]map[*Client]bool),
		broadcast: make(chan envelope, constants.ChannelBufferSize),
		done:      make(chan struct{}),
		logger:    logger,
	}
}

// Run delivers broadcasts until ctx is canceled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-h.broadcast:
			h.deliver(env)
		}
	}
}

func (h *Hub) deliver(env envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	targets := h.clients
	if env.room != "" {
		targets = h.rooms[env.room]
	}
	for client := range targets {
		if env.exclude != "" && client.id == env.exclude {
			continue
		}
		select {
		case client.send <- env.message:
		default:
			// Client buffer full, disconnect
			h.logger.Warn().Str("client_id", client.id).Msg("WebSocket client too slow, disconnecting")
			h.removeLocked(client)
		}
	}
}

func (h *Hub) shutdown() {
	h.once.Do(func() {
		close(h.done)
		h.mu.Lock()
		for client := range h.clients {
			h.removeLocked(client)
		}
		h.mu.Unlock()
	})
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	select {
	case <-h.done:
		h.mu.Unlock()
		return
	default:
	}
	h.clients[client] = true
	h.byID[client.id] = client
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Info().
		Str("client_id", client.id).
		Int("total_clients", total).
		Msg("WebSocket client connected")
}

// Unregister removes a client from the hub and all of its rooms.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		h.removeLocked(client)
	}
	total := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.logger.Info().
			Str("client_id", client.id).
			Int("total_clients", total).
			Msg("WebSocket client disconnected")
	}
}

func (h *Hub) removeLocked(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	if h.byID[client.id] == client {
		delete(h.byID, client.id)
	}
	for room := range client.rooms {
		members := h.rooms[room]
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	client.rooms = nil
	close(client.send)
}

// Join adds the client with the given id to room. It reports false when no
// such client is connected.
func (h *Hub) Join(clientID, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.byID[clientID]
	if !ok {
		return false
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]bool)
		h.rooms[room] = members
	}
	members[client] = true
	if client.rooms == nil {
		client.rooms = make(map[string]bool)
	}
	client.rooms[room] = true
	return true
}

// Leave removes the client with the given id from room.
func (h *Hub) Leave(clientID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.byID[clientID]
	if !ok {
		return
	}
	delete(client.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(message Message) {
	h.enqueue(envelope{message: message})
}

// BroadcastRoom sends a message to every member of room except the client
// whose id equals exclude.
func (h *Hub) BroadcastRoom(room string, message Message, exclude string) {
	h.enqueue(envelope{room: room, exclude: exclude, message: message})
}

func (h *Hub) enqueue(env envelope) {
	select {
	case h.broadcast <- env:
	default:
		h.logger.Warn().Str("room", env.room).Msg("Broadcast channel full, message dropped")
	}
}

// Send delivers a message to one client without blocking.
func (h *Hub) Send(clientID string, message Message) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.byID[clientID]
	if !ok {
		return false
	}
	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize returns the number of clients in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Message is a frame pushed to a client. Events fill Type, Timestamp and
// Data; replies to virtual requests use Type "response" with the remaining
// fields.
type Message struct {
	Type       string            `json:"type"`
	Timestamp  time.Time         `json:"timestamp,omitzero"`
	Data       any               `json:"data,omitempty"`
	ID         string            `json:"id,omitempty"`
	StatusCode int               `json:"statusCode,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       any               `json:"body,omitempty"`
}
