// Package sse streams pub/sub events to browsers as Server-Sent Events.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/sails/pkg/constants"
)

// Broadcaster manages Server-Sent Events connections.
type Broadcaster struct {
	clients   map[*client]bool
	events    chan Event
	done      chan struct{}
	once      sync.Once
	heartbeat time.Duration
	mu        sync.RWMutex
	logger    *zerolog.Logger
}

// client is one open stream. An empty models set receives every event.
type client struct {
	ch     chan Event
	models map[string]bool
}

func (c *client) wants(model string) bool {
	return len(c.models) == 0 || c.models[strings.ToLower(model)]
}

// NewBroadcaster creates a new SSE broadcaster.
func NewBroadcaster(logger *zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		clients:   make(map[*client]bool),
		events:    make(chan Event, constants.ChannelBufferSize),
		done:      make(chan struct{}),
		heartbeat: constants.SSEHeartbeatInterval,
		logger:    logger,
	}
}

// Run starts the broadcaster's main loop. Should be called in a goroutine.
// The broadcaster will run until the context is cancelled.
func (b *Broadcaster) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			b.once.Do(func() {
				close(b.done)
				b.mu.Lock()
				for c := range b.clients {
					close(c.ch)
				}
				b.clients = make(map[*client]bool)
				b.mu.Unlock()
			})
			b.logger.Info().Msg("SSE broadcaster shut down")
			return

		case event := <-b.events:
			b.mu.RLock()
			for c := range b.clients {
				if !c.wants(event.Model) {
					continue
				}
				select {
				case c.ch <- event:
				default:
					// Client buffer full, skip this event for this client
					b.logger.Warn().Str("model", event.Model).Msg("SSE client buffer full, event skipped")
				}
			}
			b.mu.RUnlock()
		}
	}
}

// Broadcast sends an event to all interested SSE clients.
func (b *Broadcaster) Broadcast(event Event) {
	select {
	case b.events <- event:
	default:
		b.logger.Warn().Msg("SSE broadcast channel full, event dropped")
	}
}

// ClientCount returns the number of connected SSE clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *Broadcaster) add(c *client) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	select {
	case <-b.done:
		return false
	default:
	}
	b.clients[c] = true
	b.logger.Info().Int("total_clients", len(b.clients)).Msg("SSE client connected")
	return true
}

func (b *Broadcaster) remove(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[c]; !ok {
		return
	}
	delete(b.clients, c)
	close(c.ch)
	b.logger.Info().Int("total_clients", len(b.clients)).Msg("SSE client disconnected")
}

// ServeHTTP streams events. The optional "model" query parameter takes a
// comma separated list of model identities to filter on.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	c := &client{
		ch:     make(chan Event, constants.ChannelBufferSize),
		models: parseModels(r.URL.Query().Get("model")),
	}
	if !b.add(c) {
		http.Error(w, "Event stream shutting down", http.StatusServiceUnavailable)
		return
	}
	defer b.remove(c)

	// Streams outlive the server's write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	models := make([]string, 0, len(c.models))
	for m := range c.models {
		models = append(models, m)
	}
	sort.Strings(models)

	b.writeEvent(w, flusher, Event{
		Event: "connected",
		Data: map[string]any{
			"message":   "Connected to sails event stream",
			"models":    models,
			"timestamp": time.Now(),
		},
	})

	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-c.ch:
			if !ok {
				return
			}
			b.writeEvent(w, flusher, event)

		case <-ticker.C:
			_, _ = fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func parseModels(raw string) map[string]bool {
	models := make(map[string]bool)
	for _, m := range strings.Split(raw, ",") {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			models[m] = true
		}
	}
	return models
}

// writeEvent writes an SSE event to the response writer.
func (b *Broadcaster) writeEvent(w http.ResponseWriter, flusher http.Flusher, event Event) {
	if event.Event != "" {
		_, _ = fmt.Fprintf(w, "event: %s\n", event.Event)
	}
	if event.ID != "" {
		_, _ = fmt.Fprintf(w, "id: %s\n", event.ID)
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		b.logger.Error().Err(err).Msg("Failed to marshal SSE event data")
		return
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)

	flusher.Flush()
}

// Event represents an SSE event.
type Event struct {
	Event string `json:"event,omitempty"` // Event type (optional)
	ID    string `json:"id,omitempty"`    // Event ID (optional)
	Data  any    `json:"data"`            // Event data
	Model string `json:"-"`               // Model identity used for filtering
}
