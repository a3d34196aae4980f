package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/agentstation/sails/internal/server/events"
	ws "github.com/agentstation/sails/internal/server/websocket"
)

// HandleWebSocket handles WebSocket connections at /socket. The handler
// serves the connection until it closes; frames the client sends are
// answered as virtual requests against the dispatcher.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := ws.NewClient(uuid.NewString(), h.wsHub, conn)
	h.wsHub.Register(client)
	h.wsHub.Send(client.ID(), ws.Message{
		Type:      string(events.ClientConnected),
		Timestamp: time.Now(),
		Data:      map[string]any{"id": client.ID()},
	})

	go client.WritePump()
	client.ReadPump(r.Context(), h.dispatcher)
}

// HandleSSE handles Server-Sent Events at /__events.
func (h *Handlers) HandleSSE(w http.ResponseWriter, r *http.Request) {
	h.sseBroadcaster.ServeHTTP(w, r)
}
