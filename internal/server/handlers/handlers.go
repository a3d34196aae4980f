// Package handlers provides the sails server's built-in HTTP handlers: health
// probes, the model schema listing and the real-time transports.
package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agentstation/sails/internal/server/sse"
	ws "github.com/agentstation/sails/internal/server/websocket"
	"github.com/agentstation/sails/pkg/orm"
)

// Handlers provides access to all HTTP handlers.
type Handlers struct {
	models         *orm.Registry
	wsHub          *ws.Hub
	sseBroadcaster *sse.Broadcaster
	upgrader       websocket.Upgrader
	logger         *zerolog.Logger
	dispatcher     http.Handler
}

// New creates a new Handlers instance.
func New(
	models *orm.Registry,
	wsHub *ws.Hub,
	sseBroadcaster *sse.Broadcaster,
	upgrader websocket.Upgrader,
	logger *zerolog.Logger,
) *Handlers {
	return &Handlers{
		models:         models,
		wsHub:          wsHub,
		sseBroadcaster: sseBroadcaster,
		upgrader:       upgrader,
		logger:         logger,
		dispatcher:     http.NotFoundHandler(),
	}
}

// SetDispatcher sets the handler that virtual socket requests are served by.
// It is normally the server's full middleware chain and router.
func (h *Handlers) SetDispatcher(d http.Handler) {
	h.dispatcher = d
}
