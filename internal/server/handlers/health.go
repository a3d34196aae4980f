package handlers

import (
	"net/http"

	"github.com/agentstation/sails/internal/server/response"
	"github.com/agentstation/sails/pkg/constants"
)

// HandleHealth handles GET /health (liveness probe).
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	response.OK(w, map[string]any{
		"status":  "healthy",
		"service": constants.FrameworkName,
		"version": constants.FrameworkVersion,
	})
}

// HandleReady handles GET /ready. The server is ready once its model
// registry is loaded and every association resolves.
func (h *Handlers) HandleReady(w http.ResponseWriter, _ *http.Request) {
	if err := h.models.Check(); err != nil {
		h.logger.Warn().Err(err).Msg("Model registry not ready")
		response.ServiceUnavailable(w, "Model registry has unresolved associations")
		return
	}

	response.OK(w, map[string]any{
		"status":            "ready",
		"models":            h.models.Len(),
		"websocket_clients": h.wsHub.ClientCount(),
		"sse_clients":       h.sseBroadcaster.ClientCount(),
	})
}
