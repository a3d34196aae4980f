package server

import (
	"net/http"
	"time"

	"github.com/agentstation/sails/internal/server/blueprints"
	"github.com/agentstation/sails/internal/server/handlers"
	"github.com/agentstation/sails/internal/server/middleware"
	"github.com/agentstation/sails/pkg/constants"
)

// setupRouter creates the HTTP handler with routes and middleware.
func (s *Server) setupRouter() http.Handler {
	mux := http.NewServeMux()

	h := handlers.New(
		s.models,
		s.wsHub,
		s.sseBroadcaster,
		s.upgrader,
		s.logger,
	)

	s.registerRoutes(mux, h)
	s.bindBlueprints(mux)

	handler := s.applyMiddleware(mux)

	// Socket frames are dispatched through the same chain as HTTP requests.
	h.SetDispatcher(handler)

	return handler
}

// registerRoutes registers the built-in routes.
func (s *Server) registerRoutes(mux *http.ServeMux, h *handlers.Handlers) {
	mux.HandleFunc("/favicon.ico", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET /ready", h.HandleReady)

	mux.HandleFunc("GET /__models", h.HandleListModels)
	mux.HandleFunc("GET /__models/{identity}", h.HandleGetModel)

	mux.HandleFunc("GET "+constants.SocketPath, h.HandleWebSocket)
	mux.HandleFunc("GET "+constants.EventsPath, h.HandleSSE)
}

// bindBlueprints binds the update action for every registered model.
func (s *Server) bindBlueprints(mux *http.ServeMux) {
	var actions *blueprints.Actions
	if s.pubsub != nil {
		actions = blueprints.New(s.models, s.pubsub, s.logger)
	} else {
		actions = blueprints.New(s.models, nil, s.logger)
	}

	bp := s.config.Blueprints
	prefix := bp.prefix()

	for _, m := range s.models.List() {
		base := prefix + "/" + m.Identity()
		update := actions.Update(blueprints.Options{
			Model: m.Identity(),
			JSONP: bp.JSONP,
		})

		if bp.REST {
			mux.Handle("PUT "+base+"/{id}", update)
			mux.Handle("PATCH "+base+"/{id}", update)
		}
		if bp.Shortcuts {
			mux.Handle("GET "+base+"/update/{id}", update)
			mux.Handle("GET "+base+"/update", update)
		}

		s.logger.Debug().
			Str("model", m.Identity()).
			Str("route", base).
			Bool("rest", bp.REST).
			Bool("shortcuts", bp.Shortcuts).
			Msg("Blueprint routes bound")
	}
}

// applyMiddleware wraps handler with middleware chain.
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	cfg := s.config

	// Rate limiting (if enabled)
	if cfg.RateLimit > 0 {
		rateLimiter := middleware.NewRateLimiter(cfg.RateLimit, time.Minute, s.logger)
		handler = middleware.RateLimit(rateLimiter)(handler)
	}

	// Authentication (if enabled)
	if cfg.AuthEnabled {
		authConfig := middleware.DefaultAuthConfig()
		authConfig.Enabled = true
		if cfg.AuthHeader != "" {
			authConfig.HeaderName = cfg.AuthHeader
		}
		authConfig.APIKey = cfg.APIKey
		authConfig.JWTSecret = cfg.JWTSecret
		authConfig.JWTIssuer = cfg.JWTIssuer
		handler = middleware.Auth(authConfig, s.logger)(handler)
	}

	// CORS (if enabled)
	if cfg.CORSEnabled {
		corsConfig := middleware.DefaultCORSConfig()
		if len(cfg.CORSOrigins) > 0 {
			corsConfig.AllowedOrigins = cfg.CORSOrigins
			corsConfig.AllowAll = false
		} else {
			corsConfig.AllowAll = true
		}
		handler = middleware.CORS(corsConfig)(handler)
	}

	// Logging and recovery (always enabled)
	handler = middleware.Logger(s.logger)(handler)
	handler = middleware.Recovery(s.logger)(handler)

	return handler
}
