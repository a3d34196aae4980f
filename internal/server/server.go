// Package server wires the sails HTTP server: blueprint routes bound per
// model, the socket and event stream transports, and the middleware chain.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agentstation/sails/internal/pubsub"
	"github.com/agentstation/sails/internal/server/events"
	"github.com/agentstation/sails/internal/server/events/adapters"
	"github.com/agentstation/sails/internal/server/sse"
	ws "github.com/agentstation/sails/internal/server/websocket"
	"github.com/agentstation/sails/pkg/orm"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	models         *orm.Registry
	broker         *events.Broker
	wsHub          *ws.Hub
	sseBroadcaster *sse.Broadcaster
	pubsub         *pubsub.PubSub
	upgrader       websocket.Upgrader
	logger         *zerolog.Logger
	config         Config
	ctx            context.Context
	cancel         context.CancelFunc
	startTime      time.Time
}

// New creates a new server instance serving the models in the registry.
func New(models *orm.Registry, cfg Config, logger *zerolog.Logger) (*Server, error) {
	if models == nil {
		return nil, fmt.Errorf("server requires a model registry")
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	logger.Debug().Int("models", models.Len()).Msg("Creating new server instance")

	broker := events.NewBroker(logger)
	wsHub := ws.NewHub(logger)
	sseBroadcaster := sse.NewBroadcaster(logger)

	// Subscribe transports to broker
	broker.Subscribe(adapters.NewWebSocketSubscriber(wsHub))
	broker.Subscribe(adapters.NewSSESubscriber(sseBroadcaster))
	logger.Debug().Msg("WebSocket and SSE transports subscribed to event broker")

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		models:         models,
		broker:         broker,
		wsHub:          wsHub,
		sseBroadcaster: sseBroadcaster,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
		logger:    logger,
		config:    cfg,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}

	if cfg.PubSub {
		s.pubsub = pubsub.New(broker, wsHub, logger)
	} else {
		logger.Info().Msg("PubSub disabled, blueprint actions will not publish changes")
	}

	return s, nil
}

// Start starts background services (broker, WebSocket hub, SSE broadcaster).
func (s *Server) Start() {
	go s.broker.Run(s.ctx)
	go s.wsHub.Run(s.ctx)
	go s.sseBroadcaster.Run(s.ctx)

	s.logger.Debug().Msg("All background services started")
}

// Handler returns the configured http.Handler with middleware chain applied.
func (s *Server) Handler() http.Handler {
	return s.setupRouter()
}

// Shutdown stops background services. Open sockets and event streams are
// closed as the hub and broadcaster exit.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down server background services")
	s.cancel()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// Models returns the model registry the server was created with.
func (s *Server) Models() *orm.Registry {
	return s.models
}

// PubSub returns the instance notification service, or nil when disabled.
func (s *Server) PubSub() *pubsub.PubSub {
	return s.pubsub
}

// WSHub returns the WebSocket hub.
func (s *Server) WSHub() *ws.Hub {
	return s.wsHub
}

// SSEBroadcaster returns the SSE broadcaster.
func (s *Server) SSEBroadcaster() *sse.Broadcaster {
	return s.sseBroadcaster
}

// Broker returns the event broker for publishing events.
func (s *Server) Broker() *events.Broker {
	return s.broker
}

// StartTime returns the server start time for uptime calculations.
func (s *Server) StartTime() time.Time {
	return s.startTime
}
