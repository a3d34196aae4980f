// Package adapters provides transport-specific implementations of the Subscriber interface.
package adapters

import (
	"github.com/agentstation/sails/internal/server/events"
	ws "github.com/agentstation/sails/internal/server/websocket"
)

// WebSocketSubscriber adapts the WebSocket hub to the Subscriber interface.
type WebSocketSubscriber struct {
	hub *ws.Hub
}

// NewWebSocketSubscriber creates a new WebSocket subscriber.
func NewWebSocketSubscriber(hub *ws.Hub) *WebSocketSubscriber {
	return &WebSocketSubscriber{hub: hub}
}

// Send delivers a room event to the room's sockets, skipping the originator.
// Events without a room go to every client. The frame type is the model
// identity.
func (w *WebSocketSubscriber) Send(event events.Event) error {
	msg := ws.Message{
		Type:      event.Model,
		Timestamp: event.Timestamp,
		Data:      event.Data,
	}
	if msg.Type == "" {
		msg.Type = string(event.Type)
	}
	if event.Room == "" {
		w.hub.Broadcast(msg)
		return nil
	}
	w.hub.BroadcastRoom(event.Room, msg, event.Originator)
	return nil
}

// Close is a no-op for WebSocket (hub manages its own lifecycle).
func (w *WebSocketSubscriber) Close() error {
	return nil
}
