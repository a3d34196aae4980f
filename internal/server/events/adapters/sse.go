package adapters

import (
	"strconv"

	"github.com/agentstation/sails/internal/server/events"
	"github.com/agentstation/sails/internal/server/sse"
)

// SSESubscriber adapts the SSE broadcaster to the Subscriber interface.
type SSESubscriber struct {
	broadcaster *sse.Broadcaster
}

// NewSSESubscriber creates a new SSE subscriber.
func NewSSESubscriber(broadcaster *sse.Broadcaster) *SSESubscriber {
	return &SSESubscriber{broadcaster: broadcaster}
}

// Send delivers an event to SSE clients following its model.
func (s *SSESubscriber) Send(event events.Event) error {
	name := event.Model
	if name == "" {
		name = string(event.Type)
	}
	s.broadcaster.Broadcast(sse.Event{
		Event: name,
		ID:    strconv.FormatInt(event.Timestamp.UnixNano(), 10),
		Data:  event.Data,
		Model: event.Model,
	})
	return nil
}

// Close is a no-op for SSE (broadcaster manages its own lifecycle).
func (s *SSESubscriber) Close() error {
	return nil
}
