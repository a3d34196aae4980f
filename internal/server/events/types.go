// Package events provides the event pipeline that carries model pub/sub
// notifications to real-time transports.
//
// Publishers hand events to a Broker, which fans them out in order to every
// registered Subscriber (WebSocket rooms, the SSE stream, etc.).
package events

import "time"

// EventType is the verb of a model event.
type EventType string

// Event types for record changes.
const (
	// RecordUpdated reports changed attribute values of one record.
	RecordUpdated EventType = "updated"
	// RecordAddedTo reports an id added to a collection association.
	RecordAddedTo EventType = "addedTo"
	// RecordRemovedFrom reports an id removed from a collection association.
	RecordRemovedFrom EventType = "removedFrom"

	// ClientConnected is sent by transports when a client joins.
	ClientConnected EventType = "client.connected"
)

// Event is one notification about a model instance.
type Event struct {
	Type      EventType `json:"type"`
	Model     string    `json:"model"`
	Room      string    `json:"room,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`

	// Originator is the socket that caused the event. It is skipped on delivery.
	Originator string `json:"-"`
}
