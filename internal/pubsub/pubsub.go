// Package pubsub publishes model instance changes to the sockets watching
// them. Each record has a room named "<identity>#<id>"; sockets that fetch or
// update a record join its room and receive later changes to it.
package pubsub

import (
	"github.com/rs/zerolog"

	"github.com/agentstation/sails/internal/server/events"
	"github.com/agentstation/sails/pkg/datastore"
	"github.com/agentstation/sails/pkg/orm"
)

// Publisher accepts events for delivery. *events.Broker satisfies it.
type Publisher interface {
	Publish(events.Event)
}

// Rooms tracks socket room membership. *websocket.Hub satisfies it.
type Rooms interface {
	Join(socketID, room string) bool
}

// Message is the payload pushed to sockets for a room event.
type Message struct {
	Verb      events.EventType `json:"verb"`
	ID        any              `json:"id"`
	Data      map[string]any   `json:"data,omitempty"`
	Attribute string           `json:"attribute,omitempty"`
	AddedID   any              `json:"addedId,omitempty"`
	RemovedID any              `json:"removedId,omitempty"`
}

// PubSub joins sockets to instance rooms and publishes room events.
type PubSub struct {
	publisher Publisher
	rooms     Rooms
	logger    *zerolog.Logger
}

// New creates a PubSub. rooms may be nil when no socket transport runs, in
// which case Subscribe is a no-op.
func New(publisher Publisher, rooms Rooms, logger *zerolog.Logger) *PubSub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &PubSub{publisher: publisher, rooms: rooms, logger: logger}
}

// Room returns the room name for one model instance.
func Room(identity string, id any) string {
	return identity + "#" + datastore.KeyOf(id)
}

// Subscribe joins the socket to the room of each record. Requests that did not
// come from a socket have an empty socketID and are ignored. It returns the
// number of rooms joined.
func (p *PubSub) Subscribe(socketID string, model *orm.Model, records []orm.Record) int {
	if socketID == "" || p.rooms == nil {
		return 0
	}
	joined := 0
	for _, rec := range records {
		if p.rooms.Join(socketID, Room(model.Identity(), rec.ID())) {
			joined++
		}
	}
	p.logger.Debug().
		Str("model", model.Identity()).
		Str("socket_id", socketID).
		Int("rooms", joined).
		Msg("Socket subscribed to records")
	return joined
}

// PublishUpdate tells watchers of the record that its attributes changed.
// Protected attributes are left out of the published changes.
func (p *PubSub) PublishUpdate(model *orm.Model, id any, changes map[string]any, originator string) {
	p.publish(model, id, Message{
		Verb: events.RecordUpdated,
		ID:   id,
		Data: visible(model, changes),
	}, originator)
}

// visible copies changes without the model's protected attributes.
func visible(model *orm.Model, changes map[string]any) map[string]any {
	out := make(map[string]any, len(changes))
	for k, v := range changes {
		if attr, ok := model.Attribute(k); ok && attr.Protected {
			continue
		}
		out[k] = v
	}
	return out
}

// PublishAdd tells watchers of the record that addedID joined its collection
// association named alias.
func (p *PubSub) PublishAdd(model *orm.Model, id any, alias string, addedID any, originator string) {
	p.publish(model, id, Message{
		Verb:      events.RecordAddedTo,
		ID:        id,
		Attribute: alias,
		AddedID:   addedID,
	}, originator)
}

// PublishRemove tells watchers of the record that removedID left its
// collection association named alias.
func (p *PubSub) PublishRemove(model *orm.Model, id any, alias string, removedID any, originator string) {
	p.publish(model, id, Message{
		Verb:      events.RecordRemovedFrom,
		ID:        id,
		Attribute: alias,
		RemovedID: removedID,
	}, originator)
}

func (p *PubSub) publish(model *orm.Model, id any, msg Message, originator string) {
	room := Room(model.Identity(), id)
	p.publisher.Publish(events.Event{
		Type:       msg.Verb,
		Model:      model.Identity(),
		Room:       room,
		Data:       msg,
		Originator: originator,
	})
	p.logger.Debug().
		Str("model", model.Identity()).
		Str("room", room).
		Str("verb", string(msg.Verb)).
		Msg("Published room event")
}
