// Package blueprints implements the actions that are bound automatically to
// every registered model.
package blueprints

import (
	"github.com/rs/zerolog"

	"github.com/agentstation/sails/pkg/orm"
)

// Options are the route options an action is bound with.
type Options struct {
	// Model is the identity of the model the route acts on.
	Model string
	// Controller is used as the model identity when Model is empty.
	Controller string
	// JSONP allows the response to be wrapped in the "callback" parameter.
	JSONP bool
}

// identity resolves the model name from the route options.
func (o Options) identity() string {
	if o.Model != "" {
		return o.Model
	}
	return o.Controller
}

// Models looks models up by identity. *orm.Registry satisfies it.
type Models interface {
	Get(identity string) (*orm.Model, bool)
}

// PubSub is the notification surface actions use. *pubsub.PubSub satisfies it.
type PubSub interface {
	Subscribe(socketID string, model *orm.Model, records []orm.Record) int
	PublishUpdate(model *orm.Model, id any, changes map[string]any, originator string)
	PublishAdd(model *orm.Model, id any, alias string, addedID any, originator string)
	PublishRemove(model *orm.Model, id any, alias string, removedID any, originator string)
}

// Actions holds the dependencies shared by blueprint actions.
type Actions struct {
	models Models
	pubsub PubSub
	logger *zerolog.Logger
}

// New creates blueprint actions. A nil pubsub disables notifications.
func New(models Models, pubsub PubSub, logger *zerolog.Logger) *Actions {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Actions{models: models, pubsub: pubsub, logger: logger}
}
