package blueprints

import (
	"net/http"
	"regexp"
	"sort"

	"github.com/agentstation/sails/internal/server/params"
	"github.com/agentstation/sails/internal/server/response"
	"github.com/agentstation/sails/pkg/errors"
	"github.com/agentstation/sails/pkg/logging"
	"github.com/agentstation/sails/pkg/orm"
)

var socketTransport = regexp.MustCompile(`(?i)socket`)

// Update returns the handler that updates one record.
//
// The record id comes from the "id" parameter and every other parameter is
// part of the update. After a successful update, sockets watching the record
// are told about the change, and so are watchers of records whose
// associations point back at it.
func (a *Actions) Update(opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := opts.identity()
		if name == "" {
			response.BadRequest(w, "No model specified", "the route is missing a model or controller option")
			return
		}

		id := params.Param(r, "id")
		if id == "" {
			response.BadRequest(w, "No id provided.", "")
			return
		}

		ctx := logging.WithLogger(r.Context(), a.logger)
		ctx = logging.WithOperation(ctx, "update")
		ctx = logging.WithModel(ctx, name)
		ctx = logging.WithRecord(ctx, id)
		ctx = logging.WithTransport(ctx, params.Transport(r))
		logger := logging.FromContext(ctx)

		model, ok := a.models.Get(name)
		if !ok {
			response.NotFound(w, "No model found with identity "+name, "")
			return
		}

		jsonp := opts.JSONP && !socketTransport.MatchString(params.Transport(r))

		data, err := params.All(r)
		if err != nil {
			logger.Debug().Err(err).Msg("Rejected request body")
			response.ErrorFromType(w, err)
			return
		}
		if jsonp {
			delete(data, "callback")
		}

		previous, err := model.FindOne(ctx, id)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to look up record")
			response.InternalError(w, err)
			return
		}
		if previous == nil {
			response.NotFound(w, errors.NewNotFoundError(model.Identity(), id).Error(), "")
			return
		}

		records, err := model.Update(ctx, id, data)
		if err != nil {
			if errors.IsValidationError(err) {
				logger.Debug().Err(err).Msg("Rejected update")
				response.ErrorFromType(w, err)
				return
			}
			logger.Error().Err(err).Msg("Failed to update record")
			response.InternalError(w, err)
			return
		}
		if len(records) == 0 {
			logger.Error().Msg("Update returned no records")
			response.ServerError(w, "No instances returned from update.")
			return
		}

		if a.pubsub != nil {
			socket := params.SocketID(r)
			a.pubsub.Subscribe(socket, model, records)
			a.pubsub.PublishUpdate(model, id, data, socket)
			a.notifyAssociations(model, id, previous, data)
		}

		logger.Debug().Int("records", len(records)).Msg("Record updated")

		body := records[0].ToJSON(model)
		if jsonp {
			response.JSONP(w, http.StatusOK, params.Param(r, "callback"), body)
			return
		}
		response.Raw(w, http.StatusOK, body)
	}
}

// notifyAssociations publishes to the other side of every association that
// changed. Keys are visited in sorted order. These events have no originator,
// so the requesting socket receives them too.
func (a *Actions) notifyAssociations(model *orm.Model, id string, previous orm.Record, data map[string]any) {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		val, prev := data[key], previous[key]
		if orm.LooselyEqual(val, prev) {
			continue
		}
		attr, ok := model.Attribute(key)
		if !ok || !attr.IsAssociation() {
			continue
		}
		target, ok := a.models.Get(attr.Target())
		if !ok {
			continue
		}
		reverse, ok := target.ReverseAssociation(model.Identity())
		if !ok {
			continue
		}

		prevIDs, newIDs := orm.AssociatedIDs(prev), orm.AssociatedIDs(val)
		switch reverse.Type {
		case orm.AssociationCollection:
			for _, removed := range missing(prevIDs, newIDs) {
				a.pubsub.PublishRemove(target, removed, reverse.Alias, id, "")
			}
			for _, added := range missing(newIDs, prevIDs) {
				a.pubsub.PublishAdd(target, added, reverse.Alias, id, "")
			}
		case orm.AssociationModel:
			for _, n := range newIDs {
				a.pubsub.PublishUpdate(target, n, map[string]any{reverse.Alias: id}, "")
			}
		}
	}
}

// missing returns the ids in from that are not in other, in order.
func missing(from, other []string) []string {
	seen := make(map[string]bool, len(other))
	for _, id := range other {
		seen[id] = true
	}
	var out []string
	for _, id := range from {
		if !seen[id] {
			out = append(out, id)
			seen[id] = true
		}
	}
	return out
}
