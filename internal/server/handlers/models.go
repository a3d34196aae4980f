package handlers

import (
	"net/http"

	"github.com/agentstation/sails/internal/server/response"
	"github.com/agentstation/sails/pkg/orm"
)

// modelInfo is the public description of one registered model.
type modelInfo struct {
	Identity     string                   `json:"identity"`
	GlobalID     string                   `json:"globalId"`
	Connection   string                   `json:"connection"`
	Attributes   map[string]orm.Attribute `json:"attributes"`
	Associations []orm.Association        `json:"associations"`
}

func describe(m *orm.Model) modelInfo {
	assocs := m.Associations()
	if assocs == nil {
		assocs = []orm.Association{}
	}
	return modelInfo{
		Identity:     m.Identity(),
		GlobalID:     m.GlobalID(),
		Connection:   m.Connection(),
		Attributes:   m.Attributes(),
		Associations: assocs,
	}
}

// HandleListModels handles GET /__models.
func (h *Handlers) HandleListModels(w http.ResponseWriter, _ *http.Request) {
	models := h.models.List()
	out := make([]modelInfo, len(models))
	for i, m := range models {
		out[i] = describe(m)
	}
	response.OK(w, map[string]any{
		"models": out,
		"count":  len(out),
	})
}

// HandleGetModel handles GET /__models/{identity}.
func (h *Handlers) HandleGetModel(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("identity")
	m, ok := h.models.Get(identity)
	if !ok {
		response.NotFound(w, "No model found with identity "+identity, "")
		return
	}
	response.OK(w, describe(m))
}
