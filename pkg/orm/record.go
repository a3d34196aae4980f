package orm

import "github.com/agentstation/sails/pkg/datastore"

// Record is one stored instance of a model.
type Record map[string]any

// ID returns the record's primary key as a string.
func (r Record) ID() string {
	return datastore.KeyOf(r[datastore.IDField])
}

// ToJSON returns a copy of the record suitable for a response body, with the
// model's protected attributes removed.
func (r Record) ToJSON(m *Model) map[string]any {
	out := datastore.Clone(r)
	if out == nil {
		return map[string]any{}
	}
	if m == nil {
		return out
	}
	for name, attr := range m.attributes {
		if attr.Protected {
			delete(out, name)
		}
	}
	return out
}
