// Package orm holds the model layer: model schemas and their associations,
// a registry of models by identity, and the find/update/create operations
// models run against their datastore adapter.
package orm

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/agentstation/sails/pkg/constants"
	"github.com/agentstation/sails/pkg/datastore"
	"github.com/agentstation/sails/pkg/errors"
)

// Definition is the on-disk description of a model.
type Definition struct {
	Identity   string               `yaml:"identity,omitempty" json:"identity,omitempty"`
	GlobalID   string               `yaml:"globalId,omitempty" json:"globalId,omitempty"`
	Connection string               `yaml:"connection,omitempty" json:"connection,omitempty"`
	Attributes map[string]Attribute `yaml:"attributes" json:"attributes"`
}

// Model is a registered model bound to a datastore adapter.
type Model struct {
	identity     string
	globalID     string
	connection   string
	attributes   map[string]Attribute
	associations []Association
	store        datastore.Adapter
}

// NewModel validates a definition and binds it to an adapter.
func NewModel(def Definition, store datastore.Adapter) (*Model, error) {
	identity := strings.ToLower(strings.TrimSpace(def.Identity))
	if identity == "" {
		return nil, errors.NewValidationError("identity", def.Identity, "is required")
	}
	if len(identity) > constants.MaxIdentityLength {
		return nil, errors.NewValidationError("identity", identity, "is too long")
	}
	if store == nil {
		return nil, errors.NewConfigError(identity, "model has no datastore adapter", nil)
	}

	globalID := def.GlobalID
	if globalID == "" {
		globalID = cases.Title(language.English).String(identity)
	}
	connection := def.Connection
	if connection == "" {
		connection = constants.DefaultConnection
	}

	attrs := make(map[string]Attribute, len(def.Attributes)+1)
	for name, attr := range def.Attributes {
		if !attr.Type.Valid() {
			return nil, errors.NewValidationError(name, attr.Type,
				fmt.Sprintf("unknown attribute type %q", attr.Type))
		}
		if attr.Model != "" && attr.Collection != "" {
			return nil, errors.NewValidationError(name, attr, "cannot set both model and collection")
		}
		attr.Model = strings.ToLower(attr.Model)
		attr.Collection = strings.ToLower(attr.Collection)
		attrs[name] = attr
	}
	if _, ok := attrs[datastore.IDField]; !ok {
		attrs[datastore.IDField] = Attribute{PrimaryKey: true}
	}

	return &Model{
		identity:     identity,
		globalID:     globalID,
		connection:   connection,
		attributes:   attrs,
		associations: buildAssociations(attrs),
		store:        store,
	}, nil
}

func buildAssociations(attrs map[string]Attribute) []Association {
	var assocs []Association
	for name, attr := range attrs {
		switch {
		case attr.Model != "":
			assocs = append(assocs, Association{Alias: name, Type: AssociationModel, Model: attr.Model, Via: attr.Via})
		case attr.Collection != "":
			assocs = append(assocs, Association{Alias: name, Type: AssociationCollection, Collection: attr.Collection, Via: attr.Via})
		}
	}
	sort.Slice(assocs, func(i, j int) bool { return assocs[i].Alias < assocs[j].Alias })
	return assocs
}

// Identity returns the model's lowercase identity.
func (m *Model) Identity() string { return m.identity }

// GlobalID returns the model's display name.
func (m *Model) GlobalID() string { return m.globalID }

// Connection returns the name of the datastore connection the model uses.
func (m *Model) Connection() string { return m.connection }

// Adapter returns the datastore adapter the model is bound to.
func (m *Model) Adapter() datastore.Adapter { return m.store }

// Attributes returns a copy of the model's attribute schema.
func (m *Model) Attributes() map[string]Attribute {
	return maps.Clone(m.attributes)
}

// Attribute returns one attribute by name.
func (m *Model) Attribute(name string) (Attribute, bool) {
	attr, ok := m.attributes[name]
	return attr, ok
}

// Associations returns the model's associations sorted by alias.
func (m *Model) Associations() []Association {
	out := make([]Association, len(m.associations))
	copy(out, m.associations)
	return out
}

// ReverseAssociation finds the association on m that points back at the
// model with identity of. Collections win over singular references.
func (m *Model) ReverseAssociation(of string) (Association, bool) {
	for _, a := range m.associations {
		if a.Type == AssociationCollection && a.Collection == of {
			return a, true
		}
	}
	for _, a := range m.associations {
		if a.Type == AssociationModel && a.Model == of {
			return a, true
		}
	}
	return Association{}, false
}

// FindOne returns the record with the given id, or nil when there is none.
func (m *Model) FindOne(ctx context.Context, id string) (Record, error) {
	doc, err := m.store.Find(ctx, m.identity, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}
	return Record(doc), nil
}

// Update coerces and validates values, then applies them to the record with
// the given id. The primary key cannot be changed and is dropped from values.
// Validation failures are *errors.ValidationError.
func (m *Model) Update(ctx context.Context, id string, values map[string]any) ([]Record, error) {
	clean, err := m.prepare(values, false)
	if err != nil {
		return nil, err
	}
	delete(clean, datastore.IDField)

	docs, err := m.store.Update(ctx, m.identity, id, clean)
	if err != nil {
		return nil, err
	}
	records := make([]Record, len(docs))
	for i, doc := range docs {
		records[i] = Record(doc)
	}
	return records, nil
}

// Create coerces and validates values, including required attributes that
// are absent, and stores a new record.
func (m *Model) Create(ctx context.Context, values map[string]any) (Record, error) {
	clean, err := m.prepare(values, true)
	if err != nil {
		return nil, err
	}
	doc, err := m.store.Create(ctx, m.identity, clean)
	if err != nil {
		return nil, err
	}
	return Record(doc), nil
}

// prepare returns coerced values. Fields are visited in sorted order so the
// first reported validation failure is stable.
func (m *Model) prepare(values map[string]any, creating bool) (map[string]any, error) {
	out := make(map[string]any, len(values))
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, name := range keys {
		v := values[name]
		attr, ok := m.attributes[name]
		if !ok || attr.PrimaryKey {
			out[name] = v
			continue
		}
		coerced, err := coerce(name, attr, v)
		if err != nil {
			return nil, err
		}
		if err := validate(name, attr, coerced); err != nil {
			return nil, err
		}
		out[name] = coerced
	}

	if creating {
		names := make([]string, 0, len(m.attributes))
		for name := range m.attributes {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			attr := m.attributes[name]
			if _, present := values[name]; !present && attr.Required {
				return nil, errors.NewValidationError(name, nil, "is required")
			}
		}
	}
	return out, nil
}
