package orm

import (
	"fmt"

	"github.com/goccy/go-yaml"
)

// AttributeType names how an attribute's values are coerced.
type AttributeType string

// Supported attribute types.
const (
	TypeString   AttributeType = "string"
	TypeText     AttributeType = "text"
	TypeInteger  AttributeType = "integer"
	TypeFloat    AttributeType = "float"
	TypeBoolean  AttributeType = "boolean"
	TypeEmail    AttributeType = "email"
	TypeDate     AttributeType = "date"
	TypeDatetime AttributeType = "datetime"
	TypeJSON     AttributeType = "json"
	TypeArray    AttributeType = "array"
)

// Valid reports whether t is a known attribute type. The empty type is valid
// and means values are stored untouched.
func (t AttributeType) Valid() bool {
	switch t {
	case "", TypeString, TypeText, TypeInteger, TypeFloat, TypeBoolean,
		TypeEmail, TypeDate, TypeDatetime, TypeJSON, TypeArray:
		return true
	}
	return false
}

// Attribute describes one field of a model. An attribute carrying Model or
// Collection is an association.
type Attribute struct {
	Type       AttributeType `yaml:"type,omitempty" json:"type,omitempty"`
	Model      string        `yaml:"model,omitempty" json:"model,omitempty"`
	Collection string        `yaml:"collection,omitempty" json:"collection,omitempty"`
	Via        string        `yaml:"via,omitempty" json:"via,omitempty"`
	Required   bool          `yaml:"required,omitempty" json:"required,omitempty"`
	Protected  bool          `yaml:"protected,omitempty" json:"protected,omitempty"`
	PrimaryKey bool          `yaml:"primaryKey,omitempty" json:"primaryKey,omitempty"`
	Enum       []string      `yaml:"enum,omitempty" json:"enum,omitempty"`
}

// UnmarshalYAML accepts either the full mapping or the shorthand `name: string`.
func (a *Attribute) UnmarshalYAML(b []byte) error {
	var raw any
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return err
	}
	if s, ok := raw.(string); ok {
		*a = Attribute{Type: AttributeType(s)}
		return nil
	}

	type plain Attribute
	var p plain
	if err := yaml.Unmarshal(b, &p); err != nil {
		return err
	}
	*a = Attribute(p)
	return nil
}

// Target returns the identity of the associated model, if any.
func (a Attribute) Target() string {
	if a.Model != "" {
		return a.Model
	}
	return a.Collection
}

// IsAssociation reports whether the attribute references another model.
func (a Attribute) IsAssociation() bool {
	return a.Model != "" || a.Collection != ""
}

// AssociationType is the arity of an association.
type AssociationType string

// Association kinds.
const (
	AssociationModel      AssociationType = "model"
	AssociationCollection AssociationType = "collection"
)

// Association is an attribute that references another model.
type Association struct {
	Alias      string          `json:"alias" yaml:"alias"`
	Type       AssociationType `json:"type" yaml:"type"`
	Model      string          `json:"model,omitempty" yaml:"model,omitempty"`
	Collection string          `json:"collection,omitempty" yaml:"collection,omitempty"`
	Via        string          `json:"via,omitempty" yaml:"via,omitempty"`
}

// Target returns the identity on the other side of the association.
func (a Association) Target() string {
	if a.Type == AssociationCollection {
		return a.Collection
	}
	return a.Model
}

// String implements fmt.Stringer.
func (a Association) String() string {
	return fmt.Sprintf("%s -> %s(%s)", a.Alias, a.Type, a.Target())
}
