package output

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/agentstation/sails/pkg/orm"
)

// ModelSummary is the serialized form of a model used by json and yaml output.
type ModelSummary struct {
	Identity     string                   `json:"identity" yaml:"identity"`
	GlobalID     string                   `json:"globalId" yaml:"globalId"`
	Connection   string                   `json:"connection" yaml:"connection"`
	Adapter      string                   `json:"adapter" yaml:"adapter"`
	Attributes   map[string]orm.Attribute `json:"attributes" yaml:"attributes"`
	Associations []orm.Association        `json:"associations" yaml:"associations"`
}

// Summarize converts models to their serialized summaries.
func Summarize(models []*orm.Model) []ModelSummary {
	out := make([]ModelSummary, 0, len(models))
	for _, m := range models {
		adapter := ""
		if a := m.Adapter(); a != nil {
			adapter = a.Name()
		}
		out = append(out, ModelSummary{
			Identity:     m.Identity(),
			GlobalID:     m.GlobalID(),
			Connection:   m.Connection(),
			Adapter:      adapter,
			Attributes:   m.Attributes(),
			Associations: m.Associations(),
		})
	}
	return out
}

// ModelsToTableData converts models to table format.
func ModelsToTableData(models []*orm.Model) Data {
	data := Data{
		Headers:         []string{"Identity", "Connection", "Adapter", "Attributes", "Associations"},
		ColumnAlignment: []Align{AlignLeft, AlignLeft, AlignLeft, AlignLeft, AlignLeft},
	}

	for _, s := range Summarize(models) {
		attrs := make([]string, 0, len(s.Attributes))
		for name, a := range s.Attributes {
			if a.IsAssociation() {
				continue
			}
			attrs = append(attrs, fmt.Sprintf("%s:%s", name, typeName(a)))
		}
		sort.Strings(attrs)

		assocs := make([]string, 0, len(s.Associations))
		for _, a := range s.Associations {
			assocs = append(assocs, a.String())
		}

		data.Rows = append(data.Rows, []string{
			s.Identity,
			s.Connection,
			s.Adapter,
			orDash(strings.Join(attrs, ", ")),
			orDash(strings.Join(assocs, ", ")),
		})
	}
	return data
}

// FormatModels writes the models to w in the requested format.
func FormatModels(w io.Writer, models []*orm.Model, format Format) error {
	formatter := NewFormatter(format)

	var data any
	switch format {
	case FormatJSON, FormatYAML:
		data = Summarize(models)
	default:
		data = ModelsToTableData(models)
	}
	return formatter.Format(w, data)
}

func typeName(a orm.Attribute) string {
	if a.Type == "" {
		return "any"
	}
	return string(a.Type)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
