package orm

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"

	"github.com/agentstation/sails/pkg/datastore"
	"github.com/agentstation/sails/pkg/errors"
)

// coerce converts a raw value to the attribute's type. nil passes through.
func coerce(name string, attr Attribute, v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch {
	case attr.Model != "":
		ids := AssociatedIDs(v)
		if len(ids) != 1 {
			return nil, errors.NewValidationError(name, v, "must reference a single record")
		}
		return ids[0], nil
	case attr.Collection != "":
		ids := AssociatedIDs(v)
		out := make([]any, len(ids))
		for i, id := range ids {
			out[i] = id
		}
		return out, nil
	}

	var (
		out any
		err error
	)
	switch attr.Type {
	case TypeString, TypeText:
		out, err = toString(v)
	case TypeInteger:
		out, err = toInteger(v)
	case TypeFloat:
		out, err = toFloat(v)
	case TypeBoolean:
		out, err = toBoolean(v)
	case TypeEmail:
		out, err = toEmail(v)
	case TypeDate, TypeDatetime:
		out, err = toDatetime(v)
	case TypeArray:
		out, err = toArray(v)
	default:
		out = v
	}
	if err != nil {
		return nil, errors.NewValidationError(name, v, err.Error())
	}
	return out, nil
}

// validate checks required and enum constraints on an already coerced value.
func validate(name string, attr Attribute, v any) error {
	if attr.Required && isBlank(v) {
		return errors.NewValidationError(name, v, "is required")
	}
	if len(attr.Enum) > 0 && v != nil {
		if !slices.Contains(attr.Enum, fmt.Sprint(v)) {
			return errors.NewValidationError(name, v,
				fmt.Sprintf("must be one of [%s]", strings.Join(attr.Enum, ", ")))
		}
	}
	return nil
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func toString(v any) (any, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case bool, float32, float64, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, json.Number:
		return fmt.Sprint(t), nil
	}
	return nil, fmt.Errorf("must be a string")
}

func toInteger(v any) (any, error) {
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return reflect.ValueOf(t).Convert(reflect.TypeOf(int64(0))).Int(), nil
	case float32:
		return floatToInt(float64(t))
	case float64:
		return floatToInt(t)
	case json.Number:
		return t.Int64()
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil, nil
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return floatToInt(f)
		}
	}
	return nil, fmt.Errorf("must be an integer")
}

func floatToInt(f float64) (any, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return nil, fmt.Errorf("must be an integer")
	}
	return int64(f), nil
}

func toFloat(v any) (any, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return reflect.ValueOf(t).Convert(reflect.TypeOf(float64(0))).Float(), nil
	case json.Number:
		return t.Float64()
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil, nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, nil
		}
	}
	return nil, fmt.Errorf("must be a number")
}

func toBoolean(v any) (any, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case float64:
		if t == 0 || t == 1 {
			return t == 1, nil
		}
	case int:
		if t == 0 || t == 1 {
			return t == 1, nil
		}
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(t)); err == nil {
			return b, nil
		}
	}
	return nil, fmt.Errorf("must be a boolean")
}

func toEmail(v any) (any, error) {
	s, ok := v.(string)
	if !ok || !strfmt.IsEmail(s) {
		return nil, fmt.Errorf("must be a valid email address")
	}
	return s, nil
}

func toDatetime(v any) (any, error) {
	switch t := v.(type) {
	case time.Time:
		return strfmt.DateTime(t).String(), nil
	case strfmt.DateTime:
		return t.String(), nil
	case string:
		dt, err := strfmt.ParseDateTime(strings.TrimSpace(t))
		if err != nil {
			return nil, fmt.Errorf("must be a date-time")
		}
		return dt.String(), nil
	}
	return nil, fmt.Errorf("must be a date-time")
}

func toArray(v any) (any, error) {
	switch t := v.(type) {
	case []any:
		return t, nil
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, nil
	case string:
		var arr []any
		if err := json.Unmarshal([]byte(t), &arr); err == nil {
			return arr, nil
		}
	}
	return nil, fmt.Errorf("must be an array")
}

// AssociatedIDs extracts record ids from an association value: a scalar id,
// an object with an id field, or an array of either.
func AssociatedIDs(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		ids := make([]string, 0, len(t))
		for _, e := range t {
			ids = append(ids, AssociatedIDs(e)...)
		}
		return ids
	case []string:
		return slices.Clone(t)
	case map[string]any:
		return AssociatedIDs(t[datastore.IDField])
	case Record:
		return AssociatedIDs(t[datastore.IDField])
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	}
	return []string{datastore.KeyOf(v)}
}

// LooselyEqual compares two attribute values the way a form post compares to
// stored data: scalars by their printed form, composites structurally.
func LooselyEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if isScalar(a) && isScalar(b) {
		return datastore.KeyOf(a) == datastore.KeyOf(b)
	}
	return reflect.DeepEqual(a, b)
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, float32, float64, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, json.Number:
		return true
	}
	return false
}
