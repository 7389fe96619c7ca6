package jsonschema

import (
	"math"
	"regexp"
	"time"
)

var uuidPattern = regexp.MustCompile(
	`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// Infer computes the structural schema of a decoded JSON value. Inputs are
// expected in encoding/json's untyped form: map[string]any, []any, string,
// float64, bool, nil. Integral float64 values infer as "integer".
func Infer(value any) *Schema {
	switch v := value.(type) {
	case string:
		return inferString(v)
	case bool:
		return &Schema{Type: TypeBoolean}
	case float64:
		if isIntegral(v) {
			return &Schema{Type: TypeInteger}
		}
		return &Schema{Type: TypeNumber}
	case int:
		return &Schema{Type: TypeInteger}
	case int64:
		return &Schema{Type: TypeInteger}
	case []any:
		return inferArray(v)
	case map[string]any:
		return inferObject(v)
	case time.Time:
		return &Schema{Type: TypeString, Format: "date-time"}
	default:
		// null or unrepresentable: opaque
		return &Schema{}
	}
}

func inferString(v string) *Schema {
	s := &Schema{Type: TypeString}
	switch {
	case uuidPattern.MatchString(v):
		s.Format = "uuid"
	case isDateTime(v):
		s.Format = "date-time"
	case isDate(v):
		s.Format = "date"
	}
	return s
}

func isDateTime(v string) bool {
	_, err := time.Parse(time.RFC3339, v)
	return err == nil
}

func isDate(v string) bool {
	_, err := time.Parse("2006-01-02", v)
	return err == nil
}

func isIntegral(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v == math.Trunc(v)
}

// inferArray infers the item schema as the union of all element schemas.
// An empty array leaves Items nil, which surfaces as a list of opaque
// scalars in the query layer.
func inferArray(values []any) *Schema {
	s := &Schema{Type: TypeArray}
	for _, item := range values {
		s.Items = Merge(s.Items, Infer(item))
	}
	return s
}

func inferObject(m map[string]any) *Schema {
	s := &Schema{Type: TypeObject, Properties: make(map[string]*Schema, len(m))}
	for name, value := range m {
		s.Properties[name] = Infer(value)
	}
	return s
}

// InferTitled infers the schema of a document and stamps it with the
// collection name as title, the form stored per (tenant, collection).
func InferTitled(title string, value any) *Schema {
	s := Infer(value)
	s.Title = title
	return s
}
