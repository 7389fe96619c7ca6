// Package jsonschema implements structural schema inference for untyped
// JSON documents and the reconciliation operations (merge, equality) used
// by the entity write path.
//
// A Schema is derived data: it is computed from observed documents, one per
// (tenant, collection), and never hand-authored.
package jsonschema

import "encoding/json"

// Value types used in inferred schemas.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeObject  = "object"
	TypeArray   = "array"
)

// Schema is a structural description of a collection's shape. An empty Type
// means the value was unrepresentable (null, empty array element union) and
// surfaces as an opaque scalar in the query layer.
type Schema struct {
	Title      string             `json:"title,omitempty"`
	Type       string             `json:"type,omitempty"`
	Format     string             `json:"format,omitempty"`
	Properties map[string]*Schema `json:"properties,omitempty"`
	Items      *Schema            `json:"items,omitempty"`
}

// Clone returns a deep copy of the schema. Clone of nil is nil.
func (s *Schema) Clone() *Schema {
	if s == nil {
		return nil
	}
	out := &Schema{
		Title:  s.Title,
		Type:   s.Type,
		Format: s.Format,
		Items:  s.Items.Clone(),
	}
	if s.Properties != nil {
		out.Properties = make(map[string]*Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = prop.Clone()
		}
	}
	return out
}

// Equal reports structural equality of two schemas. It is the idempotence
// check for schema reconciliation and cache updates: applying an identical
// schema twice must be a no-op.
func Equal(a, b *Schema) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Title != b.Title || a.Type != b.Type || a.Format != b.Format {
		return false
	}
	if !Equal(a.Items, b.Items) {
		return false
	}
	if len(a.Properties) != len(b.Properties) {
		return false
	}
	for name, prop := range a.Properties {
		other, ok := b.Properties[name]
		if !ok || !Equal(prop, other) {
			return false
		}
	}
	return true
}

// MarshalBinary encodes the schema as JSON for storage and wire transfer.
func (s *Schema) MarshalBinary() ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalBinary decodes a schema from its JSON form.
func (s *Schema) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, s)
}
