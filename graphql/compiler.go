// Package graphql compiles a tenant's cached collection schemas into an
// access-scoped GraphQL query surface and executes queries against it.
// Collections the requesting tenant may not read are absent from the
// compiled surface entirely, introspection included.
package graphql

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	gql "github.com/graphql-go/graphql"
	gqlast "github.com/graphql-go/graphql/language/ast"

	"github.com/Sangrene/flexible-data-relay/entity"
	"github.com/Sangrene/flexible-data-relay/errors"
	"github.com/Sangrene/flexible-data-relay/jsonschema"
	"github.com/Sangrene/flexible-data-relay/tenant"
)

// Resolver reads entities on behalf of compiled query fields. entity.Core
// satisfies it.
type Resolver interface {
	GetEntity(ctx context.Context, tenant, entityName, id string) (*entity.Entity, error)
	GetEntityList(ctx context.Context, tenant, entityName, query string) ([]*entity.Entity, error)
}

// Unknown is the opaque scalar used for values whose type could not be
// inferred: empty arrays, empty objects, null-only fields.
var unknownScalar = gql.NewScalar(gql.ScalarConfig{
	Name:        "Unknown",
	Description: "Opaque value whose type could not be inferred.",
	Serialize:   func(value interface{}) interface{} { return value },
	ParseValue:  func(value interface{}) interface{} { return value },
	ParseLiteral: func(valueAST gqlast.Value) interface{} {
		return valueAST.GetValue()
	},
})

// compiler holds per-compilation state: nested object types memoized by
// structural signature so repeated shapes share one type definition, and
// the set of type names already taken.
type compiler struct {
	memo  map[string]gql.Output
	names map[string]bool
}

func newCompiler() *compiler {
	return &compiler{
		memo:  make(map[string]gql.Output),
		names: make(map[string]bool),
	}
}

// Compile builds the query surface of owner's collections visible to the
// requesting tenant. Self-access exposes everything; otherwise only
// collections covered by an exact grant appear. An empty surface is an
// access error, not an empty schema.
func Compile(owner string, requester *tenant.Tenant, schemas map[string]*jsonschema.Schema, resolver Resolver) (gql.Schema, error) {
	c := newCompiler()
	fields := gql.Fields{}

	names := make([]string, 0, len(schemas))
	for name := range schemas {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !visible(owner, requester, name) {
			continue
		}
		entityType := c.envelopeType(name, schemas[name])
		fields[name] = singularField(entityType, owner, name, resolver)
		fields[name+"List"] = listField(entityType, owner, name, resolver)
	}

	if len(fields) == 0 {
		return gql.Schema{}, errors.WrapInvalid(errors.ErrNoAccess, "graphql", "Compile", "no visible collections")
	}

	schema, err := gql.NewSchema(gql.SchemaConfig{
		Query: gql.NewObject(gql.ObjectConfig{Name: "Query", Fields: fields}),
	})
	if err != nil {
		return gql.Schema{}, errors.Wrap(err, "graphql", "Compile", "assemble schema")
	}
	return schema, nil
}

func visible(owner string, requester *tenant.Tenant, entityName string) bool {
	if requester == nil {
		return false
	}
	return requester.Name == owner || requester.HasGrant(owner, entityName)
}

// envelopeType builds the output type of one collection: the entity
// envelope with its inferred data shape nested under "data".
func (c *compiler) envelopeType(entityName string, schema *jsonschema.Schema) *gql.Object {
	dataType := c.outputType([]string{entityName, "data"}, "data", schema)
	return gql.NewObject(gql.ObjectConfig{
		Name: c.uniqueName(pascal(entityName)),
		Fields: gql.Fields{
			"id":        &gql.Field{Type: gql.NewNonNull(gql.ID)},
			"createdAt": &gql.Field{Type: gql.String},
			"updatedAt": &gql.Field{Type: gql.String},
			"data":      &gql.Field{Type: dataType},
		},
	})
}

// outputType maps an inferred schema node to a GraphQL output type. A
// field literally named "id" renders as ID; unknown or absent types render
// as the opaque scalar.
func (c *compiler) outputType(path []string, fieldName string, s *jsonschema.Schema) gql.Output {
	if s == nil {
		return unknownScalar
	}
	switch s.Type {
	case jsonschema.TypeString:
		if fieldName == "id" {
			return gql.ID
		}
		return gql.String
	case jsonschema.TypeInteger:
		return gql.Int
	case jsonschema.TypeNumber:
		return gql.Float
	case jsonschema.TypeBoolean:
		return gql.Boolean
	case jsonschema.TypeArray:
		return gql.NewList(c.outputType(path, fieldName, s.Items))
	case jsonschema.TypeObject:
		return c.objectType(path, s)
	default:
		return unknownScalar
	}
}

// objectType builds (or reuses) the nested object type for a schema node.
// The name derives from the field path; structurally identical shapes are
// memoized so they do not duplicate type definitions.
func (c *compiler) objectType(path []string, s *jsonschema.Schema) gql.Output {
	if len(s.Properties) == 0 {
		return unknownScalar
	}

	sig := signature(s)
	if t, ok := c.memo[sig]; ok {
		return t
	}

	fields := gql.Fields{}
	for prop, ps := range s.Properties {
		childPath := append(append([]string{}, path...), prop)
		fields[prop] = &gql.Field{Type: c.outputType(childPath, prop, ps)}
	}

	obj := gql.NewObject(gql.ObjectConfig{
		Name:   c.uniqueName(pascalPath(path)),
		Fields: fields,
	})
	c.memo[sig] = obj
	return obj
}

func (c *compiler) uniqueName(base string) string {
	name := base
	for i := 2; c.names[name]; i++ {
		name = fmt.Sprintf("%s%d", base, i)
	}
	c.names[name] = true
	return name
}

// signature is the structural identity of a schema node, title excluded.
func signature(s *jsonschema.Schema) string {
	clone := s.Clone()
	clone.Title = ""
	raw, err := json.Marshal(clone)
	if err != nil {
		return fmt.Sprintf("%v", s)
	}
	return string(raw)
}

func singularField(entityType *gql.Object, owner, entityName string, resolver Resolver) *gql.Field {
	return &gql.Field{
		Type: entityType,
		Args: gql.FieldConfigArgument{
			"id": &gql.ArgumentConfig{Type: gql.NewNonNull(gql.String)},
		},
		Resolve: func(p gql.ResolveParams) (interface{}, error) {
			id, _ := p.Args["id"].(string)
			e, err := resolver.GetEntity(p.Context, owner, entityName, id)
			if err != nil {
				if errors.Is(err, errors.ErrEntityNotFound) {
					return nil, nil
				}
				return nil, err
			}
			if e == nil {
				return nil, nil
			}
			return e.Document(), nil
		},
	}
}

func listField(entityType *gql.Object, owner, entityName string, resolver Resolver) *gql.Field {
	return &gql.Field{
		Type: gql.NewList(entityType),
		Args: gql.FieldConfigArgument{
			"query": &gql.ArgumentConfig{Type: gql.String},
		},
		Resolve: func(p gql.ResolveParams) (interface{}, error) {
			query, _ := p.Args["query"].(string)
			list, err := resolver.GetEntityList(p.Context, owner, entityName, query)
			if err != nil {
				return nil, err
			}
			out := make([]map[string]any, 0, len(list))
			for _, e := range list {
				out = append(out, e.Document())
			}
			return out, nil
		},
	}
}

// pascal upper-cases the first byte, leaving inner casing alone.
func pascal(s string) string {
	if s == "" {
		return s
	}
	if s[0] >= 'a' && s[0] <= 'z' {
		return string(s[0]-'a'+'A') + s[1:]
	}
	return s
}

func pascalPath(path []string) string {
	out := ""
	for _, seg := range path {
		out += pascal(seg)
	}
	return out
}
