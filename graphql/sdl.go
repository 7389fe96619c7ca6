package graphql

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"

	"github.com/Sangrene/flexible-data-relay/errors"
	"github.com/Sangrene/flexible-data-relay/jsonschema"
)

// SDL renders the query surface over the given collections as formatted
// GraphQL schema language. Callers pass the already-visible set of
// schemas; the output mirrors what Compile would build from them.
func SDL(schemas map[string]*jsonschema.Schema) (string, error) {
	if len(schemas) == 0 {
		return "", errors.WrapInvalid(errors.ErrNoAccess, "graphql", "SDL", "no visible collections")
	}

	b := &sdlBuilder{
		names: make(map[string]bool),
		memo:  make(map[string]string),
	}
	b.defs = append(b.defs, &ast.Definition{
		Kind:        ast.Scalar,
		Name:        "Unknown",
		Description: "Opaque value whose type could not be inferred.",
	})

	query := &ast.Definition{Kind: ast.Object, Name: "Query"}
	collections := make([]string, 0, len(schemas))
	for name := range schemas {
		collections = append(collections, name)
	}
	sort.Strings(collections)

	for _, name := range collections {
		envelope := b.envelopeDef(name, schemas[name])
		query.Fields = append(query.Fields,
			&ast.FieldDefinition{
				Name: name,
				Arguments: ast.ArgumentDefinitionList{
					{Name: "id", Type: ast.NonNullNamedType("String", nil)},
				},
				Type: ast.NamedType(envelope, nil),
			},
			&ast.FieldDefinition{
				Name: name + "List",
				Arguments: ast.ArgumentDefinitionList{
					{Name: "query", Type: ast.NamedType("String", nil)},
				},
				Type: ast.ListType(ast.NamedType(envelope, nil), nil),
			},
		)
	}
	b.defs = append(b.defs, query)

	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatSchemaDocument(&ast.SchemaDocument{Definitions: b.defs})
	return buf.String(), nil
}

type sdlBuilder struct {
	defs  ast.DefinitionList
	names map[string]bool
	memo  map[string]string
}

// envelopeDef emits the entity envelope type for one collection and
// returns its name.
func (b *sdlBuilder) envelopeDef(entityName string, schema *jsonschema.Schema) string {
	dataType := b.typeRef([]string{entityName, "data"}, "data", schema)
	name := b.uniqueName(pascal(entityName))
	b.defs = append(b.defs, &ast.Definition{
		Kind: ast.Object,
		Name: name,
		Fields: ast.FieldList{
			{Name: "id", Type: ast.NonNullNamedType("ID", nil)},
			{Name: "createdAt", Type: ast.NamedType("String", nil)},
			{Name: "updatedAt", Type: ast.NamedType("String", nil)},
			{Name: "data", Type: dataType},
		},
	})
	return name
}

func (b *sdlBuilder) typeRef(path []string, fieldName string, s *jsonschema.Schema) *ast.Type {
	if s == nil {
		return ast.NamedType("Unknown", nil)
	}
	switch s.Type {
	case jsonschema.TypeString:
		if fieldName == "id" {
			return ast.NamedType("ID", nil)
		}
		return ast.NamedType("String", nil)
	case jsonschema.TypeInteger:
		return ast.NamedType("Int", nil)
	case jsonschema.TypeNumber:
		return ast.NamedType("Float", nil)
	case jsonschema.TypeBoolean:
		return ast.NamedType("Boolean", nil)
	case jsonschema.TypeArray:
		return ast.ListType(b.typeRef(path, fieldName, s.Items), nil)
	case jsonschema.TypeObject:
		return ast.NamedType(b.objectDef(path, s), nil)
	default:
		return ast.NamedType("Unknown", nil)
	}
}

func (b *sdlBuilder) objectDef(path []string, s *jsonschema.Schema) string {
	if len(s.Properties) == 0 {
		return "Unknown"
	}

	sig := signature(s)
	if name, ok := b.memo[sig]; ok {
		return name
	}

	name := b.uniqueName(pascalPath(path))
	b.memo[sig] = name

	def := &ast.Definition{Kind: ast.Object, Name: name}
	props := make([]string, 0, len(s.Properties))
	for prop := range s.Properties {
		props = append(props, prop)
	}
	sort.Strings(props)
	for _, prop := range props {
		childPath := append(append([]string{}, path...), prop)
		def.Fields = append(def.Fields, &ast.FieldDefinition{
			Name: prop,
			Type: b.typeRef(childPath, prop, s.Properties[prop]),
		})
	}
	b.defs = append(b.defs, def)
	return name
}

func (b *sdlBuilder) uniqueName(base string) string {
	name := base
	for i := 2; b.names[name]; i++ {
		name = fmt.Sprintf("%s%d", base, i)
	}
	b.names[name] = true
	return name
}
