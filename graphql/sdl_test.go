package graphql_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sangrene/flexible-data-relay/graphql"
	"github.com/Sangrene/flexible-data-relay/jsonschema"
)

func TestSDLRendersQuerySurface(t *testing.T) {
	schemas := map[string]*jsonschema.Schema{
		"entityTest": jsonschema.InferTitled("entityTest", map[string]any{
			"id":   "a9bdbd0e-a277-4b8a-9bd3-a03f5fcd16b3",
			"name": "boiler",
			"location": map[string]any{
				"lat": 48.85,
				"lon": 2.35,
			},
			"tags": []any{},
		}),
		"orders": jsonschema.InferTitled("orders", map[string]any{
			"id":    "1",
			"total": 10.0,
		}),
	}

	sdl, err := graphql.SDL(schemas)
	require.NoError(t, err)

	assert.Contains(t, sdl, "type Query")
	assert.Contains(t, sdl, "entityTest(id: String!): EntityTest")
	assert.Contains(t, sdl, "entityTestList(query: String): [EntityTest]")
	assert.Contains(t, sdl, "orders(id: String!): Orders")
	assert.Contains(t, sdl, "type EntityTestData")
	assert.Contains(t, sdl, "type EntityTestDataLocation")
	assert.Contains(t, sdl, "scalar Unknown")
	// The envelope id is an ID; the empty array stays opaque.
	assert.Contains(t, sdl, "id: ID!")
	assert.Contains(t, sdl, "tags: [Unknown]")
	assert.Contains(t, sdl, "lat: Float")
}

func TestSDLWithoutSchemasFails(t *testing.T) {
	_, err := graphql.SDL(nil)
	assert.Error(t, err)
}
