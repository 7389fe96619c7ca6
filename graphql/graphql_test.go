package graphql_test

import (
	"context"
	"testing"
	"time"

	gql "github.com/graphql-go/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sangrene/flexible-data-relay/entity"
	"github.com/Sangrene/flexible-data-relay/errors"
	"github.com/Sangrene/flexible-data-relay/event"
	"github.com/Sangrene/flexible-data-relay/graphql"
	"github.com/Sangrene/flexible-data-relay/jsonschema"
	"github.com/Sangrene/flexible-data-relay/schemacache"
	"github.com/Sangrene/flexible-data-relay/storage/memstore"
	"github.com/Sangrene/flexible-data-relay/tenant"
)

// fixture wires the write path end to end: entity writes reconcile
// schemas, the bus feeds the cache, queries compile from the cache.
type fixture struct {
	core  *entity.Core
	cache *schemacache.Cache
	bus   *event.Bus
	exec  *graphql.ExecutionManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	bus := event.NewBus(nil)
	t.Cleanup(bus.Close)

	cache := schemacache.NewCache(nil)
	require.NoError(t, schemacache.NewLocalStrategy(bus, cache).Start(context.Background()))

	core := entity.NewCore(memstore.NewEntityStore(), bus, cache, nil)
	return &fixture{
		core:  core,
		cache: cache,
		bus:   bus,
		exec:  graphql.NewExecutionManager(cache, core, nil),
	}
}

func (f *fixture) write(t *testing.T, owner, entityName string, doc map[string]any) {
	t.Helper()
	id, _ := doc["id"].(string)
	data := make(map[string]any, len(doc))
	for k, v := range doc {
		if k != "id" {
			data[k] = v
		}
	}
	_, err := f.core.CreateOrUpdate(context.Background(), owner, entityName,
		&entity.Entity{ID: id, Data: data}, entity.WriteOptions{})
	require.NoError(t, err)
	require.True(t, f.bus.Drain(time.Second))
}

func owner(name string) *tenant.Tenant {
	return &tenant.Tenant{Name: name}
}

func TestExecuteResolvesSingleEntity(t *testing.T) {
	f := newFixture(t)
	f.write(t, "t1", "entityTest", map[string]any{
		"id": "1", "name": "boiler", "temperature": 21.5, "active": true,
	})

	result, err := f.exec.Execute(context.Background(), "t1", owner("t1"), graphql.Request{
		Query: `{ entityTest(id: "1") { id createdAt data { name temperature active } } }`,
	})
	require.NoError(t, err)
	require.Empty(t, result.Errors)

	root := result.Data.(map[string]any)
	e := root["entityTest"].(map[string]any)
	assert.Equal(t, "1", e["id"])
	assert.NotEmpty(t, e["createdAt"])

	data := e["data"].(map[string]any)
	assert.Equal(t, "boiler", data["name"])
	assert.Equal(t, 21.5, data["temperature"])
	assert.Equal(t, true, data["active"])
}

func TestExecuteResolvesList(t *testing.T) {
	f := newFixture(t)
	f.write(t, "t1", "entityTest", map[string]any{"id": "1", "name": "a"})
	f.write(t, "t1", "entityTest", map[string]any{"id": "2", "name": "b"})

	result, err := f.exec.Execute(context.Background(), "t1", owner("t1"), graphql.Request{
		Query: `{ entityTestList { id } }`,
	})
	require.NoError(t, err)
	require.Empty(t, result.Errors)

	root := result.Data.(map[string]any)
	list := root["entityTestList"].([]any)
	assert.Len(t, list, 2)
}

func TestExecuteUnknownIDResolvesToNull(t *testing.T) {
	f := newFixture(t)
	f.write(t, "t1", "entityTest", map[string]any{"id": "1", "name": "a"})

	result, err := f.exec.Execute(context.Background(), "t1", owner("t1"), graphql.Request{
		Query: `{ entityTest(id: "nope") { id } }`,
	})
	require.NoError(t, err)
	require.Empty(t, result.Errors)
	root := result.Data.(map[string]any)
	assert.Nil(t, root["entityTest"])
}

func TestCompiledSurfaceFiltersByGrant(t *testing.T) {
	f := newFixture(t)
	f.write(t, "t1", "visible", map[string]any{"id": "1", "name": "a"})
	f.write(t, "t1", "hidden", map[string]any{"id": "1", "secret": "x"})

	granted := &tenant.Tenant{
		Name:         "t2",
		AccessGrants: []tenant.Access{{Owner: "t1", EntityName: "visible"}},
	}

	result, err := f.exec.Execute(context.Background(), "t1", granted, graphql.Request{
		Query: `{ visible(id: "1") { id } }`,
	})
	require.NoError(t, err)
	require.Empty(t, result.Errors)

	// The ungranted collection is absent from the surface, not merely
	// denied at resolve time.
	result, err = f.exec.Execute(context.Background(), "t1", granted, graphql.Request{
		Query: `{ hidden(id: "1") { id } }`,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Errors)
}

func TestCompileWithoutAnyGrantFails(t *testing.T) {
	f := newFixture(t)
	f.write(t, "t1", "entityTest", map[string]any{"id": "1", "name": "a"})

	stranger := &tenant.Tenant{Name: "t3"}
	_, err := f.exec.Execute(context.Background(), "t1", stranger, graphql.Request{
		Query: `{ entityTest(id: "1") { id } }`,
	})
	assert.True(t, errors.Is(err, errors.ErrNoAccess))
}

func TestExecuteWithoutCacheFails(t *testing.T) {
	exec := graphql.NewExecutionManager(nil, nil, nil)
	_, err := exec.Execute(context.Background(), "t1", owner("t1"), graphql.Request{Query: `{ x }`})
	assert.True(t, errors.Is(err, errors.ErrTenantCacheNotSet))
}

func TestEmptyArraySurfacesAsOpaqueList(t *testing.T) {
	f := newFixture(t)
	f.write(t, "t1", "entityTest", map[string]any{"id": "1", "tags": []any{}})

	result, err := f.exec.Execute(context.Background(), "t1", owner("t1"), graphql.Request{
		Query: `{ entityTest(id: "1") { data { tags } } }`,
	})
	require.NoError(t, err)
	require.Empty(t, result.Errors)
}

func TestNestedObjectsResolve(t *testing.T) {
	f := newFixture(t)
	f.write(t, "t1", "entityTest", map[string]any{
		"id": "1",
		"location": map[string]any{
			"lat": 48.85, "lon": 2.35,
			"address": map[string]any{"city": "Paris"},
		},
	})

	result, err := f.exec.Execute(context.Background(), "t1", owner("t1"), graphql.Request{
		Query: `{ entityTest(id: "1") { data { location { lat address { city } } } } }`,
	})
	require.NoError(t, err)
	require.Empty(t, result.Errors)

	root := result.Data.(map[string]any)
	data := root["entityTest"].(map[string]any)["data"].(map[string]any)
	location := data["location"].(map[string]any)
	assert.Equal(t, 48.85, location["lat"])
	assert.Equal(t, "Paris", location["address"].(map[string]any)["city"])
}

func TestVariablesArePassedThrough(t *testing.T) {
	f := newFixture(t)
	f.write(t, "t1", "entityTest", map[string]any{"id": "42", "name": "a"})

	result, err := f.exec.Execute(context.Background(), "t1", owner("t1"), graphql.Request{
		Query:     `query ($id: String!) { entityTest(id: $id) { id } }`,
		Variables: map[string]any{"id": "42"},
	})
	require.NoError(t, err)
	require.Empty(t, result.Errors)
	root := result.Data.(map[string]any)
	assert.Equal(t, "42", root["entityTest"].(map[string]any)["id"])
}

func TestCompileDirectly(t *testing.T) {
	schemas := map[string]*jsonschema.Schema{
		"sensors": jsonschema.InferTitled("sensors", map[string]any{"id": "1", "v": 1.5}),
	}

	compiled, err := graphql.Compile("t1", owner("t1"), schemas, stubResolver{})
	require.NoError(t, err)

	result := gql.Do(gql.Params{
		Schema:        compiled,
		RequestString: `{ sensors(id: "1") { id data { v } } }`,
		Context:       context.Background(),
	})
	require.Empty(t, result.Errors)
}

type stubResolver struct{}

func (stubResolver) GetEntity(_ context.Context, _, _, id string) (*entity.Entity, error) {
	return &entity.Entity{ID: id, Data: map[string]any{"v": 1.5}}, nil
}

func (stubResolver) GetEntityList(_ context.Context, _, _, _ string) ([]*entity.Entity, error) {
	return nil, nil
}
