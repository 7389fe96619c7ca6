package gateway_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sangrene/flexible-data-relay/auth"
	"github.com/Sangrene/flexible-data-relay/entity"
	"github.com/Sangrene/flexible-data-relay/event"
	"github.com/Sangrene/flexible-data-relay/gateway"
	"github.com/Sangrene/flexible-data-relay/graphql"
	"github.com/Sangrene/flexible-data-relay/schemacache"
	"github.com/Sangrene/flexible-data-relay/storage/memstore"
	"github.com/Sangrene/flexible-data-relay/subscription"
	"github.com/Sangrene/flexible-data-relay/tenant"
)

type stack struct {
	srv        *httptest.Server
	bus        *event.Bus
	adminToken string
}

func newStack(t *testing.T) *stack {
	t.Helper()

	bus := event.NewBus(nil)
	t.Cleanup(bus.Close)

	cache := schemacache.NewCache(nil)
	require.NoError(t, schemacache.NewLocalStrategy(bus, cache).Start(context.Background()))

	entityStore := memstore.NewEntityStore()
	tenantStore := memstore.NewTenantStore()

	entities := entity.NewCore(entityStore, bus, cache, nil)
	tenants := tenant.NewCore(tenantStore, bus, nil)

	issuer, err := auth.NewHMACIssuer([]byte("test-signing-secret"))
	require.NoError(t, err)
	authCore := auth.NewCore(tenants, issuer, "admin-secret", nil)

	exec := graphql.NewExecutionManager(cache, entities, nil)

	manager := subscription.NewManager(tenantStore, nil, subscription.WithDeliveryTimeout(time.Second))
	manager.Register(subscription.NewWebhookPlugin(nil))
	require.NoError(t, manager.Start(bus))
	t.Cleanup(manager.Stop)

	server := gateway.NewServer(entities, tenants, authCore, exec, cache, nil)
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	s := &stack{srv: srv, bus: bus}
	s.adminToken = s.fetchAdminToken(t)
	return s
}

func (s *stack) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, s.srv.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func (s *stack) fetchAdminToken(t *testing.T) string {
	resp, body := s.do(t, http.MethodPost, "/admin/token", "", map[string]string{"adminSecret": "admin-secret"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return body["token"].(string)
}

// createTenant provisions a tenant over the admin API and returns its
// bearer token.
func (s *stack) createTenant(t *testing.T, name string) string {
	resp, body := s.do(t, http.MethodPost, "/admin/tenant", s.adminToken, map[string]string{"name": name})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, tokenBody := s.do(t, http.MethodPost, "/token", "", map[string]string{
		"clientId":     body["id"].(string),
		"clientSecret": body["secret"].(string),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return tokenBody["token"].(string)
}

func (s *stack) drain(t *testing.T) {
	t.Helper()
	require.True(t, s.bus.Drain(time.Second))
}

func TestWriteAndQueryEntity(t *testing.T) {
	s := newStack(t)
	token := s.createTenant(t, "t1")

	resp, written := s.do(t, http.MethodPost, "/t1/entity/entityTest", token, map[string]any{
		"id":   "1",
		"data": map[string]any{"name": "boiler", "temperature": 21.5},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1", written["id"])
	s.drain(t)

	resp, result := s.do(t, http.MethodPost, "/t1/graphql", token, map[string]any{
		"query": `{ entityTest(id: "1") { id data { name temperature } } }`,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data := result["data"].(map[string]any)["entityTest"].(map[string]any)
	assert.Equal(t, "1", data["id"])
	assert.Equal(t, "boiler", data["data"].(map[string]any)["name"])
}

func TestWriteRequiresBearerToken(t *testing.T) {
	s := newStack(t)

	resp, _ := s.do(t, http.MethodPost, "/t1/entity/entityTest", "", map[string]any{"id": "1"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/t1/entity/entityTest", "garbage", map[string]any{"id": "1"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWriteWithoutIDIsRejected(t *testing.T) {
	s := newStack(t)
	token := s.createTenant(t, "t1")

	resp, body := s.do(t, http.MethodPost, "/t1/entity/entityTest", token, map[string]any{
		"data": map[string]any{"name": "boiler"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "id")
}

func TestCrossTenantWriteNeedsGrant(t *testing.T) {
	s := newStack(t)
	t1 := s.createTenant(t, "t1")
	t2 := s.createTenant(t, "t2")

	resp, _ := s.do(t, http.MethodPost, "/t1/entity/entityTest", t2, map[string]any{
		"id": "1", "data": map[string]any{"name": "intruder"},
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/allow-access", t1, map[string]string{
		"allowedTenantName": "t2",
		"entityName":        "entityTest",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/t1/entity/entityTest", t2, map[string]any{
		"id": "1", "data": map[string]any{"name": "guest"},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGrantedTenantCanQuery(t *testing.T) {
	s := newStack(t)
	t1 := s.createTenant(t, "t1")
	t2 := s.createTenant(t, "t2")

	resp, _ := s.do(t, http.MethodPost, "/t1/entity/entityTest", t1, map[string]any{
		"id": "1", "data": map[string]any{"name": "boiler"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	s.drain(t)

	// Without a grant the surface compiles empty.
	resp, _ = s.do(t, http.MethodPost, "/t1/graphql", t2, map[string]any{
		"query": `{ entityTest(id: "1") { id } }`,
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/allow-access", t1, map[string]string{
		"allowedTenantName": "t2",
		"entityName":        "entityTest",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, result := s.do(t, http.MethodPost, "/t1/graphql", t2, map[string]any{
		"query": `{ entityTest(id: "1") { id } }`,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := result["data"].(map[string]any)["entityTest"].(map[string]any)
	assert.Equal(t, "1", data["id"])
}

func TestBatchWrite(t *testing.T) {
	s := newStack(t)
	token := s.createTenant(t, "t1")

	raw, err := json.Marshal([]map[string]any{
		{"id": "1", "data": map[string]any{"name": "a"}},
		{"id": "2", "data": map[string]any{"name": "b"}},
	})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, s.srv.URL+"/t1/entity/entityTest", bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Len(t, out, 2)
}

func TestTransientWriteSkipsPersistence(t *testing.T) {
	s := newStack(t)
	token := s.createTenant(t, "t1")

	resp, _ := s.do(t, http.MethodPost, "/t1/entity/entityTest?transient=true", token, map[string]any{
		"id": "1", "data": map[string]any{"name": "ghost"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	s.drain(t)

	// The schema exists (queries compile) but the entity was never stored.
	resp, result := s.do(t, http.MethodPost, "/t1/graphql", token, map[string]any{
		"query": `{ entityTest(id: "1") { id } }`,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, result["data"].(map[string]any)["entityTest"])
}

func TestSubscribeAndDeliverWebhook(t *testing.T) {
	s := newStack(t)
	t1 := s.createTenant(t, "t1")

	var mu sync.Mutex
	var received []map[string]any
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		received = append(received, body)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer hook.Close()

	resp, sub := s.do(t, http.MethodPost, "/t1/subscribe", t1, map[string]any{
		"owner":      "t1",
		"entityName": "entityTest",
		"type":       "webhook",
		"webhookUrl": hook.URL,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, sub["key"])

	resp, _ = s.do(t, http.MethodPost, "/t1/entity/entityTest", t1, map[string]any{
		"id": "1", "data": map[string]any{"name": "boiler"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "created", received[0]["action"])
	assert.Equal(t, sub["key"], received[0]["key"])
}

func TestQueueSubscribeWithoutTransportFails(t *testing.T) {
	s := newStack(t)
	t1 := s.createTenant(t, "t1")

	resp, body := s.do(t, http.MethodPost, "/t1/subscribe", t1, map[string]any{
		"owner":      "t1",
		"entityName": "entityTest",
		"type":       "queue",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, fmt.Sprint(body["error"]), "transport")
}

func TestSDLEndpoint(t *testing.T) {
	s := newStack(t)
	token := s.createTenant(t, "t1")

	resp, _ := s.do(t, http.MethodPost, "/t1/entity/entityTest", token, map[string]any{
		"id": "1", "data": map[string]any{"name": "boiler"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	s.drain(t)

	req, err := http.NewRequest(http.MethodGet, s.srv.URL+"/sdl/t1", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	sdlResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer sdlResp.Body.Close()
	require.Equal(t, http.StatusOK, sdlResp.StatusCode)

	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(sdlResp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "type Query")
	assert.Contains(t, buf.String(), "entityTest")
}

func TestAdminRoutesRejectTenantTokens(t *testing.T) {
	s := newStack(t)
	token := s.createTenant(t, "t1")

	resp, _ := s.do(t, http.MethodPost, "/admin/tenant", token, map[string]string{"name": "t2"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	s := newStack(t)
	resp, body := s.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}
