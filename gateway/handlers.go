package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/Sangrene/flexible-data-relay/entity"
	"github.com/Sangrene/flexible-data-relay/errors"
	"github.com/Sangrene/flexible-data-relay/graphql"
	"github.com/Sangrene/flexible-data-relay/jsonschema"
	"github.com/Sangrene/flexible-data-relay/tenant"
)

type tenantHandler func(w http.ResponseWriter, r *http.Request, requester *tenant.Tenant)

// requireTenant resolves the bearer token to a tenant before running the
// handler.
func (s *Server) requireTenant(next tenantHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, errors.WrapInvalid(errors.ErrWrongCredentials, "gateway", "requireTenant", "missing bearer token"))
			return
		}
		requester, err := s.auth.GetTenantFromToken(r.Context(), token)
		if err != nil {
			writeError(w, err)
			return
		}
		next(w, r, requester)
	}
}

// requireAdmin only admits the admin token.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok || !s.auth.IsAdminToken(token) {
			writeError(w, errors.WrapInvalid(errors.ErrNoAccess, "gateway", "requireAdmin", "admin token required"))
			return
		}
		next(w, r)
	}
}

func (s *Server) handleTenantToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ClientID     string `json:"clientId"`
		ClientSecret string `json:"clientSecret"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	token, err := s.auth.GenerateTokenFromCredentials(r.Context(), body.ClientID, body.ClientSecret)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleAdminToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AdminSecret string `json:"adminSecret"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	token, err := s.auth.GenerateAdminTokenFromSecret(body.AdminSecret)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Name == "" {
		writeError(w, errors.WrapInvalid(errors.ErrInvalidData, "gateway", "handleCreateTenant", "tenant name is required"))
		return
	}

	created, err := s.tenants.CreateTenant(r.Context(), body.Name)
	if err != nil {
		writeError(w, err)
		return
	}

	// The only moment the plain secret is ever returned.
	writeJSON(w, http.StatusCreated, map[string]string{
		"id":     created.ID,
		"name":   created.Name,
		"secret": created.LastSecret,
	})
}

// handleAllowAccess grants another tenant read access to one of the
// requester's collections. Only the owner can grant.
func (s *Server) handleAllowAccess(w http.ResponseWriter, r *http.Request, requester *tenant.Tenant) {
	var body struct {
		AllowedTenantName string `json:"allowedTenantName"`
		EntityName        string `json:"entityName"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.AllowedTenantName == "" || body.EntityName == "" {
		writeError(w, errors.WrapInvalid(errors.ErrInvalidData, "gateway", "handleAllowAccess", "allowedTenantName and entityName are required"))
		return
	}

	if err := s.tenants.AllowAccess(r.Context(), requester.Name, body.AllowedTenantName, body.EntityName); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "granted"})
}

func (s *Server) handleGraphQL(w http.ResponseWriter, r *http.Request, requester *tenant.Tenant) {
	owner := r.PathValue("tenant")

	var req graphql.Request
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.exec.Execute(r.Context(), owner, requester, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type entityPayload struct {
	ID   string         `json:"id"`
	Data map[string]any `json:"data"`
}

// handleEntityWrite accepts a single entity or a batch. Query parameters:
// reconciliation=merge switches schema reconciliation to merge mode,
// transient=true skips entity persistence.
func (s *Server) handleEntityWrite(w http.ResponseWriter, r *http.Request, requester *tenant.Tenant) {
	owner := r.PathValue("tenant")
	entityName := r.PathValue("entity")

	if err := s.tenants.Authorize(requester, owner, entityName); err != nil {
		writeError(w, err)
		return
	}

	opts := writeOptions(r)

	raw, err := readBody(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if isJSONArray(raw) {
		var payloads []entityPayload
		if err := json.Unmarshal(raw, &payloads); err != nil {
			writeError(w, errors.WrapInvalid(err, "gateway", "handleEntityWrite", "decode batch"))
			return
		}
		entities := make([]*entity.Entity, len(payloads))
		for i, p := range payloads {
			entities[i] = &entity.Entity{ID: p.ID, Data: p.Data}
		}

		written, err := s.entities.CreateOrUpdateList(r.Context(), owner, entityName, entities, opts)
		if err != nil {
			writeError(w, err)
			return
		}
		out := make([]map[string]any, len(written))
		for i, e := range written {
			out[i] = e.Document()
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	var p entityPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		writeError(w, errors.WrapInvalid(err, "gateway", "handleEntityWrite", "decode entity"))
		return
	}

	written, err := s.entities.CreateOrUpdate(r.Context(), owner, entityName, &entity.Entity{ID: p.ID, Data: p.Data}, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, written.Document())
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request, requester *tenant.Tenant) {
	if r.PathValue("tenant") != requester.Name {
		writeError(w, errors.WrapInvalid(errors.ErrNoAccess, "gateway", "handleSubscribe", "subscriptions are created under the caller's own tenant"))
		return
	}

	var cmd tenant.SubscriptionCommand
	if err := decodeBody(r, &cmd); err != nil {
		writeError(w, err)
		return
	}

	sub, err := s.tenants.CreateSubscription(r.Context(), requester, cmd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// handleSDL renders the requester's visible surface of the tenant's
// schemas as GraphQL SDL.
func (s *Server) handleSDL(w http.ResponseWriter, r *http.Request, requester *tenant.Tenant) {
	owner := r.PathValue("tenant")

	visible := make(map[string]*jsonschema.Schema)
	for name, schema := range s.cache.GetAll(owner) {
		if requester.Name == owner || requester.HasGrant(owner, name) {
			visible[name] = schema
		}
	}

	sdl, err := graphql.SDL(visible)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(sdl))
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request, requester *tenant.Tenant) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "tenant", requester.Name, "error", err)
		return
	}
	s.websocket.Attach(requester.Name, conn)
	go s.websocket.ReadLoop(requester.Name, conn)
}

func writeOptions(r *http.Request) entity.WriteOptions {
	return entity.WriteOptions{
		Mode:      jsonschema.ParseMode(r.URL.Query().Get("reconciliation")),
		Transient: r.URL.Query().Get("transient") == "true",
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	return token, ok && token != ""
}
