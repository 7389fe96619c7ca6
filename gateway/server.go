// Package gateway exposes the relay over HTTP: entity writes, per-tenant
// GraphQL queries, grant and subscription management, token issuance, SDL
// export, and the operational endpoints.
package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/99designs/gqlgen/graphql/playground"

	"github.com/Sangrene/flexible-data-relay/auth"
	"github.com/Sangrene/flexible-data-relay/entity"
	"github.com/Sangrene/flexible-data-relay/errors"
	"github.com/Sangrene/flexible-data-relay/graphql"
	"github.com/Sangrene/flexible-data-relay/health"
	"github.com/Sangrene/flexible-data-relay/metric"
	"github.com/Sangrene/flexible-data-relay/schemacache"
	"github.com/Sangrene/flexible-data-relay/subscription"
	"github.com/Sangrene/flexible-data-relay/tenant"
)

// Server is the HTTP gateway. All domain logic lives in the cores it
// delegates to; handlers only translate the wire format.
type Server struct {
	entities *entity.Core
	tenants  *tenant.Core
	auth     *auth.Core
	exec     *graphql.ExecutionManager
	cache    *schemacache.Cache

	websocket  *subscription.WebsocketPlugin
	metrics    *metric.Registry
	monitor    *health.Monitor
	playground bool

	shutdownTimeout time.Duration

	mux        *http.ServeMux
	httpServer *http.Server
	logger     *slog.Logger
}

// ServerOption customizes Server construction.
type ServerOption func(*Server)

// WithWebsocket enables the /ws endpoint backed by the websocket plugin.
func WithWebsocket(p *subscription.WebsocketPlugin) ServerOption {
	return func(s *Server) { s.websocket = p }
}

// WithMetricsRegistry exposes /metrics from the registry.
func WithMetricsRegistry(r *metric.Registry) ServerOption {
	return func(s *Server) { s.metrics = r }
}

// WithHealthMonitor backs /health with dependency checks instead of the
// static response.
func WithHealthMonitor(m *health.Monitor) ServerOption {
	return func(s *Server) { s.monitor = m }
}

// WithPlayground enables the GraphQL playground endpoint.
func WithPlayground(enabled bool) ServerOption {
	return func(s *Server) { s.playground = enabled }
}

// WithShutdownTimeout bounds the graceful shutdown after the serve
// context is cancelled.
func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// NewServer wires the routes.
func NewServer(
	entities *entity.Core,
	tenants *tenant.Core,
	authCore *auth.Core,
	exec *graphql.ExecutionManager,
	cache *schemacache.Cache,
	logger *slog.Logger,
	opts ...ServerOption,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		entities:        entities,
		tenants:         tenants,
		auth:            authCore,
		exec:            exec,
		cache:           cache,
		mux:             http.NewServeMux(),
		logger:          logger.With("component", "gateway"),
		shutdownTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /token", s.handleTenantToken)
	s.mux.HandleFunc("POST /admin/token", s.handleAdminToken)
	s.mux.HandleFunc("POST /admin/tenant", s.requireAdmin(s.handleCreateTenant))

	s.mux.HandleFunc("POST /allow-access", s.requireTenant(s.handleAllowAccess))
	s.mux.HandleFunc("POST /{tenant}/graphql", s.requireTenant(s.handleGraphQL))
	s.mux.HandleFunc("POST /{tenant}/entity/{entity}", s.requireTenant(s.handleEntityWrite))
	s.mux.HandleFunc("POST /{tenant}/subscribe", s.requireTenant(s.handleSubscribe))
	s.mux.HandleFunc("GET /sdl/{tenant}", s.requireTenant(s.handleSDL))

	if s.websocket != nil {
		s.mux.HandleFunc("GET /ws", s.requireTenant(s.handleWebsocket))
	}
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
	if s.playground {
		s.mux.HandleFunc("GET /playground/{tenant}", s.handlePlayground)
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
}

// Handler returns the root handler, used directly by tests.
func (s *Server) Handler() http.Handler { return s.mux }

// Start serves until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", "addr", addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "gateway", "Start", "graceful shutdown")
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.WrapFatal(err, "gateway", "Start", "serve http")
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.monitor == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	status := s.monitor.Evaluate()
	code := http.StatusOK
	if !status.IsHealthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (s *Server) handlePlayground(w http.ResponseWriter, r *http.Request) {
	tenantName := r.PathValue("tenant")
	playground.Handler("Flexible Data Relay", "/"+tenantName+"/graphql").ServeHTTP(w, r)
}
