package subscription

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Sangrene/flexible-data-relay/errors"
	"github.com/Sangrene/flexible-data-relay/tenant"
)

// WebsocketPlugin pushes notifications to connected tenant sessions. A
// notification for a tenant without a connected session is skipped
// silently; websocket delivery is best-effort.
type WebsocketPlugin struct {
	mu       sync.RWMutex
	sessions map[string]*session
	logger   *slog.Logger

	writeTimeout time.Duration
}

type session struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewWebsocketPlugin creates the websocket transport.
func NewWebsocketPlugin(logger *slog.Logger) *WebsocketPlugin {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebsocketPlugin{
		sessions:     make(map[string]*session),
		logger:       logger.With("component", "websocket-plugin"),
		writeTimeout: 5 * time.Second,
	}
}

// Name returns the transport name.
func (p *WebsocketPlugin) Name() string { return string(tenant.TransportWebsocket) }

// OnTenantCreated is a no-op for websockets.
func (p *WebsocketPlugin) OnTenantCreated(context.Context, *tenant.Tenant) error { return nil }

// OnSubscriptionCreated is a no-op for websockets; the session attaches
// separately over the gateway's /ws endpoint.
func (p *WebsocketPlugin) OnSubscriptionCreated(context.Context, string, tenant.Subscription) error {
	return nil
}

// Attach binds an upgraded connection to the tenant. An existing session
// for the same tenant is replaced and closed.
func (p *WebsocketPlugin) Attach(tenantName string, conn *websocket.Conn) {
	p.mu.Lock()
	old := p.sessions[tenantName]
	p.sessions[tenantName] = &session{conn: conn}
	p.mu.Unlock()

	if old != nil {
		old.conn.Close()
	}
	p.logger.Info("websocket session attached", "tenant", tenantName)
}

// Detach removes the tenant's session if it still owns the connection.
func (p *WebsocketPlugin) Detach(tenantName string, conn *websocket.Conn) {
	p.mu.Lock()
	if s, ok := p.sessions[tenantName]; ok && s.conn == conn {
		delete(p.sessions, tenantName)
	}
	p.mu.Unlock()
	p.logger.Info("websocket session detached", "tenant", tenantName)
}

// PublishMessage writes the notification to the subscriber's session.
func (p *WebsocketPlugin) PublishMessage(_ context.Context, n Notification) error {
	p.mu.RLock()
	s := p.sessions[n.Subscriber]
	p.mu.RUnlock()
	if s == nil {
		return nil
	}

	body, err := n.Payload()
	if err != nil {
		return errors.WrapInvalid(err, "subscription", "PublishMessage", "encode notification")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, body); err != nil {
		return errors.WrapTransient(err, "subscription", "PublishMessage", "write to websocket")
	}
	return nil
}

// ReadLoop consumes and discards client frames until the connection
// closes, then detaches the session. Run on the gateway's handler
// goroutine after Attach.
func (p *WebsocketPlugin) ReadLoop(tenantName string, conn *websocket.Conn) {
	defer p.Detach(tenantName, conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// sessionCount is used by tests.
func (p *WebsocketPlugin) sessionCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sessions)
}
