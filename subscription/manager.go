package subscription

import (
	"context"
	"log/slog"
	"time"

	"github.com/Sangrene/flexible-data-relay/errors"
	"github.com/Sangrene/flexible-data-relay/event"
	"github.com/Sangrene/flexible-data-relay/metric"
	"github.com/Sangrene/flexible-data-relay/pkg/worker"
	"github.com/Sangrene/flexible-data-relay/tenant"
)

const defaultDeliveryTimeout = 10 * time.Second

// TenantSource lists tenants whose subscriptions are matched against each
// mutation. tenant.Core satisfies it.
type TenantSource interface {
	GetAllTenants(ctx context.Context) ([]*tenant.Tenant, error)
}

type delivery struct {
	plugin       Plugin
	notification Notification
}

// Manager matches entity mutations against every tenant's subscriptions
// and dispatches one delivery per (subscription, plugin) through a bounded
// worker pool. A slow or failing transport never blocks the bus.
type Manager struct {
	tenants TenantSource
	plugins map[tenant.TransportType]Plugin
	pool    *worker.Pool[delivery]
	logger  *slog.Logger
	metrics *metric.Metrics
	timeout time.Duration

	workers   int
	queueSize int
}

// ManagerOption customizes Manager construction.
type ManagerOption func(*Manager)

// WithMetrics wires prometheus counters into the manager.
func WithMetrics(m *metric.Metrics) ManagerOption {
	return func(mgr *Manager) { mgr.metrics = m }
}

// WithDeliveryTimeout bounds each transport call.
func WithDeliveryTimeout(d time.Duration) ManagerOption {
	return func(mgr *Manager) { mgr.timeout = d }
}

// WithPoolSize sets the delivery pool dimensions.
func WithPoolSize(workers, queueSize int) ManagerOption {
	return func(mgr *Manager) {
		mgr.workers = workers
		mgr.queueSize = queueSize
	}
}

// NewManager creates the fan-out manager. Plugins are registered before
// Start.
func NewManager(tenants TenantSource, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		tenants:   tenants,
		plugins:   make(map[tenant.TransportType]Plugin),
		logger:    logger.With("component", "subscription-manager"),
		timeout:   defaultDeliveryTimeout,
		workers:   8,
		queueSize: 256,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds a transport plugin, keyed by its name.
func (m *Manager) Register(p Plugin) {
	m.plugins[tenant.TransportType(p.Name())] = p
}

// Plugins returns the registered plugins, for provisioning registration.
func (m *Manager) Plugins() []Plugin {
	out := make([]Plugin, 0, len(m.plugins))
	for _, p := range m.plugins {
		out = append(out, p)
	}
	return out
}

// Start spins up the worker pool and subscribes to entity mutations.
func (m *Manager) Start(bus *event.Bus) error {
	if bus == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "subscription", "Start", "event bus is required")
	}
	m.pool = worker.NewPool(m.workers, m.queueSize, m.deliver)
	bus.EntityMutated.Subscribe("subscription-manager", m.fanOut)
	m.logger.Info("subscription manager started",
		"plugins", len(m.plugins), "workers", m.workers)
	return nil
}

// Stop drains in-flight deliveries.
func (m *Manager) Stop() {
	if m.pool != nil {
		m.pool.Stop()
	}
}

// fanOut matches one mutation against every subscription of every tenant
// and submits each match for delivery.
func (m *Manager) fanOut(ev event.EntityMutated) {
	tenants, err := m.tenants.GetAllTenants(context.Background())
	if err != nil {
		m.logger.Error("failed to list tenants for fan-out",
			"tenant", ev.Tenant, "entity", ev.EntityName, "error", err)
		return
	}

	for _, t := range tenants {
		for _, sub := range t.Subscriptions {
			if sub.Owner != ev.Tenant || sub.EntityName != ev.EntityName {
				continue
			}
			plugin, ok := m.plugins[sub.Type]
			if !ok {
				m.logger.Warn("no plugin for subscription transport",
					"transport", string(sub.Type), "subscriber", t.Name)
				continue
			}
			d := delivery{
				plugin: plugin,
				notification: Notification{
					Action:       ev.Action,
					Owner:        ev.Tenant,
					EntityName:   ev.EntityName,
					Entity:       ev.Entity,
					Subscriber:   t.Name,
					Subscription: sub,
				},
			}
			if err := m.pool.Submit(d); err != nil {
				m.countDelivery(plugin.Name(), "dropped")
				m.logger.Error("delivery dropped", "plugin", plugin.Name(),
					"subscriber", t.Name, "error", err)
			}
		}
	}
}

// deliver runs one transport call under the delivery timeout.
func (m *Manager) deliver(ctx context.Context, d delivery) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := d.plugin.PublishMessage(ctx, d.notification); err != nil {
		m.countDelivery(d.plugin.Name(), "error")
		m.logger.Error("delivery failed",
			"plugin", d.plugin.Name(),
			"subscriber", d.notification.Subscriber,
			"owner", d.notification.Owner,
			"entity", d.notification.EntityName,
			"error", err)
		return err
	}
	m.countDelivery(d.plugin.Name(), "ok")
	return nil
}

func (m *Manager) countDelivery(plugin, outcome string) {
	if m.metrics != nil {
		m.metrics.FanoutDeliveries.WithLabelValues(plugin, outcome).Inc()
	}
}
