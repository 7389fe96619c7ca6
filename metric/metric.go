// Package metric provides the prometheus registry and the relay's core
// metrics. Components record into Metrics; the HTTP gateway exposes the
// registry on /metrics.
package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains the relay-level metrics, labeled by tenant-agnostic
// dimensions only (tenant cardinality is unbounded).
type Metrics struct {
	EntityWrites     *prometheus.CounterVec // action: created|updated, outcome: ok|error
	SchemaUpdates    prometheus.Counter
	CacheApplies     *prometheus.CounterVec // result: applied|noop
	CacheEntries     prometheus.Gauge
	FanoutDeliveries *prometheus.CounterVec // plugin, outcome: ok|error|dropped
	GraphQLQueries   *prometheus.CounterVec // outcome: ok|error
}

// Registry wraps a dedicated prometheus registry with the relay metrics
// pre-registered alongside Go runtime and process collectors.
type Registry struct {
	prometheusRegistry *prometheus.Registry
	Metrics            *Metrics
}

// NewRegistry creates a registry with all core metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		EntityWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "relay",
				Subsystem: "entity",
				Name:      "writes_total",
				Help:      "Total entity write operations",
			},
			[]string{"action", "outcome"},
		),
		SchemaUpdates: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "relay",
				Subsystem: "schema",
				Name:      "updates_total",
				Help:      "Total reconciled schema updates persisted",
			},
		),
		CacheApplies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "relay",
				Subsystem: "cache",
				Name:      "applies_total",
				Help:      "Schema cache apply operations by result",
			},
			[]string{"result"},
		),
		CacheEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "relay",
				Subsystem: "cache",
				Name:      "entries",
				Help:      "Number of (tenant, collection) schemas held in cache",
			},
		),
		FanoutDeliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "relay",
				Subsystem: "subscription",
				Name:      "deliveries_total",
				Help:      "Subscription notification deliveries by plugin and outcome",
			},
			[]string{"plugin", "outcome"},
		),
		GraphQLQueries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "relay",
				Subsystem: "graphql",
				Name:      "queries_total",
				Help:      "GraphQL query executions by outcome",
			},
			[]string{"outcome"},
		),
	}

	reg.MustRegister(
		m.EntityWrites,
		m.SchemaUpdates,
		m.CacheApplies,
		m.CacheEntries,
		m.FanoutDeliveries,
		m.GraphQLQueries,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Registry{prometheusRegistry: reg, Metrics: m}
}

// PrometheusRegistry returns the underlying prometheus registry.
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// Handler returns the HTTP handler serving the registry in the prometheus
// exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prometheusRegistry, promhttp.HandlerOpts{})
}
