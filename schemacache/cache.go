// Package schemacache holds the in-memory, eventually-consistent mirror of
// every tenant's collection schemas. It is the only mutable structure
// shared between the write path and the query compiler; only its own
// change-handler strategy mutates it, and only by replacing whole
// per-collection entries.
//
// The cache never writes back to storage. Divergence between cache and
// store is expected and bounded by event-delivery latency.
package schemacache

import (
	"log/slog"
	"sync"

	"github.com/Sangrene/flexible-data-relay/jsonschema"
	"github.com/Sangrene/flexible-data-relay/metric"
)

// Cache maps tenant -> collection title -> schema.
type Cache struct {
	mu      sync.RWMutex
	schemas map[string]map[string]*jsonschema.Schema
	logger  *slog.Logger
	metrics *metric.Metrics
}

// Option customizes cache construction.
type Option func(*Cache)

// WithMetrics wires prometheus counters into the cache.
func WithMetrics(m *metric.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// NewCache creates an empty cache.
func NewCache(logger *slog.Logger, opts ...Option) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{
		schemas: make(map[string]map[string]*jsonschema.Schema),
		logger:  logger.With("component", "schema-cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached schema for (tenant, collection). The returned
// schema is shared and must be treated as immutable.
func (c *Cache) Get(tenant, entityName string) (*jsonschema.Schema, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.schemas[tenant][entityName]
	return s, ok
}

// GetAll returns a snapshot of every cached schema for the tenant.
func (c *Cache) GetAll(tenant string) map[string]*jsonschema.Schema {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry := c.schemas[tenant]
	out := make(map[string]*jsonschema.Schema, len(entry))
	for title, s := range entry {
		out[title] = s
	}
	return out
}

// Tenants returns the names of every tenant known to the cache.
func (c *Cache) Tenants() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.schemas))
	for tenant := range c.schemas {
		out = append(out, tenant)
	}
	return out
}

// EnsureTenant creates an empty entry for the tenant if absent, so the
// feed strategy can start watching it before its first schema exists.
func (c *Cache) EnsureTenant(tenant string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.schemas[tenant] == nil {
		c.schemas[tenant] = make(map[string]*jsonschema.Schema)
	}
}

// Apply inserts or replaces the entry for (tenant, schema.Title). It is
// idempotent under at-least-once delivery: applying a value-equal schema
// twice is a no-op. Returns whether the entry changed.
func (c *Cache) Apply(tenant string, schema *jsonschema.Schema) bool {
	if schema == nil || schema.Title == "" {
		c.logger.Warn("ignoring schema update without title", "tenant", tenant)
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.schemas[tenant] == nil {
		c.schemas[tenant] = make(map[string]*jsonschema.Schema)
	}
	if existing, ok := c.schemas[tenant][schema.Title]; ok && jsonschema.Equal(existing, schema) {
		c.countApply("noop")
		return false
	}

	c.schemas[tenant][schema.Title] = schema.Clone()
	c.countApply("applied")
	if c.metrics != nil {
		c.metrics.CacheEntries.Set(float64(c.size()))
	}
	return true
}

// Seed loads a startup snapshot for one tenant. Performed by the
// composition root before any strategy starts.
func (c *Cache) Seed(tenant string, schemas []*jsonschema.Schema) {
	c.EnsureTenant(tenant)
	for _, s := range schemas {
		c.Apply(tenant, s)
	}
}

func (c *Cache) size() int {
	n := 0
	for _, entry := range c.schemas {
		n += len(entry)
	}
	return n
}

func (c *Cache) countApply(result string) {
	if c.metrics != nil {
		c.metrics.CacheApplies.WithLabelValues(result).Inc()
	}
}
