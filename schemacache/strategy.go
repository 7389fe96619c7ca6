package schemacache

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Sangrene/flexible-data-relay/errors"
	"github.com/Sangrene/flexible-data-relay/event"
	"github.com/Sangrene/flexible-data-relay/jsonschema"
)

// Strategy keeps the cache current. Exactly one strategy runs per cache;
// it is chosen at composition time.
type Strategy interface {
	// Start begins applying change records to the cache. It returns
	// once the strategy is active; delivery happens on background
	// goroutines until the context is cancelled.
	Start(ctx context.Context) error
}

// LocalStrategy applies schema-updated events from the in-process bus.
// Suitable for single-process deployments.
type LocalStrategy struct {
	bus   *event.Bus
	cache *Cache
}

// NewLocalStrategy creates the local-bus strategy.
func NewLocalStrategy(bus *event.Bus, cache *Cache) *LocalStrategy {
	return &LocalStrategy{bus: bus, cache: cache}
}

// Start subscribes to the schema-updated topic.
func (s *LocalStrategy) Start(_ context.Context) error {
	if s.bus == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "schemacache", "Start", "event bus is required")
	}
	s.bus.SchemaUpdated.Subscribe("schema-cache", func(ev event.SchemaUpdated) {
		s.cache.Apply(ev.Tenant, ev.Schema)
	})
	return nil
}

// SchemaRecord is one change-feed record: an inserted or updated schema.
type SchemaRecord struct {
	Tenant string
	Schema *jsonschema.Schema
}

// ChangeFeed is the abstract durable change source backing FeedStrategy.
// storage/natsstore implements it over JetStream KV watchers.
type ChangeFeed interface {
	// WatchSchemas streams schema inserts/updates for one tenant. The
	// channel closes when the context is cancelled.
	WatchSchemas(ctx context.Context, tenant string) (<-chan SchemaRecord, error)
	// WatchTenants streams the names of newly created tenants.
	WatchTenants(ctx context.Context) (<-chan string, error)
}

// FeedStrategy applies change-feed records from the persistence layer. It
// tolerates multiple cooperating processes sharing one logical cache:
// records may arrive more than once and are applied idempotently.
type FeedStrategy struct {
	feed   ChangeFeed
	cache  *Cache
	logger *slog.Logger

	mu      sync.Mutex
	watched map[string]bool
}

// NewFeedStrategy creates the change-feed strategy.
func NewFeedStrategy(feed ChangeFeed, cache *Cache, logger *slog.Logger) *FeedStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedStrategy{
		feed:    feed,
		cache:   cache,
		logger:  logger.With("component", "schema-cache-feed"),
		watched: make(map[string]bool),
	}
}

// Start opens one schema feed per tenant known to the cache, plus the
// top-level tenant feed that opens schema feeds for new tenants.
func (s *FeedStrategy) Start(ctx context.Context) error {
	if s.feed == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "schemacache", "Start", "change feed is required")
	}

	for _, tenant := range s.cache.Tenants() {
		if err := s.watchTenant(ctx, tenant); err != nil {
			return err
		}
	}

	tenants, err := s.feed.WatchTenants(ctx)
	if err != nil {
		return errors.Wrap(err, "schemacache", "Start", "open tenant feed")
	}
	go func() {
		for tenant := range tenants {
			s.cache.EnsureTenant(tenant)
			if err := s.watchTenant(ctx, tenant); err != nil {
				s.logger.Error("failed to watch new tenant schemas", "tenant", tenant, "error", err)
			}
		}
	}()

	s.logger.Info("feed strategy started", "tenants", len(s.cache.Tenants()))
	return nil
}

func (s *FeedStrategy) watchTenant(ctx context.Context, tenant string) error {
	s.mu.Lock()
	if s.watched[tenant] {
		s.mu.Unlock()
		return nil
	}
	s.watched[tenant] = true
	s.mu.Unlock()

	records, err := s.feed.WatchSchemas(ctx, tenant)
	if err != nil {
		return errors.Wrap(err, "schemacache", "watchTenant", "open schema feed")
	}

	s.logger.Info("cache listening for schema changes", "tenant", tenant)
	go func() {
		for rec := range records {
			s.cache.Apply(rec.Tenant, rec.Schema)
		}
	}()
	return nil
}
