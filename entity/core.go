package entity

import (
	"context"
	"log/slog"
	"time"

	"github.com/Sangrene/flexible-data-relay/errors"
	"github.com/Sangrene/flexible-data-relay/event"
	"github.com/Sangrene/flexible-data-relay/jsonschema"
	"github.com/Sangrene/flexible-data-relay/metric"
)

// Core is the entity schema engine. All entity mutations go through it;
// the cache and the query compiler never write entities.
type Core struct {
	store   Store
	bus     *event.Bus
	schemas SchemaLookup
	logger  *slog.Logger
	metrics *metric.Metrics
	now     func() time.Time
}

// CoreOption customizes Core construction.
type CoreOption func(*Core)

// WithMetrics wires prometheus counters into the engine.
func WithMetrics(m *metric.Metrics) CoreOption {
	return func(c *Core) { c.metrics = m }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) CoreOption {
	return func(c *Core) { c.now = now }
}

// NewCore creates the engine. schemas may be nil, in which case the
// engine reconciles against the store directly instead of a cache.
func NewCore(store Store, bus *event.Bus, schemas SchemaLookup, logger *slog.Logger, opts ...CoreOption) *Core {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Core{
		store:   store,
		bus:     bus,
		schemas: schemas,
		logger:  logger.With("component", "entity-core"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateOrUpdate validates, persists, and reconciles the schema for a
// single entity write. A payload without an id fails with
// ErrMissingIDOnEntity before any side effect.
func (c *Core) CreateOrUpdate(ctx context.Context, tenant, entityName string, e *Entity, opts WriteOptions) (*Entity, error) {
	if e == nil || e.ID == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingIDOnEntity, "entity", "CreateOrUpdate", "payload validation")
	}
	if e.Data == nil {
		e.Data = map[string]any{}
	}

	now := c.now()
	e.CreatedAt = now
	e.UpdatedAt = now

	action := event.ActionCreated
	if !opts.Transient {
		var err error
		action, err = c.store.CreateOrUpdateEntity(ctx, tenant, entityName, e)
		if err != nil {
			c.countWrite(string(action), "error")
			return nil, errors.Wrap(err, "entity", "CreateOrUpdate", "persist entity")
		}
	}

	inferred := jsonschema.InferTitled(entityName, e.Data)
	if err := c.reconcileSchema(ctx, tenant, entityName, inferred, opts.Mode); err != nil {
		c.countWrite(string(action), "error")
		return nil, err
	}

	c.publishMutation(action, tenant, entityName, e)
	c.countWrite(string(action), "ok")
	return e, nil
}

// CreateOrUpdateList persists a batch in one store call and reconciles one
// schema for the whole batch: the fold of every per-entity inferred schema
// merged together. One created event is emitted per item.
func (c *Core) CreateOrUpdateList(ctx context.Context, tenant, entityName string, entities []*Entity, opts WriteOptions) ([]*Entity, error) {
	for _, e := range entities {
		if e == nil || e.ID == "" {
			return nil, errors.WrapInvalid(errors.ErrMissingIDOnEntity, "entity", "CreateOrUpdateList", "payload validation")
		}
		if e.Data == nil {
			e.Data = map[string]any{}
		}
	}

	now := c.now()
	for _, e := range entities {
		e.CreatedAt = now
		e.UpdatedAt = now
	}

	if !opts.Transient && len(entities) > 0 {
		if err := c.store.SaveEntityList(ctx, tenant, entityName, entities); err != nil {
			return nil, errors.Wrap(err, "entity", "CreateOrUpdateList", "persist batch")
		}
	}

	var batch *jsonschema.Schema
	for _, e := range entities {
		batch = jsonschema.Merge(batch, jsonschema.Infer(e.Data))
	}
	if batch != nil {
		batch.Title = entityName
		if err := c.reconcileSchema(ctx, tenant, entityName, batch, opts.Mode); err != nil {
			return nil, err
		}
	}

	for _, e := range entities {
		c.publishMutation(event.ActionCreated, tenant, entityName, e)
		c.countWrite(string(event.ActionCreated), "ok")
	}
	return entities, nil
}

// reconcileSchema compares the inferred schema with the currently cached
// one and persists + publishes only when the reconciled value differs.
// Writing the same shape twice is a no-op.
func (c *Core) reconcileSchema(ctx context.Context, tenant, entityName string, inferred *jsonschema.Schema, mode jsonschema.Mode) error {
	current := c.currentSchema(ctx, tenant, entityName)
	if jsonschema.Equal(inferred, current) {
		return nil
	}

	reconciled := jsonschema.Reconcile(mode, current, inferred)
	if jsonschema.Equal(reconciled, current) {
		return nil
	}

	if err := c.store.SetEntitySchema(ctx, tenant, entityName, reconciled); err != nil {
		return errors.Wrap(err, "entity", "reconcileSchema", "persist schema")
	}

	if c.metrics != nil {
		c.metrics.SchemaUpdates.Inc()
	}
	c.logger.Info("entity schema updated", "tenant", tenant, "entity", entityName, "mode", string(mode))
	if c.bus != nil {
		c.bus.SchemaUpdated.Publish(event.SchemaUpdated{Tenant: tenant, Schema: reconciled})
	}
	return nil
}

func (c *Core) currentSchema(ctx context.Context, tenant, entityName string) *jsonschema.Schema {
	if c.schemas != nil {
		if s, ok := c.schemas.Get(tenant, entityName); ok {
			return s
		}
		return nil
	}
	s, err := c.store.GetEntitySchema(ctx, tenant, entityName)
	if err != nil {
		return nil
	}
	return s
}

func (c *Core) publishMutation(action event.EntityAction, tenant, entityName string, e *Entity) {
	if c.bus == nil {
		return
	}
	c.bus.EntityMutated.Publish(event.EntityMutated{
		Action:     action,
		Tenant:     tenant,
		EntityName: entityName,
		Entity:     e.Document(),
	})
}

func (c *Core) countWrite(action, outcome string) {
	if c.metrics != nil {
		c.metrics.EntityWrites.WithLabelValues(action, outcome).Inc()
	}
}

// GetEntity resolves a single entity by id.
func (c *Core) GetEntity(ctx context.Context, tenant, entityName, id string) (*Entity, error) {
	return c.store.GetEntity(ctx, tenant, entityName, id)
}

// GetEntityList resolves entities matching the store-native query.
func (c *Core) GetEntityList(ctx context.Context, tenant, entityName, query string) ([]*Entity, error) {
	return c.store.GetEntityList(ctx, tenant, entityName, query)
}

// GetEntitySchema returns the stored schema for a collection.
func (c *Core) GetEntitySchema(ctx context.Context, tenant, entityName string) (*jsonschema.Schema, error) {
	return c.store.GetEntitySchema(ctx, tenant, entityName)
}

// GetAllSchemas returns every stored schema for a tenant, used to load the
// cache snapshot at startup.
func (c *Core) GetAllSchemas(ctx context.Context, tenant string) ([]*jsonschema.Schema, error) {
	return c.store.GetAllSchemas(ctx, tenant)
}
