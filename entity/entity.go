// Package entity implements the entity schema engine: the single write
// path through which tenant documents are validated, persisted, and have
// their collection schema inferred and reconciled.
package entity

import (
	"context"
	"time"

	"github.com/Sangrene/flexible-data-relay/event"
	"github.com/Sangrene/flexible-data-relay/jsonschema"
)

// Entity is the tagged envelope for a tenant document. Schema inference
// applies to Data only, never to the envelope.
type Entity struct {
	ID        string         `json:"id"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Document returns the entity in its resolver-facing map form. GraphQL
// field resolution reads map keys, so the envelope is flattened here.
func (e *Entity) Document() map[string]any {
	return map[string]any{
		"id":        e.ID,
		"data":      e.Data,
		"createdAt": e.CreatedAt.UTC().Format(time.RFC3339),
		"updatedAt": e.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// Store is the entity store adapter. Implementations persist entities and
// schema documents per (tenant, collection); see storage/memstore and
// storage/natsstore.
type Store interface {
	GetEntity(ctx context.Context, tenant, entityName, id string) (*Entity, error)
	GetEntityList(ctx context.Context, tenant, entityName, query string) ([]*Entity, error)
	// CreateOrUpdateEntity persists the entity and reports whether the
	// operation created it or updated an existing one. On update the
	// stored CreatedAt is preserved.
	CreateOrUpdateEntity(ctx context.Context, tenant, entityName string, e *Entity) (event.EntityAction, error)
	SaveEntityList(ctx context.Context, tenant, entityName string, entities []*Entity) error
	// GetEntitySchema returns (nil, nil) when the collection has no
	// schema yet.
	GetEntitySchema(ctx context.Context, tenant, entityName string) (*jsonschema.Schema, error)
	SetEntitySchema(ctx context.Context, tenant, entityName string, schema *jsonschema.Schema) error
	GetAllSchemas(ctx context.Context, tenant string) ([]*jsonschema.Schema, error)
}

// SchemaLookup is a point read into the tenant schema cache. The engine
// reconciles against the cached schema, not the stored one; divergence is
// bounded by event delivery latency.
type SchemaLookup interface {
	Get(tenant, entityName string) (*jsonschema.Schema, bool)
}

// WriteOptions carries the per-request reconciliation options.
type WriteOptions struct {
	// Mode selects override (default) or merge reconciliation.
	Mode jsonschema.Mode
	// Transient skips entity persistence; schema reconciliation and
	// mutation events still happen so subscribers see ephemeral events.
	Transient bool
}
