// Package memstore provides in-memory entity and tenant stores. They back
// unit tests and the dev storage mode; production deployments use
// storage/natsstore.
package memstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/Sangrene/flexible-data-relay/entity"
	"github.com/Sangrene/flexible-data-relay/errors"
	"github.com/Sangrene/flexible-data-relay/event"
	"github.com/Sangrene/flexible-data-relay/jsonschema"
	"github.com/Sangrene/flexible-data-relay/storage"
)

type collectionKey struct {
	tenant     string
	entityName string
}

// EntityStore is an in-memory implementation of entity.Store.
type EntityStore struct {
	mu           sync.RWMutex
	entities     map[collectionKey]map[string]*entity.Entity
	schemas      map[collectionKey]*jsonschema.Schema
	schemaWrites int
}

// NewEntityStore creates an empty store.
func NewEntityStore() *EntityStore {
	return &EntityStore{
		entities: make(map[collectionKey]map[string]*entity.Entity),
		schemas:  make(map[collectionKey]*jsonschema.Schema),
	}
}

// GetEntity returns the entity or ErrEntityNotFound.
func (s *EntityStore) GetEntity(_ context.Context, tenant, entityName, id string) (*entity.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entities[collectionKey{tenant, entityName}][id]
	if !ok {
		return nil, errors.ErrEntityNotFound
	}
	return cloneEntity(e), nil
}

// GetEntityList returns entities matching the query, a JSON object of
// field equality filters applied to the entity data ({} or "" matches
// all). Results are ordered by id for determinism.
func (s *EntityStore) GetEntityList(_ context.Context, tenant, entityName, query string) ([]*entity.Entity, error) {
	filter, err := storage.ParseQuery(query)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*entity.Entity
	for _, e := range s.entities[collectionKey{tenant, entityName}] {
		if filter.Matches(e.Data) {
			out = append(out, cloneEntity(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateOrUpdateEntity stores the entity, preserving CreatedAt on update.
func (s *EntityStore) CreateOrUpdateEntity(_ context.Context, tenant, entityName string, e *entity.Entity) (event.EntityAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := collectionKey{tenant, entityName}
	if s.entities[key] == nil {
		s.entities[key] = make(map[string]*entity.Entity)
	}

	action := event.ActionCreated
	if existing, ok := s.entities[key][e.ID]; ok {
		action = event.ActionUpdated
		e.CreatedAt = existing.CreatedAt
	}
	s.entities[key][e.ID] = cloneEntity(e)
	return action, nil
}

// SaveEntityList stores the batch in one operation.
func (s *EntityStore) SaveEntityList(_ context.Context, tenant, entityName string, entities []*entity.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := collectionKey{tenant, entityName}
	if s.entities[key] == nil {
		s.entities[key] = make(map[string]*entity.Entity)
	}
	for _, e := range entities {
		if existing, ok := s.entities[key][e.ID]; ok {
			e.CreatedAt = existing.CreatedAt
		}
		s.entities[key][e.ID] = cloneEntity(e)
	}
	return nil
}

// GetEntitySchema returns the stored schema or nil when none exists.
func (s *EntityStore) GetEntitySchema(_ context.Context, tenant, entityName string) (*jsonschema.Schema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schemas[collectionKey{tenant, entityName}].Clone(), nil
}

// SetEntitySchema replaces the stored schema.
func (s *EntityStore) SetEntitySchema(_ context.Context, tenant, entityName string, schema *jsonschema.Schema) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schemas[collectionKey{tenant, entityName}] = schema.Clone()
	s.schemaWrites++
	return nil
}

// GetAllSchemas returns every schema stored for the tenant.
func (s *EntityStore) GetAllSchemas(_ context.Context, tenant string) ([]*jsonschema.Schema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*jsonschema.Schema
	for key, schema := range s.schemas {
		if key.tenant == tenant {
			out = append(out, schema.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

// SchemaWriteCount reports how many schema writes happened for the
// collection, used by tests asserting reconciliation idempotence.
func (s *EntityStore) SchemaWriteCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schemaWrites
}

func cloneEntity(e *entity.Entity) *entity.Entity {
	out := &entity.Entity{
		ID:        e.ID,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
	if e.Data != nil {
		raw, err := json.Marshal(e.Data)
		if err == nil {
			_ = json.Unmarshal(raw, &out.Data)
		}
	}
	return out
}
