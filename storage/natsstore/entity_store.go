// Package natsstore persists entities, schemas, and tenants in NATS
// JetStream key-value buckets, and exposes the buckets' watchers as the
// change feed backing the schema cache's feed strategy.
//
// Key layout:
//
//	fdr_entities  <tenant>.<collection>.<id>  -> entity envelope JSON
//	fdr_schemas   <tenant>.<collection>      -> schema JSON
//	fdr_tenants   <tenant id>                -> tenant JSON
package natsstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"

	"github.com/Sangrene/flexible-data-relay/entity"
	"github.com/Sangrene/flexible-data-relay/errors"
	"github.com/Sangrene/flexible-data-relay/event"
	"github.com/Sangrene/flexible-data-relay/jsonschema"
	"github.com/Sangrene/flexible-data-relay/natsclient"
	"github.com/Sangrene/flexible-data-relay/storage"
)

const (
	entityBucket = "fdr_entities"
	schemaBucket = "fdr_schemas"
	tenantBucket = "fdr_tenants"
)

// EntityStore implements entity.Store over two KV buckets.
type EntityStore struct {
	entities *natsclient.KVStore
	schemas  *natsclient.KVStore
	logger   *slog.Logger
}

// NewEntityStore binds the entity and schema buckets, creating them if
// absent.
func NewEntityStore(ctx context.Context, client *natsclient.Client, logger *slog.Logger) (*EntityStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	eb, err := client.KeyValue(ctx, entityBucket)
	if err != nil {
		return nil, errors.Wrap(err, "natsstore", "NewEntityStore", "bind entity bucket")
	}
	sb, err := client.KeyValue(ctx, schemaBucket)
	if err != nil {
		return nil, errors.Wrap(err, "natsstore", "NewEntityStore", "bind schema bucket")
	}

	return &EntityStore{
		entities: client.NewKVStore(eb),
		schemas:  client.NewKVStore(sb),
		logger:   logger.With("component", "natsstore"),
	}, nil
}

// GetEntity returns the entity or ErrEntityNotFound.
func (s *EntityStore) GetEntity(ctx context.Context, tenant, entityName, id string) (*entity.Entity, error) {
	raw, err := s.entities.Get(ctx, entityKey(tenant, entityName, id))
	if err != nil {
		if errors.Is(err, errors.ErrKeyNotFound) {
			return nil, errors.ErrEntityNotFound
		}
		return nil, errors.Wrap(err, "natsstore", "GetEntity", "read entity")
	}

	var e entity.Entity
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, errors.WrapInvalid(err, "natsstore", "GetEntity", "decode entity")
	}
	return &e, nil
}

// GetEntityList returns entities in the collection matching the query,
// ordered by id.
func (s *EntityStore) GetEntityList(ctx context.Context, tenant, entityName, query string) ([]*entity.Entity, error) {
	filter, err := storage.ParseQuery(query)
	if err != nil {
		return nil, err
	}

	keys, err := s.entities.Keys(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "natsstore", "GetEntityList", "list entity keys")
	}

	prefix := collectionKey(tenant, entityName) + "."
	var out []*entity.Entity
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		raw, err := s.entities.Get(ctx, key)
		if err != nil {
			if errors.Is(err, errors.ErrKeyNotFound) {
				continue
			}
			return nil, errors.Wrap(err, "natsstore", "GetEntityList", "read entity")
		}
		var e entity.Entity
		if err := json.Unmarshal(raw, &e); err != nil {
			s.logger.Warn("skipping undecodable entity", "key", key, "error", err)
			continue
		}
		if filter.Matches(e.Data) {
			out = append(out, &e)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateOrUpdateEntity writes the entity, preserving CreatedAt when the
// id already exists.
func (s *EntityStore) CreateOrUpdateEntity(ctx context.Context, tenant, entityName string, e *entity.Entity) (event.EntityAction, error) {
	action := event.ActionCreated
	if existing, err := s.GetEntity(ctx, tenant, entityName, e.ID); err == nil {
		action = event.ActionUpdated
		e.CreatedAt = existing.CreatedAt
	} else if !errors.Is(err, errors.ErrEntityNotFound) {
		return action, err
	}

	raw, err := json.Marshal(e)
	if err != nil {
		return action, errors.WrapInvalid(err, "natsstore", "CreateOrUpdateEntity", "encode entity")
	}
	if err := s.entities.Put(ctx, entityKey(tenant, entityName, e.ID), raw); err != nil {
		return action, errors.Wrap(err, "natsstore", "CreateOrUpdateEntity", "write entity")
	}
	return action, nil
}

// SaveEntityList writes the batch item by item. KV offers no multi-key
// transaction; a mid-batch failure leaves earlier items written.
func (s *EntityStore) SaveEntityList(ctx context.Context, tenant, entityName string, entities []*entity.Entity) error {
	for _, e := range entities {
		if _, err := s.CreateOrUpdateEntity(ctx, tenant, entityName, e); err != nil {
			return err
		}
	}
	return nil
}

// GetEntitySchema returns the stored schema, or nil when the collection
// has none yet.
func (s *EntityStore) GetEntitySchema(ctx context.Context, tenant, entityName string) (*jsonschema.Schema, error) {
	raw, err := s.schemas.Get(ctx, collectionKey(tenant, entityName))
	if err != nil {
		if errors.Is(err, errors.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "natsstore", "GetEntitySchema", "read schema")
	}

	var schema jsonschema.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, errors.WrapInvalid(err, "natsstore", "GetEntitySchema", "decode schema")
	}
	return &schema, nil
}

// SetEntitySchema replaces the stored schema.
func (s *EntityStore) SetEntitySchema(ctx context.Context, tenant, entityName string, schema *jsonschema.Schema) error {
	raw, err := json.Marshal(schema)
	if err != nil {
		return errors.WrapInvalid(err, "natsstore", "SetEntitySchema", "encode schema")
	}
	if err := s.schemas.Put(ctx, collectionKey(tenant, entityName), raw); err != nil {
		return errors.Wrap(err, "natsstore", "SetEntitySchema", "write schema")
	}
	return nil
}

// GetAllSchemas returns every schema stored for the tenant, ordered by
// title.
func (s *EntityStore) GetAllSchemas(ctx context.Context, tenant string) ([]*jsonschema.Schema, error) {
	keys, err := s.schemas.Keys(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "natsstore", "GetAllSchemas", "list schema keys")
	}

	prefix := keyPart(tenant) + "."
	var out []*jsonschema.Schema
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		raw, err := s.schemas.Get(ctx, key)
		if err != nil {
			continue
		}
		var schema jsonschema.Schema
		if err := json.Unmarshal(raw, &schema); err != nil {
			s.logger.Warn("skipping undecodable schema", "key", key, "error", err)
			continue
		}
		out = append(out, &schema)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func entityKey(tenant, entityName, id string) string {
	return collectionKey(tenant, entityName) + "." + keyPart(id)
}

func collectionKey(tenant, entityName string) string {
	return keyPart(tenant) + "." + keyPart(entityName)
}

// keyPart maps a name segment onto the KV key character set. Dots are
// reserved as segment separators.
func keyPart(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '=':
			return r
		default:
			return '_'
		}
	}, s)
}
