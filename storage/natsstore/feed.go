package natsstore

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Sangrene/flexible-data-relay/errors"
	"github.com/Sangrene/flexible-data-relay/jsonschema"
	"github.com/Sangrene/flexible-data-relay/natsclient"
	"github.com/Sangrene/flexible-data-relay/schemacache"
	"github.com/Sangrene/flexible-data-relay/tenant"
)

// Feed exposes the schema and tenant buckets' watchers as the change feed
// consumed by the cache's feed strategy. Multiple processes can watch the
// same buckets; the cache applies records idempotently.
type Feed struct {
	schemas *natsclient.KVStore
	tenants *natsclient.KVStore
	logger  *slog.Logger
}

// NewFeed binds the buckets watched by the feed.
func NewFeed(ctx context.Context, client *natsclient.Client, logger *slog.Logger) (*Feed, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sb, err := client.KeyValue(ctx, schemaBucket)
	if err != nil {
		return nil, errors.Wrap(err, "natsstore", "NewFeed", "bind schema bucket")
	}
	tb, err := client.KeyValue(ctx, tenantBucket)
	if err != nil {
		return nil, errors.Wrap(err, "natsstore", "NewFeed", "bind tenant bucket")
	}

	return &Feed{
		schemas: client.NewKVStore(sb),
		tenants: client.NewKVStore(tb),
		logger:  logger.With("component", "natsstore-feed"),
	}, nil
}

// WatchSchemas streams schema writes for one tenant until the context is
// cancelled.
func (f *Feed) WatchSchemas(ctx context.Context, tenantName string) (<-chan schemacache.SchemaRecord, error) {
	entries, err := f.schemas.Watch(ctx, keyPart(tenantName)+".>")
	if err != nil {
		return nil, errors.Wrap(err, "natsstore", "WatchSchemas", "open schema watcher")
	}

	out := make(chan schemacache.SchemaRecord)
	go func() {
		defer close(out)
		for entry := range entries {
			var schema jsonschema.Schema
			if err := json.Unmarshal(entry.Value(), &schema); err != nil {
				f.logger.Warn("skipping undecodable schema record",
					"key", entry.Key(), "error", err)
				continue
			}
			select {
			case out <- schemacache.SchemaRecord{Tenant: tenantName, Schema: &schema}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// WatchTenants streams the names of tenants as they are created.
func (f *Feed) WatchTenants(ctx context.Context) (<-chan string, error) {
	entries, err := f.tenants.Watch(ctx, ">")
	if err != nil {
		return nil, errors.Wrap(err, "natsstore", "WatchTenants", "open tenant watcher")
	}

	out := make(chan string)
	go func() {
		defer close(out)
		for entry := range entries {
			var t tenant.Tenant
			if err := json.Unmarshal(entry.Value(), &t); err != nil {
				f.logger.Warn("skipping undecodable tenant record",
					"key", entry.Key(), "error", err)
				continue
			}
			select {
			case out <- t.Name:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
