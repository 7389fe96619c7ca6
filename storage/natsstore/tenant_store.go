package natsstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"

	"github.com/Sangrene/flexible-data-relay/errors"
	"github.com/Sangrene/flexible-data-relay/natsclient"
	"github.com/Sangrene/flexible-data-relay/tenant"
)

// TenantStore implements tenant.Store over the tenant bucket, keyed by
// tenant id. Name lookups scan the bucket; tenant counts are small.
type TenantStore struct {
	kv     *natsclient.KVStore
	logger *slog.Logger
}

// NewTenantStore binds the tenant bucket, creating it if absent.
func NewTenantStore(ctx context.Context, client *natsclient.Client, logger *slog.Logger) (*TenantStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	bucket, err := client.KeyValue(ctx, tenantBucket)
	if err != nil {
		return nil, errors.Wrap(err, "natsstore", "NewTenantStore", "bind tenant bucket")
	}
	return &TenantStore{
		kv:     client.NewKVStore(bucket),
		logger: logger.With("component", "natsstore"),
	}, nil
}

// GetTenantByID returns the tenant or ErrTenantNotFound.
func (s *TenantStore) GetTenantByID(ctx context.Context, id string) (*tenant.Tenant, error) {
	raw, err := s.kv.Get(ctx, keyPart(id))
	if err != nil {
		if errors.Is(err, errors.ErrKeyNotFound) {
			return nil, errors.ErrTenantNotFound
		}
		return nil, errors.Wrap(err, "natsstore", "GetTenantByID", "read tenant")
	}
	return decodeTenant(raw)
}

// GetTenantByName returns the tenant or ErrTenantNotFound.
func (s *TenantStore) GetTenantByName(ctx context.Context, name string) (*tenant.Tenant, error) {
	tenants, err := s.GetAllTenants(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range tenants {
		if t.Name == name {
			return t, nil
		}
	}
	return nil, errors.ErrTenantNotFound
}

// CreateTenant persists a new tenant.
func (s *TenantStore) CreateTenant(ctx context.Context, t *tenant.Tenant) error {
	return s.put(ctx, t)
}

// GetAllTenants returns every tenant, ordered by name.
func (s *TenantStore) GetAllTenants(ctx context.Context) ([]*tenant.Tenant, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "natsstore", "GetAllTenants", "list tenant keys")
	}

	out := make([]*tenant.Tenant, 0, len(keys))
	for _, key := range keys {
		raw, err := s.kv.Get(ctx, key)
		if err != nil {
			continue
		}
		t, err := decodeTenant(raw)
		if err != nil {
			s.logger.Warn("skipping undecodable tenant", "key", key, "error", err)
			continue
		}
		out = append(out, t)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// AddAllowedAccess appends a grant to the named tenant.
func (s *TenantStore) AddAllowedAccess(ctx context.Context, tenantName string, access tenant.Access) error {
	t, err := s.GetTenantByName(ctx, tenantName)
	if err != nil {
		return err
	}
	t.AccessGrants = append(t.AccessGrants, access)
	return s.put(ctx, t)
}

// AddSubscription appends a subscription to the tenant.
func (s *TenantStore) AddSubscription(ctx context.Context, tenantID string, sub tenant.Subscription) error {
	t, err := s.GetTenantByID(ctx, tenantID)
	if err != nil {
		return err
	}
	t.Subscriptions = append(t.Subscriptions, sub)
	return s.put(ctx, t)
}

func (s *TenantStore) put(ctx context.Context, t *tenant.Tenant) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return errors.WrapInvalid(err, "natsstore", "put", "encode tenant")
	}
	if err := s.kv.Put(ctx, keyPart(t.ID), raw); err != nil {
		return errors.Wrap(err, "natsstore", "put", "write tenant")
	}
	return nil
}

func decodeTenant(raw []byte) (*tenant.Tenant, error) {
	var t tenant.Tenant
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, errors.WrapInvalid(err, "natsstore", "decodeTenant", "decode tenant")
	}
	return &t, nil
}
