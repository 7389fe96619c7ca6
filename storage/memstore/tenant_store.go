package memstore

import (
	"context"
	"sync"

	"github.com/Sangrene/flexible-data-relay/errors"
	"github.com/Sangrene/flexible-data-relay/tenant"
)

// TenantStore is an in-memory implementation of tenant.Store.
type TenantStore struct {
	mu      sync.RWMutex
	byID    map[string]*tenant.Tenant
	byName  map[string]*tenant.Tenant
	ordered []string // creation order, for deterministic GetAllTenants
}

// NewTenantStore creates an empty store.
func NewTenantStore() *TenantStore {
	return &TenantStore{
		byID:   make(map[string]*tenant.Tenant),
		byName: make(map[string]*tenant.Tenant),
	}
}

// GetTenantByID returns the tenant or ErrTenantNotFound.
func (s *TenantStore) GetTenantByID(_ context.Context, id string) (*tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.byID[id]
	if !ok {
		return nil, errors.ErrTenantNotFound
	}
	return cloneTenant(t), nil
}

// GetTenantByName returns the tenant or ErrTenantNotFound.
func (s *TenantStore) GetTenantByName(_ context.Context, name string) (*tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.byName[name]
	if !ok {
		return nil, errors.ErrTenantNotFound
	}
	return cloneTenant(t), nil
}

// CreateTenant stores a new tenant; names are unique.
func (s *TenantStore) CreateTenant(_ context.Context, t *tenant.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byName[t.Name]; exists {
		return errors.WrapInvalid(nil, "memstore", "CreateTenant", "tenant name already exists")
	}
	stored := cloneTenant(t)
	s.byID[t.ID] = stored
	s.byName[t.Name] = stored
	s.ordered = append(s.ordered, t.ID)
	return nil
}

// GetAllTenants returns every tenant in creation order.
func (s *TenantStore) GetAllTenants(_ context.Context) ([]*tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*tenant.Tenant, 0, len(s.ordered))
	for _, id := range s.ordered {
		out = append(out, cloneTenant(s.byID[id]))
	}
	return out, nil
}

// AddAllowedAccess appends a grant to the named tenant.
func (s *TenantStore) AddAllowedAccess(_ context.Context, tenantName string, access tenant.Access) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byName[tenantName]
	if !ok {
		return errors.ErrTenantNotFound
	}
	t.AccessGrants = append(t.AccessGrants, access)
	return nil
}

// AddSubscription appends a subscription to the tenant.
func (s *TenantStore) AddSubscription(_ context.Context, tenantID string, sub tenant.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[tenantID]
	if !ok {
		return errors.ErrTenantNotFound
	}
	t.Subscriptions = append(t.Subscriptions, sub)
	return nil
}

func cloneTenant(t *tenant.Tenant) *tenant.Tenant {
	out := *t
	out.AccessGrants = append([]tenant.Access(nil), t.AccessGrants...)
	out.Subscriptions = append([]tenant.Subscription(nil), t.Subscriptions...)
	return &out
}
