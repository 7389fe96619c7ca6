// Package tenant holds the tenant model, the tenant store adapter, the
// access control guard, and the operations that append grants and
// subscriptions. Grants and subscriptions are append-only; revocation is
// deliberately out of scope.
package tenant

import "context"

// Access is a cross-tenant read grant: the tenant holding it may read
// EntityName owned by Owner. Granting is always initiated by the owner.
type Access struct {
	Owner      string `json:"owner"`
	EntityName string `json:"entityName"`
}

// TransportType selects the delivery mechanism of a subscription.
type TransportType string

const (
	// TransportWebhook delivers notifications as HTTP POSTs.
	TransportWebhook TransportType = "webhook"
	// TransportQueue delivers notifications to a broker queue.
	TransportQueue TransportType = "queue"
	// TransportWebsocket pushes notifications to a connected session.
	TransportWebsocket TransportType = "websocket"
)

// Subscription is a stored request to be notified of entity mutations in
// (Owner, EntityName). Key is generated at creation and echoed in every
// delivered notification.
type Subscription struct {
	Key        string        `json:"key"`
	Owner      string        `json:"owner"`
	EntityName string        `json:"entityName"`
	Type       TransportType `json:"type"`
	WebhookURL string        `json:"webhookUrl,omitempty"`
	QueueName  string        `json:"queueName,omitempty"`
}

// Tenant is the unit of isolation. Name is the stable external identifier
// used in cache and grant lookups; ID is the persistence-layer identity.
type Tenant struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	LastSecret     string         `json:"lastSecret"`
	LastSecretHash string         `json:"lastSecretHash"`
	AccessGrants   []Access       `json:"accessGrants"`
	Subscriptions  []Subscription `json:"subscriptions"`
}

// HasGrant reports whether the tenant holds the exact (owner, entityName)
// grant. Grants never wildcard across entity names or tenants.
func (t *Tenant) HasGrant(owner, entityName string) bool {
	for _, grant := range t.AccessGrants {
		if grant.Owner == owner && grant.EntityName == entityName {
			return true
		}
	}
	return false
}

// HasGrantForOwner reports whether the tenant holds any grant from owner.
func (t *Tenant) HasGrantForOwner(owner string) bool {
	for _, grant := range t.AccessGrants {
		if grant.Owner == owner {
			return true
		}
	}
	return false
}

// Store is the tenant store adapter. Concurrent grant/subscription appends
// from different processes must be serialized by the implementation.
type Store interface {
	GetTenantByID(ctx context.Context, id string) (*Tenant, error)
	GetTenantByName(ctx context.Context, name string) (*Tenant, error)
	CreateTenant(ctx context.Context, t *Tenant) error
	GetAllTenants(ctx context.Context) ([]*Tenant, error)
	AddAllowedAccess(ctx context.Context, tenantName string, access Access) error
	AddSubscription(ctx context.Context, tenantID string, sub Subscription) error
}
