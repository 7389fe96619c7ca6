package tenant

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Sangrene/flexible-data-relay/errors"
	"github.com/Sangrene/flexible-data-relay/event"
)

// SubscriptionProvisioner is the provisioning face of a transport plugin:
// broker resources on tenant creation, queue declaration on subscription
// creation. The delivery face lives in the subscription package.
type SubscriptionProvisioner interface {
	Name() string
	OnTenantCreated(ctx context.Context, t *Tenant) error
	OnSubscriptionCreated(ctx context.Context, tenantName string, sub Subscription) error
}

// SubscriptionCommand is the request to create a subscription.
type SubscriptionCommand struct {
	Owner      string        `json:"owner"`
	EntityName string        `json:"entityName"`
	Type       TransportType `json:"type"`
	WebhookURL string        `json:"webhookUrl,omitempty"`
}

// Core implements tenant administration, access control, and subscription
// creation on top of the tenant store adapter.
type Core struct {
	store           Store
	bus             *event.Bus
	logger          *slog.Logger
	provisioners    []SubscriptionProvisioner
	queueConfigured bool
}

// CoreOption customizes Core construction.
type CoreOption func(*Core)

// WithProvisioner registers a transport plugin's provisioning hooks.
func WithProvisioner(p SubscriptionProvisioner) CoreOption {
	return func(c *Core) { c.provisioners = append(c.provisioners, p) }
}

// WithQueueTransport marks the queue transport as available in this
// deployment. Without it, queue subscriptions fail with
// ErrQueueTransportNotConfigured.
func WithQueueTransport() CoreOption {
	return func(c *Core) { c.queueConfigured = true }
}

// NewCore creates the tenant core.
func NewCore(store Store, bus *event.Bus, logger *slog.Logger, opts ...CoreOption) *Core {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Core{
		store:  store,
		bus:    bus,
		logger: logger.With("component", "tenant-core"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// randomSecret returns 64 random bytes hex-encoded, the tenant's
// long-lived credential. Only its sha256 hash is ever compared.
func randomSecret() (string, error) {
	buf := make([]byte, 64)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// CreateTenant provisions a new tenant: generates its secret, persists it,
// publishes tenant.created, and runs every plugin's provisioning hook.
// A provisioning failure is logged but does not undo the tenant.
func (c *Core) CreateTenant(ctx context.Context, name string) (*Tenant, error) {
	secret, err := randomSecret()
	if err != nil {
		return nil, errors.Wrap(err, "tenant", "CreateTenant", "generate secret")
	}
	hash := sha256.Sum256([]byte(secret))

	t := &Tenant{
		ID:             uuid.NewString(),
		Name:           name,
		LastSecret:     secret,
		LastSecretHash: hex.EncodeToString(hash[:]),
		AccessGrants:   []Access{},
		Subscriptions:  []Subscription{},
	}
	if err := c.store.CreateTenant(ctx, t); err != nil {
		return nil, errors.Wrap(err, "tenant", "CreateTenant", "persist tenant")
	}

	if c.bus != nil {
		c.bus.TenantCreated.Publish(event.TenantCreated{TenantID: t.ID, TenantName: t.Name})
	}
	for _, p := range c.provisioners {
		if err := p.OnTenantCreated(ctx, t); err != nil {
			c.logger.Error("tenant provisioning failed",
				"plugin", p.Name(), "tenant", t.Name, "error", err)
		}
	}

	c.logger.Info("tenant created", "tenant", t.Name)
	return t, nil
}

// GetTenantByID returns the tenant or ErrTenantNotFound.
func (c *Core) GetTenantByID(ctx context.Context, id string) (*Tenant, error) {
	return c.store.GetTenantByID(ctx, id)
}

// GetTenantByName returns the tenant or ErrTenantNotFound.
func (c *Core) GetTenantByName(ctx context.Context, name string) (*Tenant, error) {
	return c.store.GetTenantByName(ctx, name)
}

// GetAllTenants lists every tenant.
func (c *Core) GetAllTenants(ctx context.Context) ([]*Tenant, error) {
	return c.store.GetAllTenants(ctx)
}

// AllowAccess appends the grant (ownerTenant, entityName) to the allowed
// tenant. Granting is always initiated by the owner.
func (c *Core) AllowAccess(ctx context.Context, ownerTenantName, allowedTenantName, entityName string) error {
	err := c.store.AddAllowedAccess(ctx, allowedTenantName, Access{
		Owner:      ownerTenantName,
		EntityName: entityName,
	})
	if err != nil {
		return errors.Wrap(err, "tenant", "AllowAccess", "append grant")
	}
	c.logger.Info("access granted",
		"owner", ownerTenantName, "allowed", allowedTenantName, "entity", entityName)
	return nil
}

// Authorize evaluates (requesting tenant, owner, entityName) against the
// tenant's grants. Self-access always succeeds; otherwise the exact grant
// must be held.
func (c *Core) Authorize(t *Tenant, owner, entityName string) error {
	if t == nil {
		return errors.ErrNoAccess
	}
	if t.Name == owner {
		return nil
	}
	if t.HasGrant(owner, entityName) {
		return nil
	}
	return errors.ErrNoAccess
}

// ComputeQueueName derives the transport address of a queue subscription
// deterministically from its coordinates.
func ComputeQueueName(subscriberTenant string, cmd SubscriptionCommand) string {
	return fmt.Sprintf("%s.%s.%s", subscriberTenant, cmd.Owner, cmd.EntityName)
}

// CreateSubscription validates permission, persists the subscription under
// the creating tenant, and asks transport plugins to declare underlying
// resources.
func (c *Core) CreateSubscription(ctx context.Context, creating *Tenant, cmd SubscriptionCommand) (*Subscription, error) {
	if creating.Name != cmd.Owner && !creating.HasGrant(cmd.Owner, cmd.EntityName) {
		return nil, errors.ErrNoPermissionToSubscribe
	}
	if cmd.Type == TransportQueue && !c.queueConfigured {
		return nil, errors.ErrQueueTransportNotConfigured
	}

	sub := Subscription{
		Key:        uuid.NewString(),
		Owner:      cmd.Owner,
		EntityName: cmd.EntityName,
		Type:       cmd.Type,
		WebhookURL: cmd.WebhookURL,
	}
	if cmd.Type == TransportQueue {
		sub.QueueName = ComputeQueueName(creating.Name, cmd)
	}

	if err := c.store.AddSubscription(ctx, creating.ID, sub); err != nil {
		return nil, errors.Wrap(err, "tenant", "CreateSubscription", "persist subscription")
	}

	for _, p := range c.provisioners {
		if err := p.OnSubscriptionCreated(ctx, creating.Name, sub); err != nil {
			return nil, errors.Wrap(err, "tenant", "CreateSubscription", "declare transport resources")
		}
	}

	c.logger.Info("subscription created",
		"tenant", creating.Name, "owner", cmd.Owner, "entity", cmd.EntityName,
		"transport", string(cmd.Type), "key", sub.Key)
	return &sub, nil
}
