package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/Sangrene/flexible-data-relay/errors"
	"github.com/Sangrene/flexible-data-relay/tenant"
)

// Token lifetime for both tenant and admin tokens.
const tokenTTL = 30 * 24 * time.Hour

// TenantGetter resolves tenants by id. tenant.Core satisfies it.
type TenantGetter interface {
	GetTenantByID(ctx context.Context, id string) (*tenant.Tenant, error)
}

// Core exchanges credentials for tokens and tokens for identities.
type Core struct {
	tenants     TenantGetter
	issuer      TokenIssuer
	adminSecret []byte
	logger      *slog.Logger
}

// NewCore creates the auth core. adminSecret may be empty, in which case
// admin tokens cannot be generated.
func NewCore(tenants TenantGetter, issuer TokenIssuer, adminSecret string, logger *slog.Logger) *Core {
	if logger == nil {
		logger = slog.Default()
	}
	return &Core{
		tenants:     tenants,
		issuer:      issuer,
		adminSecret: []byte(adminSecret),
		logger:      logger.With("component", "auth-core"),
	}
}

// GenerateTokenFromCredentials validates a tenant's client id and secret
// and issues its bearer token. The stored credential is the sha256 hash of
// the secret; the secret itself is only ever held by the tenant.
func (c *Core) GenerateTokenFromCredentials(ctx context.Context, clientID, clientSecret string) (string, error) {
	t, err := c.tenants.GetTenantByID(ctx, clientID)
	if err != nil {
		return "", errors.WrapInvalid(errors.ErrTenantNotFound, "auth", "GenerateTokenFromCredentials", "resolve tenant")
	}

	hash := sha256.Sum256([]byte(clientSecret))
	if subtle.ConstantTimeCompare([]byte(hex.EncodeToString(hash[:])), []byte(t.LastSecretHash)) != 1 {
		c.logger.Warn("credential validation failed", "tenant", t.Name)
		return "", errors.WrapInvalid(errors.ErrWrongCredentials, "auth", "GenerateTokenFromCredentials", "validate secret")
	}

	return c.issuer.Issue(Identity{TenantID: t.ID}, tokenTTL)
}

// GetTenantFromToken verifies the token and resolves the tenant it was
// issued for.
func (c *Core) GetTenantFromToken(ctx context.Context, token string) (*tenant.Tenant, error) {
	id, err := c.issuer.Verify(token)
	if err != nil {
		return nil, err
	}
	if id.TenantID == "" {
		return nil, errors.WrapInvalid(errors.ErrWrongCredentials, "auth", "GetTenantFromToken", "token carries no tenant")
	}

	t, err := c.tenants.GetTenantByID(ctx, id.TenantID)
	if err != nil {
		return nil, errors.WrapInvalid(errors.ErrTenantNotFound, "auth", "GetTenantFromToken", "resolve tenant")
	}
	return t, nil
}

// GenerateAdminTokenFromSecret exchanges the deployment's admin secret for
// an admin token.
func (c *Core) GenerateAdminTokenFromSecret(secret string) (string, error) {
	if len(c.adminSecret) == 0 {
		return "", errors.WrapFatal(errors.ErrMissingConfig, "auth", "GenerateAdminTokenFromSecret", "admin secret not configured")
	}
	if subtle.ConstantTimeCompare([]byte(secret), c.adminSecret) != 1 {
		return "", errors.WrapInvalid(errors.ErrWrongCredentials, "auth", "GenerateAdminTokenFromSecret", "validate admin secret")
	}
	return c.issuer.Issue(Identity{Admin: true}, tokenTTL)
}

// IsAdminToken verifies the token and reports whether it asserts the
// admin identity.
func (c *Core) IsAdminToken(token string) bool {
	id, err := c.issuer.Verify(token)
	return err == nil && id.Admin
}
