// Package auth issues and verifies the bearer tokens tenants use against
// the gateway. Token cryptography stays behind the TokenIssuer interface;
// the rest of the system only consumes verified identities.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Sangrene/flexible-data-relay/errors"
)

// Identity is what a verified token asserts: a tenant, or the admin.
type Identity struct {
	TenantID string
	Admin    bool
}

// TokenIssuer signs and verifies identity tokens.
type TokenIssuer interface {
	Issue(id Identity, ttl time.Duration) (string, error)
	Verify(token string) (*Identity, error)
}

type relayClaims struct {
	TenantID string `json:"tenantId,omitempty"`
	Admin    bool   `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// HMACIssuer is the JWT HS512 implementation of TokenIssuer.
type HMACIssuer struct {
	secret []byte
}

// NewHMACIssuer creates an issuer signing with the given secret.
func NewHMACIssuer(secret []byte) (*HMACIssuer, error) {
	if len(secret) == 0 {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "auth", "NewHMACIssuer", "signing secret is required")
	}
	return &HMACIssuer{secret: secret}, nil
}

// Issue signs a token for the identity.
func (i *HMACIssuer) Issue(id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &relayClaims{
		TenantID: id.TenantID,
		Admin:    id.Admin,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "flexible-data-relay",
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(i.secret)
	if err != nil {
		return "", errors.Wrap(err, "auth", "Issue", "sign token")
	}
	return signed, nil
}

// Verify parses and validates the token, returning the identity it
// asserts. Any parse, signature, or expiry failure maps to
// ErrWrongCredentials.
func (i *HMACIssuer) Verify(token string) (*Identity, error) {
	parsed, err := jwt.ParseWithClaims(token, &relayClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS512 {
			return nil, errors.New("invalid signing method")
		}
		return i.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, errors.WrapInvalid(errors.ErrWrongCredentials, "auth", "Verify", "validate token")
	}

	claims, ok := parsed.Claims.(*relayClaims)
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrWrongCredentials, "auth", "Verify", "read claims")
	}
	return &Identity{TenantID: claims.TenantID, Admin: claims.Admin}, nil
}
