package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sangrene/flexible-data-relay/auth"
	"github.com/Sangrene/flexible-data-relay/errors"
	"github.com/Sangrene/flexible-data-relay/event"
	"github.com/Sangrene/flexible-data-relay/storage/memstore"
	"github.com/Sangrene/flexible-data-relay/tenant"
)

func newAuthFixture(t *testing.T) (*auth.Core, *tenant.Core) {
	t.Helper()
	bus := event.NewBus(nil)
	t.Cleanup(bus.Close)

	tenants := tenant.NewCore(memstore.NewTenantStore(), bus, nil)
	issuer, err := auth.NewHMACIssuer([]byte("test-signing-secret"))
	require.NoError(t, err)
	return auth.NewCore(tenants, issuer, "admin-secret", nil), tenants
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	issuer, err := auth.NewHMACIssuer([]byte("k"))
	require.NoError(t, err)

	token, err := issuer.Issue(auth.Identity{TenantID: "t-123"}, time.Hour)
	require.NoError(t, err)

	id, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "t-123", id.TenantID)
	assert.False(t, id.Admin)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	issuer, err := auth.NewHMACIssuer([]byte("k"))
	require.NoError(t, err)

	token, err := issuer.Issue(auth.Identity{TenantID: "t-123"}, -time.Minute)
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	assert.True(t, errors.Is(err, errors.ErrWrongCredentials))
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	a, err := auth.NewHMACIssuer([]byte("key-a"))
	require.NoError(t, err)
	b, err := auth.NewHMACIssuer([]byte("key-b"))
	require.NoError(t, err)

	token, err := a.Issue(auth.Identity{TenantID: "t-123"}, time.Hour)
	require.NoError(t, err)

	_, err = b.Verify(token)
	assert.True(t, errors.Is(err, errors.ErrWrongCredentials))
}

func TestCredentialFlow(t *testing.T) {
	core, tenants := newAuthFixture(t)
	ctx := context.Background()

	created, err := tenants.CreateTenant(ctx, "t1")
	require.NoError(t, err)

	token, err := core.GenerateTokenFromCredentials(ctx, created.ID, created.LastSecret)
	require.NoError(t, err)

	resolved, err := core.GetTenantFromToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "t1", resolved.Name)
}

func TestCredentialFlowRejectsWrongSecret(t *testing.T) {
	core, tenants := newAuthFixture(t)
	ctx := context.Background()

	created, err := tenants.CreateTenant(ctx, "t1")
	require.NoError(t, err)

	_, err = core.GenerateTokenFromCredentials(ctx, created.ID, "not-the-secret")
	assert.True(t, errors.Is(err, errors.ErrWrongCredentials))
}

func TestCredentialFlowRejectsUnknownTenant(t *testing.T) {
	core, _ := newAuthFixture(t)

	_, err := core.GenerateTokenFromCredentials(context.Background(), "ghost", "secret")
	assert.True(t, errors.Is(err, errors.ErrTenantNotFound))
}

func TestAdminTokenFlow(t *testing.T) {
	core, _ := newAuthFixture(t)

	_, err := core.GenerateAdminTokenFromSecret("wrong")
	assert.True(t, errors.Is(err, errors.ErrWrongCredentials))

	token, err := core.GenerateAdminTokenFromSecret("admin-secret")
	require.NoError(t, err)
	assert.True(t, core.IsAdminToken(token))
}

func TestTenantTokenIsNotAdmin(t *testing.T) {
	core, tenants := newAuthFixture(t)
	ctx := context.Background()

	created, err := tenants.CreateTenant(ctx, "t1")
	require.NoError(t, err)
	token, err := core.GenerateTokenFromCredentials(ctx, created.ID, created.LastSecret)
	require.NoError(t, err)

	assert.False(t, core.IsAdminToken(token))
}
