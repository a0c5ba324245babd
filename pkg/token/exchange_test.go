package token

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/identity-gateway/internal/testutil"
	"github.com/StricklySoft/identity-gateway/internal/testutil/fixtures"
	"github.com/StricklySoft/identity-gateway/pkg/auth"
	sserr "github.com/StricklySoft/identity-gateway/pkg/errors"
	"github.com/StricklySoft/identity-gateway/pkg/keys"
	"github.com/StricklySoft/identity-gateway/pkg/tenant"
)

func mustParseInt(t *testing.T, s string) int64 {
	t.Helper()
	n, err := strconv.ParseInt(s, 10, 64)
	require.NoError(t, err)
	return n
}

func newTestIssuer(t *testing.T) (*Issuer, *tenant.MemoryStore, *keys.KeyPair) {
	t.Helper()
	store := tenant.NewMemoryStore(
		tenant.Assignment{UserID: fixtures.UserID, TenantID: fixtures.TenantA, Roles: []string{"admin"}},
		tenant.Assignment{UserID: fixtures.UserID, TenantID: fixtures.TenantB, Roles: []string{"readOnly"}},
	)
	pair := testKeyPair(t)
	return NewIssuer(tenant.NewResolver(store), pair), store, pair
}

func TestIssue(t *testing.T) {
	t.Parallel()
	issuer, store, pair := newTestIssuer(t)

	signed, res, err := issuer.Issue(context.Background(), IssueRequest{
		Claims:   userClaims(),
		Issuer:   testIssuer,
		Audience: fixtures.Audience,
	})
	require.NoError(t, err)
	assert.Equal(t, fixtures.TenantA, res.TenantID)

	c := verify(t, pair, signed).Claims
	assert.Equal(t, []string{fixtures.TenantA}, c.All(auth.ClaimTenant))
	assert.Equal(t, []string{"admin"}, c.All(auth.ClaimRole))

	last, err := store.GetSetting(context.Background(), fixtures.UserID, tenant.SettingLastUsedTenant)
	require.NoError(t, err)
	assert.Equal(t, fixtures.TenantA, last.Value)

	a, err := store.GetAssignment(context.Background(), fixtures.UserID, fixtures.TenantA)
	require.NoError(t, err)
	assert.Equal(t, fixtures.UserName, a.DisplayName)
}

func TestIssue_Errors(t *testing.T) {
	t.Parallel()
	issuer, _, _ := newTestIssuer(t)

	_, _, err := issuer.Issue(context.Background(), IssueRequest{Issuer: testIssuer})
	testutil.AssertErrorCode(t, err, sserr.CodeAuthenticationClaims)

	signed, _, err := issuer.Issue(context.Background(), IssueRequest{
		Claims: userClaims(),
		Tenant: fixtures.TenantC,
		Issuer: testIssuer,
	})
	testutil.AssertErrorCode(t, err, sserr.CodeAuthorizationTenant)
	assert.Empty(t, signed)
}

func TestSwitch(t *testing.T) {
	t.Parallel()
	issuer, store, pair := newTestIssuer(t)
	expiry := time.Now().Add(2 * time.Hour).Truncate(time.Second)

	original, _, err := issuer.Issue(context.Background(), IssueRequest{
		Claims:   userClaims(),
		Issuer:   testIssuer,
		Audience: fixtures.Audience,
		Expiry:   expiry,
	})
	require.NoError(t, err)

	switched, err := issuer.Switch(context.Background(), original, fixtures.TenantB, "https://other.example.test/")
	require.NoError(t, err)

	vt := verify(t, pair, switched)
	c := vt.Claims
	assert.Equal(t, []string{fixtures.TenantB}, c.All(auth.ClaimTenant))
	assert.Equal(t, []string{"readOnly"}, c.All(auth.ClaimRole))
	assert.ElementsMatch(t, []string{fixtures.TenantA, fixtures.TenantB}, c.All(auth.ClaimAvailableTenants))
	assert.Equal(t, []string{"https://other.example.test/"}, c.All(auth.ClaimIssuer))
	assert.Equal(t, []string{fixtures.Audience}, vt.Audience)
	assert.True(t, vt.ExpiresAt.Equal(expiry))
	for name, want := range map[string]string{
		auth.ClaimSubject: fixtures.UserID,
		auth.ClaimName:    fixtures.UserName,
		auth.ClaimEmail:   fixtures.UserEmail,
	} {
		assert.Equal(t, []string{want}, c.All(name), name)
	}

	last, err := store.GetSetting(context.Background(), fixtures.UserID, tenant.SettingLastUsedTenant)
	require.NoError(t, err)
	assert.Equal(t, fixtures.TenantB, last.Value)
}

func TestSwitch_UnassignedTenant(t *testing.T) {
	t.Parallel()
	issuer, store, _ := newTestIssuer(t)
	original, _, err := issuer.Issue(context.Background(), IssueRequest{Claims: userClaims(), Issuer: testIssuer})
	require.NoError(t, err)

	switched, err := issuer.Switch(context.Background(), original, fixtures.TenantC, testIssuer)
	testutil.AssertErrorCode(t, err, sserr.CodeAuthorizationTenant)
	assert.Empty(t, switched)

	last, err := store.GetSetting(context.Background(), fixtures.UserID, tenant.SettingLastUsedTenant)
	require.NoError(t, err)
	assert.Equal(t, fixtures.TenantA, last.Value)
}

func TestSwitch_RejectsTokens(t *testing.T) {
	t.Parallel()
	issuer, _, _ := newTestIssuer(t)

	foreignPair, err := keys.NewKeyPair(testutil.RSAKey(t, "foreign"))
	require.NoError(t, err)
	foreign, err := NewMinter(foreignPair).Mint(context.Background(), userClaims(), nil, Options{Issuer: testIssuer})
	require.NoError(t, err)

	expired, err := NewMinter(testKeyPair(t)).Mint(context.Background(), userClaims(), nil, Options{
		Issuer: testIssuer,
		Expiry: time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"empty":   "",
		"garbage": "not.a.token",
		"foreign": foreign,
		"expired": expired,
	} {
		t.Run(name, func(t *testing.T) {
			switched, err := issuer.Switch(context.Background(), tok, fixtures.TenantB, testIssuer)
			require.Error(t, err)
			assert.True(t, sserr.IsAuthentication(err), "got %v", err)
			assert.Empty(t, switched)
		})
	}
}

func TestSwitch_RequiresTenant(t *testing.T) {
	t.Parallel()
	issuer, _, _ := newTestIssuer(t)
	_, err := issuer.Switch(context.Background(), "token", "", testIssuer)
	testutil.AssertErrorCode(t, err, sserr.CodeValidationRequired)
}
