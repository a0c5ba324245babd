package token

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/identity-gateway/internal/testutil"
	"github.com/StricklySoft/identity-gateway/internal/testutil/fixtures"
	"github.com/StricklySoft/identity-gateway/pkg/auth"
	sserr "github.com/StricklySoft/identity-gateway/pkg/errors"
	"github.com/StricklySoft/identity-gateway/pkg/keys"
	"github.com/StricklySoft/identity-gateway/pkg/tenant"
)

const testIssuer = "https://gateway.example.test/"

func testKeyPair(t *testing.T) *keys.KeyPair {
	t.Helper()
	pair, err := keys.NewKeyPair(testutil.RSAKey(t, "gateway"))
	require.NoError(t, err)
	return pair
}

func verify(t *testing.T, pair *keys.KeyPair, signed string) *auth.VerifiedToken {
	t.Helper()
	vt, err := auth.NewTokenValidator().Parse(signed, auth.InternalTrustParameters(pair.KeySet()))
	require.NoError(t, err)
	return vt
}

func userClaims() auth.ClaimSet {
	return auth.NewClaimSet(
		auth.Claim{Type: auth.ClaimSubject, Value: fixtures.UserID},
		auth.Claim{Type: auth.ClaimName, Value: fixtures.UserName},
		auth.Claim{Type: auth.ClaimEmail, Value: fixtures.UserEmail},
	)
}

func resolution() *tenant.Resolution {
	list := []tenant.Assignment{
		{UserID: fixtures.UserID, TenantID: fixtures.TenantA, Roles: []string{"admin", "auditor"}},
		{UserID: fixtures.UserID, TenantID: fixtures.TenantB, Roles: []string{"readOnly"}},
	}
	return &tenant.Resolution{
		TenantID:    fixtures.TenantA,
		Active:      &list[0],
		Assignments: list,
		Source:      tenant.SourceFirst,
	}
}

func TestMint_RoundTrip(t *testing.T) {
	t.Parallel()
	pair := testKeyPair(t)

	claims := userClaims()
	claims.Add(auth.ClaimTenant, fixtures.TenantC)
	claims.Add(auth.ClaimRole, "stale")
	claims.Add(auth.ClaimIssuedAt, "1")

	signed, err := NewMinter(pair).Mint(context.Background(), claims, resolution(), Options{
		Issuer:   testIssuer,
		Audience: fixtures.Audience,
	})
	require.NoError(t, err)

	vt := verify(t, pair, signed)
	assert.Equal(t, keys.SigningAlgorithm, vt.Algorithm)
	assert.Equal(t, pair.KeyID(), vt.KeyID)
	assert.Equal(t, []string{fixtures.Audience}, vt.Audience)

	c := vt.Claims
	assert.Equal(t, []string{fixtures.TenantA}, c.All(auth.ClaimTenant))
	assert.ElementsMatch(t, []string{"admin", "auditor"}, c.All(auth.ClaimRole))
	assert.ElementsMatch(t, []string{fixtures.TenantA, fixtures.TenantB}, c.All(auth.ClaimAvailableTenants))
	assert.Equal(t, []string{testIssuer}, c.All(auth.ClaimIssuer))
	assert.Len(t, c.All(auth.ClaimIssuedAt), 1)
	assert.NotEqual(t, "1", c.All(auth.ClaimIssuedAt)[0])

	email, _ := c.Get(auth.ClaimEmail)
	assert.Equal(t, fixtures.UserEmail, email)
}

func TestMint_SingleTenant(t *testing.T) {
	t.Parallel()
	pair := testKeyPair(t)
	a := tenant.Assignment{UserID: fixtures.UserID, TenantID: fixtures.TenantB, Roles: []string{"readOnly"}}
	res := &tenant.Resolution{TenantID: a.TenantID, Active: &a, Assignments: []tenant.Assignment{a}}

	signed, err := NewMinter(pair).Mint(context.Background(), userClaims(), res, Options{Issuer: testIssuer})
	require.NoError(t, err)

	c := verify(t, pair, signed).Claims
	assert.Equal(t, []string{"readOnly"}, c.All(auth.ClaimRole))
	assert.Equal(t, []string{fixtures.TenantB}, c.All(auth.ClaimAvailableTenants))
	assert.False(t, c.Has(auth.ClaimAudience))
}

func TestMint_Unprovisioned(t *testing.T) {
	t.Parallel()
	pair := testKeyPair(t)
	minter := NewMinter(pair)

	for name, res := range map[string]*tenant.Resolution{
		"nil":        nil,
		"unresolved": {Source: tenant.SourceNone},
	} {
		t.Run(name, func(t *testing.T) {
			signed, err := minter.Mint(context.Background(), userClaims(), res, Options{Issuer: testIssuer})
			require.NoError(t, err)

			c := verify(t, pair, signed).Claims
			assert.False(t, c.Has(auth.ClaimTenant))
			assert.False(t, c.Has(auth.ClaimRole))
			assert.False(t, c.Has(auth.ClaimAvailableTenants))
			sub, _ := c.Subject()
			assert.Equal(t, fixtures.UserID, sub)
		})
	}
}

func TestMint_Expiry(t *testing.T) {
	t.Parallel()
	pair := testKeyPair(t)
	now := time.Now().Truncate(time.Second)
	minter := NewMinter(pair, WithClock(func() time.Time { return now }))

	signed, err := minter.Mint(context.Background(), userClaims(), nil, Options{Issuer: testIssuer})
	require.NoError(t, err)
	vt := verify(t, pair, signed)
	assert.True(t, vt.ExpiresAt.Equal(now.Add(DefaultLifetime)), "exp = %v", vt.ExpiresAt)

	iat, _ := vt.Claims.Get(auth.ClaimIssuedAt)
	assert.Equal(t, now.Unix(), mustParseInt(t, iat))

	explicit := now.Add(time.Hour)
	signed, err = minter.Mint(context.Background(), userClaims(), nil, Options{Issuer: testIssuer, Expiry: explicit})
	require.NoError(t, err)
	assert.True(t, verify(t, pair, signed).ExpiresAt.Equal(explicit))
}

func TestMint_Deterministic(t *testing.T) {
	t.Parallel()
	pair := testKeyPair(t)
	now := time.Now().Truncate(time.Second)
	minter := NewMinter(pair, WithClock(func() time.Time { return now }))

	first, err := minter.Mint(context.Background(), userClaims(), resolution(), Options{Issuer: testIssuer})
	require.NoError(t, err)
	second, err := minter.Mint(context.Background(), userClaims(), resolution(), Options{Issuer: testIssuer})
	require.NoError(t, err)

	// PKCS#1 v1.5 signatures are deterministic, so the encodings match.
	assert.Equal(t, first, second)
}

func TestMint_Errors(t *testing.T) {
	t.Parallel()
	_, err := NewMinter(testKeyPair(t)).Mint(context.Background(), userClaims(), nil, Options{})
	testutil.AssertErrorCode(t, err, sserr.CodeValidationRequired)

	_, err = NewMinter(nil).Mint(context.Background(), userClaims(), nil, Options{Issuer: testIssuer})
	testutil.AssertErrorCode(t, err, sserr.CodeInternalSigning)
}

func TestMint_HeaderCarriesKid(t *testing.T) {
	t.Parallel()
	pair := testKeyPair(t)
	signed, err := NewMinter(pair).Mint(context.Background(), userClaims(), nil, Options{Issuer: testIssuer})
	require.NoError(t, err)

	tok, _, err := jwt.NewParser().ParseUnverified(signed, jwt.MapClaims{})
	require.NoError(t, err)
	assert.Equal(t, pair.KeyID(), tok.Header["kid"])
	assert.Equal(t, "RS256", tok.Header["alg"])
}

func TestIssuerFromRequest(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		host      string
		forwarded string
		want      string
	}{
		{name: "own host", host: "gateway.internal:8080", want: "https://gateway.internal:8080/"},
		{name: "forwarded", host: "gateway.internal", forwarded: "id.example.test", want: "https://id.example.test/"},
		{name: "forwarded chain", host: "gateway.internal", forwarded: "id.example.test, proxy.local", want: "https://id.example.test/"},
		{name: "blank forwarded", host: "gateway.internal", forwarded: " ", want: "https://gateway.internal/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/connect/callback", nil)
			r.Host = tt.host
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-Host", tt.forwarded)
			}
			assert.Equal(t, tt.want, IssuerFromRequest(r))
		})
	}
}
