package auth

import (
	"context"
	"crypto/rsa"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/StricklySoft/identity-gateway/internal/testutil"
	"github.com/StricklySoft/identity-gateway/internal/testutil/fixtures"
)

// ---------------------------------------------------------------------------
// Shared fixtures
// ---------------------------------------------------------------------------

const testKid = "provider-key-1"

// testNow is the fixed clock used by validators in tests.
var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func providerKey(t testing.TB) *rsa.PrivateKey {
	t.Helper()
	return testutil.RSAKey(t, "provider")
}

func providerKeySet(t testing.TB) KeySet {
	t.Helper()
	return NewKeySet(PublicKey{ID: testKid, Key: &providerKey(t).PublicKey, Algorithm: "RS256"})
}

func externalParams(t testing.TB) *TrustParameters {
	t.Helper()
	cfg := ExternalTrustConfig{ClockSkew: 2 * time.Minute}
	return ExternalTrustParameters(cfg, providerKeySet(t), fixtures.ProviderIssuer)
}

// baseClaims returns claims that are valid under externalParams at testNow.
func baseClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss":  fixtures.ProviderIssuer,
		"sub":  fixtures.UserID,
		"aud":  fixtures.Audience,
		"name": fixtures.UserName,
		"iat":  testNow.Add(-time.Minute).Unix(),
		"exp":  testNow.Add(time.Hour).Unix(),
	}
}

func signRS256(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()
	return testutil.SignToken(t, jwt.SigningMethodRS256, providerKey(t), testKid, claims)
}

func newTestValidator() *TokenValidator {
	return NewTokenValidator(WithClock(fixedClock))
}

// ---------------------------------------------------------------------------
// Test doubles
// ---------------------------------------------------------------------------

// staticTrust is a TrustSource with a fixed readiness answer.
type staticTrust struct {
	ready  bool
	params *TrustParameters
	calls  atomic.Int64
}

func (s *staticTrust) EnsureReady(context.Context) bool {
	s.calls.Add(1)
	return s.ready
}

func (s *staticTrust) TrustParameters() (*TrustParameters, bool) {
	return s.params, s.ready && s.params != nil
}

// fakeKeySource is a KeySetSource returning scripted results in order; the
// last result repeats.
type fakeKeySource struct {
	results []fakeResult
	calls   atomic.Int64
	block   chan struct{}
}

type fakeResult struct {
	keys *ProviderKeys
	err  error
}

func (f *fakeKeySource) FetchKeys(ctx context.Context) (*ProviderKeys, error) {
	n := int(f.calls.Add(1)) - 1
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if n >= len(f.results) {
		n = len(f.results) - 1
	}
	r := f.results[n]
	return r.keys, r.err
}
