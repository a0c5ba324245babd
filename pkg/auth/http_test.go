package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/identity-gateway/internal/testutil/fixtures"
)

// ---------------------------------------------------------------------------
// Middleware.Handler
// ---------------------------------------------------------------------------

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, r)
	return rr
}

func TestHandler_ServiceUnavailableDoesNotForward(t *testing.T) {
	t.Parallel()
	m := newTestMiddleware(t, DefaultMiddlewareConfig(), &staticTrust{ready: false})
	called := false
	h := m.Handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	rr := serve(h, externalRequest("/devices", tenantToken(t)))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, `{"Error":"Authentication service not available"}`, rr.Body.String())
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.False(t, called)
}

func TestHandler_RecoversAfterProviderOutage(t *testing.T) {
	t.Parallel()
	src := &fakeKeySource{results: []fakeResult{
		{err: errProviderDown},
		{err: errProviderDown},
		goodKeys(t),
	}}
	cache := NewOIDCConfigCache(src, ExternalTrustConfig{ClockSkew: 2 * time.Minute})
	m := newTestMiddleware(t, DefaultMiddlewareConfig(), cache)

	var calls atomic.Int64
	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))

	bearer := tenantToken(t)
	var codes []int
	for range 5 {
		codes = append(codes, serve(h, externalRequest("/devices", bearer)).Code)
	}

	assert.Equal(t, []int{
		http.StatusServiceUnavailable,
		http.StatusServiceUnavailable,
		http.StatusOK,
		http.StatusOK,
		http.StatusOK,
	}, codes)
	assert.Equal(t, int64(3), calls.Load())
	assert.Equal(t, int64(3), src.calls.Load())
}

func TestHandler_RejectedIs401(t *testing.T) {
	t.Parallel()
	m := newTestMiddleware(t, DefaultMiddlewareConfig(), readyTrust(t))
	called := false
	h := m.Handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	rr := serve(h, externalRequest("/devices", "garbage"))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, `{"Error":"Authentication required"}`, rr.Body.String())
	assert.False(t, called)
}

func TestHandler_AuthenticatedCarriesContext(t *testing.T) {
	t.Parallel()
	m := newTestMiddleware(t, DefaultMiddlewareConfig(), readyTrust(t))

	var captured context.Context
	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Context()
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := serve(h, externalRequest("/devices", tenantToken(t, RoleAdmin)))
	require.Equal(t, http.StatusNoContent, rr.Code)

	ac, ok := AuthorizationFromContext(captured)
	require.True(t, ok)
	assert.True(t, ac.AllowedActions.Has(ActionDeleteDevices))

	tenantID, ok := TenantFromContext(captured)
	require.True(t, ok)
	assert.Equal(t, fixtures.TenantA, tenantID)
}

// ---------------------------------------------------------------------------
// RequireAction
// ---------------------------------------------------------------------------

func TestRequireAction(t *testing.T) {
	t.Parallel()
	m := newTestMiddleware(t, DefaultMiddlewareConfig(), readyTrust(t))
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	h := m.Handler(RequireAction(ActionDeleteDevices)(ok))

	rr := serve(h, externalRequest("/devices", tenantToken(t, RoleAdmin)))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = serve(h, externalRequest("/devices", tenantToken(t, RoleReadOnly)))
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, `{"Error":"Forbidden"}`, rr.Body.String())

	internal := httptest.NewRequest(http.MethodDelete, "/devices", nil)
	rr = serve(h, internal)
	assert.Equal(t, http.StatusOK, rr.Code, "internal calls are not action-checked")
}

func TestRequireAction_WithoutMiddleware(t *testing.T) {
	t.Parallel()
	h := RequireAction(ActionReadAll)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))
	rr := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

// ---------------------------------------------------------------------------
// TenantRoundTripper
// ---------------------------------------------------------------------------

// roundTripFunc adapts a func to http.RoundTripper.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestTenantRoundTripper(t *testing.T) {
	t.Parallel()
	var seen string
	rt := NewTenantRoundTripper(roundTripFunc(func(r *http.Request) (*http.Response, error) {
		seen = r.Header.Get(HeaderTenant)
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	}))

	ctx := ContextWithTenant(context.Background(), fixtures.TenantA)
	req := httptest.NewRequest(http.MethodGet, "http://svc/devices", nil).WithContext(ctx)
	_, err := rt.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, fixtures.TenantA, seen)
	assert.Empty(t, req.Header.Get(HeaderTenant), "the caller's request is not modified")

	req.Header.Set(HeaderTenant, fixtures.TenantB)
	_, err = rt.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, fixtures.TenantB, seen, "an explicit header wins")

	_, err = rt.RoundTrip(httptest.NewRequest(http.MethodGet, "http://svc/", nil))
	require.NoError(t, err)
	assert.Empty(t, seen)
}

func TestNewTenantRoundTripper_NilTransport(t *testing.T) {
	t.Parallel()
	rt := NewTenantRoundTripper(nil)
	assert.Equal(t, http.DefaultTransport, rt.wrapped)
}

// ---------------------------------------------------------------------------
// ExtractBearerToken
// ---------------------------------------------------------------------------

func TestExtractBearerToken(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{name: "canonical", header: "Bearer tok", want: "tok"},
		{name: "lowercase", header: "bearer tok", want: "tok"},
		{name: "mixed case", header: "BeArEr tok", want: "tok"},
		{name: "padded", header: "Bearer   tok  ", want: "tok"},
		{name: "empty", header: ""},
		{name: "only prefix", header: "Bearer "},
		{name: "only spaces after prefix", header: "Bearer    "},
		{name: "no prefix", header: "tok"},
		{name: "basic auth", header: "Basic dXNlcjpwYXNz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractBearerToken(tt.header))
		})
	}
}
