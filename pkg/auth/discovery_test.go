package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/identity-gateway/internal/testutil"
	sserr "github.com/StricklySoft/identity-gateway/pkg/errors"
)

func TestDiscoveryConfig_DiscoveryURL(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "https://idp.test/.well-known/openid-configuration",
		DiscoveryConfig{Authority: "https://idp.test/"}.DiscoveryURL())
	assert.Equal(t, "https://idp.test/policy/v2.0/.well-known/openid-configuration",
		DiscoveryConfig{Authority: "https://idp.test/policy/v2.0/.well-known/openid-configuration"}.DiscoveryURL())
}

func TestNewDiscoveryClient_RequiresAuthority(t *testing.T) {
	t.Parallel()
	_, err := NewDiscoveryClient(DiscoveryConfig{}, nil)
	testutil.RequireErrorCode(t, err, sserr.CodeConfigurationTrust)
}

func TestDiscoveryClient_FetchKeys(t *testing.T) {
	t.Parallel()
	srv := testutil.NewOIDCServer(t, testutil.JWKS(t, testutil.JWK{Kid: testKid, Key: &providerKey(t).PublicKey}))

	dc, err := NewDiscoveryClient(DiscoveryConfig{Authority: srv.URL, FetchTimeout: 5 * time.Second}, srv.Client())
	require.NoError(t, err)

	pk, err := dc.FetchKeys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, srv.Issuer(), pk.Document.Issuer)
	assert.Equal(t, srv.URL+"/token", pk.Document.TokenEndpoint)
	require.Equal(t, 1, pk.Keys.Len())
	_, ok := pk.Keys.Lookup(testKid)
	assert.True(t, ok)
	assert.Equal(t, 1, srv.DiscoveryHits())
	assert.Equal(t, 1, srv.KeyHits())
}

func TestDiscoveryClient_ProviderDown(t *testing.T) {
	t.Parallel()
	srv := testutil.NewOIDCServer(t, nil)
	srv.FailNext(1)

	dc, err := NewDiscoveryClient(DiscoveryConfig{Authority: srv.URL}, srv.Client())
	require.NoError(t, err)

	_, err = dc.FetchKeys(context.Background())
	testutil.RequireErrorCode(t, err, sserr.CodeUnavailableDependency)
	assert.True(t, sserr.IsTransient(err))
}

func TestDiscoveryClient_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
		code    sserr.Code
	}{
		{
			name: "invalid JSON",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("{not json"))
			},
			code: sserr.CodeUnavailableKeys,
		},
		{
			name: "no jwks_uri",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"issuer":"https://idp/"}`))
			},
			code: sserr.CodeUnavailableKeys,
		},
		{
			name: "not found",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			code: sserr.CodeUnavailableDependency,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			dc, err := NewDiscoveryClient(DiscoveryConfig{Authority: srv.URL}, srv.Client())
			require.NoError(t, err)
			_, err = dc.Discover(context.Background())
			testutil.AssertErrorCode(t, err, tt.code)
		})
	}
}

func TestDiscoveryClient_Timeout(t *testing.T) {
	t.Parallel()
	srv := testutil.NewOIDCServer(t, nil)
	release := srv.Hold()
	defer release()

	dc, err := NewDiscoveryClient(DiscoveryConfig{Authority: srv.URL}, srv.Client())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = dc.Discover(ctx)
	testutil.RequireErrorCode(t, err, sserr.CodeTimeoutDependency)
}

func TestDiscoveryClient_CreatesClientSpans(t *testing.T) {
	t.Parallel()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	srv := testutil.NewOIDCServer(t, testutil.JWKS(t, testutil.JWK{Kid: testKid, Key: &providerKey(t).PublicKey}))
	dc, err := NewDiscoveryClient(DiscoveryConfig{Authority: srv.URL}, srv.Client())
	require.NoError(t, err)
	dc.tracer = tp.Tracer(tracerName)

	_, err = dc.FetchKeys(context.Background())
	require.NoError(t, err)

	names := map[string]trace.SpanKind{}
	for _, s := range exporter.GetSpans() {
		names[s.Name] = s.SpanKind
	}
	assert.Equal(t, trace.SpanKindClient, names["auth.FetchKeys"])
	assert.Equal(t, trace.SpanKindClient, names["auth.Discover"])
}
