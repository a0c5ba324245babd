package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/identity-gateway/pkg/errors"
)

// maxDiscoveryBody caps discovery and JWKS response bodies.
const maxDiscoveryBody = 1 << 20

// wellKnownPath is appended to an authority that does not already name its
// discovery document.
const wellKnownPath = "/.well-known/openid-configuration"

// HTTPClient is the subset of *http.Client used for provider calls.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DiscoveryConfig locates the external identity provider.
type DiscoveryConfig struct {
	// Authority is the provider base URL, or the full URL of its discovery
	// document (some providers publish one document per sign-in policy).
	Authority string `env:"AUTHORITY" required:"true" yaml:"authority" json:"authority"`

	// FetchTimeout bounds a single discovery plus key-set fetch.
	FetchTimeout time.Duration `env:"FETCH_TIMEOUT" envDefault:"10s" yaml:"fetch_timeout" json:"fetch_timeout"`

	// RefreshInterval is how long a fetched key set is trusted before it is
	// refreshed. Zero keeps it for the life of the process.
	RefreshInterval time.Duration `env:"REFRESH_INTERVAL" envDefault:"24h" yaml:"refresh_interval" json:"refresh_interval"`
}

// DiscoveryURL returns the URL of the discovery document.
func (c DiscoveryConfig) DiscoveryURL() string {
	if strings.HasSuffix(c.Authority, wellKnownPath) {
		return c.Authority
	}
	return strings.TrimRight(c.Authority, "/") + wellKnownPath
}

// DiscoveryDocument holds the fields of an OpenID Connect discovery document
// the gateway uses.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	JWKSURI               string `json:"jwks_uri"`
	AuthorizationEndpoint string `json:"authorization_endpoint,omitempty"`
	TokenEndpoint         string `json:"token_endpoint,omitempty"`
	EndSessionEndpoint    string `json:"end_session_endpoint,omitempty"`
}

// ProviderKeys is a snapshot of the provider's metadata and signing keys.
type ProviderKeys struct {
	Document  DiscoveryDocument
	Keys      KeySet
	FetchedAt time.Time
}

// KeySetSource supplies the external provider's signing keys.
type KeySetSource interface {
	FetchKeys(ctx context.Context) (*ProviderKeys, error)
}

// DiscoveryClient fetches the discovery document and then the key set it
// points to.
type DiscoveryClient struct {
	cfg    DiscoveryConfig
	client HTTPClient
	tracer trace.Tracer
	now    func() time.Time
}

// Compile-time interface compliance check.
var _ KeySetSource = (*DiscoveryClient)(nil)

// NewDiscoveryClient returns a client for cfg. A nil client uses an
// *http.Client with cfg.FetchTimeout.
func NewDiscoveryClient(cfg DiscoveryConfig, client HTTPClient) (*DiscoveryClient, error) {
	if cfg.Authority == "" {
		return nil, sserr.New(sserr.CodeConfigurationTrust, "auth: identity provider authority is required")
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.FetchTimeout}
	}
	return &DiscoveryClient{
		cfg:    cfg,
		client: client,
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}, nil
}

// Discover fetches the discovery document.
func (d *DiscoveryClient) Discover(ctx context.Context) (_ *DiscoveryDocument, err error) {
	ctx, span := startSpan(ctx, d.tracer, "auth.Discover", trace.WithSpanKind(trace.SpanKindClient))
	defer func() { finishSpan(span, err); span.End() }()

	url := d.cfg.DiscoveryURL()
	span.SetAttributes(attribute.String("http.url", url))

	var doc DiscoveryDocument
	if err := d.getJSON(ctx, url, &doc); err != nil {
		return nil, err
	}
	if doc.JWKSURI == "" {
		return nil, sserr.New(sserr.CodeUnavailableKeys, "auth: discovery document has no jwks_uri")
	}
	return &doc, nil
}

// FetchKeys discovers the provider and downloads its key set.
func (d *DiscoveryClient) FetchKeys(ctx context.Context) (_ *ProviderKeys, err error) {
	ctx, span := startSpan(ctx, d.tracer, "auth.FetchKeys", trace.WithSpanKind(trace.SpanKindClient))
	defer func() { finishSpan(span, err); span.End() }()

	doc, err := d.Discover(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := d.get(ctx, doc.JWKSURI)
	if err != nil {
		return nil, err
	}
	keys, err := ParseJWKS(raw)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("auth.jwks.keys", keys.Len()))

	return &ProviderKeys{Document: *doc, Keys: keys, FetchedAt: d.now()}, nil
}

func (d *DiscoveryClient) getJSON(ctx context.Context, url string, v any) error {
	body, err := d.get(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return sserr.Wrap(err, sserr.CodeUnavailableKeys, "auth: provider returned invalid JSON").
			WithDetail("url", url)
	}
	return nil
}

func (d *DiscoveryClient) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeConfigurationTrust, "auth: invalid provider URL")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, wrapFetchError(ctx, err, url)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, sserr.New(sserr.CodeUnavailableDependency,
			fmt.Sprintf("auth: provider returned status %d", resp.StatusCode)).
			WithDetail("url", url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDiscoveryBody))
	if err != nil {
		return nil, wrapFetchError(ctx, err, url)
	}
	return body, nil
}

func wrapFetchError(ctx context.Context, err error, url string) *sserr.Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return sserr.Wrap(err, sserr.CodeTimeoutDependency, "auth: provider request timed out").
			WithDetail("url", url)
	}
	return sserr.Wrap(err, sserr.CodeUnavailableDependency, "auth: provider request failed").
		WithDetail("url", url)
}
