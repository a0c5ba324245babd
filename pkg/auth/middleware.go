package auth

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/identity-gateway/pkg/errors"
)

// Response bodies written by the middleware.
const (
	MessageServiceUnavailable     = "Authentication service not available"
	MessageAuthenticationRequired = "Authentication required"
)

// DefaultUnauthenticatedPaths are served without authentication.
var DefaultUnauthenticatedPaths = []string{
	"/v1/status",
	"/api/status",
	"/.well-known/openid-configuration",
	"/connect",
}

// MiddlewareConfig configures request authentication.
type MiddlewareConfig struct {
	// Enabled turns authentication off entirely when false. Every request
	// is forwarded without looking at its token.
	Enabled bool `env:"ENABLED" envDefault:"true" yaml:"enabled" json:"enabled"`

	// Required controls enforcement. When false, tokens are still
	// validated and annotated, but requests with no valid token are
	// forwarded instead of rejected.
	Required bool `env:"REQUIRED" envDefault:"true" yaml:"required" json:"required"`

	// AllowedAlgorithms is checked again after validation, independent of
	// the trust parameters published by the provider cache.
	AllowedAlgorithms []string `env:"ALLOWED_ALGORITHMS" envDefault:"RS256,RS384,RS512" yaml:"allowed_algorithms" json:"allowed_algorithms"`

	// UnauthenticatedPaths match a request path case-insensitively on whole
	// segments: "/connect" matches "/connect/token" but not "/connections".
	UnauthenticatedPaths []string `env:"UNAUTHENTICATED_PATHS" envDefault:"/v1/status,/api/status,/.well-known/openid-configuration,/connect" yaml:"unauthenticated_paths" json:"unauthenticated_paths"`

	ExternalMarkerHeader string `env:"EXTERNAL_MARKER_HEADER" envDefault:"X-Source" yaml:"external_marker_header" json:"external_marker_header"`
	InternalTenantHeader string `env:"INTERNAL_TENANT_HEADER" envDefault:"ApplicationTenantID" yaml:"internal_tenant_header" json:"internal_tenant_header"`

	// ReadyTimeout bounds how long a request waits for the provider
	// configuration before it is answered with 503.
	ReadyTimeout time.Duration `env:"READY_TIMEOUT" envDefault:"5s" yaml:"ready_timeout" json:"ready_timeout"`
}

// DefaultMiddlewareConfig returns the configuration the loader produces
// with no overrides.
func DefaultMiddlewareConfig() MiddlewareConfig {
	return MiddlewareConfig{
		Enabled:              true,
		Required:             true,
		AllowedAlgorithms:    slices.Clone(DefaultAllowedAlgorithms),
		UnauthenticatedPaths: slices.Clone(DefaultUnauthenticatedPaths),
		ExternalMarkerHeader: HeaderSource,
		InternalTenantHeader: HeaderTenant,
		ReadyTimeout:         5 * time.Second,
	}
}

// Request is the transport-neutral view of an inbound request.
type Request interface {
	// Path is the URL path, or the full method name for gRPC.
	Path() string
	// Header returns the first value of the named header.
	Header(name string) string
	// HasHeader reports whether the header is present, even if empty.
	HasHeader(name string) bool
}

// ServiceTrustPolicy decides whether a request is a trusted internal call
// that skips token authentication.
type ServiceTrustPolicy interface {
	// Internal reports whether req is internal and, if so, the tenant it
	// acts for.
	Internal(req Request) (tenantID string, internal bool)
}

// HeaderTrustPolicy treats any request without the external marker header
// as internal and takes its tenant from the tenant header. It relies on the
// edge proxy setting the marker on every external request and stripping
// any client-supplied copy; it offers no protection inside the cluster.
type HeaderTrustPolicy struct {
	MarkerHeader string
	TenantHeader string
}

// Internal implements [ServiceTrustPolicy].
func (p HeaderTrustPolicy) Internal(req Request) (string, bool) {
	if req.HasHeader(p.MarkerHeader) {
		return "", false
	}
	return req.Header(p.TenantHeader), true
}

// TrustSource publishes the trust parameters for externally issued tokens.
// [*OIDCConfigCache] implements it.
type TrustSource interface {
	EnsureReady(ctx context.Context) bool
	TrustParameters() (*TrustParameters, bool)
}

// Decision is the terminal state of a request in the middleware.
type Decision int

const (
	// DecisionBypassed requests are forwarded without a token check.
	DecisionBypassed Decision = iota + 1
	// DecisionServiceUnavailable requests are answered with 503.
	DecisionServiceUnavailable
	// DecisionTokenMissing requests carried no bearer token.
	DecisionTokenMissing
	// DecisionAuthenticated requests carried a valid token.
	DecisionAuthenticated
	// DecisionRejected requests carried a token that failed validation.
	DecisionRejected
)

func (d Decision) String() string {
	switch d {
	case DecisionBypassed:
		return "bypassed"
	case DecisionServiceUnavailable:
		return "service_unavailable"
	case DecisionTokenMissing:
		return "token_missing"
	case DecisionAuthenticated:
		return "authenticated"
	case DecisionRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Outcome is the result of [Middleware.Decide].
type Outcome struct {
	Decision Decision

	// Forward is true when the request should reach the next handler.
	// TokenMissing and Rejected requests are forwarded only when
	// authentication is not required.
	Forward bool

	// Authorization is set whenever Forward is true.
	Authorization *AuthorizationContext

	// Err is the reason for a ServiceUnavailable, TokenMissing or Rejected
	// decision. It is for logs only and never sent to the caller.
	Err error
}

// Middleware authenticates inbound requests.
type Middleware struct {
	cfg         MiddlewareConfig
	trust       TrustSource
	validator   *TokenValidator
	permissions *PermissionTable
	policy      ServiceTrustPolicy
	logger      *slog.Logger
	tracer      trace.Tracer
	decisions   metric.Int64Counter
}

// MiddlewareOption configures a Middleware.
type MiddlewareOption func(*Middleware)

// WithTrustPolicy replaces the header-based internal call policy.
func WithTrustPolicy(p ServiceTrustPolicy) MiddlewareOption {
	return func(m *Middleware) { m.policy = p }
}

// WithMiddlewareLogger sets the logger.
func WithMiddlewareLogger(l *slog.Logger) MiddlewareOption {
	return func(m *Middleware) { m.logger = l }
}

// WithMiddlewareMeter sets the meter for the decision counter.
func WithMiddlewareMeter(mt metric.Meter) MiddlewareOption {
	return func(m *Middleware) {
		m.decisions = counter(mt, "idgw.auth.decisions", "Authentication middleware decisions")
	}
}

// NewMiddleware builds a Middleware. A nil validator uses the system clock
// and a nil permission table uses [DefaultPermissionTable].
func NewMiddleware(cfg MiddlewareConfig, trust TrustSource, validator *TokenValidator, permissions *PermissionTable, opts ...MiddlewareOption) *Middleware {
	if validator == nil {
		validator = NewTokenValidator()
	}
	if permissions == nil {
		permissions = DefaultPermissionTable()
	}
	if cfg.ExternalMarkerHeader == "" {
		cfg.ExternalMarkerHeader = HeaderSource
	}
	if cfg.InternalTenantHeader == "" {
		cfg.InternalTenantHeader = HeaderTenant
	}
	m := &Middleware{
		cfg:         cfg,
		trust:       trust,
		validator:   validator,
		permissions: permissions,
		policy:      HeaderTrustPolicy{MarkerHeader: cfg.ExternalMarkerHeader, TenantHeader: cfg.InternalTenantHeader},
		logger:      slog.Default(),
		tracer:      otel.Tracer(tracerName),
	}
	WithMiddlewareMeter(otel.Meter(tracerName))(m)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Decide runs the authentication state machine for req:
//
//  1. allow-listed paths are bypassed as unauthenticated internal traffic
//  2. requests the trust policy deems internal are bypassed with the
//     tenant taken from the policy
//  3. with authentication disabled every request is bypassed
//  4. if the provider configuration cannot be loaded the request is
//     answered with 503
//  5. a missing token is TokenMissing
//  6. a token that validates and uses an allowed algorithm is Authenticated
//  7. anything else is Rejected
//
// TokenMissing and Rejected requests are still forwarded when
// authentication is not required.
func (m *Middleware) Decide(ctx context.Context, req Request) (out Outcome) {
	ctx, span := startSpan(ctx, m.tracer, "auth.Decide")
	defer func() {
		span.SetAttributes(
			attribute.String("auth.decision", out.Decision.String()),
			attribute.Bool("auth.forward", out.Forward),
		)
		span.End()
		m.decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("decision", out.Decision.String())))
	}()

	if m.unauthenticatedPath(req.Path()) {
		return Outcome{
			Decision:      DecisionBypassed,
			Forward:       true,
			Authorization: &AuthorizationContext{},
		}
	}

	if tenantID, internal := m.policy.Internal(req); internal {
		return Outcome{
			Decision: DecisionBypassed,
			Forward:  true,
			Authorization: &AuthorizationContext{
				AuthRequired: m.cfg.Enabled && m.cfg.Required,
				TenantID:     tenantID,
			},
		}
	}

	if !m.cfg.Enabled {
		return Outcome{
			Decision:      DecisionBypassed,
			Forward:       true,
			Authorization: &AuthorizationContext{External: true},
		}
	}

	params, err := m.trustParameters(ctx)
	if err != nil {
		m.logger.WarnContext(ctx, "auth: rejecting request, identity provider configuration unavailable",
			"path", req.Path())
		return Outcome{Decision: DecisionServiceUnavailable, Err: err}
	}

	rejected := func(d Decision, err error) Outcome {
		return Outcome{
			Decision: d,
			Forward:  !m.cfg.Required,
			Authorization: &AuthorizationContext{
				External:     true,
				AuthRequired: m.cfg.Required,
			},
			Err: err,
		}
	}

	token := ExtractBearerToken(req.Header(HeaderAuthorization))
	if token == "" {
		return rejected(DecisionTokenMissing,
			sserr.New(sserr.CodeAuthenticationMissing, "auth: no bearer token"))
	}

	vt, err := m.validator.Parse(token, params)
	if err != nil {
		m.logger.DebugContext(ctx, "auth: token rejected", append(sserrAttrs(err), "path", req.Path())...)
		return rejected(DecisionRejected, err)
	}
	if !slices.Contains(m.cfg.AllowedAlgorithms, vt.Algorithm) {
		err := sserr.New(sserr.CodeAuthenticationAlgorithm, "auth: signing algorithm is not allowed").
			WithDetail("alg", vt.Algorithm)
		m.logger.WarnContext(ctx, "auth: token signed with an algorithm outside the configured allow-list",
			"alg", vt.Algorithm)
		return rejected(DecisionRejected, err)
	}

	tenantID, _ := vt.Claims.Get(ClaimTenant)
	return Outcome{
		Decision: DecisionAuthenticated,
		Forward:  true,
		Authorization: &AuthorizationContext{
			External:       true,
			AuthRequired:   m.cfg.Required,
			Authenticated:  true,
			Claims:         vt.Claims,
			AllowedActions: m.permissions.Derive(ctx, vt.Claims),
			TenantID:       tenantID,
		},
	}
}

// trustParameters waits up to the ready timeout for the provider
// configuration.
func (m *Middleware) trustParameters(ctx context.Context) (*TrustParameters, error) {
	if m.trust == nil {
		return nil, sserr.New(sserr.CodeConfigurationTrust, "auth: no trust source configured")
	}
	if m.cfg.ReadyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.ReadyTimeout)
		defer cancel()
	}
	if !m.trust.EnsureReady(ctx) {
		return nil, sserr.New(sserr.CodeUnavailableKeys, "auth: identity provider configuration is not available")
	}
	params, ok := m.trust.TrustParameters()
	if !ok {
		return nil, sserr.New(sserr.CodeUnavailableKeys, "auth: identity provider configuration is not available")
	}
	return params, nil
}

func (m *Middleware) unauthenticatedPath(path string) bool {
	for _, p := range m.cfg.UnauthenticatedPaths {
		if matchPathPrefix(path, p) {
			return true
		}
	}
	return false
}

// matchPathPrefix reports whether path equals prefix or continues it with a
// new segment, ignoring case.
func matchPathPrefix(path, prefix string) bool {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return false
	}
	if len(path) < len(prefix) || !strings.EqualFold(path[:len(prefix)], prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}
