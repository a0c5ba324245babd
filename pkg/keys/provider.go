package keys

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/identity-gateway/pkg/auth"
	sserr "github.com/StricklySoft/identity-gateway/pkg/errors"
)

const tracerName = "github.com/StricklySoft/identity-gateway/pkg/keys"

// Provider is the single place key material comes from.
//
// It satisfies [auth.KeySetSource], so it can back an
// [auth.OIDCConfigCache] directly.
type Provider struct {
	own      Source
	external auth.KeySetSource
	logger   *slog.Logger
	tracer   trace.Tracer

	mu   sync.Mutex
	pair *KeyPair
}

var _ auth.KeySetSource = (*Provider)(nil)

// ProviderOption configures a [Provider].
type ProviderOption func(*Provider)

// WithLogger sets the logger. The default is [slog.Default].
func WithLogger(l *slog.Logger) ProviderOption {
	return func(p *Provider) { p.logger = l }
}

// NewProvider returns a Provider reading the own key from own and external
// keys from external. external may be nil when the service only validates
// tokens it minted itself.
func NewProvider(own Source, external auth.KeySetSource, opts ...ProviderOption) *Provider {
	p := &Provider{own: own, external: external, logger: slog.Default(), tracer: otel.Tracer(tracerName)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OwnSigningKeyPair returns the service key pair, loading it on the first
// successful call. Errors carry [sserr.CodeConfigurationKey] unless the
// source was merely unreachable; callers treat any error at startup as
// fatal.
func (p *Provider) OwnSigningKeyPair(ctx context.Context) (*KeyPair, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pair != nil {
		return p.pair, nil
	}

	ctx, span := p.tracer.Start(ctx, "keys.LoadSigningKey",
		trace.WithAttributes(attribute.String("keys.source", p.own.Name())))
	defer span.End()

	pair, err := p.load(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("keys.kid", pair.KeyID()))
	span.SetStatus(codes.Ok, "")

	p.logger.InfoContext(ctx, "keys: signing key loaded", "source", p.own.Name(), "kid", pair.KeyID())
	p.pair = pair
	return pair, nil
}

func (p *Provider) load(ctx context.Context) (*KeyPair, error) {
	data, err := p.own.Load(ctx)
	if err != nil {
		return nil, err
	}
	priv, err := ParsePrivateKeyPEM(string(data))
	if err != nil {
		return nil, err
	}
	return NewKeyPair(priv)
}

// ExternalSigningKeys fetches the identity provider's current keys.
func (p *Provider) ExternalSigningKeys(ctx context.Context) (*auth.ProviderKeys, error) {
	if p.external == nil {
		return nil, sserr.New(sserr.CodeConfigurationTrust, "keys: no external key source configured")
	}
	return p.external.FetchKeys(ctx)
}

// FetchKeys implements [auth.KeySetSource].
func (p *Provider) FetchKeys(ctx context.Context) (*auth.ProviderKeys, error) {
	return p.ExternalSigningKeys(ctx)
}

// InternalTrustParameters returns the parameters for validating tokens
// minted with the own key pair.
func (p *Provider) InternalTrustParameters(ctx context.Context) (*auth.TrustParameters, error) {
	pair, err := p.OwnSigningKeyPair(ctx)
	if err != nil {
		return nil, err
	}
	return auth.InternalTrustParameters(pair.KeySet()), nil
}
