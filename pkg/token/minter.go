// Package token mints the gateway's own tokens and implements the
// tenant-switch exchange.
//
// A minted token carries the caller's identity claims plus the tenant
// context picked by [tenant.Resolver]:
//
//	tenant             the active tenant, when one was resolved
//	role               one claim per role in that tenant
//	available_tenants  one claim per tenant the subject is assigned to
//
// Tokens are signed RS256 with the key from [keys.Provider] and carry its
// thumbprint as kid.
package token

import (
	"context"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/identity-gateway/pkg/auth"
	sserr "github.com/StricklySoft/identity-gateway/pkg/errors"
	"github.com/StricklySoft/identity-gateway/pkg/keys"
	"github.com/StricklySoft/identity-gateway/pkg/tenant"
)

const tracerName = "github.com/StricklySoft/identity-gateway/pkg/token"

// DefaultLifetime applies when Options.Expiry is zero.
const DefaultLifetime = 30 * 24 * time.Hour

// managedClaims are always set by the minter. Copies carried over from an
// input token are dropped.
var managedClaims = []string{
	auth.ClaimIssuedAt,
	auth.ClaimTenant,
	auth.ClaimRole,
	auth.ClaimAvailableTenants,
	auth.ClaimIssuer,
	auth.ClaimAudience,
	auth.ClaimExpiry,
	auth.ClaimNotBefore,
}

// Options are the per-token parameters of [Minter.Mint].
type Options struct {
	// Issuer is required. See [IssuerFromRequest].
	Issuer string

	// Audience is omitted from the token when empty.
	Audience string

	// Expiry defaults to now plus [DefaultLifetime].
	Expiry time.Time
}

// Minter signs tokens with the service key pair. It is safe for
// concurrent use.
type Minter struct {
	pair   *keys.KeyPair
	now    func() time.Time
	tracer trace.Tracer
}

// MinterOption configures a [Minter].
type MinterOption func(*Minter)

// WithClock overrides the time source for iat and the default expiry.
func WithClock(now func() time.Time) MinterOption {
	return func(m *Minter) { m.now = now }
}

// NewMinter returns a Minter signing with pair.
func NewMinter(pair *keys.KeyPair, opts ...MinterOption) *Minter {
	m := &Minter{pair: pair, now: time.Now, tracer: otel.Tracer(tracerName)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Mint signs claims extended with the tenant context of res. res may be
// nil or unresolved, in which case no tenant or role claims are added.
func (m *Minter) Mint(ctx context.Context, claims auth.ClaimSet, res *tenant.Resolution, opts Options) (signed string, err error) {
	_, span := m.tracer.Start(ctx, "token.Mint")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}()

	if opts.Issuer == "" {
		return "", sserr.New(sserr.CodeValidationRequired, "token: issuer is required")
	}
	if m.pair == nil {
		return "", sserr.New(sserr.CodeInternalSigning, "token: no signing key")
	}

	now := m.now()
	expiry := opts.Expiry
	if expiry.IsZero() {
		expiry = now.Add(DefaultLifetime)
	}

	out := claims.Without(managedClaims...)
	out.Add(auth.ClaimIssuedAt, strconv.FormatInt(now.Unix(), 10))
	if res.Resolved() {
		out.Add(auth.ClaimTenant, res.TenantID)
		for _, role := range res.Roles() {
			out.Add(auth.ClaimRole, role)
		}
		span.SetAttributes(attribute.String("token.tenant", res.TenantID))
	}
	for _, id := range res.TenantIDs() {
		out.Add(auth.ClaimAvailableTenants, id)
	}
	out.Add(auth.ClaimIssuer, opts.Issuer)
	if opts.Audience != "" {
		out.Add(auth.ClaimAudience, opts.Audience)
	}
	out.Add(auth.ClaimExpiry, strconv.FormatInt(expiry.Unix(), 10))

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, out.MapClaims())
	tok.Header["kid"] = m.pair.KeyID()
	signed, err = tok.SignedString(m.pair.Private)
	if err != nil {
		return "", sserr.Wrap(err, sserr.CodeInternalSigning, "token: sign")
	}
	return signed, nil
}
