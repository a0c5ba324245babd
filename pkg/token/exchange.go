package token

import (
	"context"
	"log/slog"
	"time"

	"github.com/StricklySoft/identity-gateway/pkg/auth"
	sserr "github.com/StricklySoft/identity-gateway/pkg/errors"
	"github.com/StricklySoft/identity-gateway/pkg/keys"
	"github.com/StricklySoft/identity-gateway/pkg/tenant"
)

// switchClaims are carried from the presented token into a switched one.
var switchClaims = []string{auth.ClaimSubject, auth.ClaimName, auth.ClaimEmail}

// Issuer resolves the tenant for a subject and mints the token.
type Issuer struct {
	resolver  *tenant.Resolver
	minter    *Minter
	validator *auth.TokenValidator
	internal  *auth.TrustParameters
	logger    *slog.Logger
}

// IssuerOption configures an [Issuer].
type IssuerOption func(*Issuer)

// WithLogger sets the logger. The default is [slog.Default].
func WithLogger(l *slog.Logger) IssuerOption {
	return func(i *Issuer) { i.logger = l }
}

// WithValidator replaces the validator used for internal tokens.
func WithValidator(v *auth.TokenValidator) IssuerOption {
	return func(i *Issuer) { i.validator = v }
}

// WithMinter replaces the minter, e.g. to fix its clock.
func WithMinter(m *Minter) IssuerOption {
	return func(i *Issuer) { i.minter = m }
}

// NewIssuer returns an Issuer minting with pair. Tokens presented to
// [Issuer.Switch] and [Issuer.VerifyInternal] must verify against pair.
func NewIssuer(resolver *tenant.Resolver, pair *keys.KeyPair, opts ...IssuerOption) *Issuer {
	i := &Issuer{
		resolver:  resolver,
		internal:  auth.InternalTrustParameters(pair.KeySet()),
		validator: auth.NewTokenValidator(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.minter == nil {
		i.minter = NewMinter(pair)
	}
	return i
}

// IssueRequest is the input to [Issuer.Issue].
type IssueRequest struct {
	// Claims must include sub. name, when present, refreshes the display
	// name stored on the resolved assignment.
	Claims auth.ClaimSet

	// Tenant optionally names the tenant to sign in to.
	Tenant string

	Issuer   string
	Audience string
	Expiry   time.Time
}

// Issue resolves the subject's tenant and mints a token for it. An
// explicit tenant the subject is not assigned to fails with
// [sserr.CodeAuthorizationTenant] and no token is minted.
func (i *Issuer) Issue(ctx context.Context, req IssueRequest) (string, *tenant.Resolution, error) {
	sub, ok := req.Claims.Subject()
	if !ok || sub == "" {
		return "", nil, sserr.New(sserr.CodeAuthenticationClaims, "token: subject claim is required")
	}
	name, _ := req.Claims.Get(auth.ClaimName)

	res, err := i.resolver.Resolve(ctx, tenant.Request{
		UserID:          sub,
		RequestedTenant: req.Tenant,
		DisplayName:     name,
	})
	if err != nil {
		return "", nil, err
	}

	signed, err := i.minter.Mint(ctx, req.Claims, res, Options{
		Issuer:   req.Issuer,
		Audience: req.Audience,
		Expiry:   req.Expiry,
	})
	if err != nil {
		return "", nil, err
	}
	i.logger.DebugContext(ctx, "token: issued",
		"user_id", sub, "tenant", res.TenantID, "source", string(res.Source))
	return signed, res, nil
}

// VerifyInternal validates a token this service minted.
func (i *Issuer) VerifyInternal(token string) (*auth.VerifiedToken, error) {
	return i.validator.Parse(token, i.internal)
}

// Switch re-scopes a token minted by this service to tenantID. The subject,
// name and email claims, the audience and the expiry carry over; tenant,
// role and available_tenants claims are rebuilt.
//
// Error codes returned:
//   - AUTH_*: the presented token is missing or invalid
//   - [sserr.CodeAuthorizationTenant]: the subject has no assignment to tenantID
//   - store and signing errors from resolution and minting
func (i *Issuer) Switch(ctx context.Context, token, tenantID, issuer string) (string, error) {
	if tenantID == "" {
		return "", sserr.New(sserr.CodeValidationRequired, "token: tenant is required")
	}
	vt, err := i.VerifyInternal(token)
	if err != nil {
		return "", err
	}

	var audience string
	if len(vt.Audience) > 0 {
		audience = vt.Audience[0]
	}
	signed, _, err := i.Issue(ctx, IssueRequest{
		Claims:   vt.Claims.Keep(switchClaims...),
		Tenant:   tenantID,
		Issuer:   issuer,
		Audience: audience,
		Expiry:   vt.ExpiresAt,
	})
	if err != nil {
		if sserr.IsAuthorization(err) {
			sub, _ := vt.Claims.Subject()
			i.logger.InfoContext(ctx, "token: tenant switch denied", "user_id", sub, "tenant", tenantID)
		}
		return "", err
	}
	return signed, nil
}
