package auth

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"

	sserr "github.com/StricklySoft/identity-gateway/pkg/errors"
)

// maxTokenSize bounds the encoded token length accepted for parsing.
const maxTokenSize = 8192

// VerifiedToken is a token that passed every check of its TrustParameters.
type VerifiedToken struct {
	Claims    ClaimSet
	Algorithm string
	KeyID     string

	// Audience and ExpiresAt are decoded from the registered claims; both
	// are zero when the token did not carry them.
	Audience  []string
	ExpiresAt time.Time
}

// TokenValidator checks bearer tokens against [TrustParameters]. It holds
// no mutable state and is safe for concurrent use.
type TokenValidator struct {
	now    func() time.Time
	logger *slog.Logger
}

// ValidatorOption configures a TokenValidator.
type ValidatorOption func(*TokenValidator)

// WithClock sets the time source for lifetime checks.
func WithClock(now func() time.Time) ValidatorOption {
	return func(v *TokenValidator) { v.now = now }
}

// WithValidatorLogger sets the logger used to record rejection reasons.
func WithValidatorLogger(l *slog.Logger) ValidatorOption {
	return func(v *TokenValidator) { v.logger = l }
}

// NewTokenValidator returns a validator using the system clock.
func NewTokenValidator(opts ...ValidatorOption) *TokenValidator {
	v := &TokenValidator{now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate reports whether token is fully valid under params and returns
// its claims if so. The rejection reason is logged at debug level and
// never returned.
func (v *TokenValidator) Validate(token string, params *TrustParameters) (ClaimSet, bool) {
	vt, err := v.Parse(token, params)
	if err != nil {
		v.logger.Debug("auth: token rejected", sserrAttrs(err)...)
		return ClaimSet{}, false
	}
	return vt.Claims, true
}

// Parse checks token against params in order: signature, issuer, audience,
// lifetime, then signing algorithm. Failures are *sserr.Error values with
// an AUTH code describing the first failed check, or CFG_003 when params
// are unusable. Parse never panics.
func (v *TokenValidator) Parse(token string, params *TrustParameters) (vt *VerifiedToken, err error) {
	defer func() {
		if r := recover(); r != nil {
			vt = nil
			err = sserr.Newf(sserr.CodeAuthenticationInvalid, "auth: token validation panicked: %v", r)
		}
	}()

	if params == nil {
		return nil, sserr.New(sserr.CodeConfigurationTrust, "auth: no trust parameters")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if token == "" {
		return nil, sserr.New(sserr.CodeAuthenticationMissing, "auth: no token presented")
	}
	if len(token) > maxTokenSize {
		return nil, sserr.Newf(sserr.CodeAuthenticationInvalid,
			"auth: token exceeds %d bytes", maxTokenSize)
	}

	parser := jwt.NewParser(jwt.WithoutClaimsValidation())

	unverified, _, err := parser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil, classifyError(err)
	}
	alg := unverified.Method.Alg()
	kid, _ := unverified.Header["kid"].(string)

	parsed, err := verifySignature(parser, token, params.Keys.candidates(kid))
	if err != nil {
		return nil, classifyError(err).WithDetail("kid", kid)
	}
	claims := parsed.Claims.(jwt.MapClaims)

	if params.ValidateIssuer {
		iss, _ := claims.GetIssuer()
		if iss != params.ExpectedIssuer {
			return nil, sserr.New(sserr.CodeAuthenticationIssuer, "auth: token issuer is not trusted").
				WithDetail("issuer", iss)
		}
	}

	aud, _ := claims.GetAudience()
	if params.ValidateAudience && !slices.Contains(aud, params.ExpectedAudience) {
		return nil, sserr.New(sserr.CodeAuthenticationAudience, "auth: token audience does not match")
	}

	if params.ValidateLifetime {
		lifetime := jwt.NewValidator(
			jwt.WithLeeway(params.ClockSkew),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(v.now),
		)
		if err := lifetime.Validate(claims); err != nil {
			return nil, classifyError(err)
		}
	}

	if !params.AlgorithmAllowed(alg) {
		return nil, sserr.New(sserr.CodeAuthenticationAlgorithm, "auth: signing algorithm is not allowed").
			WithDetail("alg", alg)
	}

	out := &VerifiedToken{
		Claims:    ClaimSetFromMap(claims),
		Algorithm: alg,
		KeyID:     kid,
		Audience:  aud,
	}
	if exp, _ := claims.GetExpirationTime(); exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}

// verifySignature tries each candidate key and returns the first token
// whose signature verifies. Only signature mismatches move on to the next
// key; any other failure is final.
func verifySignature(parser *jwt.Parser, token string, candidates []PublicKey) (*jwt.Token, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no trusted key matches the token", jwt.ErrTokenUnverifiable)
	}

	var lastErr error
	for _, key := range candidates {
		parsed, err := parser.Parse(token, func(t *jwt.Token) (any, error) {
			return keyForMethod(t.Method, key.Key)
		})
		if err == nil {
			return parsed, nil
		}
		lastErr = err
		if !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			break
		}
	}
	return nil, lastErr
}

// keyForMethod returns key if it can verify signatures of method. Only
// asymmetric methods are accepted, so a public key can never be used as an
// HMAC secret.
func keyForMethod(method jwt.SigningMethod, key any) (any, error) {
	switch method.(type) {
	case *jwt.SigningMethodRSA, *jwt.SigningMethodRSAPSS:
		if k, ok := key.(*rsa.PublicKey); ok {
			return k, nil
		}
	case *jwt.SigningMethodECDSA:
		if k, ok := key.(*ecdsa.PublicKey); ok {
			return k, nil
		}
	default:
		return nil, fmt.Errorf("auth: signing method %q is not supported", method.Alg())
	}
	return nil, fmt.Errorf("%w: key type %T cannot verify %s", jwt.ErrTokenSignatureInvalid, key, method.Alg())
}

// classifyError maps jwt errors onto AUTH codes.
func classifyError(err error) *sserr.Error {
	if e, ok := sserr.AsError(err); ok {
		return e
	}
	switch {
	case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
		return sserr.Wrap(err, sserr.CodeAuthenticationExpired, "auth: token is outside its validity window")
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return sserr.Wrap(err, sserr.CodeAuthenticationClaims, "auth: token is missing a required claim")
	case errors.Is(err, jwt.ErrTokenMalformed):
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "auth: token is malformed")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "auth: token signature is invalid")
	default:
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "auth: token validation failed")
	}
}

func sserrAttrs(err error) []any {
	if e, ok := sserr.AsError(err); ok {
		return e.LogAttrs()
	}
	return []any{"error", err}
}
