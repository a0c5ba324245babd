package auth

import (
	"slices"
	"time"

	sserr "github.com/StricklySoft/identity-gateway/pkg/errors"
)

// DefaultAllowedAlgorithms is the signing-algorithm allow-list applied to
// externally issued tokens unless configured otherwise.
var DefaultAllowedAlgorithms = []string{"RS256", "RS384", "RS512"}

// TrustParameters is the complete rule set a token is checked against.
// Two instances exist at runtime: one for externally issued tokens, built
// by [ExternalTrustParameters] once the identity provider's keys are known,
// and one for tokens minted by this service, built by
// [InternalTrustParameters].
type TrustParameters struct {
	// RequireSignedTokens must be true. Unsigned tokens are never accepted;
	// parameters with this unset are rejected as misconfigured.
	RequireSignedTokens bool

	ValidateIssuer bool
	ExpectedIssuer string

	ValidateAudience bool
	ExpectedAudience string

	// ValidateLifetime enables exp/nbf checks with ClockSkew leeway.
	// exp is required when lifetime is validated.
	ValidateLifetime bool
	ClockSkew        time.Duration

	// AllowedAlgorithms is checked after the signature and claims verify.
	AllowedAlgorithms []string

	// Keys holds the keys a signature may verify against.
	Keys KeySet
}

// AlgorithmAllowed reports whether alg is in the allow-list.
func (p *TrustParameters) AlgorithmAllowed(alg string) bool {
	return slices.Contains(p.AllowedAlgorithms, alg)
}

// Validate reports inconsistent parameters as [sserr.CodeConfigurationTrust].
func (p *TrustParameters) Validate() error {
	switch {
	case !p.RequireSignedTokens:
		return sserr.New(sserr.CodeConfigurationTrust, "auth: unsigned tokens cannot be trusted")
	case len(p.AllowedAlgorithms) == 0:
		return sserr.New(sserr.CodeConfigurationTrust, "auth: algorithm allow-list is empty")
	case p.Keys.Len() == 0:
		return sserr.New(sserr.CodeConfigurationTrust, "auth: signing key set is empty")
	case p.ValidateIssuer && p.ExpectedIssuer == "":
		return sserr.New(sserr.CodeConfigurationTrust, "auth: issuer validation enabled without an expected issuer")
	case p.ValidateAudience && p.ExpectedAudience == "":
		return sserr.New(sserr.CodeConfigurationTrust, "auth: audience validation enabled without an expected audience")
	case p.ClockSkew < 0:
		return sserr.New(sserr.CodeConfigurationTrust, "auth: clock skew must not be negative")
	}
	return nil
}

// ExternalTrustConfig configures trust in the external identity provider.
type ExternalTrustConfig struct {
	// Issuer is the expected "iss". When empty, the issuer published in the
	// provider's discovery document is used.
	Issuer string `env:"ISSUER" yaml:"issuer" json:"issuer"`

	// Audience is the expected "aud", checked only when ValidateAudience is set.
	Audience         string `env:"AUDIENCE" yaml:"audience" json:"audience"`
	ValidateAudience bool   `env:"VALIDATE_AUDIENCE" envDefault:"false" yaml:"validate_audience" json:"validate_audience"`

	ClockSkew         time.Duration `env:"CLOCK_SKEW" envDefault:"120s" yaml:"clock_skew" json:"clock_skew"`
	AllowedAlgorithms []string      `env:"ALLOWED_ALGORITHMS" envDefault:"RS256,RS384,RS512" yaml:"allowed_algorithms" json:"allowed_algorithms"`
}

// ExternalTrustParameters builds the parameters for provider-issued
// tokens: issuer and lifetime validated, algorithm allow-list enforced.
// discoveredIssuer is used when cfg.Issuer is empty.
func ExternalTrustParameters(cfg ExternalTrustConfig, keys KeySet, discoveredIssuer string) *TrustParameters {
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = discoveredIssuer
	}
	algs := cfg.AllowedAlgorithms
	if len(algs) == 0 {
		algs = DefaultAllowedAlgorithms
	}
	return &TrustParameters{
		RequireSignedTokens: true,
		ValidateIssuer:      true,
		ExpectedIssuer:      issuer,
		ValidateAudience:    cfg.ValidateAudience,
		ExpectedAudience:    cfg.Audience,
		ValidateLifetime:    true,
		ClockSkew:           cfg.ClockSkew,
		AllowedAlgorithms:   slices.Clone(algs),
		Keys:                keys,
	}
}

// InternalTrustParameters builds the parameters for tokens this service
// minted itself. The issuer is not checked because it follows the host the
// caller reached, and no clock skew is allowed because issuer and verifier
// share a clock.
func InternalTrustParameters(keys KeySet) *TrustParameters {
	return &TrustParameters{
		RequireSignedTokens: true,
		ValidateLifetime:    true,
		ClockSkew:           0,
		AllowedAlgorithms:   []string{"RS256"},
		Keys:                keys,
	}
}
