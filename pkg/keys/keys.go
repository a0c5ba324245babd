// Package keys loads the RSA key pair this service signs its own tokens
// with and exposes the external provider's verification keys behind one
// [Provider].
//
// The own key pair is startup material: a service that cannot read it must
// not serve traffic. External keys are fetched per request through the
// OIDC cache and may be temporarily unavailable.
package keys

import (
	"crypto/rsa"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/StricklySoft/identity-gateway/pkg/auth"
	sserr "github.com/StricklySoft/identity-gateway/pkg/errors"
)

// SigningAlgorithm is the JWS algorithm of every internally minted token.
const SigningAlgorithm = "RS256"

// minKeyBits rejects keys too short for RS256.
const minKeyBits = 2048

// KeyPair is this service's signing key and its published public half.
type KeyPair struct {
	Private *rsa.PrivateKey

	// Public carries the RFC 7638 thumbprint as its ID.
	Public auth.PublicKey
}

// NewKeyPair derives the public key and kid from priv.
func NewKeyPair(priv *rsa.PrivateKey) (*KeyPair, error) {
	if priv == nil {
		return nil, sserr.New(sserr.CodeConfigurationKey, "keys: private key is nil")
	}
	if priv.N.BitLen() < minKeyBits {
		return nil, sserr.Newf(sserr.CodeConfigurationKey,
			"keys: private key is %d bits, need at least %d", priv.N.BitLen(), minKeyBits)
	}
	kid, err := auth.Thumbprint(&priv.PublicKey)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeConfigurationKey, "keys: thumbprint")
	}
	return &KeyPair{
		Private: priv,
		Public:  auth.PublicKey{ID: kid, Key: &priv.PublicKey, Algorithm: SigningAlgorithm},
	}, nil
}

// KeyID returns the kid placed in token headers.
func (p *KeyPair) KeyID() string { return p.Public.ID }

// KeySet returns a set holding only the public key, for validating tokens
// this service minted.
func (p *KeyPair) KeySet() auth.KeySet { return auth.NewKeySet(p.Public) }

// JWKS encodes the public key as a JWK Set document.
func (p *KeyPair) JWKS() ([]byte, error) { return auth.MarshalJWKS(p.Public) }

// normalizePEM turns literal "\n" sequences into newlines. Secrets injected
// through single-line environment variables often carry them.
func normalizePEM(s string) []byte {
	return []byte(strings.ReplaceAll(strings.TrimSpace(s), `\n`, "\n"))
}

// ParsePrivateKeyPEM decodes a PKCS#1 or PKCS#8 RSA private key.
func ParsePrivateKeyPEM(data string) (*rsa.PrivateKey, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(normalizePEM(data))
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeConfigurationKey, "keys: parse private key")
	}
	return key, nil
}

// ParsePublicKeyPEM decodes a PKIX or PKCS#1 RSA public key, or the key of
// an RSA certificate.
func ParsePublicKeyPEM(data string) (*rsa.PublicKey, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM(normalizePEM(data))
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeConfigurationKey, "keys: parse public key")
	}
	return key, nil
}
