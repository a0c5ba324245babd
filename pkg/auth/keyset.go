package auth

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"

	sserr "github.com/StricklySoft/identity-gateway/pkg/errors"
)

// PublicKey is one verification key of a [KeySet].
type PublicKey struct {
	// ID is the JWK "kid". It may be empty for keys published without one.
	ID string

	// Key is an *rsa.PublicKey or *ecdsa.PublicKey.
	Key crypto.PublicKey

	// Algorithm is the JWK "alg" hint, if published.
	Algorithm string
}

// KeySet is an immutable set of verification keys. The zero value is an
// empty set that verifies nothing.
type KeySet struct {
	keys []PublicKey
}

// NewKeySet returns a KeySet holding keys. Keys with a nil Key are dropped.
func NewKeySet(keys ...PublicKey) KeySet {
	out := make([]PublicKey, 0, len(keys))
	for _, k := range keys {
		if k.Key != nil {
			out = append(out, k)
		}
	}
	return KeySet{keys: out}
}

// Len returns the number of keys in the set.
func (s KeySet) Len() int { return len(s.keys) }

// Keys returns a copy of the keys in publication order.
func (s KeySet) Keys() []PublicKey {
	return append([]PublicKey(nil), s.keys...)
}

// Lookup returns the key with the given kid.
func (s KeySet) Lookup(kid string) (PublicKey, bool) {
	for _, k := range s.keys {
		if k.ID == kid {
			return k, true
		}
	}
	return PublicKey{}, false
}

// candidates returns the keys that may have signed a token with the given
// kid: the matching key when kid is set, every key otherwise.
func (s KeySet) candidates(kid string) []PublicKey {
	if kid == "" {
		return s.keys
	}
	if k, ok := s.Lookup(kid); ok {
		return []PublicKey{k}
	}
	return nil
}

// jwkDocument is the JSON Web Key Set wire format.
type jwkDocument struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid,omitempty"`
	Alg string `json:"alg,omitempty"`
	Use string `json:"use,omitempty"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`
}

// ParseJWKS decodes a JSON Web Key Set. RSA and EC (P-256, P-384, P-521)
// signing keys are kept; encryption keys and malformed entries are skipped.
// An empty result is an error.
func ParseJWKS(data []byte) (KeySet, error) {
	var doc jwkDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return KeySet{}, sserr.Wrap(err, sserr.CodeUnavailableKeys, "auth: failed to parse JWKS")
	}

	keys := make([]PublicKey, 0, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		var (
			pub crypto.PublicKey
			err error
		)
		switch k.Kty {
		case "RSA":
			pub, err = parseRSAPublicKey(k.N, k.E)
		case "EC":
			pub, err = parseECPublicKey(k.Crv, k.X, k.Y)
		default:
			continue
		}
		if err != nil {
			continue
		}
		keys = append(keys, PublicKey{ID: k.Kid, Key: pub, Algorithm: k.Alg})
	}

	if len(keys) == 0 {
		return KeySet{}, sserr.New(sserr.CodeUnavailableKeys, "auth: JWKS contains no usable signing keys")
	}
	return KeySet{keys: keys}, nil
}

// MarshalJWKS encodes keys as a JSON Web Key Set with use "sig".
func MarshalJWKS(keys ...PublicKey) ([]byte, error) {
	doc := jwkDocument{Keys: make([]jwk, 0, len(keys))}
	for _, k := range keys {
		entry, err := toJWK(k.Key)
		if err != nil {
			return nil, err
		}
		entry.Kid = k.ID
		entry.Alg = k.Algorithm
		entry.Use = "sig"
		doc.Keys = append(doc.Keys, entry)
	}
	return json.Marshal(doc)
}

// Thumbprint returns the RFC 7638 SHA-256 thumbprint of pub, base64url
// encoded. It is used as the kid of keys this service publishes.
func Thumbprint(pub crypto.PublicKey) (string, error) {
	k, err := toJWK(pub)
	if err != nil {
		return "", err
	}

	// Required members only, in lexicographic order.
	var canonical string
	switch k.Kty {
	case "RSA":
		canonical = fmt.Sprintf(`{"e":%q,"kty":"RSA","n":%q}`, k.E, k.N)
	case "EC":
		canonical = fmt.Sprintf(`{"crv":%q,"kty":"EC","x":%q,"y":%q}`, k.Crv, k.X, k.Y)
	}
	sum := sha256.Sum256([]byte(canonical))
	return base64.RawURLEncoding.EncodeToString(sum[:]), nil
}

func toJWK(pub crypto.PublicKey) (jwk, error) {
	switch key := pub.(type) {
	case *rsa.PublicKey:
		return jwk{
			Kty: "RSA",
			N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}, nil
	case *ecdsa.PublicKey:
		size := (key.Curve.Params().BitSize + 7) / 8
		return jwk{
			Kty: "EC",
			Crv: key.Curve.Params().Name,
			X:   base64.RawURLEncoding.EncodeToString(key.X.FillBytes(make([]byte, size))),
			Y:   base64.RawURLEncoding.EncodeToString(key.Y.FillBytes(make([]byte, size))),
		}, nil
	default:
		return jwk{}, sserr.Newf(sserr.CodeConfigurationKey, "auth: unsupported public key type %T", pub)
	}
}

func parseRSAPublicKey(nb64, eb64 string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nb64)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to decode RSA modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eb64)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to decode RSA exponent: %w", err)
	}
	e := new(big.Int).SetBytes(eBytes)
	if len(nBytes) == 0 || !e.IsInt64() || e.Int64() < 3 {
		return nil, fmt.Errorf("auth: invalid RSA key parameters")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: int(e.Int64())}, nil
}

func parseECPublicKey(crv, xb64, yb64 string) (*ecdsa.PublicKey, error) {
	var curve elliptic.Curve
	switch crv {
	case "P-256":
		curve = elliptic.P256()
	case "P-384":
		curve = elliptic.P384()
	case "P-521":
		curve = elliptic.P521()
	default:
		return nil, fmt.Errorf("auth: unsupported EC curve %q", crv)
	}
	xBytes, err := base64.RawURLEncoding.DecodeString(xb64)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to decode EC x coordinate: %w", err)
	}
	yBytes, err := base64.RawURLEncoding.DecodeString(yb64)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to decode EC y coordinate: %w", err)
	}
	return &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}, nil
}
