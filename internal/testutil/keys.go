package testutil

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"sync"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var (
	rsaKeysMu sync.Mutex
	rsaKeys   = map[string]*rsa.PrivateKey{}
)

// RSAKey returns a 2048-bit RSA key generated once per name for the life
// of the test binary.
func RSAKey(t testing.TB, name string) *rsa.PrivateKey {
	t.Helper()
	rsaKeysMu.Lock()
	defer rsaKeysMu.Unlock()
	if k, ok := rsaKeys[name]; ok {
		return k
	}
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "generate RSA key")
	rsaKeys[name] = k
	return k
}

// ECKey returns a fresh P-256 key.
func ECKey(t testing.TB) *ecdsa.PrivateKey {
	t.Helper()
	k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err, "generate EC key")
	return k
}

// PKCS1PrivateKeyPEM encodes key as an "RSA PRIVATE KEY" block.
func PKCS1PrivateKeyPEM(key *rsa.PrivateKey) string {
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}))
}

// PKCS8PrivateKeyPEM encodes key as a "PRIVATE KEY" block.
func PKCS8PrivateKeyPEM(t testing.TB, key crypto.PrivateKey) string {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err, "marshal PKCS#8 key")
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

// PublicKeyPEM encodes pub as a "PUBLIC KEY" block.
func PublicKeyPEM(t testing.TB, pub crypto.PublicKey) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err, "marshal public key")
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

// SignToken signs claims with method and key, setting the kid header when
// kid is non-empty.
func SignToken(t testing.TB, method jwt.SigningMethod, key any, kid string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(method, claims)
	if kid != "" {
		tok.Header["kid"] = kid
	}
	s, err := tok.SignedString(key)
	require.NoError(t, err, "sign token")
	return s
}

// JWK pairs a key id with a public key for [JWKS].
type JWK struct {
	Kid string
	Key crypto.PublicKey
}

// JWKS encodes keys as a JSON Web Key Set document. Only RSA and P-256/384/521
// ECDSA keys are supported.
func JWKS(t testing.TB, keys ...JWK) []byte {
	t.Helper()
	b64 := base64.RawURLEncoding.EncodeToString
	out := make([]map[string]string, 0, len(keys))
	for _, k := range keys {
		switch pub := k.Key.(type) {
		case *rsa.PublicKey:
			out = append(out, map[string]string{
				"kty": "RSA", "kid": k.Kid, "use": "sig", "alg": "RS256",
				"n": b64(pub.N.Bytes()),
				"e": b64(big.NewInt(int64(pub.E)).Bytes()),
			})
		case *ecdsa.PublicKey:
			size := (pub.Curve.Params().BitSize + 7) / 8
			x, y := pub.X.FillBytes(make([]byte, size)), pub.Y.FillBytes(make([]byte, size))
			out = append(out, map[string]string{
				"kty": "EC", "kid": k.Kid, "use": "sig",
				"crv": pub.Curve.Params().Name,
				"x":   b64(x),
				"y":   b64(y),
			})
		default:
			t.Fatalf("testutil: unsupported key type %T", k.Key)
		}
	}
	data, err := json.Marshal(map[string]any{"keys": out})
	require.NoError(t, err, "marshal JWKS")
	return data
}
