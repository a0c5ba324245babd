package auth

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/identity-gateway/internal/testutil"
	sserr "github.com/StricklySoft/identity-gateway/pkg/errors"
)

func TestParseJWKS_RSAAndEC(t *testing.T) {
	t.Parallel()
	rsaKey := providerKey(t)
	ecKey := testutil.ECKey(t)

	ks, err := ParseJWKS(testutil.JWKS(t,
		testutil.JWK{Kid: "r", Key: &rsaKey.PublicKey},
		testutil.JWK{Kid: "e", Key: &ecKey.PublicKey},
	))
	require.NoError(t, err)
	require.Equal(t, 2, ks.Len())

	r, ok := ks.Lookup("r")
	require.True(t, ok)
	assert.True(t, rsaKey.PublicKey.Equal(r.Key.(*rsa.PublicKey)))

	e, ok := ks.Lookup("e")
	require.True(t, ok)
	assert.True(t, ecKey.PublicKey.Equal(e.Key.(*ecdsa.PublicKey)))
}

func TestParseJWKS_SkipsUnusableKeys(t *testing.T) {
	t.Parallel()
	doc := `{"keys":[
		{"kty":"RSA","kid":"enc","use":"enc","n":"AQAB","e":"AQAB"},
		{"kty":"oct","kid":"sym","k":"c2VjcmV0"},
		{"kty":"RSA","kid":"bad","n":"!!!","e":"AQAB"},
		{"kty":"EC","kid":"curve","crv":"P-192","x":"AA","y":"AA"}
	]}`
	_, err := ParseJWKS([]byte(doc))
	testutil.RequireErrorCode(t, err, sserr.CodeUnavailableKeys)
}

func TestParseJWKS_InvalidJSON(t *testing.T) {
	t.Parallel()
	_, err := ParseJWKS([]byte("nope"))
	testutil.RequireErrorCode(t, err, sserr.CodeUnavailableKeys)
}

func TestMarshalJWKS_ParsesBack(t *testing.T) {
	t.Parallel()
	pub := &providerKey(t).PublicKey
	data, err := MarshalJWKS(PublicKey{ID: "own", Key: pub, Algorithm: "RS256"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"use":"sig"`)

	ks, err := ParseJWKS(data)
	require.NoError(t, err)
	k, ok := ks.Lookup("own")
	require.True(t, ok)
	assert.Equal(t, "RS256", k.Algorithm)
	assert.True(t, pub.Equal(k.Key.(*rsa.PublicKey)))
}

func TestThumbprint(t *testing.T) {
	t.Parallel()
	a, err := Thumbprint(&providerKey(t).PublicKey)
	require.NoError(t, err)
	b, err := Thumbprint(&providerKey(t).PublicKey)
	require.NoError(t, err)
	c, err := Thumbprint(&testutil.RSAKey(t, "other").PublicKey)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 43, "base64url SHA-256 without padding")

	_, err = Thumbprint("not a key")
	assert.Error(t, err)
}

func TestKeySet_Candidates(t *testing.T) {
	t.Parallel()
	a := PublicKey{ID: "a", Key: &providerKey(t).PublicKey}
	b := PublicKey{ID: "b", Key: &testutil.RSAKey(t, "other").PublicKey}
	ks := NewKeySet(a, b, PublicKey{ID: "nil"})

	assert.Equal(t, 2, ks.Len(), "nil keys are dropped")
	assert.Len(t, ks.candidates(""), 2)
	assert.Len(t, ks.candidates("b"), 1)
	assert.Empty(t, ks.candidates("missing"))
}
