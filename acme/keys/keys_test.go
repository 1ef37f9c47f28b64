package keys

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"
	"testing"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedP256Key() *ecdsa.PrivateKey {
	d := new(big.Int).SetBytes(bytes.Repeat([]byte{0x42}, 32))
	x, y := elliptic.P256().ScalarBaseMult(d.Bytes())
	return &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y},
		D:         d,
	}
}

func coord(v *big.Int) string {
	buf := make([]byte, 32)
	v.FillBytes(buf)
	return base64.RawURLEncoding.EncodeToString(buf)
}

func TestKeyAuth(t *testing.T) {
	key := fixedP256Key()

	// RFC 7638 canonical form: required members only, lexicographic order, no
	// whitespace.
	canonical := fmt.Sprintf(`{"crv":"P-256","kty":"EC","x":"%s","y":"%s"}`,
		coord(key.X), coord(key.Y))
	digest := sha256.Sum256([]byte(canonical))
	expectedThumbprint := base64.RawURLEncoding.EncodeToString(digest[:])

	thumbprint, err := JWKThumbprint(key)
	require.NoError(t, err)
	assert.Equal(t, expectedThumbprint, thumbprint)

	keyAuth, err := KeyAuth(key, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123."+expectedThumbprint, keyAuth)

	// Deterministic for the same inputs.
	again, err := KeyAuth(key, "abc123")
	require.NoError(t, err)
	assert.Equal(t, keyAuth, again)
}

// rfc7638Key is the RSA key of RFC 7638 section 3.1. Only the public half is
// published, which is all a thumbprint needs.
func rfc7638Key(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	n, err := base64.RawURLEncoding.DecodeString(
		"0vx7agoebGcQSuuPiLJXZptN9nndrQmbXEps2aiAFbWhM78LhWx4cbbfAAtVT86zwu1RK7aPFFxuhDR1L6tSoc_BJECPebWKRXjBZCiFV4n3oknjhMstn64tZ_2W-5JsGY4Hc5n9yBXArwl93lqt7_RN5w6Cf0h4QyQ5v-65YGjQR0_FDW2QvzqY368QQMicAtaSqzs8KJZgnYb9c7d0zgdAZHzu6qMQvRL5hajrn1n91CbOpbISD08qNLyrdkt-bFTWhAI4vMQFh6WeZu0fM4lFd2NcRwr3XPksINHaQ-G_xBniIqbw0Ls1jF44-csFCur-kEgU8awapJzKnqDKgw")
	require.NoError(t, err)
	return &rsa.PrivateKey{
		PublicKey: rsa.PublicKey{N: new(big.Int).SetBytes(n), E: 65537},
	}
}

func TestKeyAuthKnownThumbprint(t *testing.T) {
	key := rfc7638Key(t)

	thumbprint, err := JWKThumbprint(key)
	require.NoError(t, err)
	assert.Equal(t, "NzbLsXh8uDCcd-6MNwXF4W_7noWXFZAfHkxZsRGC9Xs", thumbprint)

	keyAuth, err := KeyAuth(key, "evaGxfADs6pSRb2LAv9IZf17Dt3juxGJ-PCt92wr-oA")
	require.NoError(t, err)
	assert.Equal(t,
		"evaGxfADs6pSRb2LAv9IZf17Dt3juxGJ-PCt92wr-oA.NzbLsXh8uDCcd-6MNwXF4W_7noWXFZAfHkxZsRGC9Xs",
		keyAuth)
}

func TestDNSKeyAuth(t *testing.T) {
	digest := sha256.Sum256([]byte("abc123.thumb"))
	assert.Equal(t,
		base64.RawURLEncoding.EncodeToString(digest[:]),
		DNSKeyAuth("abc123.thumb"))
	assert.Len(t, DNSKeyAuth("anything"), 43)
}

func TestSigAlgForKey(t *testing.T) {
	testCases := []struct {
		keyType  string
		expected jose.SignatureAlgorithm
	}{
		{"ecdsa", jose.ES256},
		{"p384", jose.ES384},
		{"ed25519", jose.EdDSA},
	}
	for _, tc := range testCases {
		t.Run(tc.keyType, func(t *testing.T) {
			signer, err := NewSigner(tc.keyType)
			require.NoError(t, err)
			alg, err := SigAlgForKey(signer)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, alg)
		})
	}

	_, err := NewSigner("dsa")
	assert.Error(t, err)
}

func TestPEMRoundTrip(t *testing.T) {
	for _, keyType := range []string{"ecdsa", "p384", "ed25519"} {
		t.Run(keyType, func(t *testing.T) {
			signer, err := NewSigner(keyType)
			require.NoError(t, err)

			pemStr, err := SignerToPEM(signer)
			require.NoError(t, err)

			restored, err := SignerFromPEM([]byte(pemStr))
			require.NoError(t, err)

			before, err := JWKThumbprint(signer)
			require.NoError(t, err)
			after, err := JWKThumbprint(restored)
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}

	_, err := SignerFromPEM([]byte("not pem"))
	assert.Error(t, err)
}

func TestSigningKeyForSigner(t *testing.T) {
	key := fixedP256Key()
	sk, err := SigningKeyForSigner(key, "https://example.com/acct/1")
	require.NoError(t, err)
	assert.Equal(t, jose.ES256, sk.Algorithm)

	jwk, ok := sk.Key.(jose.JSONWebKey)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/acct/1", jwk.KeyID)
}
