// package keys offers utility functions for working with crypto.Signers, JWS,
// JWKs and PEM serialization.
package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/pkg/errors"
)

// SigAlgForKey returns the JWS algorithm used to sign with the given key.
func SigAlgForKey(signer crypto.Signer) (jose.SignatureAlgorithm, error) {
	switch k := signer.(type) {
	case *ecdsa.PrivateKey:
		switch k.Curve {
		case elliptic.P256():
			return jose.ES256, nil
		case elliptic.P384():
			return jose.ES384, nil
		case elliptic.P521():
			return jose.ES512, nil
		}
		return "", fmt.Errorf("unsupported ECDSA curve %s", k.Curve.Params().Name)
	case *rsa.PrivateKey:
		return jose.RS256, nil
	case ed25519.PrivateKey:
		return jose.EdDSA, nil
	}
	return "", fmt.Errorf("unsupported key type: %T", signer)
}

// JWKForSigner returns the public JWK of the signer.
func JWKForSigner(signer crypto.Signer) jose.JSONWebKey {
	alg, _ := SigAlgForKey(signer)
	return jose.JSONWebKey{
		Key:       signer.Public(),
		Algorithm: string(alg),
	}
}

func JWKJSON(signer crypto.Signer) ([]byte, error) {
	jwk := JWKForSigner(signer)
	return json.Marshal(&jwk)
}

// JWKThumbprint returns the base64url encoded RFC 7638 SHA-256 thumbprint of
// the signer's public JWK.
func JWKThumbprint(signer crypto.Signer) (string, error) {
	jwk := JWKForSigner(signer)
	thumbBytes, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", errors.Wrap(err, "computing JWK thumbprint")
	}
	return base64.RawURLEncoding.EncodeToString(thumbBytes), nil
}

// KeyAuth computes the key authorization for a challenge token.
//
// See https://tools.ietf.org/html/rfc8555#section-8.1
func KeyAuth(signer crypto.Signer, token string) (string, error) {
	thumbprint, err := JWKThumbprint(signer)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s.%s", token, thumbprint), nil
}

// DNSKeyAuth returns the base64url SHA-256 digest of a key authorization, the
// value of a DNS-01 TXT record.
func DNSKeyAuth(keyAuth string) string {
	digest := sha256.Sum256([]byte(keyAuth))
	return base64.RawURLEncoding.EncodeToString(digest[:])
}

// SigningKeyForSigner returns a go-jose SigningKey that produces JWS with a
// "kid" protected header of keyID.
func SigningKeyForSigner(signer crypto.Signer, keyID string) (jose.SigningKey, error) {
	alg, err := SigAlgForKey(signer)
	if err != nil {
		return jose.SigningKey{}, err
	}
	jwk := jose.JSONWebKey{
		Key:       signer,
		Algorithm: string(alg),
		KeyID:     keyID,
	}
	return jose.SigningKey{
		Key:       jwk,
		Algorithm: alg,
	}, nil
}

// SignerToPEM encodes the private key of the signer as PEM. ECDSA and RSA keys
// use their traditional SEC 1 and PKCS #1 forms, Ed25519 keys use PKCS #8.
func SignerToPEM(signer crypto.Signer) (string, error) {
	var keyBytes []byte
	var keyHeader string
	var err error
	switch k := signer.(type) {
	case *ecdsa.PrivateKey:
		keyBytes, err = x509.MarshalECPrivateKey(k)
		keyHeader = "EC PRIVATE KEY"
	case *rsa.PrivateKey:
		keyBytes = x509.MarshalPKCS1PrivateKey(k)
		keyHeader = "RSA PRIVATE KEY"
	case ed25519.PrivateKey:
		keyBytes, err = x509.MarshalPKCS8PrivateKey(k)
		keyHeader = "PRIVATE KEY"
	default:
		err = fmt.Errorf("unknown key type: %T", k)
	}
	if err != nil {
		return "", err
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  keyHeader,
		Bytes: keyBytes,
	})
	return string(pemBytes), nil
}

// SignerFromPEM parses the first PEM block of pemData as a private key.
func SignerFromPEM(pemData []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	switch block.Type {
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("PKCS #8 key of type %T is not a signer", key)
		}
		return signer, nil
	}
	return nil, fmt.Errorf("unknown PEM block type %q", block.Type)
}

// NewSigner generates a random private key. keyType is one of "ecdsa" (or
// "p256"), "p384", "rsa" or "ed25519".
func NewSigner(keyType string) (crypto.Signer, error) {
	var randKey crypto.Signer
	var err error
	switch keyType {
	case "ecdsa", "p256":
		randKey, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case "p384":
		randKey, err = ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	case "rsa":
		randKey, err = rsa.GenerateKey(rand.Reader, 2048)
	case "ed25519":
		_, randKey, err = ed25519.GenerateKey(rand.Reader)
	default:
		err = fmt.Errorf("unknown key type: %q", keyType)
	}
	if err != nil {
		return nil, err
	}
	return randKey, nil
}
