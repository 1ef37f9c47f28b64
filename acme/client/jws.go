package client

import (
	"crypto"
	"encoding/base64"
	"encoding/json"

	"github.com/cpu/acmekit/acme/keys"
	jose "github.com/go-jose/go-jose/v4"
	"github.com/pkg/errors"
)

// Identity is the key a request is signed with. An empty KeyID embeds the
// signer's public key as a JWK in the protected header, which is what the
// newAccount endpoint expects. Otherwise KeyID is sent as the "kid" header and
// should be the account URL.
type Identity struct {
	Signer crypto.Signer
	KeyID  string
}

// SignResult holds the input and output from a Sign operation.
type SignResult struct {
	// The url argument given to Sign.
	InputURL string
	// The data argument given to Sign.
	InputData []byte
	// The nonce placed in the protected header, empty if none.
	Nonce string
	// The JWS in flattened JSON serialization.
	SerializedJWS []byte
}

// fixedNonce satisfies the jose.NonceSource interface with the single nonce
// taken for one request.
type fixedNonce string

func (n fixedNonce) Nonce() (string, error) {
	return string(n), nil
}

// Sign produces a JWS over data with a protected "url" header of url. The
// "nonce" header is omitted when nonce is empty, as required for the inner JWS
// of a key change.
func Sign(url string, data []byte, id Identity, nonce string) (*SignResult, error) {
	if id.Signer == nil {
		return nil, &CryptoError{Op: "sign", Err: errors.New("identity has a nil signer")}
	}

	joseOpts := &jose.SignerOptions{
		ExtraHeaders: map[jose.HeaderKey]interface{}{
			"url": url,
		},
	}
	if nonce != "" {
		joseOpts.NonceSource = fixedNonce(nonce)
	}

	var signingKey jose.SigningKey
	if id.KeyID != "" {
		sk, err := keys.SigningKeyForSigner(id.Signer, id.KeyID)
		if err != nil {
			return nil, &CryptoError{Op: "sign", Err: err}
		}
		signingKey = sk
	} else {
		alg, err := keys.SigAlgForKey(id.Signer)
		if err != nil {
			return nil, &CryptoError{Op: "sign", Err: err}
		}
		signingKey = jose.SigningKey{Key: id.Signer, Algorithm: alg}
		joseOpts.EmbedJWK = true
	}

	signer, err := jose.NewSigner(signingKey, joseOpts)
	if err != nil {
		return nil, &CryptoError{Op: "sign", Err: err}
	}

	signed, err := signer.Sign(data)
	if err != nil {
		return nil, &CryptoError{Op: "sign", Err: err}
	}

	return &SignResult{
		InputURL:      url,
		InputData:     data,
		Nonce:         nonce,
		SerializedJWS: []byte(signed.FullSerialize()),
	}, nil
}

// ExternalAccountBinding associates a new ACME account with an account the
// server operator already knows, using a MAC key the operator issued.
//
// See https://tools.ietf.org/html/rfc8555#section-7.3.4
type ExternalAccountBinding struct {
	KeyID   string
	HMACKey []byte
}

// NewExternalAccountBinding decodes a base64url (or standard base64) encoded
// MAC key as issued by CAs requiring external account binding.
func NewExternalAccountBinding(keyID, encodedKey string) (*ExternalAccountBinding, error) {
	if keyID == "" {
		return nil, errors.New("external account binding key ID must not be empty")
	}
	key, err := base64.RawURLEncoding.DecodeString(encodedKey)
	if err != nil {
		if key, err = base64.StdEncoding.DecodeString(encodedKey); err != nil {
			return nil, errors.Wrap(err, "decoding external account binding key")
		}
	}
	return &ExternalAccountBinding{KeyID: keyID, HMACKey: key}, nil
}

// sign produces the HS256 JWS over the account's public JWK that is sent as the
// newAccount "externalAccountBinding" field.
func (eab *ExternalAccountBinding) sign(account crypto.Signer, url string) (json.RawMessage, error) {
	jwkJSON, err := keys.JWKJSON(account)
	if err != nil {
		return nil, &CryptoError{Op: "external account binding", Err: err}
	}

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: eab.HMACKey},
		&jose.SignerOptions{
			ExtraHeaders: map[jose.HeaderKey]interface{}{
				"kid": eab.KeyID,
				"url": url,
			},
		})
	if err != nil {
		return nil, &CryptoError{Op: "external account binding", Err: err}
	}

	signed, err := signer.Sign(jwkJSON)
	if err != nil {
		return nil, &CryptoError{Op: "external account binding", Err: err}
	}
	return json.RawMessage(signed.FullSerialize()), nil
}
