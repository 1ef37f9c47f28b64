package client

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"math"
	"time"

	"github.com/cpu/acmekit/acme/keys"
	"github.com/pkg/errors"
)

// Certificate is an issued certificate chain. It never changes once
// downloaded.
type Certificate struct {
	// URL of the order the certificate was issued for.
	OrderURL string
	// URL the chain was downloaded from.
	URL string
	// The PEM encoded chain, leaf first, exactly as served.
	PEM []byte
	// URLs of alternate chains for the same certificate.
	Alternates []string

	key crypto.Signer
}

func newCertificate(orderURL, certURL string, body []byte, key crypto.Signer) (*Certificate, error) {
	cert := &Certificate{
		OrderURL: orderURL,
		URL:      certURL,
		PEM:      append([]byte(nil), body...),
		key:      key,
	}
	if _, err := cert.Chain(); err != nil {
		return nil, err
	}
	return cert, nil
}

// Chain parses the PEM chain.
func (c *Certificate) Chain() ([]*x509.Certificate, error) {
	var chain []*x509.Certificate
	rest := bytes.TrimSpace(c.PEM)
	for len(rest) > 0 {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			return nil, errors.Errorf("unexpected PEM block %q in certificate chain", block.Type)
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, errors.Wrap(err, "parsing certificate chain")
		}
		chain = append(chain, cert)
	}
	if len(chain) == 0 {
		return nil, errors.New("certificate chain contains no certificates")
	}
	return chain, nil
}

// Leaf returns the end-entity certificate.
func (c *Certificate) Leaf() (*x509.Certificate, error) {
	chain, err := c.Chain()
	if err != nil {
		return nil, err
	}
	return chain[0], nil
}

// ValidDaysLeft returns the number of whole days until the leaf expires,
// negative once it has expired.
func (c *Certificate) ValidDaysLeft(now time.Time) (int64, error) {
	leaf, err := c.Leaf()
	if err != nil {
		return 0, err
	}
	days := leaf.NotAfter.Sub(now).Hours() / 24
	return int64(math.Floor(days)), nil
}

// PrivateKey returns the certificate key when the order was finalized with
// ReadyOrder.FinalizeSigner, otherwise nil.
func (c *Certificate) PrivateKey() crypto.Signer {
	return c.key
}

// PrivateKeyPEM returns the PEM encoding of PrivateKey.
func (c *Certificate) PrivateKeyPEM() (string, error) {
	if c.key == nil {
		return "", errors.New("certificate has no private key")
	}
	return keys.SignerToPEM(c.key)
}
