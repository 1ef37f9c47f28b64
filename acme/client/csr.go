package client

import (
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"net"

	"github.com/pkg/errors"
)

// PEMCSR is the PEM encoding of an x509 Certificate Signing Request (CSR)
type PEMCSR string

// B64CSR is the Base64URLSafe encoding of an x509 Certificate Signing Request (CSR)
type B64CSR string

// CSR produces a DER encoded certificate signing request for the provided
// commonName and names, signed by key. If no commonName is provided the first
// of the names will be used when it fits. IP address names are placed in the IP SAN
// extension.
//
// The key SHOULD NOT be the account key, see
// https://tools.ietf.org/html/rfc8555#section-11.1
func CSR(commonName string, names []string, key crypto.Signer) ([]byte, error) {
	if len(names) == 0 {
		return nil, errors.New("no names specified")
	}
	if key == nil {
		return nil, &CryptoError{Op: "csr", Err: errors.New("nil certificate key")}
	}

	// A subject common name may not exceed 64 characters.
	if commonName == "" && len(names[0]) <= 64 {
		commonName = names[0]
	}

	template := x509.CertificateRequest{
		Subject: pkix.Name{
			CommonName: commonName,
		},
	}
	for _, name := range names {
		if ip := net.ParseIP(name); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
			continue
		}
		template.DNSNames = append(template.DNSNames, name)
	}

	csrBytes, err := x509.CreateCertificateRequest(rand.Reader, &template, key)
	if err != nil {
		return nil, &CryptoError{Op: "csr", Err: err}
	}
	return csrBytes, nil
}

// EncodeCSR returns the base64url and PEM encodings of a DER CSR.
func EncodeCSR(der []byte) (B64CSR, PEMCSR) {
	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type: "CERTIFICATE REQUEST", Bytes: der,
	})
	return B64CSR(base64.RawURLEncoding.EncodeToString(der)), PEMCSR(pemBytes)
}
