package client

import (
	"context"
	"crypto/x509"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSR(t *testing.T) {
	key := newTestSigner(t)

	der, err := CSR("", []string{"example.com", "www.example.com", "192.0.2.7"}, key)
	require.NoError(t, err)

	csr, err := x509.ParseCertificateRequest(der)
	require.NoError(t, err)
	require.NoError(t, csr.CheckSignature())
	assert.Equal(t, "example.com", csr.Subject.CommonName)
	assert.Equal(t, []string{"example.com", "www.example.com"}, csr.DNSNames)
	require.Len(t, csr.IPAddresses, 1)
	assert.Equal(t, "192.0.2.7", csr.IPAddresses[0].String())
}

func TestCSRCommonName(t *testing.T) {
	key := newTestSigner(t)
	long := strings.Repeat("a", 60) + ".example.com"

	der, err := CSR("", []string{long}, key)
	require.NoError(t, err)
	csr, err := x509.ParseCertificateRequest(der)
	require.NoError(t, err)
	assert.Empty(t, csr.Subject.CommonName)
	assert.Equal(t, []string{long}, csr.DNSNames)

	der, err = CSR("custom.example.com", []string{"example.com"}, key)
	require.NoError(t, err)
	csr, err = x509.ParseCertificateRequest(der)
	require.NoError(t, err)
	assert.Equal(t, "custom.example.com", csr.Subject.CommonName)
}

func TestCSRErrors(t *testing.T) {
	_, err := CSR("", nil, newTestSigner(t))
	assert.Error(t, err)

	_, err = CSR("", []string{"example.com"}, nil)
	var ce *CryptoError
	assert.ErrorAs(t, err, &ce)
}

func TestEncodeCSR(t *testing.T) {
	der, err := CSR("", []string{"example.com"}, newTestSigner(t))
	require.NoError(t, err)

	b64, pemCSR := EncodeCSR(der)
	assert.NotContains(t, string(b64), "=")
	assert.True(t, strings.HasPrefix(string(pemCSR), "-----BEGIN CERTIFICATE REQUEST-----"))
}

func TestPollDelay(t *testing.T) {
	assert.Equal(t, defaultPollInterval, pollDelay(0, 0))
	assert.Equal(t, 5*time.Second, pollDelay(5*time.Second, time.Second))
	assert.Equal(t, 30*time.Second, pollDelay(5*time.Second, 30*time.Second))
}

func TestSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleep(context.Background(), time.Millisecond))
}
