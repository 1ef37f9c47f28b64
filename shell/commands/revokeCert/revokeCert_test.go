package revokeCert

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/cpu/acmekit/acme"
	"github.com/cpu/acmekit/acme/client"
	"github.com/cpu/acmekit/acme/keys"
	"github.com/cpu/acmekit/internal/acmetest"
	"github.com/cpu/acmekit/shell/commands"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type picker struct{ strings.Builder }

func (p *picker) Printf(format string, args ...interface{}) {
	fmt.Fprintf(&p.Builder, format, args...)
}

func (p *picker) MultiChoice([]string, string) int { return 0 }

func setup(t *testing.T) *commands.Session {
	t.Helper()
	srv := acmetest.New()
	t.Cleanup(srv.Close)
	ctx := context.Background()
	dir, err := client.Resolve(ctx, client.ClientConfig{DirectoryURL: srv.DirectoryURL()})
	require.NoError(t, err)
	s, err := commands.NewSession(commands.SessionConfig{
		Directory: dir,
		Fs:        afero.NewMemMapFs(),
		Interval:  10 * time.Millisecond,
	})
	require.NoError(t, err)

	signer, err := keys.NewSigner("ecdsa")
	require.NoError(t, err)
	acct, err := dir.Register(ctx, signer, nil, nil)
	require.NoError(t, err)
	s.AddAccount(acct)
	return s
}

// issue takes a new order for name through to a downloaded certificate.
func issue(t *testing.T, s *commands.Session, name string) *client.Certificate {
	t.Helper()
	ctx := context.Background()
	acct, err := s.Active()
	require.NoError(t, err)
	order, err := acct.NewOrder(ctx, []string{name}, nil)
	require.NoError(t, err)
	_, err = s.AddOrder(order)
	require.NoError(t, err)

	authzs, err := order.Authorizations(ctx)
	require.NoError(t, err)
	for _, authz := range authzs {
		require.NoError(t, authz.Challenge(acme.ChallengeHTTP01).Validate(ctx, s.Interval()))
	}
	ready, ok, err := order.ConfirmValidations(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	certKey, err := keys.NewSigner("ecdsa")
	require.NoError(t, err)
	valid, err := ready.FinalizeSigner(ctx, certKey, s.Interval())
	require.NoError(t, err)
	cert, err := valid.DownloadCertificate(ctx)
	require.NoError(t, err)
	return cert
}

func TestRevokeWithCertKey(t *testing.T) {
	s := setup(t)
	cert := issue(t, s, "example.com")
	keyPEM, err := cert.PrivateKeyPEM()
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(s.Fs(), "/cert.pem", cert.PEM, 0o644))
	require.NoError(t, afero.WriteFile(s.Fs(), "/key.pem", []byte(keyPEM), 0o600))

	ctx := context.Background()
	opts := revokeOptions{orderIndex: -1, certPEM: "/cert.pem", keyPEM: "/key.pem", reason: "keyCompromise"}
	require.NoError(t, revoke(ctx, &picker{}, s, opts))

	// The authority no longer knows the certificate.
	assert.Error(t, revoke(ctx, &picker{}, s, opts))
}

func TestRevokeOrderWithAccount(t *testing.T) {
	s := setup(t)
	issue(t, s, "a.example.com")
	issue(t, s, "b.example.com")

	ctx := context.Background()
	require.NoError(t, revoke(ctx, &picker{}, s, revokeOptions{orderIndex: 1, reason: "superseded"}))
}

func TestRevokeErrors(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	err := revoke(ctx, &picker{}, s, revokeOptions{orderIndex: -1, reason: "bored"})
	assert.ErrorContains(t, err, `unknown revocation reason "bored"`)

	err = revoke(ctx, &picker{}, s, revokeOptions{orderIndex: -1, certPEM: "/missing.pem", reason: "unspecified"})
	assert.Error(t, err)

	require.NoError(t, afero.WriteFile(s.Fs(), "/junk.pem", []byte("not pem"), 0o644))
	_, err = readCertDER(s.Fs(), "/junk.pem")
	assert.ErrorContains(t, err, "no PEM certificate")

	err = revoke(ctx, &picker{}, s, revokeOptions{orderIndex: -1, reason: "unspecified"})
	assert.ErrorContains(t, err, "no orders")
}
