package shell

import (
	"context"
	"net/http"
	"testing"

	"github.com/cpu/acmekit/acme/client"
	"github.com/cpu/acmekit/internal/acmetest"
	"github.com/cpu/acmekit/shell/commands"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(t *testing.T, srv *acmetest.Server, fs afero.Fs) *commands.Session {
	t.Helper()
	dir, err := client.Resolve(context.Background(), client.ClientConfig{DirectoryURL: srv.DirectoryURL()})
	require.NoError(t, err)
	s, err := commands.NewSession(commands.SessionConfig{Directory: dir, Fs: fs})
	require.NoError(t, err)
	return s
}

func TestInitialAccountRegistersThenRestores(t *testing.T) {
	srv := acmetest.New()
	defer srv.Close()
	fs := afero.NewMemMapFs()
	ctx := context.Background()
	opts := &ACMEShellOptions{
		AutoRegister: true,
		Contacts:     []string{"admin@example.com"},
		AccountPath:  "/acme/account.json",
	}

	first := newSession(t, srv, fs)
	require.NoError(t, initialAccount(ctx, first, opts))
	registered, err := first.Active()
	require.NoError(t, err)
	assert.Equal(t, []string{"mailto:admin@example.com"}, registered.Contacts())
	exists, err := afero.Exists(fs, opts.AccountPath)
	require.NoError(t, err)
	assert.True(t, exists)

	second := newSession(t, srv, fs)
	require.NoError(t, initialAccount(ctx, second, opts))
	restored, err := second.Active()
	require.NoError(t, err)
	assert.Equal(t, registered.ID(), restored.ID())
	// Restoring sends the newAccount request again.
	assert.Equal(t, 2, srv.Count(http.MethodPost, "/new-account"))
}

func TestInitialAccountWithoutAutoRegister(t *testing.T) {
	srv := acmetest.New()
	defer srv.Close()
	s := newSession(t, srv, afero.NewMemMapFs())

	require.NoError(t, initialAccount(context.Background(), s, &ACMEShellOptions{}))
	_, err := s.Active()
	assert.ErrorIs(t, err, commands.ErrNoActiveAccount)
}

func TestCommandsRegistered(t *testing.T) {
	assert.ElementsMatch(t, []string{
		"accounts", "challSrv", "deactivateAccount", "deactivateAuthz",
		"finalize", "getAccount", "getAuthz", "getCert", "getOrder", "keyAuth",
		"loadAccount", "newAccount", "newOrder", "orders", "revokeCert",
		"rollover", "saveAccount", "solve", "solveAll", "switchAccount",
	}, commands.Registered())
}
