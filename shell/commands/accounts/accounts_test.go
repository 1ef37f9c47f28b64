package accounts

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/cpu/acmekit/acme/client"
	"github.com/cpu/acmekit/acme/keys"
	"github.com/cpu/acmekit/internal/acmetest"
	"github.com/cpu/acmekit/shell/commands"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bufPrinter struct{ strings.Builder }

func (b *bufPrinter) Printf(format string, args ...interface{}) {
	fmt.Fprintf(&b.Builder, format, args...)
}

func TestListAccounts(t *testing.T) {
	srv := acmetest.New()
	defer srv.Close()
	ctx := context.Background()
	dir, err := client.Resolve(ctx, client.ClientConfig{DirectoryURL: srv.DirectoryURL()})
	require.NoError(t, err)
	s, err := commands.NewSession(commands.SessionConfig{Directory: dir})
	require.NoError(t, err)

	out := &bufPrinter{}
	listAccounts(out, s, accountsOptions{printID: true, printContact: true})
	assert.Equal(t, "No accounts\n", out.String())

	var accts []*client.Account
	for _, contacts := range [][]string{{"admin@example.com"}, nil} {
		signer, err := keys.NewSigner("ecdsa")
		require.NoError(t, err)
		acct, err := dir.Register(ctx, signer, contacts, nil)
		require.NoError(t, err)
		s.AddAccount(acct)
		accts = append(accts, acct)
	}
	require.NoError(t, s.Switch(0))

	out.Reset()
	listAccounts(out, s, accountsOptions{printID: true, printContact: true})
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, fmt.Sprintf("*  0) mailto:admin@example.com %q (valid)", accts[0].ID()), lines[0])
	assert.Equal(t, fmt.Sprintf("   1) none %q (valid)", accts[1].ID()), lines[1])

	out.Reset()
	listAccounts(out, s, accountsOptions{printContact: true})
	assert.NotContains(t, out.String(), accts[0].ID())
}
