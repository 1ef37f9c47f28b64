package solveAll

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/cpu/acmekit/acme/client"
	"github.com/cpu/acmekit/acme/keys"
	"github.com/cpu/acmekit/internal/acmetest"
	"github.com/cpu/acmekit/shell/commands"
	"github.com/letsencrypt/challtestsrv"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bufPrinter struct{ strings.Builder }

func (b *bufPrinter) Printf(format string, args ...interface{}) {
	fmt.Fprintf(&b.Builder, format, args...)
}

func setup(t *testing.T, withChallSrv bool) (*acmetest.Server, *commands.Session) {
	t.Helper()
	srv := acmetest.New()
	t.Cleanup(srv.Close)
	dir, err := client.Resolve(context.Background(), client.ClientConfig{DirectoryURL: srv.DirectoryURL()})
	require.NoError(t, err)

	conf := commands.SessionConfig{
		Directory: dir,
		Fs:        afero.NewMemMapFs(),
		Interval:  10 * time.Millisecond,
	}
	if withChallSrv {
		cs, err := challtestsrv.New(challtestsrv.Config{
			HTTPOneAddrs: []string{"127.0.0.1:0"},
			Log:          log.New(io.Discard, "", 0),
		})
		require.NoError(t, err)
		conf.ChallSrv = cs
	}
	s, err := commands.NewSession(conf)
	require.NoError(t, err)

	signer, err := keys.NewSigner("ecdsa")
	require.NoError(t, err)
	acct, err := dir.Register(context.Background(), signer, nil, nil)
	require.NoError(t, err)
	s.AddAccount(acct)
	return srv, s
}

func newOrder(t *testing.T, s *commands.Session, names ...string) *client.Order {
	t.Helper()
	acct, err := s.Active()
	require.NoError(t, err)
	order, err := acct.NewOrder(context.Background(), names, nil)
	require.NoError(t, err)
	_, err = s.AddOrder(order)
	require.NoError(t, err)
	return order
}

func TestSolveAll(t *testing.T) {
	_, s := setup(t, true)
	order := newOrder(t, s, "example.com", "*.example.com")

	out := &bufPrinter{}
	err := solveAll(context.Background(), out, s, order, solveAllOptions{concurrency: 1})
	require.NoError(t, err)
	assert.Equal(t, "ready", order.Status())
	assert.Contains(t, out.String(), "is ready to be finalized")
}

func TestSolveAllFailure(t *testing.T) {
	srv, s := setup(t, true)
	srv.FailIdentifiers["bad.example.com"] = true
	order := newOrder(t, s, "bad.example.com")

	out := &bufPrinter{}
	err := solveAll(context.Background(), out, s, order, solveAllOptions{preference: "dns-01"})
	require.Error(t, err)
	var challErr *client.ChallengeError
	assert.ErrorAs(t, err, &challErr)
	assert.Empty(t, out.String())
}

func TestSolveAllWithoutChallSrv(t *testing.T) {
	_, s := setup(t, false)
	order := newOrder(t, s, "example.com")

	err := solveAll(context.Background(), &bufPrinter{}, s, order, solveAllOptions{})
	assert.ErrorContains(t, err, "no challenge server")
}
