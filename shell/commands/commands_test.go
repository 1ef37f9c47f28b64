package commands

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/cpu/acmekit/acme/client"
	"github.com/cpu/acmekit/acme/keys"
	"github.com/cpu/acmekit/internal/acmetest"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePicker records output and answers every MultiChoice with choice.
type fakePicker struct {
	out     strings.Builder
	choice  int
	offered [][]string
}

func (p *fakePicker) Printf(format string, args ...interface{}) {
	fmt.Fprintf(&p.out, format, args...)
}

func (p *fakePicker) MultiChoice(options []string, _ string) int {
	p.offered = append(p.offered, options)
	return p.choice
}

func newTestSession(t *testing.T) (*acmetest.Server, *Session) {
	t.Helper()
	srv := acmetest.New()
	t.Cleanup(srv.Close)
	dir, err := client.Resolve(context.Background(), client.ClientConfig{DirectoryURL: srv.DirectoryURL()})
	require.NoError(t, err)
	s, err := NewSession(SessionConfig{
		Directory: dir,
		Fs:        afero.NewMemMapFs(),
		Interval:  10 * time.Millisecond,
	})
	require.NoError(t, err)
	return srv, s
}

func register(t *testing.T, s *Session) *client.Account {
	t.Helper()
	signer, err := keys.NewSigner("ecdsa")
	require.NoError(t, err)
	acct, err := s.Directory().Register(context.Background(), signer, nil, nil)
	require.NoError(t, err)
	s.AddAccount(acct)
	return acct
}

func addOrder(t *testing.T, s *Session, names ...string) *client.Order {
	t.Helper()
	acct, err := s.Active()
	require.NoError(t, err)
	order, err := acct.NewOrder(context.Background(), names, nil)
	require.NoError(t, err)
	_, err = s.AddOrder(order)
	require.NoError(t, err)
	return order
}

func TestNewSessionRequiresDirectory(t *testing.T) {
	_, err := NewSession(SessionConfig{})
	assert.Error(t, err)
}

func TestSessionAccounts(t *testing.T) {
	_, s := newTestSession(t)

	_, err := s.Active()
	assert.ErrorIs(t, err, ErrNoActiveAccount)
	assert.Equal(t, -1, s.ActiveIndex())
	assert.Empty(t, s.Orders())

	first := register(t, s)
	second := register(t, s)
	assert.Len(t, s.Accounts(), 2)
	active, err := s.Active()
	require.NoError(t, err)
	assert.Same(t, second, active)

	require.NoError(t, s.Switch(0))
	active, err = s.Active()
	require.NoError(t, err)
	assert.Same(t, first, active)
	assert.Error(t, s.Switch(2))

	// Re-adding an account with a known URL replaces it.
	assert.Equal(t, 0, s.AddAccount(first))
	assert.Len(t, s.Accounts(), 2)
}

func TestSessionOrdersPerAccount(t *testing.T) {
	_, s := newTestSession(t)
	_, err := s.AddOrder(nil)
	assert.ErrorIs(t, err, ErrNoActiveAccount)

	register(t, s)
	order := addOrder(t, s, "example.com")
	got, err := s.Order(0)
	require.NoError(t, err)
	assert.Same(t, order, got)
	_, err = s.Order(1)
	assert.Error(t, err)

	register(t, s)
	assert.Empty(t, s.Orders())
	_, err = s.Order(0)
	assert.ErrorContains(t, err, "no orders")

	require.NoError(t, s.Switch(0))
	assert.Len(t, s.Orders(), 1)
}

func TestSessionReplaceAccountReloadsOrders(t *testing.T) {
	_, s := newTestSession(t)
	acct := register(t, s)
	order := addOrder(t, s, "example.com")

	newKey, err := keys.NewSigner("ecdsa")
	require.NoError(t, err)
	ctx := context.Background()
	rolled, err := acct.ChangeKey(ctx, newKey)
	require.NoError(t, err)
	require.NoError(t, s.ReplaceAccount(ctx, rolled))

	assert.Len(t, s.Accounts(), 1)
	reloaded, err := s.Order(0)
	require.NoError(t, err)
	assert.NotSame(t, order, reloaded)
	assert.Equal(t, order.URL(), reloaded.URL())
	assert.Same(t, rolled, reloaded.Account())
	require.NoError(t, reloaded.Refresh(ctx))
}

func TestSessionChallSrv(t *testing.T) {
	_, s := newTestSession(t)
	_, err := s.ChallSrv()
	assert.Error(t, err)
	_, err = s.Solver()
	assert.Error(t, err)
}

func TestFindOrder(t *testing.T) {
	_, s := newTestSession(t)
	p := &fakePicker{choice: 1}

	_, err := FindOrder(p, s, -1)
	assert.Error(t, err)

	register(t, s)
	first := addOrder(t, s, "a.example.com")
	got, err := FindOrder(p, s, -1)
	require.NoError(t, err)
	assert.Same(t, first, got)
	assert.Empty(t, p.offered)

	second := addOrder(t, s, "b.example.com")
	got, err = FindOrder(p, s, -1)
	require.NoError(t, err)
	assert.Same(t, second, got)
	require.Len(t, p.offered, 1)
	assert.Contains(t, p.offered[0][1], "b.example.com")

	got, err = FindOrder(p, s, 0)
	require.NoError(t, err)
	assert.Same(t, first, got)
}

func TestFindAuthzAndChall(t *testing.T) {
	_, s := newTestSession(t)
	register(t, s)
	order := addOrder(t, s, "example.com", "*.example.com")
	ctx := context.Background()
	p := &fakePicker{choice: 0}

	authz, err := FindAuthz(ctx, p, order, "*.example.com")
	require.NoError(t, err)
	assert.True(t, authz.Resource().Wildcard)

	_, err = FindAuthz(ctx, p, order, "other.example.com")
	assert.ErrorContains(t, err, "no authorization")

	// Choices are sorted by identifier.
	authz, err = FindAuthz(ctx, p, order, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"*.example.com", "example.com"}, p.offered[0])
	assert.True(t, authz.Resource().Wildcard)

	chall, err := FindChall(p, authz, "dns-01")
	require.NoError(t, err)
	assert.Equal(t, "dns-01", chall.Type())
	_, err = FindChall(p, authz, "http-01")
	assert.ErrorContains(t, err, "no \"http-01\" type challenge")

	chall, err = FindChall(p, authz, "")
	require.NoError(t, err)
	assert.Equal(t, "dns-01", chall.Type())
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SplitList(" a,,b , c,"))
	assert.Nil(t, SplitList(""))
}

func TestParseFlagSetArgs(t *testing.T) {
	var n int
	flags := flag.NewFlagSet("test", flag.ContinueOnError)
	flags.SetOutput(&strings.Builder{})
	flags.IntVar(&n, "n", 0, "")

	leftovers, err := ParseFlagSetArgs([]string{"-n", "3", "extra"}, flags)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"extra"}, leftovers)

	_, err = ParseFlagSetArgs([]string{"-h"}, flags)
	assert.ErrorIs(t, err, flag.ErrHelp)
	_, err = ParseFlagSetArgs([]string{"-unknown"}, flags)
	assert.Error(t, err)
}

func TestPrintHelpers(t *testing.T) {
	p := &fakePicker{}
	PrintErr(p, "cmd", fmt.Errorf("boom"))
	PrintOK(p, "done %d", 1)
	PrintNotice(p, "careful")
	out := p.out.String()
	assert.Contains(t, out, "cmd: ")
	assert.Contains(t, out, "boom")
	assert.Contains(t, out, "done 1")
	assert.Contains(t, out, "careful")

	str, err := PrintJSON(map[string]string{"status": "valid"})
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"status\": \"valid\"\n}", str)
	assert.True(t, OkURL("https://example.com/dir"))
	assert.False(t, OkURL("ftp://example.com"))
}
