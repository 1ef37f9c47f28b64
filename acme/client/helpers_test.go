package client

import (
	"context"
	"crypto"
	"strings"
	"testing"
	"time"

	"github.com/cpu/acmekit/acme/keys"
	"github.com/cpu/acmekit/internal/acmetest"
	"github.com/stretchr/testify/require"
)

// testInterval keeps polling fast against the in-process server.
const testInterval = 10 * time.Millisecond

func newTestServer(t *testing.T) *acmetest.Server {
	t.Helper()
	srv := acmetest.New()
	t.Cleanup(srv.Close)
	return srv
}

func newTestDirectory(t *testing.T, srv *acmetest.Server) *Directory {
	t.Helper()
	dir, err := Resolve(context.Background(), ClientConfig{DirectoryURL: srv.DirectoryURL()})
	require.NoError(t, err)
	return dir
}

func newTestSigner(t *testing.T) crypto.Signer {
	t.Helper()
	signer, err := keys.NewSigner("ecdsa")
	require.NoError(t, err)
	return signer
}

func newTestAccount(t *testing.T, dir *Directory) *Account {
	t.Helper()
	acct, err := dir.Register(context.Background(), newTestSigner(t), []string{"admin@example.com"}, nil)
	require.NoError(t, err)
	return acct
}

// validatedOrder creates an order for names and validates every authorization
// with its http-01 challenge.
func validatedOrder(t *testing.T, acct *Account, names ...string) *Order {
	t.Helper()
	ctx := context.Background()
	order, err := acct.NewOrder(ctx, names, nil)
	require.NoError(t, err)

	authzs, err := order.Authorizations(ctx)
	require.NoError(t, err)
	for _, authz := range authzs {
		if !authz.NeedChallenge() {
			continue
		}
		chall := authz.Challenge(authz.Resource().Challenges[0].Type)
		require.NotNil(t, chall)
		require.NoError(t, chall.Validate(ctx, testInterval))
	}
	return order
}

// countSuffix counts the requests with the given method whose path ends in
// suffix.
func countSuffix(srv *acmetest.Server, method, suffix string) int {
	n := 0
	for _, r := range srv.Requests() {
		if r.Method == method && strings.HasSuffix(r.Path, suffix) {
			n++
		}
	}
	return n
}
