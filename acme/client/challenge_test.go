package client

import (
	"context"
	"crypto/x509"
	"sync"
	"testing"
	"time"

	"github.com/cpu/acmekit/acme"
	"github.com/cpu/acmekit/acme/keys"
	"github.com/cpu/acmekit/acme/resources"
	"github.com/cpu/acmekit/internal/acmetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChallengeTypes(t *testing.T) {
	srv := newTestServer(t)
	srv.Tokens = []string{"tok3n"}
	dir := newTestDirectory(t, srv)
	acct := newTestAccount(t, dir)
	ctx := context.Background()

	order, err := acct.NewOrder(ctx, []string{"example.com"}, nil)
	require.NoError(t, err)
	authzs, err := order.Authorizations(ctx)
	require.NoError(t, err)
	authz := authzs[0]

	keyAuth, err := acct.KeyAuthorization("tok3n")
	require.NoError(t, err)

	httpChall, ok := authz.HTTPChallenge()
	require.True(t, ok)
	assert.Equal(t, acme.ChallengeHTTP01, httpChall.Type())
	assert.Equal(t, "/.well-known/acme-challenge/tok3n", httpChall.Path())
	assert.Same(t, authz, httpChall.Authorization())

	dnsChall, ok := authz.DNSChallenge()
	require.True(t, ok)
	assert.Equal(t, "_acme-challenge.example.com.", dnsChall.RecordName())
	proof, err := dnsChall.Proof()
	require.NoError(t, err)
	assert.Equal(t, keys.DNSKeyAuth(keyAuth), proof)

	alpnChall, ok := authz.TLSALPNChallenge()
	require.True(t, ok)
	cert, err := alpnChall.Certificate()
	require.NoError(t, err)
	require.NotEmpty(t, cert.Certificate)
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com"}, leaf.DNSNames)

	// Every challenge of the authorization shares its token.
	for _, chall := range authz.Challenges() {
		assert.Equal(t, "tok3n", chall.Token())
		ka, err := chall.KeyAuthorization()
		require.NoError(t, err)
		assert.Equal(t, keyAuth, ka)
	}
	assert.Nil(t, authz.Challenge("email-reply-00"))
}

func TestUnknownChallengeType(t *testing.T) {
	chall := newChallenge(&Authorization{}, resources.Challenge{
		Type:   "email-reply-00",
		URL:    "https://example.com/chall/1",
		Token:  "t",
		Status: acme.StatusPending,
	})
	unknown, ok := chall.(*UnknownChallenge)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/chall/1", unknown.URL())
	assert.Equal(t, acme.StatusPending, unknown.Status())
}

func TestServerSeesKeyAuthorization(t *testing.T) {
	srv := newTestServer(t)
	var mu sync.Mutex
	var attempts []acmetest.ChallengeAttempt
	srv.Validate = func(a acmetest.ChallengeAttempt) *resources.Problem {
		mu.Lock()
		defer mu.Unlock()
		attempts = append(attempts, a)
		return nil
	}
	dir := newTestDirectory(t, srv)
	acct := newTestAccount(t, dir)
	ctx := context.Background()

	order, err := acct.NewOrder(ctx, []string{"example.com"}, nil)
	require.NoError(t, err)
	authzs, err := order.Authorizations(ctx)
	require.NoError(t, err)
	chall, ok := authzs[0].TLSALPNChallenge()
	require.True(t, ok)
	require.NoError(t, chall.Validate(ctx, testInterval))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, attempts, 1)
	expected, err := chall.KeyAuthorization()
	require.NoError(t, err)
	assert.Equal(t, expected, attempts[0].KeyAuthorization)
	assert.Equal(t, acme.ChallengeTLSALPN01, attempts[0].Type)
	assert.Equal(t, "example.com", attempts[0].Identifier)

	// Validating a settled challenge sends nothing.
	posts := srv.Count("POST", "/chall/")
	require.NoError(t, chall.Validate(ctx, testInterval))
	assert.Equal(t, posts, srv.Count("POST", "/chall/"))
}

func TestValidateCancelled(t *testing.T) {
	srv := newTestServer(t)
	srv.RetryAfter = 60
	dir := newTestDirectory(t, srv)
	acct := newTestAccount(t, dir)

	order, err := acct.NewOrder(context.Background(), []string{"example.com"}, nil)
	require.NoError(t, err)
	authzs, err := order.Authorizations(context.Background())
	require.NoError(t, err)
	chall, ok := authzs[0].HTTPChallenge()
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err = chall.Validate(ctx, testInterval)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, acme.StatusProcessing, chall.Status())
}

func TestRespondThenPoll(t *testing.T) {
	srv := newTestServer(t)
	dir := newTestDirectory(t, srv)
	acct := newTestAccount(t, dir)
	ctx := context.Background()

	order, err := acct.NewOrder(ctx, []string{"example.com"}, nil)
	require.NoError(t, err)
	authzs, err := order.Authorizations(ctx)
	require.NoError(t, err)
	chall, ok := authzs[0].DNSChallenge()
	require.True(t, ok)

	require.NoError(t, chall.Respond(ctx))
	assert.Equal(t, acme.StatusProcessing, chall.Status())

	// Only a pending challenge can be responded to.
	var stateErr *StateError
	require.ErrorAs(t, chall.Respond(ctx), &stateErr)
	assert.Equal(t, acme.StatusProcessing, stateErr.Status)

	done, err := chall.Poll(ctx)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, acme.StatusValid, chall.Status())
}
