package client

import (
	"context"
	"crypto/tls"
	"sync"
	"time"

	"github.com/cpu/acmekit/acme"
	"github.com/cpu/acmekit/acme/keys"
	"github.com/cpu/acmekit/acme/resources"
	"github.com/go-acme/lego/v4/challenge/http01"
	"github.com/go-acme/lego/v4/challenge/tlsalpn01"
	"github.com/miekg/dns"
	"github.com/pkg/errors"
)

// Challenge is one way of proving control of an authorization's identifier.
// The concrete types HTTP01Challenge, DNS01Challenge and TLSALPN01Challenge
// add the values needed to publish their proof; challenge types this package
// does not know are returned as *UnknownChallenge.
type Challenge interface {
	Type() string
	URL() string
	Token() string
	// Status returns the challenge status last reported by the server.
	Status() string
	Resource() resources.Challenge
	Authorization() *Authorization
	// KeyAuthorization returns token + "." + the account key thumbprint.
	KeyAuthorization() (string, error)
	// Respond tells the server the response is in place without waiting for
	// the validation result.
	Respond(ctx context.Context) error
	// Validate asks the server to validate the challenge, then polls every
	// interval until the challenge is valid or invalid. An invalid challenge
	// yields a *ChallengeError.
	Validate(ctx context.Context, interval time.Duration) error
	// Poll refreshes the challenge once and reports whether it reached a
	// terminal status.
	Poll(ctx context.Context) (bool, error)
}

// challengeFactories wraps the challenge types with derived values.
var challengeFactories = map[string]func(*baseChallenge) Challenge{
	acme.ChallengeHTTP01:    func(b *baseChallenge) Challenge { return &HTTP01Challenge{b} },
	acme.ChallengeDNS01:     func(b *baseChallenge) Challenge { return &DNS01Challenge{b} },
	acme.ChallengeTLSALPN01: func(b *baseChallenge) Challenge { return &TLSALPN01Challenge{b} },
}

func newChallenge(authz *Authorization, res resources.Challenge) Challenge {
	base := &baseChallenge{authz: authz, res: res}
	if factory, ok := challengeFactories[res.Type]; ok {
		return factory(base)
	}
	return &UnknownChallenge{base}
}

type baseChallenge struct {
	authz *Authorization

	mu         sync.Mutex
	res        resources.Challenge
	retryAfter time.Duration
}

func (c *baseChallenge) Type() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.res.Type
}

func (c *baseChallenge) URL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.res.URL
}

func (c *baseChallenge) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.res.Token
}

func (c *baseChallenge) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.res.Status
}

func (c *baseChallenge) Resource() resources.Challenge {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.res
}

func (c *baseChallenge) Authorization() *Authorization {
	return c.authz
}

func (c *baseChallenge) String() string {
	return c.URL()
}

func (c *baseChallenge) KeyAuthorization() (string, error) {
	return c.authz.acct.KeyAuthorization(c.Token())
}

func (c *baseChallenge) account() *Account {
	return c.authz.acct
}

func (c *baseChallenge) apply(out *Outcome) error {
	var res resources.Challenge
	if err := out.JSON(&res); err != nil {
		return err
	}
	c.mu.Lock()
	if res.URL == "" {
		res.URL = c.res.URL
	}
	c.res = res
	c.retryAfter = out.RetryAfter
	c.mu.Unlock()
	return nil
}

// settled reports whether the challenge reached a terminal status, with the
// validation failure if it is invalid.
func (c *baseChallenge) settled() (bool, error) {
	res := c.Resource()
	switch res.Status {
	case acme.StatusValid:
		return true, nil
	case acme.StatusInvalid:
		return true, &ChallengeError{
			Identifier: c.authz.Identifier().Value,
			URL:        res.URL,
			Problem:    res.Error,
		}
	}
	return false, nil
}

func (c *baseChallenge) Poll(ctx context.Context) (bool, error) {
	out, err := c.account().client().PostAsGet(ctx, c.URL(), c.account().Identity())
	if err != nil {
		return false, errors.Wrap(err, "polling challenge")
	}
	if err := c.apply(out); err != nil {
		return false, err
	}
	return c.settled()
}

func (c *baseChallenge) Respond(ctx context.Context) error {
	if c.Status() != acme.StatusPending {
		return &StateError{
			Op:       "respond to challenge",
			URL:      c.URL(),
			Status:   c.Status(),
			Expected: []string{acme.StatusPending},
		}
	}
	// An empty JSON object tells the server the response is in place.
	out, err := c.account().client().Post(ctx, c.URL(), []byte("{}"), c.account().Identity())
	if err != nil {
		return errors.Wrap(err, "responding to challenge")
	}
	if err := c.apply(out); err != nil {
		return err
	}
	c.account().client().log.Info("challenge response sent",
		"url", c.URL(), "type", c.Type(), "identifier", c.authz.Identifier().Value)
	return nil
}

func (c *baseChallenge) Validate(ctx context.Context, interval time.Duration) error {
	if done, err := c.settled(); done {
		return err
	}

	if c.Status() == acme.StatusPending {
		if err := c.Respond(ctx); err != nil {
			return err
		}
	}

	for {
		if done, err := c.settled(); done {
			return err
		}
		c.mu.Lock()
		retryAfter := c.retryAfter
		c.mu.Unlock()
		if err := sleep(ctx, pollDelay(interval, retryAfter)); err != nil {
			return err
		}
		if done, err := c.Poll(ctx); done || err != nil {
			return err
		}
	}
}

// HTTP01Challenge is proven by serving the key authorization over HTTP on port
// 80 of the identifier at Path.
//
// See https://tools.ietf.org/html/rfc8555#section-8.3
type HTTP01Challenge struct {
	*baseChallenge
}

// Path returns the URL path the proof must be served at.
func (c *HTTP01Challenge) Path() string {
	return http01.ChallengePath(c.Token())
}

// Proof returns the body to serve at Path.
func (c *HTTP01Challenge) Proof() (string, error) {
	return c.KeyAuthorization()
}

// DNS01Challenge is proven by publishing a TXT record at RecordName.
//
// See https://tools.ietf.org/html/rfc8555#section-8.4
type DNS01Challenge struct {
	*baseChallenge
}

// RecordName returns the fully qualified name of the TXT record, e.g.
// "_acme-challenge.example.com.".
func (c *DNS01Challenge) RecordName() string {
	return dns.Fqdn("_acme-challenge." + c.authz.Domain())
}

// Proof returns the TXT record value: the base64url SHA-256 digest of the key
// authorization.
func (c *DNS01Challenge) Proof() (string, error) {
	ka, err := c.KeyAuthorization()
	if err != nil {
		return "", err
	}
	return keys.DNSKeyAuth(ka), nil
}

// TLSALPN01Challenge is proven by presenting a self-signed certificate carrying
// the key authorization digest during a TLS handshake negotiating the
// "acme-tls/1" protocol.
//
// See https://tools.ietf.org/html/rfc8737
type TLSALPN01Challenge struct {
	*baseChallenge
}

// Certificate returns the certificate to present for the identifier.
func (c *TLSALPN01Challenge) Certificate() (*tls.Certificate, error) {
	ka, err := c.KeyAuthorization()
	if err != nil {
		return nil, err
	}
	cert, err := tlsalpn01.ChallengeCert(c.authz.Domain(), ka)
	if err != nil {
		return nil, &CryptoError{Op: "tls-alpn-01 certificate", Err: err}
	}
	return cert, nil
}

// UnknownChallenge is a challenge of a type without derived values. It can
// still be validated once the caller has published a response.
type UnknownChallenge struct {
	*baseChallenge
}
