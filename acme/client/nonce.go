package client

import (
	"context"
	"net/http"
	"sync"

	"github.com/cpu/acmekit/acme"
	"github.com/pkg/errors"
)

// nonceSupply holds at most one unused Replay-Nonce. Every response offers its
// nonce to the supply; every signed request takes one. When the supply is
// empty a fresh nonce is fetched from the newNonce endpoint while holding the
// lock, so concurrent borrowers wait for it instead of racing to fetch their
// own.
type nonceSupply struct {
	mu sync.Mutex
	// nonce is the next unused nonce, or empty.
	nonce string
	// last is the most recently taken nonce. It is never handed out again.
	last  string
	fetch func(ctx context.Context) (string, error)
}

// take removes and returns the held nonce, fetching one first if needed.
func (s *nonceSupply) take(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nonce == "" {
		if s.fetch == nil {
			return "", errors.New("no nonce source: directory not resolved")
		}
		n, err := s.fetch(ctx)
		if err != nil {
			return "", err
		}
		if n == s.last {
			return "", errors.Errorf("%q returned the nonce %q more than once",
				acme.NEW_NONCE_ENDPOINT, n)
		}
		s.nonce = n
	}

	n := s.nonce
	s.nonce = ""
	s.last = n
	return n, nil
}

// put stores a nonce taken from a response, replacing any held nonce.
func (s *nonceSupply) put(n string) {
	if n == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n == s.last {
		return
	}
	s.nonce = n
}

// fetchNonce fetches a new nonce from the ACME server's newNonce endpoint.
//
// See https://tools.ietf.org/html/rfc8555#section-7.2
func (c *Client) fetchNonce(ctx context.Context, nonceURL string) (string, error) {
	c.log.Debug("fetching nonce", "url", nonceURL)

	resp, err := c.net.HeadURL(ctx, nonceURL)
	if err != nil {
		return "", &TransportError{Method: http.MethodHead, URL: nonceURL, Err: err}
	}

	status := resp.Response.StatusCode
	if status != http.StatusOK && status != http.StatusNoContent {
		return "", problemFromResponse(nonceURL, resp.Response, resp.RespBody)
	}

	nonce := resp.Response.Header.Get(acme.REPLAY_NONCE_HEADER)
	if nonce == "" {
		return "", errors.Wrapf(ErrNoNonce, "%q", nonceURL)
	}
	return nonce, nil
}
