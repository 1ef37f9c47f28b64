package client

import (
	"context"
	"crypto"
	"net/http"

	"github.com/cpu/acmekit/acme"
	"github.com/cpu/acmekit/acme/resources"
	"github.com/pkg/errors"
)

// Directory is a resolved ACME server directory. It is fetched once and never
// changes afterwards; every endpoint URL the client uses comes from it. A
// Directory is the entry point for registering and loading Accounts.
//
// See https://tools.ietf.org/html/rfc8555#section-7.1.1
type Directory struct {
	client *Client
	url    string
	res    resources.Directory
}

// Resolve creates a Client from config and fetches the ACME server's
// directory. Resolve must succeed before any other operation.
func Resolve(ctx context.Context, config ClientConfig) (*Directory, error) {
	c, err := NewClient(config)
	if err != nil {
		return nil, err
	}
	return c.Resolve(ctx, config.DirectoryURL)
}

// Resolve fetches the directory at dirURL and points the Client's nonce
// supply at its newNonce endpoint.
func (c *Client) Resolve(ctx context.Context, dirURL string) (*Directory, error) {
	out, err := c.Get(ctx, dirURL)
	if err != nil {
		return nil, errors.Wrap(err, "fetching ACME directory")
	}
	if out.StatusCode != http.StatusOK {
		return nil, errors.Errorf("fetching ACME directory: status %d, expected %d",
			out.StatusCode, http.StatusOK)
	}

	var res resources.Directory
	if err := out.JSON(&res); err != nil {
		return nil, errors.Wrap(err, "decoding ACME directory")
	}

	for _, name := range []string{
		acme.NEW_NONCE_ENDPOINT,
		acme.NEW_ACCOUNT_ENDPOINT,
		acme.NEW_ORDER_ENDPOINT,
	} {
		if _, ok := res.Endpoint(name); !ok {
			return nil, errors.Wrapf(ErrMissingEndpoint, "%q", name)
		}
	}

	c.nonces.mu.Lock()
	c.nonces.fetch = func(ctx context.Context) (string, error) {
		return c.fetchNonce(ctx, res.NewNonce)
	}
	c.nonces.mu.Unlock()

	c.log.Info("resolved directory", "url", dirURL)
	return &Directory{
		client: c,
		url:    dirURL,
		res:    res,
	}, nil
}

// URL returns the URL the directory was fetched from.
func (d *Directory) URL() string {
	return d.url
}

// Client returns the transport shared by everything resolved from d.
func (d *Directory) Client() *Client {
	return d.client
}

// Resource returns a copy of the directory resource.
func (d *Directory) Resource() resources.Directory {
	res := d.res
	if d.res.Meta != nil {
		meta := *d.res.Meta
		meta.CAAIdentities = append([]string(nil), d.res.Meta.CAAIdentities...)
		res.Meta = &meta
	}
	return res
}

// Endpoint returns the URL advertised under the given directory key (e.g.
// "keyChange"), or an error wrapping ErrMissingEndpoint.
func (d *Directory) Endpoint(name string) (string, error) {
	u, ok := d.res.Endpoint(name)
	if !ok {
		return "", errors.Wrapf(ErrMissingEndpoint, "%q", name)
	}
	return u, nil
}

// TermsOfService returns the URL of the server's terms of service, or an empty
// string if it publishes none.
func (d *Directory) TermsOfService() string {
	return d.res.TermsOfService()
}

// RevokeWithCertKey revokes a certificate by proving possession of its private
// key instead of the account key that ordered it.
//
// See https://tools.ietf.org/html/rfc8555#section-7.6
func (d *Directory) RevokeWithCertKey(ctx context.Context, certDER []byte, certKey crypto.Signer, reason acme.RevocationReason) error {
	return d.revoke(ctx, certDER, reason, Identity{Signer: certKey})
}
