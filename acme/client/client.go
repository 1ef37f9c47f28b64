// Package client provides an ACME (RFC 8555) client: a nonce-authenticated
// signed-request transport, the Directory of an ACME server, Account
// lifecycle, and the Order/Authorization/Challenge state machine leading to an
// issued Certificate.
//
// A typical issuance looks like:
//
//	dir, err := client.Resolve(ctx, client.ClientConfig{DirectoryURL: acme.LetsEncryptStagingURL})
//	acct, err := dir.Register(ctx, signer, []string{"mailto:admin@example.com"}, nil)
//	order, err := acct.NewOrder(ctx, []string{"example.com"}, nil)
//	authzs, err := order.Authorizations(ctx)
//	chall, _ := authzs[0].HTTPChallenge()
//	// publish chall.Proof() at chall.Path()
//	err = chall.Validate(ctx, 2*time.Second)
//	ready, ok, err := order.ConfirmValidations(ctx)
//	valid, err := ready.FinalizeSigner(ctx, certKey, 2*time.Second)
//	cert, err := valid.DownloadCertificate(ctx)
//
// Internally the Client uses the github.com/cpu/acmekit/net package to perform
// HTTP requests to the ACME server.
package client

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cpu/acmekit/internal/logging"
	acmenet "github.com/cpu/acmekit/net"
	"github.com/pkg/errors"
)

// ClientConfig contains configuration options provided to NewClient and
// Resolve.
//
// The DirectoryURL field is a string containing the URL for the ACME server's
// directory endpoint. This field is mandatory and must not be empty. It should
// be a fully qualified URL with a HTTP/HTTPS protocol prefix ("http://" or
// "https://"). See https://tools.ietf.org/html/rfc8555#section-7.1.1
//
// The CACert field is an optional string containing a file path to a file
// containing one or more PEM encoded CA certificate that should be used as
// trust roots for HTTPS requests to the ACME server. If empty the default
// system roots are used. For example, if you are using Pebble as the ACME
// server, it should be the file path to the "test/certs/pebble.minica.pem" file
// from the Pebble source directory.
type ClientConfig struct {
	// A fully qualified URL for the ACME server's directory resource. Must
	// include an HTTP/HTTPS protocol prefix.
	DirectoryURL string
	// An optional file path to one or more PEM encoded CA certificates to be used
	// as trust roots for HTTPS requests to the ACME server.
	CACert string
	// An optional product token sent ahead of the library's User-Agent.
	UserAgent string
	// Per-request HTTP timeout. Defaults to 30s.
	HTTPTimeout time.Duration
	// If positive, the client sends at most this many requests per second.
	RequestsPerSecond float64
	// An optional HTTP client used instead of one built from CACert and
	// HTTPTimeout.
	HTTPClient *http.Client
	// Optional logger. Nothing is logged when nil.
	Logger *slog.Logger
	// Keep request and response dumps and log them at trace level.
	Dump bool
}

// normalize validates a ClientConfig.
func (conf *ClientConfig) normalize() error {
	// Clean up any junk whitespace that might have snuck in
	conf.DirectoryURL = strings.TrimSpace(conf.DirectoryURL)
	conf.CACert = strings.TrimSpace(conf.CACert)

	if conf.DirectoryURL == "" {
		return errors.New("DirectoryURL must not be empty")
	}

	u, err := url.Parse(conf.DirectoryURL)
	if err != nil {
		return errors.Wrap(err, "DirectoryURL invalid")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Errorf("DirectoryURL %q must be an http or https URL", conf.DirectoryURL)
	}

	if conf.RequestsPerSecond < 0 {
		return errors.New("RequestsPerSecond must not be negative")
	}
	return nil
}

// Client is the transport of an ACME session. It owns the HTTP client and the
// nonce supply shared by every Account resolved through it. A Client is safe
// for concurrent use.
type Client struct {
	// the net object is used to make HTTP GET/POST/HEAD requests to the ACME
	// server.
	net *acmenet.ACMENet
	// nonces holds the next Replay-Nonce to sign with.
	nonces *nonceSupply
	log    *slog.Logger
	dump   bool
}

// NewClient creates a Client instance from the given ClientConfig. If the
// config is not valid or if another error occurs it will be returned along with
// a nil Client. The returned Client can only send unsigned requests until it
// resolves a Directory.
func NewClient(config ClientConfig) (*Client, error) {
	// Validate the ClientConfig has no errors when normalized.
	if err := config.normalize(); err != nil {
		return nil, err
	}

	net, err := acmenet.New(acmenet.Config{
		CABundle:          config.CACert,
		UserAgent:         config.UserAgent,
		Timeout:           config.HTTPTimeout,
		RequestsPerSecond: config.RequestsPerSecond,
		HTTPClient:        config.HTTPClient,
		Dump:              config.Dump,
	})
	if err != nil {
		return nil, errors.Wrap(err, "unable to create ACME net client")
	}

	logger := config.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &Client{
		net:    net,
		nonces: &nonceSupply{},
		log:    logger,
		dump:   config.Dump,
	}, nil
}
