// Package net provides common HTTP utilities.
package net

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"os"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

const (
	version       = "0.1.0"
	userAgentBase = "cpu.acmekit"
	locale        = "en-us"

	defaultTimeout = 30 * time.Second
)

// Config controls how an ACMENet is built. The zero value is usable.
type Config struct {
	// Optional path to a file of PEM encoded CA certificates used as trust roots
	// for HTTPS requests. If empty the system roots are used.
	CABundle string
	// Optional product token prepended to the default User-Agent.
	UserAgent string
	// Per-request timeout. Defaults to 30s.
	Timeout time.Duration
	// If positive, outbound requests are limited to this many per second.
	RequestsPerSecond float64
	// Optional HTTP client to use instead of building one. CABundle and Timeout
	// are ignored when set.
	HTTPClient *http.Client
	// Keep printable dumps of every request and response in NetResponse.
	Dump bool
}

// ACMENet performs the HTTP requests of an ACME client.
type ACMENet struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
	dump       bool
}

func New(conf Config) (*ACMENet, error) {
	httpClient := conf.HTTPClient
	if httpClient == nil {
		var caBundle *x509.CertPool
		if conf.CABundle != "" {
			pemBundle, err := os.ReadFile(conf.CABundle)
			if err != nil {
				return nil, errors.Wrapf(err, "reading CA bundle %q", conf.CABundle)
			}

			caBundle = x509.NewCertPool()
			if !caBundle.AppendCertsFromPEM(pemBundle) {
				return nil, fmt.Errorf("no certificates found in CA bundle %q", conf.CABundle)
			}
		}

		timeout := conf.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}

		httpClient = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{
					RootCAs: caBundle,
				},
			},
		}
	}

	ua := fmt.Sprintf("%s/%s (%s; %s)",
		userAgentBase, version, runtime.GOOS, runtime.GOARCH)
	if conf.UserAgent != "" {
		ua = conf.UserAgent + " " + ua
	}

	var limiter *rate.Limiter
	if conf.RequestsPerSecond > 0 {
		burst := int(conf.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(conf.RequestsPerSecond), burst)
	}

	return &ACMENet{
		httpClient: httpClient,
		limiter:    limiter,
		userAgent:  ua,
		dump:       conf.Dump,
	}, nil
}

// NetResponse holds the results from calling Do with an HTTP Request.
type NetResponse struct {
	// The HTTP Response object from making the request. Its body has already
	// been consumed.
	Response *http.Response
	// The response body.
	RespBody []byte
	// The response dumped by httputil to a printable form, if dumping is on.
	RespDump []byte
	// The request dumped by httputil to a printable form, if dumping is on.
	ReqDump []byte
}

// Do performs an HTTP request, returning a pointer to a NetResponse instance or
// an error. User-Agent and Accept-Language headers are automatically added to
// the request. The body of the HTTP Response is read into the NetResponse and
// can not be read again. Do waits for the rate limiter, if any, honouring the
// request's context.
func (c *ACMENet) Do(req *http.Request) (*NetResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", locale)

	var reqDump []byte
	if c.dump {
		var err error
		if reqDump, err = httputil.DumpRequestOut(req, true); err != nil {
			return nil, err
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var respDump []byte
	if c.dump {
		if respDump, err = httputil.DumpResponse(resp, true); err != nil {
			return nil, err
		}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &NetResponse{
		Response: resp,
		RespBody: respBody,
		RespDump: respDump,
		ReqDump:  reqDump,
	}, nil
}

// Convenience function to construct a POST request to the given URL with the
// given JWS body. Returns an HTTP request or a non-nil error.
func (c *ACMENet) PostRequest(ctx context.Context, url string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/jose+json")
	return req, nil
}

// Convenience function to POST the given URL with the given body. This is
// a wrapper combining PostRequest and Do.
func (c *ACMENet) PostURL(ctx context.Context, url string, body []byte) (*NetResponse, error) {
	req, err := c.PostRequest(ctx, url, body)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Convenience function to construct a GET request to the given URL. Returns an
// HTTP request or a non-nil error.
func (c *ACMENet) GetRequest(ctx context.Context, url string) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
}

// Convenience function to GET the given URL. This is a wrapper combining
// GetRequest and Do.
func (c *ACMENet) GetURL(ctx context.Context, url string) (*NetResponse, error) {
	req, err := c.GetRequest(ctx, url)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// HeadURL sends a HEAD request to the given URL.
func (c *ACMENet) HeadURL(ctx context.Context, url string) (*NetResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}
