package client

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cpu/acmekit/acme"
	"github.com/cpu/acmekit/acme/resources"
	"github.com/cpu/acmekit/internal/logging"
	"github.com/peterhellberg/link"
	"github.com/pkg/errors"
)

// Outcome is a successful (2xx) response from the ACME server.
type Outcome struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// Value of the Location header, empty if absent.
	Location string
	// Delay requested with a Retry-After header, zero if absent.
	RetryAfter time.Duration
}

// Links returns the targets of the response's Link headers with the given
// relation, in header order.
func (o *Outcome) Links(rel string) []string {
	var urls []string
	// link.Parse keys links by relation, so each link is parsed on its own to
	// keep repeated relations such as "alternate".
	for _, value := range o.Header.Values(acme.LINK_HEADER) {
		for _, single := range splitLinks(value) {
			for _, l := range link.Parse(single) {
				if l.Rel == rel {
					urls = append(urls, l.URI)
				}
			}
		}
	}
	return urls
}

// splitLinks splits a Link header value on the commas separating links,
// ignoring commas inside URIs and quoted parameters.
func splitLinks(value string) []string {
	var links []string
	inURI, inQuotes := false, false
	start := 0
	for i, r := range value {
		switch {
		case inQuotes:
			if r == '"' {
				inQuotes = false
			}
		case r == '"':
			inQuotes = true
		case r == '<':
			inURI = true
		case r == '>':
			inURI = false
		case r == ',' && !inURI:
			links = append(links, strings.TrimSpace(value[start:i]))
			start = i + 1
		}
	}
	return append(links, strings.TrimSpace(value[start:]))
}

// JSON unmarshals the response body into v.
func (o *Outcome) JSON(v interface{}) error {
	if err := json.Unmarshal(o.Body, v); err != nil {
		return errors.Wrap(err, "server returned invalid JSON")
	}
	return nil
}

// Get sends an unauthenticated GET request. It is only used for the directory;
// every other resource is fetched with PostAsGet.
func (c *Client) Get(ctx context.Context, url string) (*Outcome, error) {
	req, err := c.net.GetRequest(ctx, url)
	if err != nil {
		return nil, errors.Wrapf(err, "building GET request for %q", url)
	}
	return c.handleRequest(req)
}

// Post signs payload with the given identity and POSTs it to url. A fresh
// nonce is taken for every attempt. If the server rejects the nonce the
// request is signed again with another nonce and resent once; every other
// failure is returned to the caller.
func (c *Client) Post(ctx context.Context, url string, payload []byte, id Identity) (*Outcome, error) {
	return c.post(ctx, url, payload, id, "")
}

// PostAsGet fetches url with a signed POST with an empty payload.
//
// See https://tools.ietf.org/html/rfc8555#section-6.3
func (c *Client) PostAsGet(ctx context.Context, url string, id Identity) (*Outcome, error) {
	return c.post(ctx, url, []byte{}, id, "")
}

// PostJSON marshals v and sends it with Post.
func (c *Client) PostJSON(ctx context.Context, url string, v interface{}, id Identity) (*Outcome, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling request")
	}
	return c.Post(ctx, url, body, id)
}

func (c *Client) post(ctx context.Context, url string, payload []byte, id Identity, accept string) (*Outcome, error) {
	for attempt := 0; ; attempt++ {
		nonce, err := c.nonces.take(ctx)
		if err != nil {
			return nil, err
		}

		signResult, err := Sign(url, payload, id, nonce)
		if err != nil {
			return nil, err
		}

		req, err := c.net.PostRequest(ctx, url, signResult.SerializedJWS)
		if err != nil {
			return nil, errors.Wrapf(err, "building POST request for %q", url)
		}
		if accept != "" {
			req.Header.Set("Accept", accept)
		}

		c.log.Debug("sending signed request", "url", url, "kid", id.KeyID, "nonce", nonce)
		out, err := c.handleRequest(req)
		if attempt == 0 && IsProblem(err, acme.ProblemBadNonce) {
			c.log.Info("server rejected nonce, retrying", "url", url, "nonce", nonce)
			continue
		}
		return out, err
	}
}

func (c *Client) handleRequest(req *http.Request) (*Outcome, error) {
	url := req.URL.String()
	resp, err := c.net.Do(req)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: url, Err: err}
	}
	if c.dump {
		c.log.Log(req.Context(), logging.LevelTrace, "http exchange",
			"request", string(resp.ReqDump), "response", string(resp.RespDump))
	}

	respOb := resp.Response
	c.nonces.put(respOb.Header.Get(acme.REPLAY_NONCE_HEADER))

	if respOb.StatusCode >= 400 {
		pe := problemFromResponse(url, respOb, resp.RespBody)
		c.log.Debug("server returned problem", "url", url, "status", pe.HTTPStatus, "type", pe.Type)
		return nil, pe
	}

	return &Outcome{
		StatusCode: respOb.StatusCode,
		Header:     respOb.Header,
		Body:       resp.RespBody,
		Location:   respOb.Header.Get(acme.LOCATION_HEADER),
		RetryAfter: retryAfter(respOb.Header, time.Now()),
	}, nil
}

func problemFromResponse(url string, resp *http.Response, body []byte) *ProblemError {
	var prob resources.Problem
	if err := json.Unmarshal(body, &prob); err != nil || prob.Type == "" {
		prob = resources.Problem{
			Type:   "about:blank",
			Detail: strings.TrimSpace(http.StatusText(resp.StatusCode)),
		}
	}
	if prob.Status == 0 {
		prob.Status = resp.StatusCode
	}
	return &ProblemError{
		Problem:    prob,
		HTTPStatus: resp.StatusCode,
		RetryAfter: retryAfter(resp.Header, time.Now()),
		URL:        url,
	}
}

// retryAfter parses a Retry-After header given either in seconds or as an
// HTTP date.
func retryAfter(h http.Header, now time.Time) time.Duration {
	v := strings.TrimSpace(h.Get(acme.RETRY_AFTER_HEADER))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}
