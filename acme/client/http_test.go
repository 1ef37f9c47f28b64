package client

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cpu/acmekit/acme"
	"github.com/cpu/acmekit/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadNonceRetriedOnce(t *testing.T) {
	srv := newTestServer(t)
	dir := newTestDirectory(t, srv)
	acct := newTestAccount(t, dir)

	srv.BadNonces = 1
	require.NoError(t, acct.Refresh(context.Background()))
	assert.Equal(t, 2, srv.Count(http.MethodPost, "/account/"))
}

func TestBadNonceSurfacedAfterRetry(t *testing.T) {
	srv := newTestServer(t)
	dir := newTestDirectory(t, srv)
	acct := newTestAccount(t, dir)

	srv.BadNonces = 2
	err := acct.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, IsProblem(err, acme.ProblemBadNonce))
	assert.True(t, IsRetryable(err))
	assert.Equal(t, 2, srv.Count(http.MethodPost, "/account/"))

	// The supply recovers with the nonce of the last response.
	require.NoError(t, acct.Refresh(context.Background()))
}

func TestProblemDocument(t *testing.T) {
	srv := newTestServer(t)
	dir := newTestDirectory(t, srv)

	_, err := dir.Register(context.Background(), newTestSigner(t), nil,
		&RegisterOptions{OnlyReturnExisting: true})
	require.Error(t, err)

	var pe *ProblemError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, acme.ProblemAccountDoesNotExist, pe.Type)
	assert.Equal(t, http.StatusBadRequest, pe.HTTPStatus)
	assert.NotEmpty(t, pe.Detail)
	assert.False(t, IsRetryable(err))
}

func TestProblemWithoutDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(acme.RETRY_AFTER_HEADER, "30")
		http.Error(w, "upstream unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewClient(ClientConfig{DirectoryURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Get(context.Background(), srv.URL)
	var pe *ProblemError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "about:blank", pe.Type)
	assert.Equal(t, http.StatusServiceUnavailable, pe.HTTPStatus)
	assert.Equal(t, http.StatusServiceUnavailable, pe.Status)
	assert.Equal(t, 30*time.Second, pe.RetryAfter)
	assert.True(t, IsRetryable(err))
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(ClientConfig{DirectoryURL: url})
	require.NoError(t, err)

	_, err = c.Get(context.Background(), url)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.MethodGet, te.Method)
	assert.True(t, IsRetryable(err))
}

func TestRetryAfter(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	testCases := []struct {
		name     string
		value    string
		expected time.Duration
	}{
		{"absent", "", 0},
		{"seconds", "120", 2 * time.Minute},
		{"negative", "-5", 0},
		{"http date", now.Add(45 * time.Second).Format(http.TimeFormat), 45 * time.Second},
		{"past date", now.Add(-time.Hour).Format(http.TimeFormat), 0},
		{"garbage", "soon", 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := http.Header{}
			if tc.value != "" {
				h.Set(acme.RETRY_AFTER_HEADER, tc.value)
			}
			assert.Equal(t, tc.expected, retryAfter(h, now))
		})
	}
}

func TestOutcomeLinks(t *testing.T) {
	h := http.Header{}
	h.Add(acme.LINK_HEADER, `<https://example.com/cert/1/alt1>; rel="alternate"`)
	h.Add(acme.LINK_HEADER, `<https://example.com/cert/1/alt2>; rel="alternate", <https://example.com/dir>; rel="index"`)
	out := &Outcome{Header: h}

	assert.Equal(t, []string{
		"https://example.com/cert/1/alt1",
		"https://example.com/cert/1/alt2",
	}, out.Links(acme.LINK_REL_ALTERNATE))
	assert.Equal(t, []string{"https://example.com/dir"}, out.Links(acme.LINK_REL_INDEX))
	assert.Empty(t, out.Links(acme.LINK_REL_UP))
}

func TestOutcomeLinksSameRelationInOneValue(t *testing.T) {
	h := http.Header{}
	h.Add(acme.LINK_HEADER, `<https://a/1>;rel="alternate", <https://a/2>;rel="alternate",<https://a/3>; rel=alternate`)
	h.Add(acme.LINK_HEADER, `<https://a/issuer>; rel="up"`)
	out := &Outcome{Header: h}

	assert.Equal(t, []string{"https://a/1", "https://a/2", "https://a/3"}, out.Links(acme.LINK_REL_ALTERNATE))
	assert.Equal(t, []string{"https://a/issuer"}, out.Links(acme.LINK_REL_UP))
}

func TestSplitLinks(t *testing.T) {
	assert.Equal(t, []string{
		`<https://a/1>; rel="alternate"`,
		`<https://a/2,3>; title="x, y"; rel="alternate"`,
	}, splitLinks(`<https://a/1>; rel="alternate" , <https://a/2,3>; title="x, y"; rel="alternate"`))
	assert.Equal(t, []string{""}, splitLinks(""))
}

func TestDumpLoggedAtTrace(t *testing.T) {
	srv := newTestServer(t)

	var buf bytes.Buffer
	_, err := Resolve(context.Background(), ClientConfig{
		DirectoryURL: srv.DirectoryURL(),
		Logger:       logging.New(logging.LevelTrace, &buf, nil),
		Dump:         true,
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "level=TRACE")
	assert.Contains(t, buf.String(), "http exchange")

	buf.Reset()
	_, err = Resolve(context.Background(), ClientConfig{
		DirectoryURL: srv.DirectoryURL(),
		Logger:       logging.New(slog.LevelInfo, &buf, nil),
		Dump:         true,
	})
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "http exchange")
	assert.Contains(t, buf.String(), "resolved directory")
}
