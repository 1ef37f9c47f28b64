package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cpu/acmekit/acme"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientConfigNormalize(t *testing.T) {
	testCases := []struct {
		name    string
		config  ClientConfig
		wantErr bool
	}{
		{"valid", ClientConfig{DirectoryURL: " https://example.com/dir \n"}, false},
		{"plain http", ClientConfig{DirectoryURL: "http://localhost:14000/dir"}, false},
		{"empty", ClientConfig{}, true},
		{"bad scheme", ClientConfig{DirectoryURL: "ftp://example.com/dir"}, true},
		{"unparseable", ClientConfig{DirectoryURL: "https://exa mple.com/%zz"}, true},
		{"negative rate", ClientConfig{DirectoryURL: "https://example.com", RequestsPerSecond: -1}, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			config := tc.config
			err := config.normalize()
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestResolve(t *testing.T) {
	srv := newTestServer(t)
	srv.TermsOfService = "https://example.com/tos.pdf"
	dir := newTestDirectory(t, srv)

	assert.Equal(t, srv.DirectoryURL(), dir.URL())
	assert.Equal(t, "https://example.com/tos.pdf", dir.TermsOfService())

	keyChange, err := dir.Endpoint(acme.KEY_CHANGE_ENDPOINT)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/key-change", keyChange)

	// The fake server does not support pre-authorization.
	_, err = dir.Endpoint("newAuthz")
	assert.ErrorIs(t, err, ErrMissingEndpoint)

	// Only GETs the directory; nonces are fetched on first use.
	assert.Equal(t, 1, srv.Count(http.MethodGet, "/directory"))
	assert.Equal(t, 0, srv.Count(http.MethodHead, "/nonce"))
}

func TestResolveResourceIsCopy(t *testing.T) {
	srv := newTestServer(t)
	srv.TermsOfService = "https://example.com/tos.pdf"
	dir := newTestDirectory(t, srv)

	res := dir.Resource()
	res.NewOrder = "https://evil.example.com"
	res.Meta.TermsOfService = "changed"

	assert.Equal(t, srv.URL+"/new-order", dir.Resource().NewOrder)
	assert.Equal(t, "https://example.com/tos.pdf", dir.TermsOfService())
}

func TestResolveMissingEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"newAccount": "https://example.com/new-account",
			"newOrder":   "https://example.com/new-order",
		})
	}))
	defer srv.Close()

	_, err := Resolve(context.Background(), ClientConfig{DirectoryURL: srv.URL})
	assert.ErrorIs(t, err, ErrMissingEndpoint)
}

func TestResolveInvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not a directory</html>"))
	}))
	defer srv.Close()

	_, err := Resolve(context.Background(), ClientConfig{DirectoryURL: srv.URL})
	assert.Error(t, err)
}

func TestSignedRequestBeforeResolve(t *testing.T) {
	c, err := NewClient(ClientConfig{DirectoryURL: "https://example.com/dir"})
	require.NoError(t, err)

	_, err = c.PostAsGet(context.Background(), "https://example.com/order/1",
		Identity{Signer: newTestSigner(t), KeyID: "https://example.com/account/1"})
	assert.Error(t, err)
}
