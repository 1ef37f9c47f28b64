package solver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cpu/acmekit/internal/logging"
	acmenet "github.com/cpu/acmekit/net"
	"github.com/pkg/errors"
)

// RemoteChallengeServer drives the management API of a pebble-challtestsrv
// instance, e.g. "http://localhost:8055".
type RemoteChallengeServer struct {
	address string
	net     *acmenet.ACMENet
	log     *slog.Logger
}

// NewRemoteChallengeServer returns a ChallengeServer for the management API at
// addr. Failed management requests are logged to logger, which may be nil.
func NewRemoteChallengeServer(addr string, logger *slog.Logger) (*RemoteChallengeServer, error) {
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		return nil, errors.Errorf("challenge server address %q must be an http or https URL", addr)
	}
	net, err := acmenet.New(acmenet.Config{Timeout: 10 * time.Second})
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &RemoteChallengeServer{
		address: strings.TrimSuffix(addr, "/"),
		net:     net,
		log:     logger,
	}, nil
}

func (srv *RemoteChallengeServer) url(path string) string {
	return fmt.Sprintf("%s/%s", srv.address, path)
}

// post sends one management request. The ChallengeServer methods have no error
// results, so failures are logged.
func (srv *RemoteChallengeServer) post(path string, req interface{}) {
	body, err := json.Marshal(req)
	if err != nil {
		logging.Error(srv.log, "marshalling challenge server request", err, "path", path)
		return
	}
	resp, err := srv.net.PostURL(context.Background(), srv.url(path), body)
	if err != nil {
		logging.Error(srv.log, "challenge server request failed", err, "path", path)
		return
	}
	if resp.Response.StatusCode != http.StatusOK {
		srv.log.Warn("challenge server rejected request",
			"path", path, "status", resp.Response.StatusCode, "body", string(resp.RespBody))
	}
}

func (srv *RemoteChallengeServer) AddHTTPOneChallenge(token string, keyAuth string) {
	srv.post("add-http01", struct {
		Token   string `json:"token"`
		Content string `json:"content"`
	}{token, keyAuth})
}

func (srv *RemoteChallengeServer) DeleteHTTPOneChallenge(token string) {
	srv.post("del-http01", struct {
		Token string `json:"token"`
	}{token})
}

func (srv *RemoteChallengeServer) AddDNSOneChallenge(host string, value string) {
	srv.post("set-txt", struct {
		Host  string `json:"host"`
		Value string `json:"value"`
	}{host, value})
}

func (srv *RemoteChallengeServer) DeleteDNSOneChallenge(host string) {
	srv.post("clear-txt", struct {
		Host string `json:"host"`
	}{host})
}

func (srv *RemoteChallengeServer) AddTLSALPNChallenge(host string, keyAuth string) {
	srv.post("add-tlsalpn01", struct {
		Host    string `json:"host"`
		Content string `json:"content"`
	}{host, keyAuth})
}

func (srv *RemoteChallengeServer) DeleteTLSALPNChallenge(host string) {
	srv.post("del-tlsalpn01", struct {
		Host string `json:"host"`
	}{host})
}
