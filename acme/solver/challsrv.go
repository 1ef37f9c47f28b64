package solver

import (
	"context"

	"github.com/cpu/acmekit/acme/client"
)

// ChallengeServer is the part of
// github.com/letsencrypt/challtestsrv.ChallSrv that solvers use to publish
// challenge responses. RemoteChallengeServer implements it for a challenge
// test server running elsewhere.
type ChallengeServer interface {
	// HTTP-01 challenge add/remove
	AddHTTPOneChallenge(token string, keyAuth string)
	DeleteHTTPOneChallenge(token string)

	// DNS-01 challenge add/remove, keyed by the TXT record's FQDN
	AddDNSOneChallenge(host string, value string)
	DeleteDNSOneChallenge(host string)

	// TLS-ALPN-01 challenge add/remove
	AddTLSALPNChallenge(host string, keyAuth string)
	DeleteTLSALPNChallenge(host string)
}

// ChallSrvSolver publishes every challenge type on a ChallengeServer.
type ChallSrvSolver struct {
	Server ChallengeServer
}

// NewChallSrvSolver returns a Solver backed by srv.
func NewChallSrvSolver(srv ChallengeServer) *ChallSrvSolver {
	return &ChallSrvSolver{Server: srv}
}

func (s *ChallSrvSolver) Present(_ context.Context, chall client.Challenge) error {
	switch c := chall.(type) {
	case *client.HTTP01Challenge:
		keyAuth, err := c.Proof()
		if err != nil {
			return err
		}
		s.Server.AddHTTPOneChallenge(c.Token(), keyAuth)
	case *client.DNS01Challenge:
		value, err := c.Proof()
		if err != nil {
			return err
		}
		s.Server.AddDNSOneChallenge(c.RecordName(), value)
	case *client.TLSALPN01Challenge:
		keyAuth, err := c.KeyAuthorization()
		if err != nil {
			return err
		}
		s.Server.AddTLSALPNChallenge(c.Authorization().Domain(), keyAuth)
	default:
		return ErrUnsupported
	}
	return nil
}

func (s *ChallSrvSolver) CleanUp(_ context.Context, chall client.Challenge) error {
	switch c := chall.(type) {
	case *client.HTTP01Challenge:
		s.Server.DeleteHTTPOneChallenge(c.Token())
	case *client.DNS01Challenge:
		s.Server.DeleteDNSOneChallenge(c.RecordName())
	case *client.TLSALPN01Challenge:
		s.Server.DeleteTLSALPNChallenge(c.Authorization().Domain())
	default:
		return ErrUnsupported
	}
	return nil
}
