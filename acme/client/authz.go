package client

import (
	"context"
	"strings"
	"sync"

	"github.com/cpu/acmekit/acme"
	"github.com/cpu/acmekit/acme/resources"
	"github.com/pkg/errors"
)

// Authorization is the server's record of the account's attempt to prove
// control of one identifier. It becomes valid once any one of its challenges
// is validated.
//
// See https://tools.ietf.org/html/rfc8555#section-7.5
type Authorization struct {
	acct *Account

	mu  sync.Mutex
	res resources.Authorization
}

// Authorization fetches an authorization by URL.
func (a *Account) Authorization(ctx context.Context, authzURL string) (*Authorization, error) {
	authz := &Authorization{acct: a, res: resources.Authorization{ID: authzURL}}
	if err := authz.Refresh(ctx); err != nil {
		return nil, err
	}
	return authz, nil
}

// Refresh fetches the authorization from the server.
func (authz *Authorization) Refresh(ctx context.Context) error {
	out, err := authz.acct.client().PostAsGet(ctx, authz.URL(), authz.acct.Identity())
	if err != nil {
		return errors.Wrap(err, "refreshing authorization")
	}
	var res resources.Authorization
	if err := out.JSON(&res); err != nil {
		return err
	}
	authz.mu.Lock()
	res.ID = authz.res.ID
	authz.res = res
	authz.mu.Unlock()
	return nil
}

// Deactivate relinquishes the authorization.
//
// See https://tools.ietf.org/html/rfc8555#section-7.5.2
func (authz *Authorization) Deactivate(ctx context.Context) error {
	req := struct {
		Status string `json:"status"`
	}{acme.StatusDeactivated}
	out, err := authz.acct.client().PostJSON(ctx, authz.URL(), req, authz.acct.Identity())
	if err != nil {
		return errors.Wrap(err, "deactivating authorization")
	}
	var res resources.Authorization
	if err := out.JSON(&res); err != nil {
		return err
	}
	authz.mu.Lock()
	res.ID = authz.res.ID
	authz.res = res
	authz.mu.Unlock()
	return nil
}

// URL returns the authorization URL.
func (authz *Authorization) URL() string {
	authz.mu.Lock()
	defer authz.mu.Unlock()
	return authz.res.ID
}

// String returns the Authorization's URL.
func (authz *Authorization) String() string {
	return authz.URL()
}

// Status returns the authorization status last reported by the server.
func (authz *Authorization) Status() string {
	authz.mu.Lock()
	defer authz.mu.Unlock()
	return authz.res.Status
}

// Resource returns a copy of the authorization resource.
func (authz *Authorization) Resource() resources.Authorization {
	authz.mu.Lock()
	defer authz.mu.Unlock()
	res := authz.res
	res.Challenges = append([]resources.Challenge(nil), authz.res.Challenges...)
	return res
}

// Identifier returns the identifier being authorized.
func (authz *Authorization) Identifier() resources.Identifier {
	authz.mu.Lock()
	defer authz.mu.Unlock()
	return authz.res.Identifier
}

// Domain returns the identifier value without any wildcard prefix. This is the
// name challenge responses are published under.
func (authz *Authorization) Domain() string {
	return strings.TrimPrefix(authz.Identifier().Value, "*.")
}

// NeedChallenge reports whether a challenge still has to be validated for this
// authorization. Servers may reuse authorizations validated for earlier
// orders.
func (authz *Authorization) NeedChallenge() bool {
	return authz.Status() == acme.StatusPending
}

// Challenges returns the authorization's challenges as offered by the server.
func (authz *Authorization) Challenges() []Challenge {
	res := authz.Resource()
	challs := make([]Challenge, 0, len(res.Challenges))
	for _, chall := range res.Challenges {
		challs = append(challs, newChallenge(authz, chall))
	}
	return challs
}

// Challenge returns the challenge of the given type, or nil.
func (authz *Authorization) Challenge(challType string) Challenge {
	for _, chall := range authz.Resource().Challenges {
		if chall.Type == challType {
			return newChallenge(authz, chall)
		}
	}
	return nil
}

// HTTPChallenge returns the authorization's http-01 challenge, if offered.
func (authz *Authorization) HTTPChallenge() (*HTTP01Challenge, bool) {
	chall, ok := authz.Challenge(acme.ChallengeHTTP01).(*HTTP01Challenge)
	return chall, ok
}

// DNSChallenge returns the authorization's dns-01 challenge, if offered.
func (authz *Authorization) DNSChallenge() (*DNS01Challenge, bool) {
	chall, ok := authz.Challenge(acme.ChallengeDNS01).(*DNS01Challenge)
	return chall, ok
}

// TLSALPNChallenge returns the authorization's tls-alpn-01 challenge, if
// offered.
func (authz *Authorization) TLSALPNChallenge() (*TLSALPN01Challenge, bool) {
	chall, ok := authz.Challenge(acme.ChallengeTLSALPN01).(*TLSALPN01Challenge)
	return chall, ok
}
