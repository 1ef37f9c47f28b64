package client

import (
	"context"
	"crypto"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/mail"
	"strings"
	"sync"

	"github.com/cpu/acmekit/acme"
	"github.com/cpu/acmekit/acme/keys"
	"github.com/cpu/acmekit/acme/resources"
	jose "github.com/go-jose/go-jose/v4"
	"github.com/pkg/errors"
)

// Account is a registered ACME account: a keypair together with the account
// URL the server assigned to it. The URL is sent as the JWS "kid" of every
// request the Account makes.
type Account struct {
	dir    *Directory
	signer crypto.Signer

	mu  sync.RWMutex
	res resources.Account
}

// RegisterOptions adjusts a newAccount request. The zero value agrees to the
// server's terms of service.
type RegisterOptions struct {
	// Do not send termsOfServiceAgreed. Servers publishing terms of service
	// will usually refuse the registration.
	SkipTermsOfServiceAgreement bool
	// Only look up an existing account for the key, never create one.
	OnlyReturnExisting bool
	// Optional binding to an external account, required by some servers.
	ExternalAccountBinding *ExternalAccountBinding
}

// Register creates an account for signer with the given contacts. Contacts
// without a URL scheme are treated as email addresses and given a "mailto:"
// prefix.
//
// For more information on account creation see
// https://tools.ietf.org/html/rfc8555#section-7.3
func (d *Directory) Register(ctx context.Context, signer crypto.Signer, contacts []string, opts *RegisterOptions) (*Account, error) {
	if opts == nil {
		opts = &RegisterOptions{}
	}
	if signer == nil {
		return nil, &CryptoError{Op: "register", Err: errors.New("nil account key")}
	}

	contact, err := normalizeContacts(contacts)
	if err != nil {
		return nil, err
	}

	newAcctURL, err := d.Endpoint(acme.NEW_ACCOUNT_ENDPOINT)
	if err != nil {
		return nil, err
	}

	newAcctReq := struct {
		Contact            []string        `json:"contact,omitempty"`
		ToSAgreed          bool            `json:"termsOfServiceAgreed,omitempty"`
		OnlyReturnExisting bool            `json:"onlyReturnExisting,omitempty"`
		EAB                json.RawMessage `json:"externalAccountBinding,omitempty"`
	}{
		Contact:            contact,
		ToSAgreed:          !opts.SkipTermsOfServiceAgreement,
		OnlyReturnExisting: opts.OnlyReturnExisting,
	}

	if opts.ExternalAccountBinding != nil {
		eab, err := opts.ExternalAccountBinding.sign(signer, newAcctURL)
		if err != nil {
			return nil, err
		}
		newAcctReq.EAB = eab
	} else if d.res.ExternalAccountRequired() && !opts.OnlyReturnExisting {
		// The server answers with an externalAccountRequired problem.
		d.client.log.Warn("server requires an external account binding", "url", newAcctURL)
	}

	d.client.log.Info("sending newAccount request", "url", newAcctURL, "contact", contact)
	out, err := d.client.PostJSON(ctx, newAcctURL, newAcctReq, Identity{Signer: signer})
	if err != nil {
		return nil, errors.Wrap(err, "registering account")
	}

	if out.StatusCode != http.StatusCreated && out.StatusCode != http.StatusOK {
		return nil, errors.Errorf("registering account: server returned status code %d, expected %d",
			out.StatusCode, http.StatusCreated)
	}
	if out.Location == "" {
		return nil, errors.Wrap(ErrNoLocation, "registering account")
	}

	var res resources.Account
	if len(out.Body) > 0 {
		if err := out.JSON(&res); err != nil {
			return nil, err
		}
	}
	// Store the Location header as the Account's ID
	res.ID = out.Location

	if out.StatusCode == http.StatusCreated {
		d.client.log.Info("created account", "kid", res.ID)
	} else {
		d.client.log.Info("found existing account", "kid", res.ID)
	}

	return &Account{
		dir:    d,
		signer: signer,
		res:    res,
	}, nil
}

// Load returns the account registered for signer, sending the same request as
// Register. Loading an account that already exists is idempotent and yields
// its existing URL. Callers that must not create an account should use
// Register with OnlyReturnExisting.
func (d *Directory) Load(ctx context.Context, signer crypto.Signer, contacts []string) (*Account, error) {
	return d.Register(ctx, signer, contacts, nil)
}

// LoadPEM is Load for a PEM encoded account key.
func (d *Directory) LoadPEM(ctx context.Context, keyPEM []byte, contacts []string) (*Account, error) {
	signer, err := keys.SignerFromPEM(keyPEM)
	if err != nil {
		return nil, &CryptoError{Op: "load account key", Err: err}
	}
	return d.Load(ctx, signer, contacts)
}

func normalizeContacts(contacts []string) ([]string, error) {
	var result []string
	for _, c := range contacts {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if !strings.Contains(c, ":") {
			addr, err := mail.ParseAddress(c)
			if err != nil {
				return nil, errors.Wrapf(err, "contact %q is invalid", c)
			}
			c = "mailto:" + addr.Address
		}
		result = append(result, c)
	}
	return result, nil
}

// ID returns the account URL, used as the JWS key ID.
func (a *Account) ID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.res.ID
}

// String returns the Account's ID.
func (a *Account) String() string {
	return a.ID()
}

// Status returns the account status last reported by the server.
func (a *Account) Status() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.res.Status
}

// Contacts returns the account's contact URLs.
func (a *Account) Contacts() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string(nil), a.res.Contact...)
}

// Resource returns a copy of the account resource.
func (a *Account) Resource() resources.Account {
	a.mu.RLock()
	defer a.mu.RUnlock()
	res := a.res
	res.Contact = append([]string(nil), a.res.Contact...)
	return res
}

// Signer returns the account key.
func (a *Account) Signer() crypto.Signer {
	return a.signer
}

// Directory returns the directory the account was registered with.
func (a *Account) Directory() *Directory {
	return a.dir
}

// Identity returns the key and key ID the account signs requests with.
func (a *Account) Identity() Identity {
	return Identity{Signer: a.signer, KeyID: a.ID()}
}

// Thumbprint returns the base64url JWK thumbprint of the account key.
func (a *Account) Thumbprint() (string, error) {
	return keys.JWKThumbprint(a.signer)
}

// KeyAuthorization returns the key authorization of a challenge token for this
// account.
func (a *Account) KeyAuthorization(token string) (string, error) {
	ka, err := keys.KeyAuth(a.signer, token)
	if err != nil {
		return "", &CryptoError{Op: "key authorization", Err: err}
	}
	return ka, nil
}

// PrivateKeyPEM returns the PEM encoding of the account key, so callers can
// store it and Load the account later.
func (a *Account) PrivateKeyPEM() (string, error) {
	return keys.SignerToPEM(a.signer)
}

func (a *Account) client() *Client {
	return a.dir.client
}

// requireValid returns a StateError without contacting the server if the
// account is known to be unusable.
func (a *Account) requireValid(op string) error {
	status := a.Status()
	if status == "" || status == acme.StatusValid {
		return nil
	}
	return &StateError{Op: op, URL: a.ID(), Status: status, Expected: []string{acme.StatusValid}}
}

func (a *Account) update(ctx context.Context, payload interface{}) error {
	var out *Outcome
	var err error
	if payload == nil {
		out, err = a.client().PostAsGet(ctx, a.ID(), a.Identity())
	} else {
		out, err = a.client().PostJSON(ctx, a.ID(), payload, a.Identity())
	}
	if err != nil {
		return err
	}

	var res resources.Account
	if err := out.JSON(&res); err != nil {
		return err
	}

	a.mu.Lock()
	res.ID = a.res.ID
	a.res = res
	a.mu.Unlock()
	return nil
}

// Refresh fetches the account resource from the server.
func (a *Account) Refresh(ctx context.Context) error {
	return errors.Wrap(a.update(ctx, nil), "refreshing account")
}

// UpdateContacts replaces the account's contacts.
//
// See https://tools.ietf.org/html/rfc8555#section-7.3.2
func (a *Account) UpdateContacts(ctx context.Context, contacts []string) error {
	if err := a.requireValid("update contacts"); err != nil {
		return err
	}
	contact, err := normalizeContacts(contacts)
	if err != nil {
		return err
	}
	if contact == nil {
		contact = []string{}
	}
	req := struct {
		Contact []string `json:"contact"`
	}{contact}
	return errors.Wrap(a.update(ctx, req), "updating contacts")
}

// Deactivate permanently deactivates the account. The server refuses every
// later request signed by it.
//
// See https://tools.ietf.org/html/rfc8555#section-7.3.6
func (a *Account) Deactivate(ctx context.Context) error {
	if err := a.requireValid("deactivate account"); err != nil {
		return err
	}
	req := struct {
		Status string `json:"status"`
	}{acme.StatusDeactivated}
	if err := a.update(ctx, req); err != nil {
		return errors.Wrap(err, "deactivating account")
	}
	a.client().log.Info("deactivated account", "kid", a.ID())
	return nil
}

// ChangeKey rolls the account over to newSigner. The receiver is left
// unchanged; the returned Account signs with the new key under the same
// account URL.
//
// See https://tools.ietf.org/html/rfc8555#section-7.3.5
func (a *Account) ChangeKey(ctx context.Context, newSigner crypto.Signer) (*Account, error) {
	if err := a.requireValid("change key"); err != nil {
		return nil, err
	}
	if newSigner == nil {
		return nil, &CryptoError{Op: "change key", Err: errors.New("nil new key")}
	}

	targetURL, err := a.dir.Endpoint(acme.KEY_CHANGE_ENDPOINT)
	if err != nil {
		return nil, err
	}

	acctID := a.ID()
	rolloverRequest := struct {
		Account string          `json:"account"`
		OldKey  jose.JSONWebKey `json:"oldKey"`
	}{
		Account: acctID,
		OldKey:  keys.JWKForSigner(a.signer),
	}
	rolloverRequestJSON, err := json.Marshal(&rolloverRequest)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling key change request")
	}

	// The inner JWS is signed by the new key, embeds it, and carries no nonce.
	inner, err := Sign(targetURL, rolloverRequestJSON, Identity{Signer: newSigner}, "")
	if err != nil {
		return nil, err
	}

	a.client().log.Info("rolling over account key", "kid", acctID)
	if _, err := a.client().Post(ctx, targetURL, inner.SerializedJWS, a.Identity()); err != nil {
		return nil, errors.Wrap(err, "changing account key")
	}

	return &Account{
		dir:    a.dir,
		signer: newSigner,
		res:    a.Resource(),
	}, nil
}

// RevokeCertificate revokes a certificate issued to this account.
//
// See https://tools.ietf.org/html/rfc8555#section-7.6
func (a *Account) RevokeCertificate(ctx context.Context, certDER []byte, reason acme.RevocationReason) error {
	if err := a.requireValid("revoke certificate"); err != nil {
		return err
	}
	return a.dir.revoke(ctx, certDER, reason, a.Identity())
}

func (d *Directory) revoke(ctx context.Context, certDER []byte, reason acme.RevocationReason, id Identity) error {
	if len(certDER) == 0 {
		return errors.New("revoke: empty certificate")
	}
	revokeURL, err := d.Endpoint(acme.REVOKE_CERT_ENDPOINT)
	if err != nil {
		return err
	}
	req := struct {
		Certificate string `json:"certificate"`
		Reason      int    `json:"reason,omitempty"`
	}{
		Certificate: base64.RawURLEncoding.EncodeToString(certDER),
		Reason:      int(reason),
	}
	if _, err := d.client.PostJSON(ctx, revokeURL, req, id); err != nil {
		return errors.Wrap(err, "revoking certificate")
	}
	d.client.log.Info("revoked certificate", "reason", reason.String())
	return nil
}
