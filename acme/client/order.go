package client

import (
	"context"
	"crypto"
	"encoding/base64"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cpu/acmekit/acme"
	"github.com/cpu/acmekit/acme/resources"
	"github.com/pkg/errors"
	"golang.org/x/net/idna"
)

// OrderOptions adjusts a newOrder request.
type OrderOptions struct {
	// Requested validity window of the certificate. Zero values are omitted.
	NotBefore time.Time
	NotAfter  time.Time
}

// Order is an application for a certificate. Its status only moves forward:
// pending, ready, processing, then valid, or invalid from any of them. The
// status is whatever the server last reported; the client never advances it on
// its own.
//
// For more information see
// https://tools.ietf.org/html/rfc8555#section-7.4
type Order struct {
	acct *Account

	mu         sync.Mutex
	res        resources.Order
	retryAfter time.Duration
	// certKey is the key a CSR was built from by FinalizeSigner, if any.
	certKey crypto.Signer
	// finalizing is set while a finalize request is in flight.
	finalizing bool
}

// ReadyOrder is an Order whose authorizations are all valid. It can be
// finalized.
type ReadyOrder struct {
	*Order
}

// ValidOrder is an Order the server has issued a certificate for.
type ValidOrder struct {
	*Order
}

// NewOrder applies for a certificate for the given names. Names are converted
// to their IDNA ASCII form and lowercased; IP addresses become "ip"
// identifiers. Duplicate names are sent once.
func (a *Account) NewOrder(ctx context.Context, names []string, opts *OrderOptions) (*Order, error) {
	if err := a.requireValid("new order"); err != nil {
		return nil, err
	}
	idents, err := identifiers(names)
	if err != nil {
		return nil, err
	}

	newOrderURL, err := a.dir.Endpoint(acme.NEW_ORDER_ENDPOINT)
	if err != nil {
		return nil, err
	}

	req := struct {
		Identifiers []resources.Identifier `json:"identifiers"`
		NotBefore   string                 `json:"notBefore,omitempty"`
		NotAfter    string                 `json:"notAfter,omitempty"`
	}{
		Identifiers: idents,
	}
	if opts != nil {
		if !opts.NotBefore.IsZero() {
			req.NotBefore = opts.NotBefore.UTC().Format(time.RFC3339)
		}
		if !opts.NotAfter.IsZero() {
			req.NotAfter = opts.NotAfter.UTC().Format(time.RFC3339)
		}
	}

	out, err := a.client().PostJSON(ctx, newOrderURL, req, a.Identity())
	if err != nil {
		return nil, errors.Wrap(err, "creating order")
	}
	if out.StatusCode != http.StatusCreated {
		return nil, errors.Errorf("creating order: server returned status code %d, expected %d",
			out.StatusCode, http.StatusCreated)
	}
	if out.Location == "" {
		return nil, errors.Wrap(ErrNoLocation, "creating order")
	}

	var res resources.Order
	if err := out.JSON(&res); err != nil {
		return nil, err
	}
	// Store the Location header as the Order's ID
	res.ID = out.Location
	a.client().log.Info("created order", "url", res.ID, "status", res.Status, "names", res.Names())

	return &Order{acct: a, res: res, retryAfter: out.RetryAfter}, nil
}

// Order fetches an existing order by URL.
func (a *Account) Order(ctx context.Context, orderURL string) (*Order, error) {
	o := &Order{acct: a, res: resources.Order{ID: orderURL}}
	if err := o.Refresh(ctx); err != nil {
		return nil, err
	}
	return o, nil
}

func identifiers(names []string) ([]resources.Identifier, error) {
	if len(names) == 0 {
		return nil, errors.New("an order needs at least one identifier")
	}
	seen := map[string]bool{}
	var idents []resources.Identifier
	for _, name := range names {
		ident, err := identifierFor(name)
		if err != nil {
			return nil, err
		}
		if seen[ident.Type+":"+ident.Value] {
			continue
		}
		seen[ident.Type+":"+ident.Value] = true
		idents = append(idents, ident)
	}
	return idents, nil
}

func identifierFor(name string) (resources.Identifier, error) {
	name = strings.TrimSuffix(strings.TrimSpace(name), ".")
	if name == "" {
		return resources.Identifier{}, errors.New("empty identifier")
	}
	if ip := net.ParseIP(name); ip != nil {
		return resources.Identifier{Type: acme.IdentifierIP, Value: ip.String()}, nil
	}

	wildcard := strings.HasPrefix(name, "*.")
	ascii, err := idna.Lookup.ToASCII(strings.TrimPrefix(name, "*."))
	if err != nil {
		return resources.Identifier{}, errors.Wrapf(err, "invalid identifier %q", name)
	}
	ascii = strings.ToLower(ascii)
	if wildcard {
		ascii = "*." + ascii
	}
	return resources.Identifier{Type: acme.IdentifierDNS, Value: ascii}, nil
}

// URL returns the order URL.
func (o *Order) URL() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.res.ID
}

// String returns the Order's URL.
func (o *Order) String() string {
	return o.URL()
}

// Status returns the order status last reported by the server.
func (o *Order) Status() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.res.Status
}

// Resource returns a copy of the order resource.
func (o *Order) Resource() resources.Order {
	o.mu.Lock()
	defer o.mu.Unlock()
	res := o.res
	res.Identifiers = append([]resources.Identifier(nil), o.res.Identifiers...)
	res.Authorizations = append([]string(nil), o.res.Authorizations...)
	return res
}

// Names returns the values of the order's identifiers.
func (o *Order) Names() []string {
	return o.Resource().Names()
}

// Account returns the account that owns the order.
func (o *Order) Account() *Account {
	return o.acct
}

// RetryAfter returns the delay the server last asked for before polling the
// order again, zero if none.
func (o *Order) RetryAfter() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.retryAfter
}

func (o *Order) client() *Client {
	return o.acct.client()
}

// apply replaces the held resource with one reported by the server, refusing
// status changes an order may not make.
func (o *Order) apply(res resources.Order, retryAfter time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !resources.OrderTransitionAllowed(o.res.Status, res.Status) {
		return &StateError{
			Op:       "refresh order",
			URL:      o.res.ID,
			Status:   o.res.Status,
			Reported: res.Status,
		}
	}
	res.ID = o.res.ID
	o.res = res
	o.retryAfter = retryAfter
	return nil
}

// Refresh fetches the order from the server.
func (o *Order) Refresh(ctx context.Context) error {
	out, err := o.client().PostAsGet(ctx, o.URL(), o.acct.Identity())
	if err != nil {
		return errors.Wrap(err, "refreshing order")
	}
	var res resources.Order
	if err := out.JSON(&res); err != nil {
		return err
	}
	return o.apply(res, out.RetryAfter)
}

// Poll refreshes the order once and reports whether it reached a terminal
// status.
func (o *Order) Poll(ctx context.Context) (bool, error) {
	if err := o.Refresh(ctx); err != nil {
		return false, err
	}
	return resources.Terminal(o.Status()), nil
}

// Authorizations fetches the authorizations of the order.
func (o *Order) Authorizations(ctx context.Context) ([]*Authorization, error) {
	res := o.Resource()
	authzs := make([]*Authorization, 0, len(res.Authorizations))
	for _, authzURL := range res.Authorizations {
		authz, err := o.acct.Authorization(ctx, authzURL)
		if err != nil {
			return nil, err
		}
		authzs = append(authzs, authz)
	}
	return authzs, nil
}

// ConfirmValidations refreshes the order and reports whether it is ready to be
// finalized. While authorizations are pending it returns (nil, false, nil).
// An invalid order yields a *ChallengeError naming the identifier that failed
// and the server's explanation. An order that is already processing or valid
// yields a *StateError.
func (o *Order) ConfirmValidations(ctx context.Context) (*ReadyOrder, bool, error) {
	if err := o.Refresh(ctx); err != nil {
		return nil, false, err
	}

	switch status := o.Status(); status {
	case acme.StatusReady:
		return &ReadyOrder{o}, true, nil
	case acme.StatusPending:
		return nil, false, nil
	case acme.StatusInvalid:
		return nil, false, o.failure(ctx)
	default:
		return nil, false, &StateError{
			Op:       "confirm validations",
			URL:      o.URL(),
			Status:   status,
			Expected: []string{acme.StatusPending, acme.StatusReady},
		}
	}
}

// failure builds the error describing why an invalid order failed, preferring
// the problem of a failed challenge over the order's own error.
func (o *Order) failure(ctx context.Context) error {
	authzs, err := o.Authorizations(ctx)
	if err == nil {
		for _, authz := range authzs {
			res := authz.Resource()
			if res.Status != acme.StatusInvalid {
				continue
			}
			if chall := res.FailedChallenge(); chall != nil {
				return &ChallengeError{
					Identifier: res.Identifier.Value,
					URL:        chall.URL,
					Problem:    chall.Error,
				}
			}
		}
	}

	res := o.Resource()
	cerr := &ChallengeError{URL: res.ID, Problem: res.Error}
	if res.Error != nil && res.Error.Identifier != nil {
		cerr.Identifier = res.Error.Identifier.Value
	}
	return cerr
}

// Finalize submits a DER encoded CSR and polls the order every interval until
// the certificate is issued. The order must be ready: any other status, or a
// finalize already in flight, is rejected with a *StateError before anything
// is sent. If the server rejects the order a *ChallengeError is returned.
//
// See https://tools.ietf.org/html/rfc8555#section-7.4
func (o *Order) Finalize(ctx context.Context, csrDER []byte, interval time.Duration) (*ValidOrder, error) {
	if err := o.submitCSR(ctx, csrDER, nil); err != nil {
		return nil, err
	}
	return o.awaitValid(ctx, interval)
}

// submitCSR sends the finalize request. Only one request is sent per order:
// the order is claimed before the POST and released once the server answered.
// certKey, when set, is kept with the order as soon as the CSR is accepted.
func (o *Order) submitCSR(ctx context.Context, csrDER []byte, certKey crypto.Signer) error {
	if len(csrDER) == 0 {
		return errors.New("finalize: empty CSR")
	}

	o.mu.Lock()
	res := o.res
	if busy := o.finalizing; res.Status != acme.StatusReady || busy {
		o.mu.Unlock()
		op := "finalize"
		if busy {
			op = "finalize (already submitted)"
		}
		return &StateError{
			Op:       op,
			URL:      res.ID,
			Status:   res.Status,
			Expected: []string{acme.StatusReady},
		}
	}
	o.finalizing = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.finalizing = false
		o.mu.Unlock()
	}()

	req := struct {
		CSR string `json:"csr"`
	}{
		CSR: base64.RawURLEncoding.EncodeToString(csrDER),
	}

	o.client().log.Info("finalizing order", "url", res.ID)
	out, err := o.client().PostJSON(ctx, res.Finalize, req, o.acct.Identity())
	if err != nil {
		return errors.Wrap(err, "finalizing order")
	}

	if certKey != nil {
		o.mu.Lock()
		o.certKey = certKey
		o.mu.Unlock()
	}

	var updated resources.Order
	if err := out.JSON(&updated); err != nil {
		return err
	}
	return o.apply(updated, out.RetryAfter)
}

func (o *Order) awaitValid(ctx context.Context, interval time.Duration) (*ValidOrder, error) {
	for {
		switch o.Status() {
		case acme.StatusValid:
			if o.Resource().Certificate == "" {
				return nil, errors.Errorf("order %q is valid but has no certificate URL", o.URL())
			}
			o.client().log.Info("order is valid", "url", o.URL())
			return &ValidOrder{o}, nil
		case acme.StatusInvalid:
			return nil, o.failure(ctx)
		}

		if err := sleep(ctx, pollDelay(interval, o.RetryAfter())); err != nil {
			return nil, err
		}
		if err := o.Refresh(ctx); err != nil {
			return nil, err
		}
	}
}

// FinalizeSigner builds a CSR for the order's names with certKey and finalizes
// the order with it. The key is carried into the downloaded Certificate.
func (r *ReadyOrder) FinalizeSigner(ctx context.Context, certKey crypto.Signer, interval time.Duration) (*ValidOrder, error) {
	csrDER, err := CSR("", r.Names(), certKey)
	if err != nil {
		return nil, err
	}
	if err := r.submitCSR(ctx, csrDER, certKey); err != nil {
		return nil, err
	}
	return r.awaitValid(ctx, interval)
}

// DownloadCertificate fetches the PEM certificate chain of a valid order. It
// can be called any number of times. An order that is not valid yields a
// *StateError without contacting the server.
func (o *Order) DownloadCertificate(ctx context.Context) (*Certificate, error) {
	res := o.Resource()
	if res.Status != acme.StatusValid || res.Certificate == "" {
		return nil, &StateError{
			Op:       "download certificate",
			URL:      res.ID,
			Status:   res.Status,
			Expected: []string{acme.StatusValid},
		}
	}
	return o.download(ctx, res.Certificate)
}

// DownloadAlternate fetches one of the alternate chains advertised with the
// certificate (see Certificate.Alternates). Like DownloadCertificate it needs a
// valid order.
func (o *Order) DownloadAlternate(ctx context.Context, chainURL string) (*Certificate, error) {
	res := o.Resource()
	if res.Status != acme.StatusValid {
		return nil, &StateError{
			Op:       "download alternate chain",
			URL:      res.ID,
			Status:   res.Status,
			Expected: []string{acme.StatusValid},
		}
	}
	return o.download(ctx, chainURL)
}

func (o *Order) download(ctx context.Context, certURL string) (*Certificate, error) {
	out, err := o.client().post(ctx, certURL, []byte{}, o.acct.Identity(), acme.CONTENT_TYPE_PEM)
	if err != nil {
		return nil, errors.Wrap(err, "downloading certificate")
	}

	o.mu.Lock()
	certKey := o.certKey
	o.mu.Unlock()

	cert, err := newCertificate(o.URL(), certURL, out.Body, certKey)
	if err != nil {
		return nil, err
	}
	cert.Alternates = out.Links(acme.LINK_REL_ALTERNATE)
	return cert, nil
}
