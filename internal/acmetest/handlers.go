package acmetest

import (
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/cpu/acmekit/acme"
	"github.com/cpu/acmekit/acme/resources"
	jose "github.com/go-jose/go-jose/v4"
)

func (s *Server) handleNewAccount(w http.ResponseWriter, r *http.Request, req *signedRequest) {
	if req.jwk == nil {
		writeProblem(w, http.StatusBadRequest, acme.ProblemMalformed, "newAccount must be signed with an embedded jwk")
		return
	}

	var newAcct struct {
		Contact                []string        `json:"contact"`
		TermsOfServiceAgreed   bool            `json:"termsOfServiceAgreed"`
		OnlyReturnExisting     bool            `json:"onlyReturnExisting"`
		ExternalAccountBinding json.RawMessage `json:"externalAccountBinding"`
	}
	if err := json.Unmarshal(req.payload, &newAcct); err != nil {
		writeProblem(w, http.StatusBadRequest, acme.ProblemMalformed, "invalid newAccount payload")
		return
	}

	thumb := thumbprint(req.jwk)
	s.mu.Lock()
	existingID, exists := s.byThumb[thumb]
	var existing *account
	if exists {
		existing = s.accounts[existingID]
	}
	s.mu.Unlock()

	if exists {
		w.Header().Set(acme.LOCATION_HEADER, existingID)
		writeJSON(w, http.StatusOK, existing.Account)
		return
	}
	if newAcct.OnlyReturnExisting {
		writeProblem(w, http.StatusBadRequest, acme.ProblemAccountDoesNotExist, "no account for key")
		return
	}
	if s.TermsOfService != "" && !newAcct.TermsOfServiceAgreed {
		writeProblem(w, http.StatusForbidden, acme.ProblemUserActionRequired,
			"must agree to the terms of service")
		return
	}
	for _, c := range newAcct.Contact {
		if !strings.HasPrefix(c, "mailto:") {
			writeProblem(w, http.StatusBadRequest, acme.ProblemUnsupportedContact,
				fmt.Sprintf("contact %q is not a mailto URL", c))
			return
		}
	}
	if len(s.EABKeys) > 0 {
		if prob := s.checkEAB(newAcct.ExternalAccountBinding, req.jwk, s.URL+r.URL.Path); prob != "" {
			writeProblem(w, http.StatusUnauthorized, acme.ProblemExternalAccountRequired, prob)
			return
		}
	}

	s.mu.Lock()
	id := s.url("/account/%d", s.nextID())
	acct := &account{
		Account: resources.Account{
			ID:      id,
			Status:  acme.StatusValid,
			Contact: newAcct.Contact,
			Orders:  id + "/orders",
		},
		key: req.jwk,
	}
	s.accounts[id] = acct
	s.byThumb[thumb] = id
	s.mu.Unlock()

	w.Header().Set(acme.LOCATION_HEADER, id)
	writeJSON(w, http.StatusCreated, acct.Account)
}

func (s *Server) checkEAB(raw json.RawMessage, accountKey *jose.JSONWebKey, url string) string {
	if len(raw) == 0 {
		return "external account binding required"
	}
	jws, err := jose.ParseSigned(string(raw), []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return "invalid external account binding: " + err.Error()
	}
	protected := jws.Signatures[0].Protected
	if protected.Nonce != "" {
		return "external account binding must not have a nonce"
	}
	if u, _ := protected.ExtraHeaders["url"].(string); u != url {
		return "external account binding has the wrong url"
	}
	key, ok := s.EABKeys[protected.KeyID]
	if !ok {
		return fmt.Sprintf("unknown external account %q", protected.KeyID)
	}
	payload, err := jws.Verify(key)
	if err != nil {
		return "external account binding signature is invalid"
	}
	var bound jose.JSONWebKey
	if err := json.Unmarshal(payload, &bound); err != nil {
		return "external account binding payload is not a JWK"
	}
	if thumbprint(&bound) != thumbprint(accountKey) {
		return "external account binding is for a different key"
	}
	return ""
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request, req *signedRequest) {
	if !s.requireAccount(w, req) {
		return
	}
	if req.acct.ID != s.URL+r.URL.Path {
		writeProblem(w, http.StatusUnauthorized, acme.ProblemUnauthorized, "account URL does not match kid")
		return
	}

	var update struct {
		Status  string    `json:"status"`
		Contact *[]string `json:"contact"`
	}
	if len(req.payload) > 0 {
		if err := json.Unmarshal(req.payload, &update); err != nil {
			writeProblem(w, http.StatusBadRequest, acme.ProblemMalformed, "invalid account update")
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch update.Status {
	case "":
	case acme.StatusDeactivated:
		req.acct.Status = acme.StatusDeactivated
	default:
		writeProblem(w, http.StatusBadRequest, acme.ProblemMalformed,
			fmt.Sprintf("invalid account status %q", update.Status))
		return
	}
	if update.Contact != nil {
		req.acct.Contact = *update.Contact
	}
	writeJSON(w, http.StatusOK, req.acct.Account)
}

func (s *Server) handleNewOrder(w http.ResponseWriter, r *http.Request, req *signedRequest) {
	if !s.requireAccount(w, req) {
		return
	}
	var newOrder struct {
		Identifiers []resources.Identifier `json:"identifiers"`
		NotBefore   string                 `json:"notBefore"`
		NotAfter    string                 `json:"notAfter"`
	}
	if err := json.Unmarshal(req.payload, &newOrder); err != nil || len(newOrder.Identifiers) == 0 {
		writeProblem(w, http.StatusBadRequest, acme.ProblemMalformed, "invalid newOrder payload")
		return
	}

	var rejected []resources.Problem
	for _, ident := range newOrder.Identifiers {
		if ident.Type != acme.IdentifierDNS && ident.Type != acme.IdentifierIP {
			ident := ident
			rejected = append(rejected, resources.Problem{
				Type:       acme.ProblemUnsupportedIdentifier,
				Detail:     fmt.Sprintf("identifier type %q is not supported", ident.Type),
				Identifier: &ident,
			})
		}
	}
	if len(rejected) > 0 {
		w.Header().Set("Content-Type", acme.CONTENT_TYPE_PROBLEM)
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(resources.Problem{
			Type:        acme.ProblemCompound,
			Detail:      "some identifiers were rejected",
			Status:      http.StatusBadRequest,
			Subproblems: rejected,
		})
		return
	}

	s.mu.Lock()
	orderID := s.url("/order/%d", s.nextID())
	o := &order{
		Order: resources.Order{
			ID:          orderID,
			Status:      acme.StatusPending,
			Expires:     time.Now().Add(7 * 24 * time.Hour).UTC().Format(time.RFC3339),
			Identifiers: newOrder.Identifiers,
			NotBefore:   newOrder.NotBefore,
			NotAfter:    newOrder.NotAfter,
			Finalize:    orderID + "/finalize",
		},
		acct: req.acct.ID,
	}
	for _, ident := range newOrder.Identifiers {
		o.Authorizations = append(o.Authorizations, s.authzFor(req.acct.ID, ident))
	}
	s.updateOrder(o)
	s.orders[orderID] = o
	s.mu.Unlock()

	w.Header().Set(acme.LOCATION_HEADER, orderID)
	writeJSON(w, http.StatusCreated, o.Order)
}

// authzFor returns an authorization URL for ident, reusing a valid one held by
// the account. It must be called with s.mu held.
func (s *Server) authzFor(acctID string, ident resources.Identifier) string {
	key := acctID + " " + ident.Type + ":" + ident.Value
	if id, ok := s.validAuth[key]; ok {
		return id
	}

	wildcard := strings.HasPrefix(ident.Value, "*.")
	a := &authz{
		Authorization: resources.Authorization{
			ID:     s.url("/authz/%d", s.nextID()),
			Status: acme.StatusPending,
			Identifier: resources.Identifier{
				Type:  ident.Type,
				Value: strings.TrimPrefix(ident.Value, "*."),
			},
			Expires:  time.Now().Add(7 * 24 * time.Hour).UTC().Format(time.RFC3339),
			Wildcard: wildcard,
		},
		acct: acctID,
	}

	token := ""
	if len(s.Tokens) > 0 {
		token, s.Tokens = s.Tokens[0], s.Tokens[1:]
	} else {
		buf := make([]byte, 16)
		_, _ = rand.Read(buf)
		token = base64.RawURLEncoding.EncodeToString(buf)
	}

	types := []string{acme.ChallengeHTTP01, acme.ChallengeDNS01, acme.ChallengeTLSALPN01}
	if wildcard {
		types = []string{acme.ChallengeDNS01}
	} else if ident.Type == acme.IdentifierIP {
		types = []string{acme.ChallengeHTTP01, acme.ChallengeTLSALPN01}
	}
	for _, typ := range types {
		c := &challenge{
			Challenge: resources.Challenge{
				Type:   typ,
				URL:    s.url("/chall/%d", s.nextID()),
				Token:  token,
				Status: acme.StatusPending,
			},
			authz: a.ID,
		}
		s.chals[c.URL] = c
		a.chals = append(a.chals, c.URL)
	}
	s.authzs[a.ID] = a
	return a.ID
}

// authzView renders an authorization with its current challenges. It must be
// called with s.mu held.
func (s *Server) authzView(a *authz) resources.Authorization {
	view := a.Authorization
	view.Challenges = nil
	for _, id := range a.chals {
		c := s.chals[id]
		if a.Status == acme.StatusValid && c.Status != acme.StatusValid {
			continue
		}
		view.Challenges = append(view.Challenges, c.Challenge)
	}
	return view
}

// updateOrder recomputes a pending order's status from its authorizations. It
// must be called with s.mu held.
func (s *Server) updateOrder(o *order) {
	if o.Status != acme.StatusPending {
		return
	}
	allValid := true
	for _, id := range o.Authorizations {
		a := s.authzs[id]
		switch a.Status {
		case acme.StatusValid:
		case acme.StatusInvalid, acme.StatusDeactivated:
			o.Status = acme.StatusInvalid
			failed := &resources.Problem{
				Type:       acme.ProblemUnauthorized,
				Detail:     fmt.Sprintf("authorization for %s is %s", a.Identifier.Value, a.Status),
				Identifier: &resources.Identifier{Type: a.Identifier.Type, Value: a.Identifier.Value},
			}
			o.Error = failed
			return
		default:
			allValid = false
		}
	}
	if allValid {
		o.Status = acme.StatusReady
	}
}

func (s *Server) ownedOrder(w http.ResponseWriter, r *http.Request, req *signedRequest) *order {
	if !s.requireAccount(w, req) {
		return nil
	}
	o, ok := s.orders[s.url("/order/%s", req.vars["id"])]
	if !ok || o.acct != req.acct.ID {
		writeProblem(w, http.StatusNotFound, acme.ProblemMalformed, "no such order")
		return nil
	}
	return o
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request, req *signedRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.ownedOrder(w, r, req)
	if o == nil {
		return
	}

	s.updateOrder(o)
	if o.Status == acme.StatusProcessing {
		if o.polls > 0 {
			o.polls--
		} else {
			s.issue(o)
		}
	}
	if o.Status == acme.StatusProcessing && s.RetryAfter > 0 {
		w.Header().Set(acme.RETRY_AFTER_HEADER, fmt.Sprint(s.RetryAfter))
	}
	writeJSON(w, http.StatusOK, o.Order)
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request, req *signedRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.ownedOrder(w, r, req)
	if o == nil {
		return
	}
	s.updateOrder(o)
	if o.Status != acme.StatusReady {
		writeProblem(w, http.StatusForbidden, acme.ProblemOrderNotReady,
			fmt.Sprintf("order is %s, not ready", o.Status))
		return
	}

	var finalize struct {
		CSR string `json:"csr"`
	}
	if err := json.Unmarshal(req.payload, &finalize); err != nil {
		writeProblem(w, http.StatusBadRequest, acme.ProblemMalformed, "invalid finalize payload")
		return
	}
	der, err := base64.RawURLEncoding.DecodeString(finalize.CSR)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, acme.ProblemBadCSR, "CSR is not base64url")
		return
	}
	csr, err := x509.ParseCertificateRequest(der)
	if err != nil || csr.CheckSignature() != nil {
		writeProblem(w, http.StatusBadRequest, acme.ProblemBadCSR, "CSR is invalid")
		return
	}

	var csrNames []string
	csrNames = append(csrNames, csr.DNSNames...)
	for _, ip := range csr.IPAddresses {
		csrNames = append(csrNames, ip.String())
	}
	orderNames := o.Names()
	sort.Strings(csrNames)
	sort.Strings(orderNames)
	if strings.Join(csrNames, ",") != strings.Join(orderNames, ",") {
		writeProblem(w, http.StatusBadRequest, acme.ProblemBadCSR,
			fmt.Sprintf("CSR names %v do not match order names %v", csrNames, orderNames))
		return
	}

	o.Status = acme.StatusProcessing
	o.polls = s.ProcessingPolls
	o.certURL = s.url("/cert/%d", s.nextID())
	s.certs[o.certURL] = s.sign(csr)
	if o.polls == 0 {
		s.issue(o)
	}
	if o.Status == acme.StatusProcessing && s.RetryAfter > 0 {
		w.Header().Set(acme.RETRY_AFTER_HEADER, fmt.Sprint(s.RetryAfter))
	}
	w.Header().Set(acme.LOCATION_HEADER, o.ID)
	writeJSON(w, http.StatusOK, o.Order)
}

// issue moves a processing order to valid. It must be called with s.mu held.
func (s *Server) issue(o *order) {
	o.Status = acme.StatusValid
	o.Certificate = o.certURL
}

func (s *Server) sign(csr *x509.CertificateRequest) []byte {
	serial, _ := rand.Int(rand.Reader, big.NewInt(1<<62))
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      csr.Subject,
		DNSNames:     csr.DNSNames,
		IPAddresses:  append([]net.IP(nil), csr.IPAddresses...),
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(90 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, s.caCert, csr.PublicKey, s.caKey)
	if err != nil {
		panic(err)
	}
	return der
}

func (s *Server) handleAuthz(w http.ResponseWriter, r *http.Request, req *signedRequest) {
	if !s.requireAccount(w, req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.authzs[s.URL+r.URL.Path]
	if !ok || a.acct != req.acct.ID {
		writeProblem(w, http.StatusNotFound, acme.ProblemMalformed, "no such authorization")
		return
	}

	if len(req.payload) > 0 {
		var update struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(req.payload, &update); err != nil || update.Status != acme.StatusDeactivated {
			writeProblem(w, http.StatusBadRequest, acme.ProblemMalformed, "invalid authorization update")
			return
		}
		a.Status = acme.StatusDeactivated
		delete(s.validAuth, a.acct+" "+a.Identifier.Type+":"+a.Identifier.Value)
	}
	writeJSON(w, http.StatusOK, s.authzView(a))
}

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request, req *signedRequest) {
	if !s.requireAccount(w, req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chals[s.URL+r.URL.Path]
	if !ok || s.authzs[c.authz].acct != req.acct.ID {
		writeProblem(w, http.StatusNotFound, acme.ProblemMalformed, "no such challenge")
		return
	}
	a := s.authzs[c.authz]

	switch {
	case len(req.payload) > 0:
		// A response: start validating.
		if c.Status == acme.StatusPending && a.Status == acme.StatusPending {
			c.Status = acme.StatusProcessing
		}
	case c.Status == acme.StatusProcessing:
		s.validate(req.acct, a, c)
	}

	if c.Status == acme.StatusProcessing && s.RetryAfter > 0 {
		w.Header().Set(acme.RETRY_AFTER_HEADER, fmt.Sprint(s.RetryAfter))
	}
	w.Header().Add(acme.LINK_HEADER, fmt.Sprintf("<%s>; rel=%q", a.ID, acme.LINK_REL_UP))
	writeJSON(w, http.StatusOK, c.Challenge)
}

// validate settles a processing challenge and its authorization. It must be
// called with s.mu held.
func (s *Server) validate(acct *account, a *authz, c *challenge) {
	attempt := ChallengeAttempt{
		Type:             c.Type,
		Identifier:       a.Identifier.Value,
		Token:            c.Token,
		KeyAuthorization: c.Token + "." + thumbprint(acct.key),
	}

	var prob *resources.Problem
	switch {
	case s.Validate != nil:
		prob = s.Validate(attempt)
	case s.FailIdentifiers[a.Identifier.Value]:
		prob = &resources.Problem{
			Type:   acme.ProblemIncorrectResponse,
			Detail: fmt.Sprintf("invalid response for %s", a.Identifier.Value),
			Status: http.StatusForbidden,
		}
	}

	c.Validated = time.Now().UTC().Format(time.RFC3339)
	if prob != nil {
		c.Status = acme.StatusInvalid
		c.Error = prob
		a.Status = acme.StatusInvalid
		return
	}
	c.Status = acme.StatusValid
	a.Status = acme.StatusValid
	s.validAuth[a.acct+" "+a.Identifier.Type+":"+a.Identifier.Value] = a.ID
}

func (s *Server) handleCert(w http.ResponseWriter, r *http.Request, req *signedRequest) {
	der, ok := s.ownedCert(w, r, req, strings.TrimSuffix(s.URL+r.URL.Path, "/alt"))
	if !ok {
		return
	}
	w.Header().Add(acme.LINK_HEADER, fmt.Sprintf("<%s/alt>; rel=%q", s.URL+r.URL.Path, acme.LINK_REL_ALTERNATE))
	w.Header().Set("Content-Type", acme.CONTENT_TYPE_PEM)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pemEncode(der, s.caDER))
}

// handleAltCert serves the leaf alone, as a stand-in for a chain to another
// root.
func (s *Server) handleAltCert(w http.ResponseWriter, r *http.Request, req *signedRequest) {
	der, ok := s.ownedCert(w, r, req, strings.TrimSuffix(s.URL+r.URL.Path, "/alt"))
	if !ok {
		return
	}
	w.Header().Set("Content-Type", acme.CONTENT_TYPE_PEM)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pemEncode(der))
}

func (s *Server) ownedCert(w http.ResponseWriter, r *http.Request, req *signedRequest, certURL string) ([]byte, bool) {
	if !s.requireAccount(w, req) {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	der, ok := s.certs[certURL]
	if !ok {
		writeProblem(w, http.StatusNotFound, acme.ProblemMalformed, "no such certificate")
		return nil, false
	}
	for _, o := range s.orders {
		if o.certURL == certURL && o.acct == req.acct.ID && o.Status == acme.StatusValid {
			return der, true
		}
	}
	writeProblem(w, http.StatusNotFound, acme.ProblemMalformed, "no such certificate")
	return nil, false
}

func (s *Server) handleKeyChange(w http.ResponseWriter, r *http.Request, req *signedRequest) {
	if !s.requireAccount(w, req) {
		return
	}
	inner, err := jose.ParseSigned(string(req.payload), signatureAlgorithms)
	if err != nil || len(inner.Signatures) != 1 {
		writeProblem(w, http.StatusBadRequest, acme.ProblemMalformed, "invalid inner JWS")
		return
	}
	protected := inner.Signatures[0].Protected
	if protected.JSONWebKey == nil || protected.Nonce != "" {
		writeProblem(w, http.StatusBadRequest, acme.ProblemMalformed,
			"inner JWS must embed a jwk and have no nonce")
		return
	}
	if u, _ := protected.ExtraHeaders["url"].(string); u != s.URL+r.URL.Path {
		writeProblem(w, http.StatusBadRequest, acme.ProblemMalformed, "inner JWS has the wrong url")
		return
	}
	payload, err := inner.Verify(protected.JSONWebKey)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, acme.ProblemMalformed, "inner JWS verification error")
		return
	}

	var keyChange struct {
		Account string          `json:"account"`
		OldKey  jose.JSONWebKey `json:"oldKey"`
	}
	if err := json.Unmarshal(payload, &keyChange); err != nil {
		writeProblem(w, http.StatusBadRequest, acme.ProblemMalformed, "invalid key change payload")
		return
	}
	if keyChange.Account != req.acct.ID {
		writeProblem(w, http.StatusBadRequest, acme.ProblemMalformed, "key change account does not match kid")
		return
	}
	if thumbprint(&keyChange.OldKey) != thumbprint(req.acct.key) {
		writeProblem(w, http.StatusBadRequest, acme.ProblemMalformed, "oldKey does not match account key")
		return
	}

	newThumb := thumbprint(protected.JSONWebKey)
	s.mu.Lock()
	defer s.mu.Unlock()
	if owner, taken := s.byThumb[newThumb]; taken {
		w.Header().Set(acme.LOCATION_HEADER, owner)
		writeProblem(w, http.StatusConflict, acme.ProblemMalformed, "new key is already in use")
		return
	}
	delete(s.byThumb, thumbprint(req.acct.key))
	req.acct.key = protected.JSONWebKey
	s.byThumb[newThumb] = req.acct.ID
	writeJSON(w, http.StatusOK, req.acct.Account)
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request, req *signedRequest) {
	var revoke struct {
		Certificate string `json:"certificate"`
		Reason      int    `json:"reason"`
	}
	if err := json.Unmarshal(req.payload, &revoke); err != nil {
		writeProblem(w, http.StatusBadRequest, acme.ProblemMalformed, "invalid revocation payload")
		return
	}
	der, err := base64.RawURLEncoding.DecodeString(revoke.Certificate)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, acme.ProblemMalformed, "certificate is not base64url")
		return
	}
	if revoke.Reason == 7 || revoke.Reason < 0 || revoke.Reason > 10 {
		writeProblem(w, http.StatusBadRequest, acme.ProblemBadRevocationReason, "unsupported reason")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for certURL, issued := range s.certs {
		if string(issued) != string(der) {
			continue
		}
		authorized := false
		if req.acct != nil {
			for _, o := range s.orders {
				if o.certURL == certURL && o.acct == req.acct.ID {
					authorized = true
				}
			}
		} else if cert, err := x509.ParseCertificate(der); err == nil {
			authorized = thumbprint(&jose.JSONWebKey{Key: cert.PublicKey}) == thumbprint(req.jwk)
		}
		if !authorized {
			writeProblem(w, http.StatusForbidden, acme.ProblemUnauthorized, "not authorized to revoke")
			return
		}
		delete(s.certs, certURL)
		w.WriteHeader(http.StatusOK)
		return
	}
	writeProblem(w, http.StatusNotFound, acme.ProblemMalformed, "no such certificate")
}
