// Package acmetest provides an in-process ACME server for tests. It verifies
// every JWS it receives, issues and checks single-use nonces, and drives
// orders through the RFC 8555 state machine with knobs for the failure cases
// clients must handle.
package acmetest

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/cpu/acmekit/acme"
	"github.com/cpu/acmekit/acme/resources"
	jose "github.com/go-jose/go-jose/v4"
	"github.com/gorilla/mux"
)

var signatureAlgorithms = []jose.SignatureAlgorithm{
	jose.ES256, jose.ES384, jose.ES512, jose.RS256, jose.EdDSA,
}

// Request is one request received by the Server.
type Request struct {
	Method string
	Path   string
}

// ChallengeAttempt describes a challenge the server is validating.
type ChallengeAttempt struct {
	Type       string
	Identifier string
	Token      string
	// The key authorization the account is expected to have published.
	KeyAuthorization string
}

// Server is a fake ACME server. Exported fields may be changed between
// requests, under no concurrent use.
type Server struct {
	*httptest.Server

	// Tokens are handed out in order to new authorizations before falling
	// back to generated tokens.
	Tokens []string
	// Identifiers whose challenges fail validation.
	FailIdentifiers map[string]bool
	// Validate, when set, decides challenge outcomes instead of
	// FailIdentifiers. A nil problem means the challenge is valid.
	Validate func(ChallengeAttempt) *resources.Problem
	// Number of polls an order stays "processing" after finalization.
	ProcessingPolls int
	// Retry-After seconds sent with processing orders and challenges.
	RetryAfter int
	// Reject this many otherwise valid signed requests with badNonce.
	BadNonces int
	// Terms of service URL published in the directory.
	TermsOfService string
	// MAC keys by key ID. When non-empty the directory requires external
	// account binding.
	EABKeys map[string][]byte

	mu         sync.Mutex
	nonceCount int
	nonces     map[string]bool
	used       map[string]bool
	requests   []Request
	ids        int

	accounts  map[string]*account
	byThumb   map[string]string
	orders    map[string]*order
	authzs    map[string]*authz
	chals     map[string]*challenge
	certs     map[string][]byte
	validAuth map[string]string

	caKey  *ecdsa.PrivateKey
	caCert *x509.Certificate
	caDER  []byte
}

type account struct {
	resources.Account
	key *jose.JSONWebKey
}

type order struct {
	resources.Order
	acct    string
	polls   int
	certURL string
}

type authz struct {
	resources.Authorization
	acct  string
	chals []string
}

type challenge struct {
	resources.Challenge
	authz string
}

// New starts a Server. Callers must Close it.
func New() *Server {
	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		panic(err)
	}
	caTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "acmetest root"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(10 * 365 * 24 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, caKey.Public(), caKey)
	if err != nil {
		panic(err)
	}
	caCert, err := x509.ParseCertificate(caDER)
	if err != nil {
		panic(err)
	}

	s := &Server{
		FailIdentifiers: map[string]bool{},
		nonces:          map[string]bool{},
		used:            map[string]bool{},
		accounts:        map[string]*account{},
		byThumb:         map[string]string{},
		orders:          map[string]*order{},
		authzs:          map[string]*authz{},
		chals:           map[string]*challenge{},
		certs:           map[string][]byte{},
		validAuth:       map[string]string{},
		caKey:           caKey,
		caCert:          caCert,
		caDER:           caDER,
	}

	r := mux.NewRouter()
	r.Use(s.record)
	r.HandleFunc("/directory", s.handleDirectory).Methods(http.MethodGet)
	r.HandleFunc("/nonce", s.handleNonce).Methods(http.MethodHead, http.MethodGet)
	r.HandleFunc("/new-account", s.signed(s.handleNewAccount)).Methods(http.MethodPost)
	r.HandleFunc("/account/{id}", s.signed(s.handleAccount)).Methods(http.MethodPost)
	r.HandleFunc("/new-order", s.signed(s.handleNewOrder)).Methods(http.MethodPost)
	r.HandleFunc("/order/{id}", s.signed(s.handleOrder)).Methods(http.MethodPost)
	r.HandleFunc("/order/{id}/finalize", s.signed(s.handleFinalize)).Methods(http.MethodPost)
	r.HandleFunc("/authz/{id}", s.signed(s.handleAuthz)).Methods(http.MethodPost)
	r.HandleFunc("/chall/{id}", s.signed(s.handleChallenge)).Methods(http.MethodPost)
	r.HandleFunc("/cert/{id}", s.signed(s.handleCert)).Methods(http.MethodPost)
	r.HandleFunc("/cert/{id}/alt", s.signed(s.handleAltCert)).Methods(http.MethodPost)
	r.HandleFunc("/key-change", s.signed(s.handleKeyChange)).Methods(http.MethodPost)
	r.HandleFunc("/revoke", s.signed(s.handleRevoke)).Methods(http.MethodPost)

	s.Server = httptest.NewServer(r)
	return s
}

// DirectoryURL returns the URL of the server's directory.
func (s *Server) DirectoryURL() string {
	return s.URL + "/directory"
}

// Requests returns the requests received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Count returns how many requests with the given method had a path starting
// with prefix.
func (s *Server) Count(method, prefix string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && strings.HasPrefix(r.Path, prefix) {
			n++
		}
	}
	return n
}

// UsedNonces returns the number of nonces consumed by signed requests.
func (s *Server) UsedNonces() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.used)
}

// Root returns the issuing CA certificate.
func (s *Server) Root() *x509.Certificate {
	return s.caCert
}

// SetOrderStatus overrides the status of an order, for tests of servers that
// misbehave.
func (s *Server) SetOrderStatus(orderURL, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[orderURL]; ok {
		o.Status = status
	}
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, Request{Method: r.Method, Path: r.URL.Path})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) url(format string, args ...interface{}) string {
	return s.URL + fmt.Sprintf(format, args...)
}

// nextID must be called with s.mu held.
func (s *Server) nextID() int {
	s.ids++
	return s.ids
}

func (s *Server) newNonce() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonceCount++
	n := base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf("nonce-%d", s.nonceCount)))
	s.nonces[n] = true
	return n
}

func (s *Server) handleDirectory(w http.ResponseWriter, r *http.Request) {
	dir := resources.Directory{
		NewNonce:   s.url("/nonce"),
		NewAccount: s.url("/new-account"),
		NewOrder:   s.url("/new-order"),
		RevokeCert: s.url("/revoke"),
		KeyChange:  s.url("/key-change"),
	}
	if s.TermsOfService != "" || len(s.EABKeys) > 0 {
		dir.Meta = &resources.DirectoryMeta{
			TermsOfService:          s.TermsOfService,
			ExternalAccountRequired: len(s.EABKeys) > 0,
		}
	}
	writeJSON(w, http.StatusOK, dir)
}

func (s *Server) handleNonce(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(acme.REPLAY_NONCE_HEADER, s.newNonce())
	w.Header().Set("Cache-Control", "no-store")
	if r.Method == http.MethodGet {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// signedRequest is a verified JWS request.
type signedRequest struct {
	payload []byte
	// The embedded JWK, for requests not signed by an account.
	jwk *jose.JSONWebKey
	// The signing account, for requests with a key ID.
	acct *account
	vars map[string]string
}

type signedHandler func(w http.ResponseWriter, r *http.Request, req *signedRequest)

// signed verifies the JWS body of a POST request before calling next. Every
// response carries a fresh nonce.
func (s *Server) signed(next signedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(acme.REPLAY_NONCE_HEADER, s.newNonce())

		if ct := r.Header.Get("Content-Type"); ct != acme.CONTENT_TYPE_JOSE {
			writeProblem(w, http.StatusUnsupportedMediaType, acme.ProblemMalformed,
				fmt.Sprintf("invalid Content-Type %q", ct))
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, acme.ProblemMalformed, err.Error())
			return
		}
		jws, err := jose.ParseSigned(string(body), signatureAlgorithms)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, acme.ProblemMalformed, "invalid JWS: "+err.Error())
			return
		}
		if len(jws.Signatures) != 1 {
			writeProblem(w, http.StatusBadRequest, acme.ProblemMalformed, "JWS must have one signature")
			return
		}
		protected := jws.Signatures[0].Protected

		if reqURL, _ := protected.ExtraHeaders["url"].(string); reqURL != s.URL+r.URL.Path {
			writeProblem(w, http.StatusUnauthorized, acme.ProblemUnauthorized,
				fmt.Sprintf("JWS url %q does not match %q", reqURL, s.URL+r.URL.Path))
			return
		}

		s.mu.Lock()
		nonceOK := s.nonces[protected.Nonce] && !s.used[protected.Nonce]
		if nonceOK {
			delete(s.nonces, protected.Nonce)
			s.used[protected.Nonce] = true
		}
		forceBad := nonceOK && s.BadNonces > 0
		if forceBad {
			s.BadNonces--
		}
		s.mu.Unlock()
		if !nonceOK || forceBad {
			writeProblem(w, http.StatusBadRequest, acme.ProblemBadNonce,
				fmt.Sprintf("JWS has an invalid anti-replay nonce: %q", protected.Nonce))
			return
		}

		req := &signedRequest{vars: mux.Vars(r)}
		var verifyKey interface{}
		switch {
		case protected.JSONWebKey != nil && protected.KeyID != "":
			writeProblem(w, http.StatusBadRequest, acme.ProblemMalformed, "JWS has both jwk and kid")
			return
		case protected.JSONWebKey != nil:
			req.jwk = protected.JSONWebKey
			verifyKey = protected.JSONWebKey
		case protected.KeyID != "":
			s.mu.Lock()
			acct, ok := s.accounts[protected.KeyID]
			s.mu.Unlock()
			if !ok {
				writeProblem(w, http.StatusBadRequest, acme.ProblemAccountDoesNotExist,
					fmt.Sprintf("no account %q", protected.KeyID))
				return
			}
			if acct.Status != acme.StatusValid {
				writeProblem(w, http.StatusUnauthorized, acme.ProblemUnauthorized,
					fmt.Sprintf("account is %s", acct.Status))
				return
			}
			req.acct = acct
			verifyKey = acct.key
		default:
			writeProblem(w, http.StatusBadRequest, acme.ProblemMalformed, "JWS has neither jwk nor kid")
			return
		}

		payload, err := jws.Verify(verifyKey)
		if err != nil {
			writeProblem(w, http.StatusUnauthorized, acme.ProblemMalformed, "JWS verification error")
			return
		}
		req.payload = payload
		next(w, r, req)
	}
}

func thumbprint(jwk *jose.JSONWebKey) string {
	t, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(t)
}

func (s *Server) requireAccount(w http.ResponseWriter, req *signedRequest) bool {
	if req.acct == nil {
		writeProblem(w, http.StatusBadRequest, acme.ProblemMalformed, "request must be signed with a kid")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, problemType, detail string) {
	w.Header().Set("Content-Type", acme.CONTENT_TYPE_PROBLEM)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resources.Problem{
		Type:   problemType,
		Detail: detail,
		Status: status,
	})
}

func pemEncode(ders ...[]byte) []byte {
	var out []byte
	for _, der := range ders {
		out = append(out, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})...)
	}
	return out
}
