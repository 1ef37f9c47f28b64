package client

import (
	"fmt"
	"strings"
	"time"

	"github.com/cpu/acmekit/acme"
	"github.com/cpu/acmekit/acme/resources"
	"github.com/pkg/errors"
)

var (
	// ErrMissingEndpoint is returned when the directory does not advertise an
	// endpoint an operation needs.
	ErrMissingEndpoint = errors.New("endpoint missing from ACME directory")
	// ErrNoLocation is returned when the server creates a resource without
	// naming it in a Location header.
	ErrNoLocation = errors.New("server response had no Location header")
	// ErrNoNonce is returned when the newNonce endpoint does not supply a
	// Replay-Nonce.
	ErrNoNonce = errors.New("server response had no Replay-Nonce header")
)

// TransportError is a failure to exchange a request with the server at all.
// It is always retryable.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProblemError is an error response from the server carrying a problem
// document. Responses without a problem document are represented with the
// type "about:blank".
type ProblemError struct {
	resources.Problem
	// The HTTP status code of the response.
	HTTPStatus int
	// The server's requested delay before retrying, zero if absent.
	RetryAfter time.Duration
	URL        string
}

func (e *ProblemError) Error() string {
	return fmt.Sprintf("acme: %s returned %d: %s", e.URL, e.HTTPStatus, e.Problem.String())
}

// StateError is returned when an operation is attempted on a resource whose
// status does not allow it, or when the server reports a status change the
// resource may not make. No request is sent for a rejected operation.
type StateError struct {
	Op  string
	URL string
	// The status the client holds for the resource.
	Status string
	// The statuses the operation requires.
	Expected []string
	// A status reported by the server that the resource may not move to.
	Reported string
}

func (e *StateError) Error() string {
	if e.Reported != "" {
		return fmt.Sprintf("%s: %s moved from %q to %q", e.Op, e.URL, e.Status, e.Reported)
	}
	return fmt.Sprintf("%s: %s has status %q, expected %s",
		e.Op, e.URL, e.Status, strings.Join(e.Expected, " or "))
}

// ChallengeError reports that the server failed to validate an identifier, or
// rejected an order, together with its explanation.
type ChallengeError struct {
	// The identifier that failed validation, empty for order level failures.
	Identifier string
	// URL of the failed challenge or order.
	URL     string
	Problem *resources.Problem
}

func (e *ChallengeError) Error() string {
	subject := e.URL
	if e.Identifier != "" {
		subject = fmt.Sprintf("%s (%s)", e.Identifier, e.URL)
	}
	if e.Problem == nil {
		return fmt.Sprintf("validation of %s failed", subject)
	}
	return fmt.Sprintf("validation of %s failed: %s", subject, e.Problem.String())
}

// CryptoError is a key or signing failure. It is never retryable.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CryptoError) Unwrap() error {
	return e.Err
}

// IsProblem reports whether err carries a problem document of the given type.
func IsProblem(err error, problemType string) bool {
	var pe *ProblemError
	return errors.As(err, &pe) && pe.Type == problemType
}

// IsRetryable reports whether repeating the failed operation later may
// succeed: transport failures, server errors, rate limiting and bad nonces.
func IsRetryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var pe *ProblemError
	if errors.As(err, &pe) {
		switch pe.Type {
		case acme.ProblemRateLimited, acme.ProblemBadNonce, acme.ProblemServerInternal:
			return true
		}
		return pe.HTTPStatus >= 500
	}
	return false
}
