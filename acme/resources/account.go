// Package resources provides types for representing ACME protocol resources as
// they are exchanged with an ACME server.
package resources

import "encoding/json"

// Account holds the server-side representation of a single ACME Account
// resource.
//
// The ID field holds the server assigned Account URL that is returned in the
// Location header at the time of account creation and used as the JWS KeyID
// for authenticating later ACME requests with the Account's keypair. It is not
// part of the JSON representation.
//
// See https://tools.ietf.org/html/rfc8555#section-7.1.2
type Account struct {
	// The server assigned Account URL.
	ID string `json:"-"`
	// The status of the account. Possible values are "valid", "deactivated" and
	// "revoked".
	Status string `json:"status,omitempty"`
	// Zero or more contact URLs, typically "mailto:" addresses.
	Contact []string `json:"contact,omitempty"`
	// Set by the client to indicate agreement with the server's terms of
	// service.
	TermsOfServiceAgreed bool `json:"termsOfServiceAgreed,omitempty"`
	// A URL from which the list of orders submitted by the account can be
	// fetched.
	Orders string `json:"orders,omitempty"`
	// A flattened JWS binding the account key to an external account. Only sent
	// with newAccount requests.
	ExternalAccountBinding json.RawMessage `json:"externalAccountBinding,omitempty"`
}

// String returns the Account's ID or an empty string if it has not been created
// with the ACME server.
func (a Account) String() string {
	return a.ID
}
