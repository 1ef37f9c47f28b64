package resources

// The Order resource represents a collection of identifiers that an account
// wishes to create a Certificate for.
//
// See https://tools.ietf.org/html/rfc8555#section-7.1.3
//
// To understand the Status changes specified by ACME for the Order resource see
// https://tools.ietf.org/html/rfc8555#section-7.1.6
type Order struct {
	// The server-assigned ID (a URL) identifying the Order.
	ID string `json:"-"`
	// The Status of the Order.
	Status string `json:"status"`
	// RFC 3339 time after which the server will consider the Order invalid.
	Expires string `json:"expires,omitempty"`
	// The Identifiers the Order wishes to finalize a Certificate for once the
	// Order is ready.
	Identifiers []Identifier `json:"identifiers"`
	// Optional requested validity window of the Certificate, RFC 3339.
	NotBefore string `json:"notBefore,omitempty"`
	NotAfter  string `json:"notAfter,omitempty"`
	// The error that occurred while processing the Order, if any.
	Error *Problem `json:"error,omitempty"`
	// A list of URLs for Authorization resources the server specifies for the
	// Order Identifiers.
	Authorizations []string `json:"authorizations"`
	// A URL used to Finalize the Order with a CSR once the Order has a status of
	// "ready".
	Finalize string `json:"finalize"`
	// A URL used to fetch the Certificate issued by the server for the Order
	// after being Finalized. The Certificate field should be present and
	// not-empty when the Order has a status of "valid".
	Certificate string `json:"certificate,omitempty"`
}

// String returns the Order's ID URL.
func (o Order) String() string {
	return o.ID
}

// Names returns the values of the Order's identifiers.
func (o Order) Names() []string {
	names := make([]string, 0, len(o.Identifiers))
	for _, ident := range o.Identifiers {
		names = append(names, ident.Value)
	}
	return names
}
