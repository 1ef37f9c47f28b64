package resources

// Directory is the ACME server's directory resource. It advertises the URLs of
// the server's endpoints and metadata about the service.
//
// See https://tools.ietf.org/html/rfc8555#section-7.1.1
type Directory struct {
	NewNonce   string         `json:"newNonce"`
	NewAccount string         `json:"newAccount"`
	NewOrder   string         `json:"newOrder"`
	NewAuthz   string         `json:"newAuthz,omitempty"`
	RevokeCert string         `json:"revokeCert,omitempty"`
	KeyChange  string         `json:"keyChange,omitempty"`
	Meta       *DirectoryMeta `json:"meta,omitempty"`
}

// DirectoryMeta holds the optional "meta" object of the Directory.
type DirectoryMeta struct {
	TermsOfService          string   `json:"termsOfService,omitempty"`
	Website                 string   `json:"website,omitempty"`
	CAAIdentities           []string `json:"caaIdentities,omitempty"`
	ExternalAccountRequired bool     `json:"externalAccountRequired,omitempty"`
}

// Endpoint returns the URL the directory advertises under the given ACME
// directory key (e.g. "newNonce").
func (d Directory) Endpoint(name string) (string, bool) {
	var u string
	switch name {
	case "newNonce":
		u = d.NewNonce
	case "newAccount":
		u = d.NewAccount
	case "newOrder":
		u = d.NewOrder
	case "newAuthz":
		u = d.NewAuthz
	case "revokeCert":
		u = d.RevokeCert
	case "keyChange":
		u = d.KeyChange
	}
	return u, u != ""
}

// ExternalAccountRequired reports whether the server requires an external
// account binding with newAccount requests.
func (d Directory) ExternalAccountRequired() bool {
	return d.Meta != nil && d.Meta.ExternalAccountRequired
}

// TermsOfService returns the URL of the server's current terms of service, or
// an empty string.
func (d Directory) TermsOfService() string {
	if d.Meta == nil {
		return ""
	}
	return d.Meta.TermsOfService
}
