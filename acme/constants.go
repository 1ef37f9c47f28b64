// Package acme provides ACME protocol constants. See RFC 8555.
package acme

const (
	// Directory constants
	// See https://tools.ietf.org/html/rfc8555#section-9.7.5

	// The ACME directory key for the newNonce endpoint
	NEW_NONCE_ENDPOINT = "newNonce"
	// The ACME directory key for the newAccount endpoint.
	NEW_ACCOUNT_ENDPOINT = "newAccount"
	// The ACME directory key for the newOrder endpoint.
	NEW_ORDER_ENDPOINT = "newOrder"
	// The ACME directory key for the revokeCert endpoint.
	REVOKE_CERT_ENDPOINT = "revokeCert"
	// The ACME directory key for the keyChange endpoint.
	KEY_CHANGE_ENDPOINT = "keyChange"

	// The HTTP response header used by ACME to communicate a fresh nonce. See
	// https://tools.ietf.org/html/rfc8555#section-9.3
	REPLAY_NONCE_HEADER = "Replay-Nonce"
	// The HTTP response header carrying the URL of a created resource.
	LOCATION_HEADER = "Location"
	// The HTTP response header carrying related resource URLs (e.g. alternate
	// certificate chains). See https://tools.ietf.org/html/rfc8555#section-7.4.2
	LINK_HEADER = "Link"
	// The HTTP response header an ACME server uses to pace polling clients.
	RETRY_AFTER_HEADER = "Retry-After"

	// Link relations used by ACME servers.
	LINK_REL_UP        = "up"
	LINK_REL_ALTERNATE = "alternate"
	LINK_REL_INDEX     = "index"
)

// Content types. See https://tools.ietf.org/html/rfc8555#section-6.2
const (
	CONTENT_TYPE_JOSE    = "application/jose+json"
	CONTENT_TYPE_PROBLEM = "application/problem+json"
	CONTENT_TYPE_PEM     = "application/pem-certificate-chain"
)

// Resource status values. See https://tools.ietf.org/html/rfc8555#section-7.1.6
const (
	StatusPending     = "pending"
	StatusReady       = "ready"
	StatusProcessing  = "processing"
	StatusValid       = "valid"
	StatusInvalid     = "invalid"
	StatusDeactivated = "deactivated"
	StatusExpired     = "expired"
	StatusRevoked     = "revoked"
)

// Challenge types. See https://tools.ietf.org/html/rfc8555#section-8
const (
	ChallengeHTTP01    = "http-01"
	ChallengeDNS01     = "dns-01"
	ChallengeTLSALPN01 = "tls-alpn-01"
)

// Identifier types.
const (
	IdentifierDNS = "dns"
	IdentifierIP  = "ip"
)

// ProblemPrefix is the URN namespace of ACME problem document types.
const ProblemPrefix = "urn:ietf:params:acme:error:"

// Problem document types. See https://tools.ietf.org/html/rfc8555#section-6.7
const (
	ProblemAccountDoesNotExist     = ProblemPrefix + "accountDoesNotExist"
	ProblemAlreadyRevoked          = ProblemPrefix + "alreadyRevoked"
	ProblemBadCSR                  = ProblemPrefix + "badCSR"
	ProblemBadNonce                = ProblemPrefix + "badNonce"
	ProblemBadPublicKey            = ProblemPrefix + "badPublicKey"
	ProblemBadRevocationReason     = ProblemPrefix + "badRevocationReason"
	ProblemBadSignatureAlgorithm   = ProblemPrefix + "badSignatureAlgorithm"
	ProblemCAA                     = ProblemPrefix + "caa"
	ProblemCompound                = ProblemPrefix + "compound"
	ProblemConnection              = ProblemPrefix + "connection"
	ProblemDNS                     = ProblemPrefix + "dns"
	ProblemExternalAccountRequired = ProblemPrefix + "externalAccountRequired"
	ProblemIncorrectResponse       = ProblemPrefix + "incorrectResponse"
	ProblemInvalidContact          = ProblemPrefix + "invalidContact"
	ProblemMalformed               = ProblemPrefix + "malformed"
	ProblemOrderNotReady           = ProblemPrefix + "orderNotReady"
	ProblemRateLimited             = ProblemPrefix + "rateLimited"
	ProblemRejectedIdentifier      = ProblemPrefix + "rejectedIdentifier"
	ProblemServerInternal          = ProblemPrefix + "serverInternal"
	ProblemTLS                     = ProblemPrefix + "tls"
	ProblemUnauthorized            = ProblemPrefix + "unauthorized"
	ProblemUnsupportedContact      = ProblemPrefix + "unsupportedContact"
	ProblemUnsupportedIdentifier   = ProblemPrefix + "unsupportedIdentifier"
	ProblemUserActionRequired      = ProblemPrefix + "userActionRequired"
)

// Well known ACME directory URLs.
const (
	LetsEncryptURL        = "https://acme-v02.api.letsencrypt.org/directory"
	LetsEncryptStagingURL = "https://acme-staging-v02.api.letsencrypt.org/directory"
)

// RevocationReason is a RFC 5280 CRLReason code sent with a revokeCert
// request. See https://tools.ietf.org/html/rfc8555#section-7.6
type RevocationReason int

const (
	ReasonUnspecified          RevocationReason = 0
	ReasonKeyCompromise        RevocationReason = 1
	ReasonCACompromise         RevocationReason = 2
	ReasonAffiliationChanged   RevocationReason = 3
	ReasonSuperseded           RevocationReason = 4
	ReasonCessationOfOperation RevocationReason = 5
	ReasonCertificateHold      RevocationReason = 6
	ReasonRemoveFromCRL        RevocationReason = 8
	ReasonPrivilegeWithdrawn   RevocationReason = 9
	ReasonAACompromise         RevocationReason = 10
)

var reasonNames = map[string]RevocationReason{
	"unspecified":          ReasonUnspecified,
	"keyCompromise":        ReasonKeyCompromise,
	"cACompromise":         ReasonCACompromise,
	"affiliationChanged":   ReasonAffiliationChanged,
	"superseded":           ReasonSuperseded,
	"cessationOfOperation": ReasonCessationOfOperation,
	"certificateHold":      ReasonCertificateHold,
	"removeFromCRL":        ReasonRemoveFromCRL,
	"privilegeWithdrawn":   ReasonPrivilegeWithdrawn,
	"aACompromise":         ReasonAACompromise,
}

// ParseRevocationReason maps a RFC 5280 reason name (e.g. "keyCompromise") to
// its code.
func ParseRevocationReason(name string) (RevocationReason, bool) {
	r, ok := reasonNames[name]
	return r, ok
}

func (r RevocationReason) String() string {
	for name, code := range reasonNames {
		if code == r {
			return name
		}
	}
	return "unknown"
}
