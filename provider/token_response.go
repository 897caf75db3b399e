package provider

import "time"

// TokenResponse is the provider's token endpoint response, returned for both
// the authorization-code exchange and refresh grants. The AT Protocol
// profile adds sub, the DID of the account the grant is for.
type TokenResponse struct {
	// AccessToken is the DPoP-bound token presented on resource calls.
	// Usage: "Authorization: DPoP <access_token>" plus a proof header.
	AccessToken string `json:"access_token"`

	// TokenType is "DPoP" for every grant this client requests.
	TokenType string `json:"token_type,omitempty"`

	// RefreshToken obtains the next token pair. Single use: it rotates on
	// every refresh and the provider rejects replays of an old one.
	RefreshToken string `json:"refresh_token,omitempty"`

	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64 `json:"expires_in,omitempty"`

	// Scope is the granted scope set, space separated. May be narrower than
	// requested.
	Scope string `json:"scope,omitempty"`

	// Sub is the stable account identifier (a DID).
	Sub string `json:"sub,omitempty"`
}

// ExpiresAt converts the relative lifetime into an absolute instant.
func (tr *TokenResponse) ExpiresAt(now time.Time) time.Time {
	return now.Add(time.Duration(tr.ExpiresIn) * time.Second)
}
