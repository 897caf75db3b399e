package config

const (
	clientNameVar      = "CLIENT_NAME"
	oauthScopeVar      = "OAUTH_SCOPE"
	oauthSigningKeyVar = "OAUTH_SIGNING_KEY"
)

type ClientConfig interface {
	GetClientName() string
	GetOAuthScope() string
	GetOAuthSigningKey() string
}

type Client struct{}

var _ ClientConfig = Client{}

func (Client) GetClientName() string {
	return GetEnv(clientNameVar, "podwatch")
}

func (Client) GetOAuthScope() string {
	return GetEnv(oauthScopeVar, "atproto transition:generic")
}

// GetOAuthSigningKey returns the confidential-client signing key material,
// either a private JWK document or a PKCS#8 PEM block. Required at startup.
func (Client) GetOAuthSigningKey() string {
	return GetEnv(oauthSigningKeyVar, "")
}
