package server

import (
	"net/http"

	"github.com/podwatch-dev/podwatch/signingkey"
)

// ClientMetadataHandler serves the OAuth client metadata document. The
// authorization server fetches it by the client_id URL during the handshake,
// so every URL in it must match what the handshake sends.
func (s *Server) ClientMetadataHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		baseURL := s.config.GetPublicURL()

		resp := map[string]any{
			"client_id":     baseURL + RouteClientMetadata,
			"client_name":   s.config.GetClientName(),
			"client_uri":    baseURL,
			"redirect_uris": []string{baseURL + RouteAuthCallback},

			"application_type": "web",
			"response_types":   []string{"code"},
			"grant_types": []string{
				"authorization_code",
				"refresh_token",
			},
			"scope": s.config.GetOAuthScope(),

			// Confidential client: token requests carry a signed assertion
			// verified against the key published at jwks_uri.
			"token_endpoint_auth_method":      "private_key_jwt",
			"token_endpoint_auth_signing_alg": "ES256",
			"dpop_bound_access_tokens":        true,
			"jwks_uri":                        baseURL + RouteJWKS,
		}

		w.Header().Set("Cache-Control", "public, max-age=3600")
		writeJSON(w, http.StatusOK, resp)
	}
}

// JWKSHandler publishes the client signing key set (public halves only).
func (s *Server) JWKSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string][]signingkey.JWK{
			"keys": {s.clientKey.PublicJWK()},
		}

		w.Header().Set("Cache-Control", "public, max-age=3600")
		writeJSON(w, http.StatusOK, resp)
	}
}
