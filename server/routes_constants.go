package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Authorization handshake (browser facing)
	RouteAuthStart    = "/auth/start"
	RouteAuthCallback = "/auth/callback"

	// Publishing API (watcher facing)
	RoutePublish           = "/publish"
	RouteSessionStatus     = "/session/status"
	RouteAdminClearSession = "/admin/clear-session"

	// OAuth client documents (fetched by the provider)
	RouteClientMetadata = "/oauth/client-metadata.json"
	RouteJWKS           = "/oauth/jwks.json"
)
