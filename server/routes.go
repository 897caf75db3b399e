package server

func (s *Server) initRoutes() {
	// Authorization handshake
	s.RegisterRouteHandler("GET "+RouteAuthStart, ChainMiddleware(s.AuthStartHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAuthCallback, ChainMiddleware(s.AuthCallbackHandler(), s.APIMiddleware()...))

	// Publishing API (shared-secret authenticated)
	s.RegisterRouteHandler("POST "+RoutePublish, ChainMiddleware(s.PublishHandler(), s.APIMiddleware(s.InternalTokenMiddleware)...))
	s.RegisterRouteHandler("GET "+RouteSessionStatus, ChainMiddleware(s.SessionStatusHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAdminClearSession, ChainMiddleware(s.ClearSessionHandler(), s.APIMiddleware(s.InternalTokenMiddleware)...))

	// OAuth client documents the provider fetches during the handshake
	s.RegisterRouteHandler("GET "+RouteClientMetadata, ChainMiddleware(s.ClientMetadataHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteJWKS, ChainMiddleware(s.JWKSHandler(), s.APIMiddleware()...))
}
