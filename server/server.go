package server

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/podwatch-dev/podwatch/auth"
	"github.com/podwatch-dev/podwatch/internal/config"
	"github.com/podwatch-dev/podwatch/publisher"
	"github.com/podwatch-dev/podwatch/signingkey"
)

type Server struct {
	env       string // Environment (e.g., "development", "production")
	mux       *http.ServeMux
	routes    []string
	config    config.Config
	auth      *auth.AuthorizationService
	publisher *publisher.Publisher
	clientKey *signingkey.Key // Client key, published as JWKS for the provider
}

func New(config config.Config, authService *auth.AuthorizationService, threadPublisher *publisher.Publisher, clientKey *signingkey.Key) (*Server, error) {
	if authService == nil {
		return nil, fmt.Errorf("[Server New] authorization service is required")
	}
	if threadPublisher == nil {
		return nil, fmt.Errorf("[Server New] publisher is required")
	}
	if clientKey == nil {
		return nil, fmt.Errorf("[Server New] client signing key is required")
	}

	s := &Server{
		mux:       http.NewServeMux(),
		config:    config,
		auth:      authService,
		publisher: threadPublisher,
		clientKey: clientKey,
	}
	s.env = config.GetEnv()

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Printf("[%-19s] %s\n", displayMethod, path)
}
