package server

import (
	"crypto/subtle"
	"net/http"
	"runtime/debug"

	"github.com/podwatch-dev/podwatch/internal/apierr"
	"github.com/rs/zerolog/log"
)

const internalTokenHeader = "X-Internal-Token"

func ChainMiddleware(routeFunction http.HandlerFunc, mw ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	chainedHandler := routeFunction
	// Apply middleware in reverse order
	for i := len(mw) - 1; i >= 0; i-- {
		chainedHandler = mw[i](chainedHandler)
	}
	return chainedHandler
}

func (s *Server) APIMiddleware(mw ...func(http.HandlerFunc) http.HandlerFunc) []func(http.HandlerFunc) http.HandlerFunc {
	chainedMiddleWare := []func(http.HandlerFunc) http.HandlerFunc{
		s.LoggingMiddleware,
		s.RecoverMiddleware,
	}
	chainedMiddleWare = append(chainedMiddleWare, mw...)
	return chainedMiddleWare
}

func (s *Server) LoggingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.env != "DEV" {
			next(w, r)
			return
		}
		logRoute(r.Method, r.URL.Path)
		next(w, r)
	}
}

func (s *Server) RecoverMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().Interface("panic", rec).Bytes("stack", debug.Stack()).Str("path", r.URL.Path).Msg("handler panicked")
				writeJSONError(w, apierr.CodeServerError, "internal error", http.StatusInternalServerError)
			}
		}()
		next(w, r)
	}
}

// InternalTokenMiddleware gates the publish and admin endpoints behind the
// shared operator secret. The comparison is constant time.
func (s *Server) InternalTokenMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		configured := s.config.GetInternalAPIToken()
		if configured == "" {
			log.Error().Msg("internal API token is not configured")
			writeJSONError(w, apierr.CodeServerError, "service is not configured for internal calls", http.StatusInternalServerError)
			return
		}
		presented := r.Header.Get(internalTokenHeader)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) != 1 {
			writeJSONError(w, apierr.CodeUnauthorized, "missing or invalid internal token", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
