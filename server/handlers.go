package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/podwatch-dev/podwatch/auth"
	"github.com/podwatch-dev/podwatch/internal/apierr"
	"github.com/podwatch-dev/podwatch/locker"
	"github.com/podwatch-dev/podwatch/publisher"
	"github.com/rs/zerolog/log"
)

const (
	contentTypeText = "text/plain; charset=utf-8"
	contentTypeJSON = "application/json; charset=utf-8"

	maxPublishBodyBytes = 1 << 20
)

// AuthStartHandler begins the authorization handshake for the handle or DID
// given in the "handle" query parameter and redirects the browser to the
// account's authorization server.
func (s *Server) AuthStartHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handle := r.URL.Query().Get("handle")
		if handle == "" {
			http.Error(w, "missing handle query parameter", http.StatusBadRequest)
			return
		}

		authURL, err := s.auth.Initiate(r.Context(), handle)
		if err != nil {
			writeAuthError(w, err)
			return
		}

		http.Redirect(w, r, authURL, http.StatusFound)
	}
}

// AuthCallbackHandler completes the handshake when the authorization server
// redirects the browser back with a code.
func (s *Server) AuthCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		if errCode := query.Get("error"); errCode != "" {
			description := query.Get("error_description")
			log.Warn().Str("error", errCode).Str("description", description).Msg("authorization denied by provider")
			w.Header().Set("Content-Type", contentTypeText)
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, "authorization failed: %s %s\n", errCode, description)
			return
		}

		did, err := s.auth.Complete(r.Context(), query.Get("state"), query.Get("code"), query.Get("iss"))
		if err != nil {
			writeAuthError(w, err)
			return
		}

		w.Header().Set("Content-Type", contentTypeText)
		fmt.Fprintf(w, "Authorized as %s. You can close this window.\n", did)
	}
}

// writeAuthError maps handshake failures onto browser-readable plain text.
// Provider failures get a generic body so token material from upstream
// responses never reaches the browser.
func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.HandshakeErr):
		log.Warn().Err(err).Msg("authorization handshake rejected")
		http.Error(w, "authorization failed: "+err.Error(), http.StatusBadRequest)
	case errors.Is(err, auth.ProviderErr):
		log.Error().Err(err).Msg("provider rejected authorization request")
		http.Error(w, "the account's provider rejected the request", http.StatusBadGateway)
	default:
		log.Error().Err(err).Msg("authorization failed")
		http.Error(w, "authorization failed", http.StatusInternalServerError)
	}
}

type publishRequest struct {
	FirstText  string `json:"firstText"`
	SecondText string `json:"secondText"`
}

type publishResponse struct {
	OK    bool              `json:"ok"`
	First publisher.PostRef `json:"first"`
	Reply publisher.PostRef `json:"reply"`
}

// PublishHandler restores the bot session and publishes the two-post thread
// from the request body.
func (s *Server) PublishHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req publishRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxPublishBodyBytes)).Decode(&req); err != nil {
			writeJSONError(w, apierr.CodeInvalidRequest, "body must be JSON with firstText and secondText", http.StatusBadRequest)
			return
		}
		if req.FirstText == "" || req.SecondText == "" {
			writeJSONError(w, apierr.CodeInvalidRequest, "firstText and secondText must both be non-empty", http.StatusBadRequest)
			return
		}

		session, err := s.auth.RestoreCurrent(r.Context())
		if err != nil {
			writePublishError(w, err)
			return
		}

		refs, err := s.publisher.PostThread(r.Context(), session, req.FirstText, req.SecondText)
		if err != nil {
			var partial *publisher.PartialThreadError
			if errors.As(err, &partial) {
				log.Error().Err(err).Str("firstUri", partial.First.URI).Msg("thread reply failed after first post")
			}
			writePublishError(w, err)
			return
		}

		log.Info().Str("did", session.DID()).Str("firstUri", refs.First.URI).Msg("published thread")
		writeJSON(w, http.StatusOK, publishResponse{OK: true, First: refs.First, Reply: refs.Reply})
	}
}

// writePublishError maps session and publish failures onto the JSON error
// vocabulary. Descriptions stay generic because provider responses can carry
// token material.
func writePublishError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.NoSessionErr), errors.Is(err, auth.SessionExpiredErr):
		log.Warn().Err(err).Msg("publish requires reauthorization")
		writeJSONError(w, apierr.CodeReauthRequired, "no usable session, re-run authorization", http.StatusUnauthorized)
	case errors.Is(err, locker.ErrLockBusy):
		log.Info().Err(err).Msg("publish deferred, refresh in progress")
		writeJSONError(w, apierr.CodeRefreshInProgress, "token refresh in progress, retry shortly", http.StatusServiceUnavailable)
	default:
		log.Error().Err(err).Msg("publish failed")
		writeJSONError(w, apierr.CodePublishFailed, "publishing failed, see server logs", http.StatusInternalServerError)
	}
}

type sessionStatusResponse struct {
	HasSession bool   `json:"hasSession"`
	DID        string `json:"did,omitempty"`
	UpdatedAt  string `json:"updatedAt,omitempty"`
}

// SessionStatusHandler reports whether a stored session exists without
// touching the provider or refreshing anything.
func (s *Server) SessionStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := s.auth.Status(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("session status lookup failed")
			writeJSONError(w, apierr.CodeServerError, "status lookup failed", http.StatusInternalServerError)
			return
		}
		if rec == nil {
			writeJSON(w, http.StatusOK, sessionStatusResponse{HasSession: false})
			return
		}
		writeJSON(w, http.StatusOK, sessionStatusResponse{
			HasSession: true,
			DID:        rec.DID,
			UpdatedAt:  rec.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
}

// ClearSessionHandler deletes the stored session so the next publish demands
// a fresh authorization.
func (s *Server) ClearSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.auth.ClearSession(r.Context()); err != nil {
			log.Error().Err(err).Msg("clear session failed")
			writeJSONError(w, apierr.CodeServerError, "clear session failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

// writeJSONError writes a machine readable error response
func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(apierr.Response{
		Error:       errorCode,
		Description: description,
	})
}
