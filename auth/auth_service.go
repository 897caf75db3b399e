// Package auth drives the three-step authorization handshake against the
// account's provider and materializes live, refresh-capable sessions from
// stored credentials.
package auth

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/podwatch-dev/podwatch/credential"
	"github.com/podwatch-dev/podwatch/handshake"
	"github.com/podwatch-dev/podwatch/locker"
	"github.com/podwatch-dev/podwatch/provider"
	"github.com/podwatch-dev/podwatch/signingkey"
)

const refreshLockPrefix = "oauth-refresh:"

// IdentityResolver turns a login hint (handle or DID) into the account's DID
// and hosting PDS.
type IdentityResolver interface {
	Resolve(ctx context.Context, hint string) (*provider.Identity, error)
}

var _ IdentityResolver = (*provider.Resolver)(nil)

// Repos holds all repository dependencies for the AuthorizationService
type Repos struct {
	Handshakes  handshake.Repo  // Pending handshakes, keyed by state
	Credentials credential.Repo // Durable sessions, keyed by DID
}

// AuthorizationService owns the authorization lifecycle: initiating the
// redirect, completing the callback, and restoring stored sessions with
// token refresh serialized per subject.
type AuthorizationService struct {
	repos      Repos
	resolver   IdentityResolver
	oauth      *provider.Client
	refreshers locker.Locker    // Serializes refreshes per subject
	scope      string           // Scope requested on every handshake
	skew       time.Duration    // Tokens expiring within skew count as stale
	nowTime    func() time.Time // nowTime function (injectable for testing)
}

// AuthorizationServiceOption defines a function type to modify the AuthorizationService instance.
type AuthorizationServiceOption func(*AuthorizationService)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.nowTime = nowFunc
	}
}

// WithExpirySkew sets how early before expiry a token is refreshed.
func WithExpirySkew(skew time.Duration) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.skew = skew
	}
}

// NewAuthorizationService initializes a new AuthorizationService with required dependencies.
// Optional configuration can be provided via options (e.g., WithNowTime for testing).
func NewAuthorizationService(
	repos Repos,
	resolver IdentityResolver,
	oauthClient *provider.Client,
	refreshers locker.Locker,
	scope string,
	options ...AuthorizationServiceOption,
) (*AuthorizationService, error) {
	// Validate required parameters
	if repos.Handshakes == nil {
		return nil, errors.Wrap(ConfigurationErr, "[NewAuthorizationService] Handshakes repo is required")
	}
	if repos.Credentials == nil {
		return nil, errors.Wrap(ConfigurationErr, "[NewAuthorizationService] Credentials repo is required")
	}
	if resolver == nil {
		return nil, errors.Wrap(ConfigurationErr, "[NewAuthorizationService] resolver is required")
	}
	if oauthClient == nil {
		return nil, errors.Wrap(ConfigurationErr, "[NewAuthorizationService] oauthClient is required")
	}
	if refreshers == nil {
		return nil, errors.Wrap(ConfigurationErr, "[NewAuthorizationService] refreshers locker is required")
	}
	if scope == "" {
		return nil, errors.Wrap(ConfigurationErr, "[NewAuthorizationService] scope is required")
	}

	authService := &AuthorizationService{
		repos:      repos,
		resolver:   resolver,
		oauth:      oauthClient,
		refreshers: refreshers,
		scope:      scope,
		skew:       time.Minute,
		nowTime:    time.Now,
	}

	// Apply optional configuration
	for _, opt := range options {
		opt(authService)
	}

	return authService, nil
}

// Initiate starts a handshake for the given login hint and returns the URL
// the operator's browser must visit. A fresh DPoP key and PKCE pair are
// minted per handshake and stored until the callback arrives.
func (as *AuthorizationService) Initiate(ctx context.Context, loginHint string) (string, error) {
	identity, err := as.resolver.Resolve(ctx, loginHint)
	if err != nil {
		return "", errors.Wrapf(HandshakeErr, "[Initiate] resolve %q: %v", loginHint, err)
	}

	meta, err := as.oauth.Discover(ctx, identity.PDSURL)
	if err != nil {
		return "", errors.Wrapf(ProviderErr, "[Initiate] discover authorization server: %v", err)
	}

	dpopKey, err := signingkey.Generate()
	if err != nil {
		return "", errors.Wrap(err, "[Initiate] generate session key")
	}
	verifier, challenge, err := GeneratePKCE()
	if err != nil {
		return "", errors.Wrap(err, "[Initiate] generate PKCE pair")
	}
	state, err := generateState()
	if err != nil {
		return "", errors.Wrap(err, "[Initiate] generate state")
	}

	hint := identity.Handle
	if hint == "" {
		hint = identity.DID
	}
	requestURI, nonce, err := as.oauth.PushAuthorization(ctx, meta, provider.PARRequest{
		State:         state,
		Scope:         as.scope,
		LoginHint:     hint,
		CodeChallenge: challenge,
	}, dpopKey)
	if err != nil {
		return "", errors.Wrapf(ProviderErr, "[Initiate] pushed authorization request: %v", err)
	}

	if err := as.repos.Handshakes.Upsert(ctx, &handshake.Record{
		State:            state,
		DID:              identity.DID,
		PDSURL:           identity.PDSURL,
		AuthServerIssuer: meta.Issuer,
		Scope:            as.scope,
		LoginHint:        loginHint,
		PKCEVerifier:     verifier,
		DPoPKey:          dpopKey.PrivateJWK(),
		AuthServerNonce:  nonce,
		CreatedAt:        as.nowTime(),
	}); err != nil {
		return "", errors.Wrap(err, "[Initiate] store handshake")
	}

	return as.oauth.AuthorizationURL(meta, requestURI), nil
}

// Complete exchanges the authorization callback for tokens, persists the
// credential keyed by the returned subject, and returns that subject. The
// handshake record is deleted on every exit path so failed callbacks do not
// accumulate.
func (as *AuthorizationService) Complete(ctx context.Context, state, code, issuer string) (string, error) {
	if state == "" || code == "" {
		return "", errors.Wrap(HandshakeErr, "[Complete] callback missing state or code")
	}

	rec, err := as.repos.Handshakes.Get(ctx, state)
	if err != nil {
		if errors.Is(err, handshake.ErrNotFound) {
			return "", errors.Wrap(HandshakeErr, "[Complete] unknown or expired handshake state")
		}
		return "", errors.Wrap(err, "[Complete] load handshake")
	}
	defer func() {
		_ = as.repos.Handshakes.Delete(ctx, state)
	}()

	if issuer != "" && issuer != rec.AuthServerIssuer {
		return "", errors.Wrapf(HandshakeErr, "[Complete] callback issuer %q does not match handshake issuer %q", issuer, rec.AuthServerIssuer)
	}

	meta, err := as.oauth.AuthServerMetadata(ctx, rec.AuthServerIssuer)
	if err != nil {
		return "", errors.Wrapf(ProviderErr, "[Complete] authorization server metadata: %v", err)
	}

	dpopKey, err := signingkey.ParseJWK(rec.DPoPKey)
	if err != nil {
		return "", errors.Wrap(err, "[Complete] stored session key unusable")
	}

	token, nonce, err := as.oauth.ExchangeCode(ctx, meta, code, rec.PKCEVerifier, dpopKey, rec.AuthServerNonce)
	if err != nil {
		return "", errors.Wrapf(ProviderErr, "[Complete] code exchange rejected: %v", err)
	}
	if !strings.HasPrefix(token.Sub, "did:") {
		return "", errors.Wrapf(ProviderErr, "[Complete] token response subject %q is not a DID", token.Sub)
	}
	if rec.DID != "" && token.Sub != rec.DID {
		return "", errors.Wrapf(HandshakeErr, "[Complete] authorized subject %q is not the requested account %q", token.Sub, rec.DID)
	}

	scope := token.Scope
	if scope == "" {
		scope = rec.Scope
	}
	now := as.nowTime()
	if err := as.repos.Credentials.Put(ctx, &credential.Record{
		DID:              token.Sub,
		AccessToken:      token.AccessToken,
		RefreshToken:     token.RefreshToken,
		ExpiresAt:        token.ExpiresAt(now),
		Scope:            scope,
		AuthServerIssuer: rec.AuthServerIssuer,
		PDSURL:           rec.PDSURL,
		DPoPKey:          rec.DPoPKey,
		AuthServerNonce:  nonce,
		UpdatedAt:        now,
	}); err != nil {
		return "", errors.Wrap(err, "[Complete] store credential")
	}

	return token.Sub, nil
}

// Restore loads the stored credential for a subject and returns a live
// session, refreshing the token pair first when it is at or near expiry.
// Refreshes are serialized per subject: the stored refresh token is single
// use, so two concurrent restores must not both submit it.
func (as *AuthorizationService) Restore(ctx context.Context, did string) (*provider.UserSession, error) {
	rec, dpopKey, err := as.loadCredential(ctx, did)
	if err != nil {
		return nil, err
	}
	if rec.Fresh(as.nowTime(), as.skew) {
		return as.oauth.UserSession(rec.DID, rec.PDSURL, rec.AccessToken, dpopKey), nil
	}

	release, err := as.refreshers.Acquire(ctx, refreshLockPrefix+did)
	if err != nil {
		if errors.Is(err, locker.ErrLockBusy) {
			return nil, errors.Wrapf(err, "[Restore] refresh already in progress for %s", did)
		}
		return nil, errors.Wrap(err, "[Restore] acquire refresh lock")
	}
	defer release()

	// Another process may have refreshed (or re-authorized with a new key)
	// while this one waited for the lock.
	rec, dpopKey, err = as.loadCredential(ctx, did)
	if err != nil {
		return nil, err
	}
	if rec.Fresh(as.nowTime(), as.skew) {
		return as.oauth.UserSession(rec.DID, rec.PDSURL, rec.AccessToken, dpopKey), nil
	}

	meta, err := as.oauth.AuthServerMetadata(ctx, rec.AuthServerIssuer)
	if err != nil {
		return nil, errors.Wrapf(ProviderErr, "[Restore] authorization server metadata: %v", err)
	}

	token, nonce, err := as.oauth.Refresh(ctx, meta, rec.RefreshToken, dpopKey, rec.AuthServerNonce)
	if err != nil {
		var callErr *provider.CallError
		if errors.As(err, &callErr) && callErr.Code == "invalid_grant" {
			return nil, as.expireCredential(ctx, did, err)
		}
		return nil, errors.Wrapf(ProviderErr, "[Restore] token refresh: %v", err)
	}

	now := as.nowTime()
	rec.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		rec.RefreshToken = token.RefreshToken
	}
	rec.ExpiresAt = token.ExpiresAt(now)
	rec.AuthServerNonce = nonce
	rec.UpdatedAt = now
	if err := as.repos.Credentials.Put(ctx, rec); err != nil {
		return nil, errors.Wrap(err, "[Restore] store refreshed credential")
	}

	return as.oauth.UserSession(rec.DID, rec.PDSURL, rec.AccessToken, dpopKey), nil
}

// RestoreCurrent restores whichever subject the current-session pointer
// names.
func (as *AuthorizationService) RestoreCurrent(ctx context.Context) (*provider.UserSession, error) {
	rec, err := as.repos.Credentials.Current(ctx)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return nil, errors.Wrap(NoSessionErr, "[RestoreCurrent] no current session")
		}
		return nil, errors.Wrap(err, "[RestoreCurrent] load current credential")
	}
	return as.Restore(ctx, rec.DID)
}

// Status reports the stored session without touching the provider or
// refreshing anything. A nil record means no session is stored.
func (as *AuthorizationService) Status(ctx context.Context) (*credential.Record, error) {
	rec, err := as.repos.Credentials.Current(ctx)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "[Status] load current credential")
	}
	return rec, nil
}

// ClearSession deletes every stored credential and the current-session
// pointer.
func (as *AuthorizationService) ClearSession(ctx context.Context) error {
	if err := as.repos.Credentials.Clear(ctx); err != nil {
		return errors.Wrap(err, "[ClearSession] clear credentials")
	}
	return nil
}

// loadCredential fetches a record and parses its proof-of-possession key.
// A record whose key cannot be parsed can never refresh, so it is deleted on
// the spot and SessionExpiredErr returned.
func (as *AuthorizationService) loadCredential(ctx context.Context, did string) (*credential.Record, *signingkey.Key, error) {
	rec, err := as.repos.Credentials.Get(ctx, did)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return nil, nil, errors.Wrapf(NoSessionErr, "[Restore] no credential stored for %s", did)
		}
		return nil, nil, errors.Wrap(err, "[Restore] load credential")
	}
	dpopKey, err := signingkey.ParseJWK(rec.DPoPKey)
	if err != nil {
		return nil, nil, as.expireCredential(ctx, did, errors.Wrap(err, "stored session key unusable"))
	}
	return rec, dpopKey, nil
}

// expireCredential deletes a credential that can never refresh again and
// returns SessionExpiredErr carrying the cause.
func (as *AuthorizationService) expireCredential(ctx context.Context, did string, cause error) error {
	if err := as.repos.Credentials.Delete(ctx, did); err != nil {
		return errors.Wrapf(err, "[Restore] delete expired credential for %s", did)
	}
	return errors.Wrapf(SessionExpiredErr, "[Restore] %v", cause)
}
