package auth

import "errors"

var (
	// ConfigurationErr marks deployment problems (missing or malformed
	// signing key, absent dependencies). Fatal at startup, never per request.
	ConfigurationErr = errors.New("service configuration invalid")

	// HandshakeErr marks a callback that does not match a stored handshake:
	// unknown or expired state, issuer mismatch, possible CSRF or replay.
	HandshakeErr = errors.New("authorization handshake failed")

	// ProviderErr marks a rejection or failure from the authorization or
	// resource server (expired code, revoked consent, unreachable metadata).
	ProviderErr = errors.New("provider request failed")

	// NoSessionErr means no credential is stored; the operator must
	// re-authorize before publishing can work.
	NoSessionErr = errors.New("no stored session")

	// SessionExpiredErr means the stored refresh token was rejected. The
	// credential record is deleted when this is returned, so subsequent calls
	// fail fast with NoSessionErr instead of retrying a doomed refresh.
	SessionExpiredErr = errors.New("session expired, reauthorization required")
)
