package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"

	"github.com/pkg/errors"
)

const stateGenerationLength = 32

// GeneratePKCE returns a fresh code verifier and its S256 challenge
// (RFC 7636). Both are unpadded base64url.
func GeneratePKCE() (verifier, challenge string, err error) {
	raw := make([]byte, stateGenerationLength)
	if _, err := rand.Read(raw); err != nil {
		return "", "", errors.Wrap(err, "[GeneratePKCE] rand.Read")
	}
	verifier = base64.RawURLEncoding.EncodeToString(raw)
	hash := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(hash[:])
	return verifier, challenge, nil
}

// generateState mints the opaque handshake identifier bound to one browser
// session.
func generateState() (string, error) {
	raw := make([]byte, stateGenerationLength)
	if _, err := rand.Read(raw); err != nil {
		return "", errors.Wrap(err, "[generateState] rand.Read")
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
