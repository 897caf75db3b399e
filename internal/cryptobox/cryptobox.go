// Package cryptobox seals store payloads at rest with XChaCha20-Poly1305.
// Stores treat payloads as opaque bytes either way; a nil *Box passes data
// through unchanged so deployments without a key keep working.
package cryptobox

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

// Box encrypts and decrypts small payloads with a single symmetric key.
type Box struct {
	key []byte
}

// New creates a Box from a raw 32 byte key.
func New(key []byte) (*Box, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, errors.Errorf("[cryptobox.New] key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &Box{key: key}, nil
}

// NewFromString creates a Box from a base64 encoded key, or returns nil when
// the value is empty so callers can plumb it straight from configuration.
func NewFromString(encoded string) (*Box, error) {
	if encoded == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Wrap(err, "[cryptobox.NewFromString] key is not valid base64")
	}
	return New(key)
}

// Seal encrypts plaintext. The random nonce is prepended to the ciphertext.
func (b *Box) Seal(plaintext []byte) ([]byte, error) {
	if b == nil {
		return plaintext, nil
	}
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return nil, errors.Wrap(err, "[Box.Seal] cipher init")
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, "[Box.Seal] nonce")
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts data produced by Seal.
func (b *Box) Open(sealed []byte) ([]byte, error) {
	if b == nil {
		return sealed, nil
	}
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return nil, errors.Wrap(err, "[Box.Open] cipher init")
	}
	if len(sealed) < aead.NonceSize() {
		return nil, errors.New("[Box.Open] sealed payload too short")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.Wrap(err, "[Box.Open] decrypt")
	}
	return plaintext, nil
}
