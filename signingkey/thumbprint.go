package signingkey

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"

	"github.com/pkg/errors"
)

// Thumbprint computes the RFC 7638 JWK thumbprint of the public key. The
// hash input is the required EC members in lexicographic order.
func (k *Key) Thumbprint() (string, error) {
	jwk := k.PublicJWK()
	canonical, err := json.Marshal(struct {
		Crv string `json:"crv"`
		Kty string `json:"kty"`
		X   string `json:"x"`
		Y   string `json:"y"`
	}{
		Crv: jwk.Crv,
		Kty: jwk.Kty,
		X:   jwk.X,
		Y:   jwk.Y,
	})
	if err != nil {
		return "", errors.Wrap(err, "[Key.Thumbprint] marshal")
	}
	sum := sha256.Sum256(canonical)
	return base64.RawURLEncoding.EncodeToString(sum[:]), nil
}

func unmarshalJWK(material string, jwk *JWK) error {
	if err := json.Unmarshal([]byte(material), jwk); err != nil {
		return errors.Wrap(err, "[signingkey] failed to parse JWK document")
	}
	return nil
}
