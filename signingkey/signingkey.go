// Package signingkey normalizes ES256 key material. Keys arrive as either a
// private JWK document or a PKCS#8 PEM block; both are validated once and
// carried as a single Key type from then on.
package signingkey

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Key is a normalized P-256 signing key.
type Key struct {
	ID      string
	Private *ecdsa.PrivateKey
}

// JWK is a JSON Web Key. D is only set on private keys.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use,omitempty"`
	Kid string `json:"kid,omitempty"`
	Alg string `json:"alg,omitempty"`
	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`
	D   string `json:"d,omitempty"`
}

// Generate creates a fresh P-256 key with a random key ID.
func Generate() (*Key, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "[signingkey.Generate] failed to generate ECDSA key")
	}
	return &Key{
		ID:      uuid.New().String(),
		Private: privateKey,
	}, nil
}

// Load accepts either a private JWK document or a PEM block (PKCS#8 or SEC 1)
// and returns a normalized key. Anything else is rejected.
func Load(material string) (*Key, error) {
	material = strings.TrimSpace(material)
	switch {
	case material == "":
		return nil, errors.New("[signingkey.Load] key material is empty")
	case strings.HasPrefix(material, "{"):
		return loadJWK(material)
	case strings.HasPrefix(material, "-----BEGIN"):
		return loadPEM(material)
	}
	return nil, errors.New("[signingkey.Load] key material is neither a JWK document nor a PEM block")
}

func loadJWK(material string) (*Key, error) {
	var jwk JWK
	if err := unmarshalJWK(material, &jwk); err != nil {
		return nil, err
	}
	return ParseJWK(jwk)
}

func loadPEM(material string) (*Key, error) {
	block, _ := pem.Decode([]byte(material))
	if block == nil {
		return nil, errors.New("[signingkey.Load] failed to decode PEM block")
	}

	var parsed any
	var err error
	switch block.Type {
	case "PRIVATE KEY":
		parsed, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		parsed, err = x509.ParseECPrivateKey(block.Bytes)
	default:
		return nil, errors.Errorf("[signingkey.Load] unsupported PEM block type %q", block.Type)
	}
	if err != nil {
		return nil, errors.Wrap(err, "[signingkey.Load] failed to parse private key")
	}

	privateKey, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.New("[signingkey.Load] key is not an ECDSA private key")
	}
	if privateKey.Curve != elliptic.P256() {
		return nil, errors.Errorf("[signingkey.Load] unsupported curve %s, need P-256", privateKey.Curve.Params().Name)
	}

	key := &Key{Private: privateKey}
	thumb, err := key.Thumbprint()
	if err != nil {
		return nil, err
	}
	key.ID = thumb
	return key, nil
}

// ParseJWK builds a Key from a private JWK, validating curve and coordinates.
func ParseJWK(jwk JWK) (*Key, error) {
	if jwk.Kty != "EC" {
		return nil, errors.Errorf("[signingkey.ParseJWK] unsupported key type %q", jwk.Kty)
	}
	if jwk.Crv != "P-256" {
		return nil, errors.Errorf("[signingkey.ParseJWK] unsupported curve %q, need P-256", jwk.Crv)
	}
	if jwk.D == "" {
		return nil, errors.New("[signingkey.ParseJWK] private scalar d is required")
	}

	d, err := decodeCoordinate(jwk.D)
	if err != nil {
		return nil, errors.Wrap(err, "[signingkey.ParseJWK] d")
	}

	curve := elliptic.P256()
	privateKey := &ecdsa.PrivateKey{
		D: d,
		PublicKey: ecdsa.PublicKey{
			Curve: curve,
		},
	}

	if jwk.X != "" && jwk.Y != "" {
		x, err := decodeCoordinate(jwk.X)
		if err != nil {
			return nil, errors.Wrap(err, "[signingkey.ParseJWK] x")
		}
		y, err := decodeCoordinate(jwk.Y)
		if err != nil {
			return nil, errors.Wrap(err, "[signingkey.ParseJWK] y")
		}
		if !curve.IsOnCurve(x, y) {
			return nil, errors.New("[signingkey.ParseJWK] public coordinates are not on P-256")
		}
		privateKey.PublicKey.X = x
		privateKey.PublicKey.Y = y
	} else {
		privateKey.PublicKey.X, privateKey.PublicKey.Y = curve.ScalarBaseMult(d.Bytes())
	}

	key := &Key{ID: jwk.Kid, Private: privateKey}
	if key.ID == "" {
		thumb, err := key.Thumbprint()
		if err != nil {
			return nil, err
		}
		key.ID = thumb
	}
	return key, nil
}

// PublicJWK exports the public half for metadata documents and DPoP headers.
func (k *Key) PublicJWK() JWK {
	x, y := coordinateBytes(k.Private.PublicKey.X), coordinateBytes(k.Private.PublicKey.Y)
	return JWK{
		Kty: "EC",
		Use: "sig",
		Kid: k.ID,
		Alg: "ES256",
		Crv: "P-256",
		X:   base64.RawURLEncoding.EncodeToString(x),
		Y:   base64.RawURLEncoding.EncodeToString(y),
	}
}

// PrivateJWK exports the full key for storage inside opaque record payloads.
func (k *Key) PrivateJWK() JWK {
	jwk := k.PublicJWK()
	jwk.D = base64.RawURLEncoding.EncodeToString(coordinateBytes(k.Private.D))
	return jwk
}

func decodeCoordinate(encoded string) (*big.Int, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Wrap(err, "invalid base64url coordinate")
	}
	return new(big.Int).SetBytes(raw), nil
}

// coordinateBytes left pads to the 32 byte P-256 field width so encoded
// coordinates are always fixed length.
func coordinateBytes(v *big.Int) []byte {
	out := make([]byte, 32)
	return v.FillBytes(out)
}
