package signingkey_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"testing"

	"github.com/podwatch-dev/podwatch/signingkey"
	"github.com/stretchr/testify/require"
)

func pkcs8PEM(t *testing.T, curve elliptic.Curve) string {
	t.Helper()

	privateKey, err := ecdsa.GenerateKey(curve, rand.Reader)
	require.NoError(t, err)

	der, err := x509.MarshalPKCS8PrivateKey(privateKey)
	require.NoError(t, err)

	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

func TestLoad_PKCS8PEM(t *testing.T) {
	key, err := signingkey.Load(pkcs8PEM(t, elliptic.P256()))
	require.NoError(t, err)
	require.NotNil(t, key.Private)
	require.NotEmpty(t, key.ID)
}

func TestLoad_RejectsWrongCurve(t *testing.T) {
	_, err := signingkey.Load(pkcs8PEM(t, elliptic.P384()))
	require.Error(t, err)
	require.Contains(t, err.Error(), "P-256")
}

func TestLoad_JWKDocument(t *testing.T) {
	generated, err := signingkey.Generate()
	require.NoError(t, err)

	doc, err := json.Marshal(generated.PrivateJWK())
	require.NoError(t, err)

	loaded, err := signingkey.Load(string(doc))
	require.NoError(t, err)
	require.Equal(t, generated.Private.D, loaded.Private.D)
	require.Equal(t, generated.Private.PublicKey.X, loaded.Private.PublicKey.X)
}

func TestLoad_RejectsPublicOnlyJWK(t *testing.T) {
	generated, err := signingkey.Generate()
	require.NoError(t, err)

	doc, err := json.Marshal(generated.PublicJWK())
	require.NoError(t, err)

	_, err = signingkey.Load(string(doc))
	require.Error(t, err)
	require.Contains(t, err.Error(), "private scalar")
}

func TestLoad_RejectsGarbage(t *testing.T) {
	for _, material := range []string{"", "not a key", "{\"kty\":\"RSA\"}"} {
		_, err := signingkey.Load(material)
		require.Error(t, err, "material %q", material)
	}
}

func TestParseJWK_DerivesPublicFromScalar(t *testing.T) {
	generated, err := signingkey.Generate()
	require.NoError(t, err)

	jwk := generated.PrivateJWK()
	jwk.X = ""
	jwk.Y = ""

	parsed, err := signingkey.ParseJWK(jwk)
	require.NoError(t, err)
	require.Equal(t, generated.Private.PublicKey.X, parsed.Private.PublicKey.X)
	require.Equal(t, generated.Private.PublicKey.Y, parsed.Private.PublicKey.Y)
}

func TestThumbprint_StableAcrossExports(t *testing.T) {
	key, err := signingkey.Generate()
	require.NoError(t, err)

	first, err := key.Thumbprint()
	require.NoError(t, err)

	doc, err := json.Marshal(key.PrivateJWK())
	require.NoError(t, err)
	reloaded, err := signingkey.Load(string(doc))
	require.NoError(t, err)

	second, err := reloaded.Thumbprint()
	require.NoError(t, err)
	require.Equal(t, first, second)
}
