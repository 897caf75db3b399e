package dpop_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/podwatch-dev/podwatch/dpop"
	"github.com/podwatch-dev/podwatch/signingkey"
	"github.com/stretchr/testify/require"
)

func parseProof(t *testing.T, key *signingkey.Key, proof string) *jwt.Token {
	t.Helper()

	parsed, err := jwt.Parse(proof, func(token *jwt.Token) (any, error) {
		return &key.Private.PublicKey, nil
	}, jwt.WithValidMethods([]string{"ES256"}))
	require.NoError(t, err)
	require.True(t, parsed.Valid)
	return parsed
}

func TestProof_ClaimsAndHeader(t *testing.T) {
	key, err := signingkey.Generate()
	require.NoError(t, err)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	prover := dpop.New(key, dpop.WithNowTime(func() time.Time { return now }))

	proof, err := prover.Proof("POST", "https://pds.example.com/xrpc/com.atproto.repo.createRecord?foo=bar#frag")
	require.NoError(t, err)

	parsed := parseProof(t, key, proof)
	claims := parsed.Claims.(jwt.MapClaims)

	require.Equal(t, "POST", claims["htm"])
	require.Equal(t, "https://pds.example.com/xrpc/com.atproto.repo.createRecord", claims["htu"])
	require.Equal(t, float64(now.Unix()), claims["iat"])
	require.NotEmpty(t, claims["jti"])
	require.NotContains(t, claims, "nonce")
	require.NotContains(t, claims, "ath")

	require.Equal(t, "dpop+jwt", parsed.Header["typ"])
	jwkHeader, ok := parsed.Header["jwk"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "EC", jwkHeader["kty"])
	require.Equal(t, "P-256", jwkHeader["crv"])
	require.NotEmpty(t, jwkHeader["x"])
	require.NotEmpty(t, jwkHeader["y"])
	require.NotContains(t, jwkHeader, "d")
}

func TestProof_NonceAndAccessTokenBinding(t *testing.T) {
	key, err := signingkey.Generate()
	require.NoError(t, err)
	prover := dpop.New(key)

	proof, err := prover.Proof("GET", "https://auth.example.com/token",
		dpop.WithNonce("server-nonce"),
		dpop.WithAccessToken("the-access-token"),
	)
	require.NoError(t, err)

	claims := parseProof(t, key, proof).Claims.(jwt.MapClaims)
	require.Equal(t, "server-nonce", claims["nonce"])
	require.Equal(t, dpop.HashAccessToken("the-access-token"), claims["ath"])
}

func TestProof_FreshJTIPerProof(t *testing.T) {
	key, err := signingkey.Generate()
	require.NoError(t, err)
	prover := dpop.New(key)

	first, err := prover.Proof("GET", "https://example.com/a")
	require.NoError(t, err)
	second, err := prover.Proof("GET", "https://example.com/a")
	require.NoError(t, err)

	firstClaims := parseProof(t, key, first).Claims.(jwt.MapClaims)
	secondClaims := parseProof(t, key, second).Claims.(jwt.MapClaims)
	require.NotEqual(t, firstClaims["jti"], secondClaims["jti"])
}
