// Package dpop builds DPoP proof JWTs (RFC 9449) for provider calls. Each
// proof is a short lived ES256 token naming the HTTP method and URL it
// authorizes, carrying the session's public key in its header.
package dpop

import (
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/podwatch-dev/podwatch/signingkey"
)

// Prover signs proofs with a single session key.
type Prover struct {
	key     *signingkey.Key
	nowTime func() time.Time
}

// ProverOption modifies a Prover instance.
type ProverOption func(*Prover)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ProverOption {
	return func(p *Prover) {
		p.nowTime = nowFunc
	}
}

func New(key *signingkey.Key, options ...ProverOption) *Prover {
	p := &Prover{
		key:     key,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

type proofOptions struct {
	nonce       string
	accessToken string
}

// ProofOption adds optional claims to one proof.
type ProofOption func(*proofOptions)

// WithNonce echoes the most recent server issued DPoP nonce.
func WithNonce(nonce string) ProofOption {
	return func(o *proofOptions) {
		o.nonce = nonce
	}
}

// WithAccessToken binds the proof to an access token via the ath claim,
// required on resource server calls.
func WithAccessToken(accessToken string) ProofOption {
	return func(o *proofOptions) {
		o.accessToken = accessToken
	}
}

// Proof signs a proof for one HTTP request. The htu claim is the request URL
// stripped of query and fragment per RFC 9449.
func (p *Prover) Proof(method, requestURL string, options ...ProofOption) (string, error) {
	var o proofOptions
	for _, opt := range options {
		opt(&o)
	}

	u, err := url.Parse(requestURL)
	if err != nil {
		return "", errors.Wrap(err, "[Prover.Proof] invalid request URL")
	}
	u.RawQuery = ""
	u.Fragment = ""

	claims := jwt.MapClaims{
		"jti": uuid.New().String(),
		"htm": method,
		"htu": u.String(),
		"iat": p.nowTime().Unix(),
	}
	if o.nonce != "" {
		claims["nonce"] = o.nonce
	}
	if o.accessToken != "" {
		claims["ath"] = HashAccessToken(o.accessToken)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["typ"] = "dpop+jwt"
	jwk := p.key.PublicJWK()
	token.Header["jwk"] = map[string]string{
		"kty": jwk.Kty,
		"crv": jwk.Crv,
		"x":   jwk.X,
		"y":   jwk.Y,
	}

	signed, err := token.SignedString(p.key.Private)
	if err != nil {
		return "", errors.Wrap(err, "[Prover.Proof] failed to sign proof")
	}
	return signed, nil
}

// HashAccessToken computes the ath claim value, the base64url encoded SHA-256
// of the token's ASCII bytes.
func HashAccessToken(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
