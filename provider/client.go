package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/podwatch-dev/podwatch/dpop"
	"github.com/podwatch-dev/podwatch/signingkey"
)

const (
	clientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"
	dpopNonceHeader     = "DPoP-Nonce"
	maxResponseBytes    = 1 << 20
)

// Client talks to ATProto authorization servers on behalf of one registered
// OAuth client. All token-endpoint calls are DPoP bound and authenticated
// with a private_key_jwt assertion signed by the client key.
type Client struct {
	httpClient  *http.Client
	clientID    string
	redirectURI string
	key         *signingkey.Key
	metaCache   *metadataCache
	nowTime     func() time.Time
}

// Option modifies a Client instance.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client (primarily for testing).
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithNowTime overrides the time source (primarily for testing).
func WithNowTime(nowTime func() time.Time) Option {
	return func(c *Client) {
		c.nowTime = nowTime
	}
}

// WithMetadataTTL overrides how long discovered server metadata is cached.
func WithMetadataTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.metaCache = newMetadataCache(ttl)
	}
}

func New(clientID, redirectURI string, key *signingkey.Key, options ...Option) (*Client, error) {
	if clientID == "" {
		return nil, errors.New("[provider.New] clientID is required")
	}
	if redirectURI == "" {
		return nil, errors.New("[provider.New] redirectURI is required")
	}
	if key == nil || key.Private == nil {
		return nil, errors.New("[provider.New] signing key is required")
	}

	c := &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		clientID:    clientID,
		redirectURI: redirectURI,
		key:         key,
		metaCache:   newMetadataCache(15 * time.Minute),
		nowTime:     time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// PARRequest holds the authorization parameters pushed to the server.
type PARRequest struct {
	State         string
	Scope         string
	LoginHint     string
	CodeChallenge string
}

// PushAuthorization performs the pushed authorization request and returns the
// request_uri to redirect with, plus the DPoP nonce the server issued.
func (c *Client) PushAuthorization(ctx context.Context, meta *Metadata, par PARRequest, key *signingkey.Key) (string, string, error) {
	form := url.Values{}
	form.Set("response_type", "code")
	form.Set("client_id", c.clientID)
	form.Set("redirect_uri", c.redirectURI)
	form.Set("state", par.State)
	form.Set("scope", par.Scope)
	form.Set("code_challenge", par.CodeChallenge)
	form.Set("code_challenge_method", "S256")
	if par.LoginHint != "" {
		form.Set("login_hint", par.LoginHint)
	}
	if err := c.signClientAssertion(form, meta.Issuer); err != nil {
		return "", "", errors.Wrap(err, "[Client.PushAuthorization] sign assertion")
	}

	body, nonce, err := c.postForm(ctx, meta.PAREndpoint, form, key, "")
	if err != nil {
		return "", "", errors.Wrap(err, "[Client.PushAuthorization] push request")
	}

	var parResponse struct {
		RequestURI string `json:"request_uri"`
	}
	if err := json.Unmarshal(body, &parResponse); err != nil {
		return "", "", errors.Wrap(err, "[Client.PushAuthorization] decode response")
	}
	if parResponse.RequestURI == "" {
		return "", "", errors.New("[Client.PushAuthorization] server returned no request_uri")
	}
	return parResponse.RequestURI, nonce, nil
}

// AuthorizationURL builds the browser redirect for a pushed request.
func (c *Client) AuthorizationURL(meta *Metadata, requestURI string) string {
	query := url.Values{}
	query.Set("client_id", c.clientID)
	query.Set("request_uri", requestURI)
	return meta.AuthorizationEndpoint + "?" + query.Encode()
}

// ExchangeCode redeems an authorization code for tokens. The returned nonce
// is the latest DPoP nonce seen from the server and should be persisted with
// the credential for the next call.
func (c *Client) ExchangeCode(ctx context.Context, meta *Metadata, code, verifier string, key *signingkey.Key, nonce string) (*TokenResponse, string, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", c.clientID)
	form.Set("redirect_uri", c.redirectURI)
	form.Set("code", code)
	form.Set("code_verifier", verifier)
	if err := c.signClientAssertion(form, meta.Issuer); err != nil {
		return nil, "", errors.Wrap(err, "[Client.ExchangeCode] sign assertion")
	}

	body, nonce, err := c.postForm(ctx, meta.TokenEndpoint, form, key, nonce)
	if err != nil {
		return nil, "", err
	}

	var token TokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, "", errors.Wrap(err, "[Client.ExchangeCode] decode response")
	}
	return &token, nonce, nil
}

// Refresh rotates the refresh token and returns the fresh token pair.
func (c *Client) Refresh(ctx context.Context, meta *Metadata, refreshToken string, key *signingkey.Key, nonce string) (*TokenResponse, string, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", c.clientID)
	form.Set("refresh_token", refreshToken)
	if err := c.signClientAssertion(form, meta.Issuer); err != nil {
		return nil, "", errors.Wrap(err, "[Client.Refresh] sign assertion")
	}

	body, nonce, err := c.postForm(ctx, meta.TokenEndpoint, form, key, nonce)
	if err != nil {
		return nil, "", err
	}

	var token TokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, "", errors.Wrap(err, "[Client.Refresh] decode response")
	}
	return &token, nonce, nil
}

// signClientAssertion adds the private_key_jwt parameters to the form.
func (c *Client) signClientAssertion(form url.Values, audience string) error {
	now := c.nowTime()
	claims := jwt.MapClaims{
		"iss": c.clientID,
		"sub": c.clientID,
		"aud": audience,
		"jti": uuid.NewString(),
		"iat": now.Unix(),
		"exp": now.Add(5 * time.Minute).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = c.key.ID

	assertion, err := token.SignedString(c.key.Private)
	if err != nil {
		return errors.Wrap(err, "[Client.signClientAssertion] sign")
	}
	form.Set("client_assertion_type", clientAssertionType)
	form.Set("client_assertion", assertion)
	return nil
}

// postForm issues a DPoP-bound form POST. When the server rejects the first
// attempt with use_dpop_nonce it retries once with the nonce from the
// response header. The returned string is the last nonce the server sent.
func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values, key *signingkey.Key, nonce string) ([]byte, string, error) {
	prover := dpop.New(key, dpop.WithNowTime(c.nowTime))

	for attempt := 0; attempt < 2; attempt++ {
		var proofOpts []dpop.ProofOption
		if nonce != "" {
			proofOpts = append(proofOpts, dpop.WithNonce(nonce))
		}
		proof, err := prover.Proof(http.MethodPost, endpoint, proofOpts...)
		if err != nil {
			return nil, "", errors.Wrap(err, "[Client.postForm] dpop proof")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, "", errors.Wrap(err, "[Client.postForm] build request")
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("DPoP", proof)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, "", errors.Wrap(err, "[Client.postForm] send request")
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		resp.Body.Close()
		if err != nil {
			return nil, "", errors.Wrap(err, "[Client.postForm] read body")
		}
		if serverNonce := resp.Header.Get(dpopNonceHeader); serverNonce != "" {
			nonce = serverNonce
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return body, nonce, nil
		}

		callErr := callErrorFromResponse(resp.StatusCode, body)
		if callErr.Code == "use_dpop_nonce" && nonce != "" && attempt == 0 {
			continue
		}
		return nil, nonce, callErr
	}
	return nil, nonce, errors.Errorf("[Client.postForm] %s kept demanding a new DPoP nonce", endpoint)
}

// getJSON fetches a URL and decodes the JSON body into out.
func getJSON(ctx context.Context, httpClient *http.Client, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.Wrap(err, "[provider.getJSON] build request")
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "[provider.getJSON] get %s", endpoint)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return errors.Wrap(err, "[provider.getJSON] read body")
	}
	if resp.StatusCode != http.StatusOK {
		return callErrorFromResponse(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrapf(err, "[provider.getJSON] decode %s", endpoint)
	}
	return nil
}
