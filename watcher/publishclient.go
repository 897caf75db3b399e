package watcher

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/podwatch-dev/podwatch/internal/apierr"
)

const internalTokenHeader = "X-Internal-Token"

// ErrReauthRequired means the publishing service has no usable session.
// Posting is pointless until an operator re-runs the authorization flow, so
// the poll round stops publishing when it sees this.
var ErrReauthRequired = errors.New("publishing service requires reauthorization")

// ServiceClient posts threads through the publishing service.
type ServiceClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// ServiceClientOption configures optional ServiceClient behaviour
type ServiceClientOption func(*ServiceClient)

// WithServiceHTTPClient replaces the HTTP client (primarily for testing)
func WithServiceHTTPClient(httpClient *http.Client) ServiceClientOption {
	return func(c *ServiceClient) {
		c.httpClient = httpClient
	}
}

func NewServiceClient(baseURL, token string, options ...ServiceClientOption) *ServiceClient {
	client := &ServiceClient{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
	}
	for _, opt := range options {
		opt(client)
	}
	return client
}

// PostThread publishes a two-post thread. Failures other than reauth are
// returned with the service's error code but are not retried by callers.
func (c *ServiceClient) PostThread(ctx context.Context, firstText, secondText string) error {
	payload, err := json.Marshal(map[string]string{
		"firstText":  firstText,
		"secondText": secondText,
	})
	if err != nil {
		return errors.Wrap(err, "[PostThread] marshal payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/publish", bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "[PostThread] build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(internalTokenHeader, c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "[PostThread] call service")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrap(err, "[PostThread] read response")
	}
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	var apiErr apierr.Response
	_ = json.Unmarshal(body, &apiErr)
	if apiErr.Error == apierr.CodeReauthRequired {
		return errors.Wrapf(ErrReauthRequired, "[PostThread] service returned %d", resp.StatusCode)
	}
	return errors.Errorf("[PostThread] service returned %d (%s)", resp.StatusCode, apiErr.Error)
}
