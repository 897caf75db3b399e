package provider

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// Metadata is the authorization server's RFC 8414 discovery document,
// reduced to the fields this client uses. The AT Protocol profile requires
// pushed authorization requests, so the PAR endpoint is mandatory.
type Metadata struct {
	Issuer                string   `json:"issuer"`
	AuthorizationEndpoint string   `json:"authorization_endpoint"`
	TokenEndpoint         string   `json:"token_endpoint"`
	PAREndpoint           string   `json:"pushed_authorization_request_endpoint"`
	ScopesSupported       []string `json:"scopes_supported,omitempty"`
	DPoPSigningAlgs       []string `json:"dpop_signing_alg_values_supported,omitempty"`
}

func (m *Metadata) validate(expectedIssuer string) error {
	if m.Issuer != expectedIssuer {
		return errors.Errorf("[Metadata] issuer %q does not match document origin %q", m.Issuer, expectedIssuer)
	}
	if m.AuthorizationEndpoint == "" {
		return errors.New("[Metadata] authorization_endpoint missing")
	}
	if m.TokenEndpoint == "" {
		return errors.New("[Metadata] token_endpoint missing")
	}
	if m.PAREndpoint == "" {
		return errors.New("[Metadata] pushed_authorization_request_endpoint missing")
	}
	return nil
}

type protectedResource struct {
	AuthorizationServers []string `json:"authorization_servers"`
}

type metadataEntry struct {
	meta      *Metadata
	fetchedAt time.Time
}

// metadataCache caches discovery documents per issuer. Concurrent fetches of
// the same issuer are collapsed into one request.
type metadataCache struct {
	mu      sync.RWMutex
	entries map[string]metadataEntry
	ttl     time.Duration
	group   singleflight.Group
}

func newMetadataCache(ttl time.Duration) *metadataCache {
	return &metadataCache{
		entries: make(map[string]metadataEntry),
		ttl:     ttl,
	}
}

func (c *metadataCache) get(issuer string, now time.Time) (*Metadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[issuer]
	if !exists || now.After(entry.fetchedAt.Add(c.ttl)) {
		return nil, false
	}
	return entry.meta, true
}

func (c *metadataCache) put(issuer string, meta *Metadata, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[issuer] = metadataEntry{meta: meta, fetchedAt: now}
}

// Discover walks from a PDS to its authorization server metadata: the PDS
// names its authorization server in the protected-resource document, and the
// server's own document is fetched and validated from there.
func (c *Client) Discover(ctx context.Context, pdsURL string) (*Metadata, error) {
	var pr protectedResource
	endpoint := strings.TrimRight(pdsURL, "/") + "/.well-known/oauth-protected-resource"
	if err := getJSON(ctx, c.httpClient, endpoint, &pr); err != nil {
		return nil, errors.Wrap(err, "[Client.Discover] protected resource metadata")
	}
	if len(pr.AuthorizationServers) == 0 {
		return nil, errors.Errorf("[Client.Discover] %s names no authorization server", pdsURL)
	}
	return c.AuthServerMetadata(ctx, pr.AuthorizationServers[0])
}

// AuthServerMetadata fetches (or returns cached) authorization server
// metadata for an issuer.
func (c *Client) AuthServerMetadata(ctx context.Context, issuer string) (*Metadata, error) {
	issuer = strings.TrimRight(issuer, "/")
	if meta, ok := c.metaCache.get(issuer, c.nowTime()); ok {
		return meta, nil
	}

	v, err, _ := c.metaCache.group.Do(issuer, func() (any, error) {
		var meta Metadata
		endpoint := issuer + "/.well-known/oauth-authorization-server"
		if err := getJSON(ctx, c.httpClient, endpoint, &meta); err != nil {
			return nil, errors.Wrap(err, "[Client.AuthServerMetadata] fetch")
		}
		if err := meta.validate(issuer); err != nil {
			return nil, err
		}
		c.metaCache.put(issuer, &meta, c.nowTime())
		return &meta, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Metadata), nil
}
