package provider

import (
	"context"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Identity is a resolved account: its DID and the PDS currently hosting it.
type Identity struct {
	DID    string
	Handle string
	PDSURL string
}

type txtLookup interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// Resolver turns a login hint (handle or DID) into an Identity. Handles
// resolve through the DNS TXT record first and the HTTPS well-known file as
// a fallback; DIDs resolve through the PLC directory or did:web document.
type Resolver struct {
	httpClient *http.Client
	plcURL     string
	dns        txtLookup
}

// ResolverOption modifies a Resolver instance.
type ResolverOption func(*Resolver)

// WithResolverHTTPClient overrides the HTTP client (primarily for testing).
func WithResolverHTTPClient(httpClient *http.Client) ResolverOption {
	return func(r *Resolver) {
		r.httpClient = httpClient
	}
}

// WithDNS overrides the TXT lookup (primarily for testing).
func WithDNS(dns txtLookup) ResolverOption {
	return func(r *Resolver) {
		r.dns = dns
	}
}

func NewResolver(plcDirectoryURL string, options ...ResolverOption) *Resolver {
	r := &Resolver{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		plcURL:     strings.TrimRight(plcDirectoryURL, "/"),
		dns:        net.DefaultResolver,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// handles are hostname shaped: dot separated labels, letters/digits/hyphens
var handlePattern = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)

// ValidHandle reports whether the input is syntactically a handle.
func ValidHandle(handle string) bool {
	return len(handle) <= 253 && handlePattern.MatchString(handle)
}

// Resolve accepts a handle or DID and returns the full identity.
func (r *Resolver) Resolve(ctx context.Context, hint string) (*Identity, error) {
	hint = strings.TrimPrefix(strings.TrimSpace(hint), "@")
	if hint == "" {
		return nil, errors.New("[Resolver.Resolve] empty login hint")
	}

	if strings.HasPrefix(hint, "did:") {
		return r.resolveDID(ctx, hint, "")
	}

	if !ValidHandle(hint) {
		return nil, errors.Errorf("[Resolver.Resolve] %q is not a valid handle", hint)
	}
	did, err := r.resolveHandle(ctx, hint)
	if err != nil {
		return nil, err
	}
	return r.resolveDID(ctx, did, hint)
}

func (r *Resolver) resolveHandle(ctx context.Context, handle string) (string, error) {
	// DNS TXT takes precedence over the well-known file.
	records, err := r.dns.LookupTXT(ctx, "_atproto."+handle)
	if err == nil {
		for _, record := range records {
			if did, ok := strings.CutPrefix(strings.TrimSpace(record), "did="); ok && strings.HasPrefix(did, "did:") {
				return did, nil
			}
		}
	}

	endpoint := "https://" + handle + "/.well-known/atproto-did"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", errors.Wrap(err, "[Resolver.resolveHandle] build request")
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "[Resolver.resolveHandle] could not resolve %q", handle)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("[Resolver.resolveHandle] could not resolve %q: well-known returned %d", handle, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", errors.Wrap(err, "[Resolver.resolveHandle] read body")
	}
	did := strings.TrimSpace(string(body))
	if !strings.HasPrefix(did, "did:") {
		return "", errors.Errorf("[Resolver.resolveHandle] well-known for %q did not return a DID", handle)
	}
	return did, nil
}

func (r *Resolver) resolveDID(ctx context.Context, did, handle string) (*Identity, error) {
	var docURL string
	switch {
	case strings.HasPrefix(did, "did:plc:"):
		docURL = r.plcURL + "/" + did
	case strings.HasPrefix(did, "did:web:"):
		host := strings.TrimPrefix(did, "did:web:")
		if host == "" || strings.Contains(host, ":") {
			return nil, errors.Errorf("[Resolver.resolveDID] unsupported did:web form %q", did)
		}
		docURL = "https://" + host + "/.well-known/did.json"
	default:
		return nil, errors.Errorf("[Resolver.resolveDID] unsupported DID method in %q", did)
	}

	var doc didDocument
	if err := getJSON(ctx, r.httpClient, docURL, &doc); err != nil {
		return nil, errors.Wrapf(err, "[Resolver.resolveDID] fetch document for %s", did)
	}
	if doc.ID != did {
		return nil, errors.Errorf("[Resolver.resolveDID] document id %q does not match %q", doc.ID, did)
	}

	pds := doc.pdsEndpoint()
	if pds == "" {
		return nil, errors.Errorf("[Resolver.resolveDID] no PDS service in document for %s", did)
	}

	return &Identity{
		DID:    did,
		Handle: handle,
		PDSURL: strings.TrimRight(pds, "/"),
	}, nil
}

type didDocument struct {
	ID      string       `json:"id"`
	Service []didService `json:"service"`
}

type didService struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	ServiceEndpoint string `json:"serviceEndpoint"`
}

func (d *didDocument) pdsEndpoint() string {
	for _, svc := range d.Service {
		if svc.Type == "AtprotoPersonalDataServer" || strings.HasSuffix(svc.ID, "#atproto_pds") {
			return svc.ServiceEndpoint
		}
	}
	return ""
}
