package provider_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/podwatch-dev/podwatch/provider"
)

const (
	testHandle = "alice.example.com"
	testPDSURL = "https://pds.example.com"
)

type fakeDNS struct {
	records map[string][]string
}

func (f fakeDNS) LookupTXT(_ context.Context, name string) ([]string, error) {
	records, ok := f.records[name]
	if !ok {
		return nil, errors.Errorf("no TXT records for %s", name)
	}
	return records, nil
}

// rewriteTransport sends every request to the test server regardless of the
// host the resolver computed, so well-known lookups can be faked.
type rewriteTransport struct {
	target *url.URL
}

func (t rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = t.target.Scheme
	req.URL.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func servePLCDocument(t *testing.T, did, pdsURL string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /"+did, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": did,
			"service": []map[string]string{{
				"id":              "#atproto_pds",
				"type":            "AtprotoPersonalDataServer",
				"serviceEndpoint": pdsURL,
			}},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestResolver_Resolve_HandleViaDNS(t *testing.T) {
	plc := servePLCDocument(t, testDID, testPDSURL)

	resolver := provider.NewResolver(plc.URL, provider.WithDNS(fakeDNS{
		records: map[string][]string{
			"_atproto." + testHandle: {"did=" + testDID},
		},
	}))

	identity, err := resolver.Resolve(context.Background(), "@"+testHandle)
	require.NoError(t, err)
	require.Equal(t, testDID, identity.DID)
	require.Equal(t, testHandle, identity.Handle)
	require.Equal(t, testPDSURL, identity.PDSURL)
}

func TestResolver_Resolve_HandleViaWellKnownFallback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/atproto-did", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(testDID + "\n"))
	})
	mux.HandleFunc("GET /"+testDID, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": testDID,
			"service": []map[string]string{{
				"id":              "#atproto_pds",
				"type":            "AtprotoPersonalDataServer",
				"serviceEndpoint": testPDSURL,
			}},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	target, err := url.Parse(srv.URL)
	require.NoError(t, err)

	resolver := provider.NewResolver(srv.URL,
		provider.WithDNS(fakeDNS{}),
		provider.WithResolverHTTPClient(&http.Client{Transport: rewriteTransport{target: target}}),
	)

	identity, err := resolver.Resolve(context.Background(), testHandle)
	require.NoError(t, err)
	require.Equal(t, testDID, identity.DID)
	require.Equal(t, testPDSURL, identity.PDSURL)
}

func TestResolver_Resolve_DirectDID(t *testing.T) {
	plc := servePLCDocument(t, testDID, testPDSURL)

	resolver := provider.NewResolver(plc.URL, provider.WithDNS(fakeDNS{}))

	identity, err := resolver.Resolve(context.Background(), testDID)
	require.NoError(t, err)
	require.Equal(t, testDID, identity.DID)
	require.Empty(t, identity.Handle)
	require.Equal(t, testPDSURL, identity.PDSURL)
}

func TestResolver_Resolve_RejectsDocumentIDMismatch(t *testing.T) {
	// The directory serves a document whose id differs from the DID that was
	// looked up.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /did:plc:somebodyelse", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"id": testDID})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resolver := provider.NewResolver(srv.URL, provider.WithDNS(fakeDNS{
		records: map[string][]string{
			"_atproto." + testHandle: {"did=did:plc:somebodyelse"},
		},
	}))

	_, err := resolver.Resolve(context.Background(), testHandle)
	require.Error(t, err)
	require.Contains(t, err.Error(), "does not match")
}

func TestResolver_Resolve_RejectsBadInput(t *testing.T) {
	resolver := provider.NewResolver("https://plc.example.com", provider.WithDNS(fakeDNS{}))

	_, err := resolver.Resolve(context.Background(), "")
	require.Error(t, err)

	_, err = resolver.Resolve(context.Background(), "not a handle")
	require.Error(t, err)

	_, err = resolver.Resolve(context.Background(), "did:example:unsupported")
	require.Error(t, err)
}

func TestValidHandle(t *testing.T) {
	require.True(t, provider.ValidHandle("alice.example.com"))
	require.True(t, provider.ValidHandle("alice.bsky.social"))
	require.False(t, provider.ValidHandle("alice"))
	require.False(t, provider.ValidHandle("alice..example.com"))
	require.False(t, provider.ValidHandle("-alice.example.com"))
	require.False(t, provider.ValidHandle("alice.example.com/path"))
}
