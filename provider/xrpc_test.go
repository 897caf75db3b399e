package provider_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/podwatch-dev/podwatch/dpop"
	"github.com/podwatch-dev/podwatch/publisher"
)

const testAccessToken = "access-token-1"

type createRecordCall struct {
	proof         string
	authorization string
	body          map[string]any
}

// fakePDS accepts createRecord calls, demanding a DPoP nonce on the first one.
type fakePDS struct {
	srv   *httptest.Server
	nonce string

	mu    sync.Mutex
	calls []createRecordCall
}

func newFakePDS(t *testing.T) *fakePDS {
	t.Helper()

	pds := &fakePDS{nonce: "pds-nonce-1"}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /xrpc/com.atproto.repo.createRecord", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		pds.mu.Lock()
		pds.calls = append(pds.calls, createRecordCall{
			proof:         r.Header.Get("DPoP"),
			authorization: r.Header.Get("Authorization"),
			body:          body,
		})
		first := len(pds.calls) == 1
		pds.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if first {
			w.Header().Set("DPoP-Nonce", pds.nonce)
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "use_dpop_nonce"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"uri": "at://" + testDID + "/app.bsky.feed.post/3k123",
			"cid": "bafyrei123",
		})
	})
	pds.srv = httptest.NewServer(mux)
	t.Cleanup(pds.srv.Close)
	return pds
}

func (p *fakePDS) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *fakePDS) call(i int) createRecordCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[i]
}

func TestUserSession_CreateRecord_RetriesWithServerNonce(t *testing.T) {
	pds := newFakePDS(t)
	client := newTestClient(t)
	key := newTestKey(t)

	session := client.UserSession(testDID, pds.srv.URL, testAccessToken, key)
	ref, err := session.CreateRecord(context.Background(), publisher.FeedPostCollection, map[string]string{
		"$type": publisher.FeedPostCollection,
		"text":  "hello",
	})
	require.NoError(t, err)
	require.Equal(t, "at://"+testDID+"/app.bsky.feed.post/3k123", ref.URI)
	require.Equal(t, "bafyrei123", ref.CID)
	require.Equal(t, 2, pds.callCount())

	retried := pds.call(1)
	require.Equal(t, "DPoP "+testAccessToken, retried.authorization)
	require.Equal(t, testDID, retried.body["repo"])
	require.Equal(t, publisher.FeedPostCollection, retried.body["collection"])

	claims := proofClaims(t, key, retried.proof)
	require.Equal(t, "pds-nonce-1", claims["nonce"])
	require.Equal(t, dpop.HashAccessToken(testAccessToken), claims["ath"])
	require.Equal(t, pds.srv.URL+"/xrpc/com.atproto.repo.createRecord", claims["htu"])
}

func TestUserSession_CreateRecord_ReusesLearnedNonce(t *testing.T) {
	pds := newFakePDS(t)
	client := newTestClient(t)
	key := newTestKey(t)

	session := client.UserSession(testDID, pds.srv.URL, testAccessToken, key)
	_, err := session.CreateRecord(context.Background(), publisher.FeedPostCollection, map[string]string{"text": "first"})
	require.NoError(t, err)

	// The session learned the nonce, so the next record takes one request.
	_, err = session.CreateRecord(context.Background(), publisher.FeedPostCollection, map[string]string{"text": "second"})
	require.NoError(t, err)
	require.Equal(t, 3, pds.callCount())

	claims := proofClaims(t, key, pds.call(2).proof)
	require.Equal(t, "pds-nonce-1", claims["nonce"])
}

func TestUserSession_CreateRecord_SurfacesProviderRejection(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /xrpc/com.atproto.repo.createRecord", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":   "InvalidRequest",
			"message": "record too long",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := newTestClient(t)
	session := client.UserSession(testDID, srv.URL, testAccessToken, newTestKey(t))

	_, err := session.CreateRecord(context.Background(), publisher.FeedPostCollection, map[string]string{"text": "x"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "record too long")
}
