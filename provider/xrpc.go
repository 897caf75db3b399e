package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/pkg/errors"

	"github.com/podwatch-dev/podwatch/dpop"
	"github.com/podwatch-dev/podwatch/publisher"
	"github.com/podwatch-dev/podwatch/signingkey"
)

const createRecordPath = "/xrpc/com.atproto.repo.createRecord"

// UserSession is a live credential bound to one account: an access token plus
// the proof-of-possession key it was issued against. Safe for concurrent use;
// the resource server's DPoP nonce is tracked per session.
type UserSession struct {
	httpClient  *http.Client
	did         string
	pdsURL      string
	accessToken string
	prover      *dpop.Prover

	mu    sync.Mutex
	nonce string
}

// UserSession materializes a session from stored credential fields.
func (c *Client) UserSession(did, pdsURL, accessToken string, key *signingkey.Key) *UserSession {
	return &UserSession{
		httpClient:  c.httpClient,
		did:         did,
		pdsURL:      pdsURL,
		accessToken: accessToken,
		prover:      dpop.New(key, dpop.WithNowTime(c.nowTime)),
	}
}

// DID returns the account the session is bound to.
func (s *UserSession) DID() string {
	return s.did
}

var _ publisher.RecordCreator = (*UserSession)(nil)

// CreateRecord writes one record to the account's repository. A rejection
// demanding a fresh DPoP nonce is retried once with the nonce the server sent.
func (s *UserSession) CreateRecord(ctx context.Context, collection string, record any) (publisher.PostRef, error) {
	endpoint := s.pdsURL + createRecordPath
	payload, err := json.Marshal(map[string]any{
		"repo":       s.did,
		"collection": collection,
		"record":     record,
	})
	if err != nil {
		return publisher.PostRef{}, errors.Wrap(err, "[UserSession.CreateRecord] encode request")
	}

	for attempt := 0; attempt < 2; attempt++ {
		s.mu.Lock()
		nonce := s.nonce
		s.mu.Unlock()

		proofOpts := []dpop.ProofOption{dpop.WithAccessToken(s.accessToken)}
		if nonce != "" {
			proofOpts = append(proofOpts, dpop.WithNonce(nonce))
		}
		proof, err := s.prover.Proof(http.MethodPost, endpoint, proofOpts...)
		if err != nil {
			return publisher.PostRef{}, errors.Wrap(err, "[UserSession.CreateRecord] dpop proof")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return publisher.PostRef{}, errors.Wrap(err, "[UserSession.CreateRecord] build request")
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "DPoP "+s.accessToken)
		req.Header.Set("DPoP", proof)

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return publisher.PostRef{}, errors.Wrap(err, "[UserSession.CreateRecord] send request")
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		resp.Body.Close()
		if err != nil {
			return publisher.PostRef{}, errors.Wrap(err, "[UserSession.CreateRecord] read body")
		}
		if serverNonce := resp.Header.Get(dpopNonceHeader); serverNonce != "" {
			s.mu.Lock()
			s.nonce = serverNonce
			s.mu.Unlock()
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			var ref publisher.PostRef
			if err := json.Unmarshal(body, &ref); err != nil {
				return publisher.PostRef{}, errors.Wrap(err, "[UserSession.CreateRecord] decode response")
			}
			return ref, nil
		}

		callErr := callErrorFromResponse(resp.StatusCode, body)
		if callErr.Code == "use_dpop_nonce" && attempt == 0 {
			continue
		}
		return publisher.PostRef{}, callErr
	}
	return publisher.PostRef{}, errors.Errorf("[UserSession.CreateRecord] %s kept demanding a new DPoP nonce", endpoint)
}
