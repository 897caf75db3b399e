// Package handshake stores in-flight authorization handshake records keyed
// by the state value. Records are short lived: they are written at login
// start, read exactly once at the callback, and deleted afterwards or
// reaped by TTL.
package handshake

import (
	"context"
	"errors"
	"time"

	"github.com/podwatch-dev/podwatch/signingkey"
)

// ErrNotFound is returned when no live record exists for a state value.
// Expired records are reported as absent, not as a distinct condition.
var ErrNotFound = errors.New("handshake not found")

// Record holds everything the callback needs to finish one handshake.
type Record struct {
	State            string         `json:"-"`
	DID              string         `json:"did,omitempty"`
	PDSURL           string         `json:"pdsUrl"`
	AuthServerIssuer string         `json:"authServerIss"`
	Scope            string         `json:"scope"`
	LoginHint        string         `json:"loginHint,omitempty"`
	PKCEVerifier     string         `json:"pkceVerifier"`
	DPoPKey          signingkey.JWK `json:"dpopKey"`
	AuthServerNonce  string         `json:"authServerNonce,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
}

type Repo interface {
	Upsert(ctx context.Context, rec *Record) error
	Get(ctx context.Context, state string) (*Record, error)
	Delete(ctx context.Context, state string) error
}
