// Package credential stores the delegated session for the bot account: the
// provider tokens, their expiry, and the session's DPoP key, keyed by the
// account DID. A separate singleton pointer names the current subject so
// "which account is logged in" is an explicit record, never an inference
// from timestamps.
package credential

import (
	"context"
	"errors"
	"time"

	"github.com/podwatch-dev/podwatch/signingkey"
)

// ErrNotFound is returned when no credential record exists for a subject, or
// when no current subject is set.
var ErrNotFound = errors.New("credential not found")

// Record is one delegated session.
type Record struct {
	DID              string         `json:"-"`
	AccessToken      string         `json:"accessToken"`
	RefreshToken     string         `json:"refreshToken"`
	ExpiresAt        time.Time      `json:"expiresAt"`
	Scope            string         `json:"scope"`
	AuthServerIssuer string         `json:"authServerIss"`
	PDSURL           string         `json:"pdsUrl"`
	DPoPKey          signingkey.JWK `json:"dpopKey"`
	AuthServerNonce  string         `json:"authServerNonce,omitempty"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// Fresh reports whether the access token is still comfortably inside its
// lifetime at the given instant. skew guards against using a token that
// would expire mid-request.
func (r *Record) Fresh(now time.Time, skew time.Duration) bool {
	return now.Add(skew).Before(r.ExpiresAt)
}

type Repo interface {
	// Put upserts the record and repoints the current subject at it, as one
	// atomic operation.
	Put(ctx context.Context, rec *Record) error
	Get(ctx context.Context, did string) (*Record, error)
	// Current returns the record the current-subject pointer names.
	Current(ctx context.Context) (*Record, error)
	// Delete removes one record, clearing the pointer when it matches.
	Delete(ctx context.Context, did string) error
	// Clear removes every record and the pointer.
	Clear(ctx context.Context) error
}
