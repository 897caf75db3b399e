package watcher

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"time"
)

// StateRepo stores the per-feed baseline: the newest publish time the
// watcher has seen for a feed. Entries at or before it are never reprocessed.
type StateRepo interface {
	// Baseline returns the stored publish time and whether one exists.
	Baseline(ctx context.Context, feedURL string) (time.Time, bool, error)
	SetBaseline(ctx context.Context, feedURL string, publishedAt time.Time) error
}

// SeenRepo is the forever-dedup ledger. An episode is marked seen whatever
// the outcome of handling it, so a failed post is never retried. The check
// keys on the feed and guid; the episode ID is recorded metadata.
type SeenRepo interface {
	Seen(ctx context.Context, feedURL, guid string) (bool, error)
	MarkSeen(ctx context.Context, feedURL, guid, episodeID string, publishedAt time.Time) error
}

// baselineKey hashes the feed URL so state keys stay short.
func baselineKey(feedURL string) string {
	sum := sha1.Sum([]byte(feedURL))
	return "feed_baseline:" + hex.EncodeToString(sum[:])
}
