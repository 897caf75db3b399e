package watcher

import (
	"fmt"

	"github.com/podwatch-dev/podwatch/internal/utils"
)

// ComposeScanPosts builds the two post texts for a confirmed keyword hit:
// the headline names the episode, the moment, the topic, and a timestamped
// link; the reply carries the summary. Both are clamped to limit runes.
func ComposeScanPosts(title string, windowStart int, topic, link, summary string, limit int) (string, string) {
	first := fmt.Sprintf("%s — %s %s %s", title, fmtMMSS(windowStart), topic, link)
	return utils.ClampRunes(first, limit), utils.ClampRunes(summary, limit)
}

// ComposeDigestPosts builds the two post texts for a digest feed: the
// headline is the episode title and link, the reply the whole-episode
// summary.
func ComposeDigestPosts(title, link, summary string, limit int) (string, string) {
	first := fmt.Sprintf("%s %s", title, link)
	return utils.ClampRunes(first, limit), utils.ClampRunes(summary, limit)
}

func fmtMMSS(seconds int) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
