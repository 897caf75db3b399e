package watcher

import (
	"math"
	"strings"
)

// windowBackoffSeconds rewinds the window start so the clip opens just
// before the first mention.
const windowBackoffSeconds = 10

// windowSegmentSpan is how many segments past the first match the window
// extends, roughly two to three minutes of speech.
const windowSegmentSpan = 30

// Window is the slice of a transcript around the first keyword mention.
type Window struct {
	Start   int
	End     int
	Snippet string
}

// FindKeywordWindow locates the earliest segment containing any keyword and
// returns the window around it. Keywords must already be lowercase.
func FindKeywordWindow(segments []Segment, keywords []string) (*Window, bool) {
	if len(segments) == 0 || len(keywords) == 0 {
		return nil, false
	}

	first := -1
	for i, seg := range segments {
		low := strings.ToLower(seg.Text)
		for _, k := range keywords {
			if k != "" && strings.Contains(low, k) {
				first = i
				break
			}
		}
		if first >= 0 {
			break
		}
	}
	if first < 0 {
		return nil, false
	}

	start := int(math.Floor(segments[first].Start)) - windowBackoffSeconds
	if start < 0 {
		start = 0
	}
	last := first + windowSegmentSpan
	if last > len(segments)-1 {
		last = len(segments) - 1
	}

	parts := make([]string, 0, last-first+1)
	for _, seg := range segments[first : last+1] {
		parts = append(parts, seg.Text)
	}

	return &Window{
		Start:   start,
		End:     int(math.Floor(segments[last].End)),
		Snippet: strings.Join(parts, " "),
	}, true
}
