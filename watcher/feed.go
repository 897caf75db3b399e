package watcher

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/pkg/errors"
)

// Entry is one feed item reduced to what the watcher needs.
type Entry struct {
	Title     string
	GUID      string
	Published time.Time
	AudioURL  string
}

// FeedFetcher lists a feed's entries, newest and oldest alike; the poller
// does the baseline filtering.
type FeedFetcher interface {
	Fetch(ctx context.Context, feedURL string) ([]Entry, error)
}

// RSSFetcher parses RSS and Atom feeds over HTTP.
type RSSFetcher struct {
	parser  *gofeed.Parser
	nowTime func() time.Time
}

// RSSFetcherOption configures optional RSSFetcher behaviour
type RSSFetcherOption func(*RSSFetcher)

// WithFetcherNowTime sets the now time function (primarily for testing)
func WithFetcherNowTime(fn func() time.Time) RSSFetcherOption {
	return func(f *RSSFetcher) {
		f.nowTime = fn
	}
}

func NewRSSFetcher(options ...RSSFetcherOption) *RSSFetcher {
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: 60 * time.Second}

	fetcher := &RSSFetcher{
		parser:  parser,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(fetcher)
	}
	return fetcher
}

var _ FeedFetcher = (*RSSFetcher)(nil)

func (f *RSSFetcher) Fetch(ctx context.Context, feedURL string) ([]Entry, error) {
	feed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "[RSSFetcher.Fetch] parse %s", feedURL)
	}

	entries := make([]Entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		entries = append(entries, Entry{
			Title:     strings.TrimSpace(item.Title),
			GUID:      itemGUID(item),
			Published: f.itemPublished(item),
			AudioURL:  enclosureURL(item),
		})
	}
	return entries, nil
}

func itemGUID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	return item.Link
}

// itemPublished prefers the published stamp, falls back to updated, and
// finally to now so undated entries still sort.
func (f *RSSFetcher) itemPublished(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed.UTC()
	}
	if item.UpdatedParsed != nil {
		return item.UpdatedParsed.UTC()
	}
	return f.nowTime().UTC()
}

// enclosureURL picks the first audio enclosure, falling back to the first
// enclosure of any type.
func enclosureURL(item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if strings.HasPrefix(enc.Type, "audio") {
			return enc.URL
		}
	}
	if len(item.Enclosures) > 0 {
		return item.Enclosures[0].URL
	}
	return ""
}
