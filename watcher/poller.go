// Package watcher polls podcast RSS feeds for new episodes, transcribes
// them, and publishes two-post threads through the publishing service. Scan
// feeds post only when a keyword window is confirmed on topic; digest feeds
// post a whole-episode summary every time.
package watcher

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// maxEntriesPerPoll caps how many backlogged entries one round handles per
// feed. The baseline still advances past the rest.
const maxEntriesPerPoll = 10

type feedMode int

const (
	modeScan feedMode = iota
	modeDigest
)

// EpisodeFinder matches a feed entry to the show's Spotify episode.
type EpisodeFinder interface {
	EpisodeForTitle(ctx context.Context, showID, title string) (*SpotifyEpisode, error)
}

// AudioTranscriber turns enclosure audio into a timed transcript.
type AudioTranscriber interface {
	TranscribeURL(ctx context.Context, audioURL string) (*Transcript, error)
}

// TopicClassifier judges keyword windows and summarizes transcripts.
type TopicClassifier interface {
	Classify(ctx context.Context, snippet string) (*Verdict, error)
	Summarize(ctx context.Context, transcript string) (string, error)
}

// ThreadPoster publishes a two-post thread.
type ThreadPoster interface {
	PostThread(ctx context.Context, firstText, secondText string) error
}

var (
	_ EpisodeFinder    = (*SpotifyClient)(nil)
	_ AudioTranscriber = (*Transcriber)(nil)
	_ TopicClassifier  = (*Classifier)(nil)
	_ ThreadPoster     = (*ServiceClient)(nil)
)

// Stores groups the watcher's bookkeeping repositories.
type Stores struct {
	State StateRepo
	Seen  SeenRepo
}

// Poller runs poll rounds over the configured feeds.
type Poller struct {
	feeds       *FeedsConfig
	stores      Stores
	fetcher     FeedFetcher
	spotify     EpisodeFinder
	transcriber AudioTranscriber
	classifier  TopicClassifier
	service     ThreadPoster
}

func NewPoller(
	feeds *FeedsConfig,
	stores Stores,
	fetcher FeedFetcher,
	spotify EpisodeFinder,
	transcriber AudioTranscriber,
	classifier TopicClassifier,
	service ThreadPoster,
) (*Poller, error) {
	if feeds == nil {
		return nil, errors.New("[NewPoller] feeds config is required")
	}
	if stores.State == nil || stores.Seen == nil {
		return nil, errors.New("[NewPoller] state and seen stores are required")
	}
	if fetcher == nil {
		return nil, errors.New("[NewPoller] feed fetcher is required")
	}
	if spotify == nil {
		return nil, errors.New("[NewPoller] episode finder is required")
	}
	if transcriber == nil {
		return nil, errors.New("[NewPoller] transcriber is required")
	}
	if classifier == nil {
		return nil, errors.New("[NewPoller] classifier is required")
	}
	if service == nil {
		return nil, errors.New("[NewPoller] thread poster is required")
	}

	return &Poller{
		feeds:       feeds,
		stores:      stores,
		fetcher:     fetcher,
		spotify:     spotify,
		transcriber: transcriber,
		classifier:  classifier,
		service:     service,
	}, nil
}

// Poll runs one round over every configured feed. A failing feed is logged
// and does not stop the round; a reauthorization demand from the publishing
// service stops the whole round, since every further post would fail the
// same way.
func (p *Poller) Poll(ctx context.Context) {
	log.Info().Int("scanFeeds", len(p.feeds.ScanFeeds)).Int("digestFeeds", len(p.feeds.DigestFeeds)).Msg("polling feeds")

	for _, feed := range p.feeds.ScanFeeds {
		if stop := p.pollFeed(ctx, feed, modeScan); stop {
			return
		}
	}
	for _, feed := range p.feeds.DigestFeeds {
		if stop := p.pollFeed(ctx, feed, modeDigest); stop {
			return
		}
	}
}

func (p *Poller) pollFeed(ctx context.Context, feed Feed, mode feedMode) (stop bool) {
	err := p.processFeed(ctx, feed, mode)
	if errors.Is(err, ErrReauthRequired) {
		log.Warn().Str("feed", feed.RSS).Msg("publishing service requires reauthorization, stopping round")
		return true
	}
	if err != nil {
		log.Error().Err(err).Str("feed", feed.RSS).Msg("feed poll failed")
	}
	return false
}

func (p *Poller) processFeed(ctx context.Context, feed Feed, mode feedMode) error {
	showID, err := ParseShowID(feed.SpotifyShow)
	if err != nil {
		return errors.Wrap(err, "[processFeed] show id")
	}

	entries, err := p.fetcher.Fetch(ctx, feed.RSS)
	if err != nil {
		return errors.Wrap(err, "[processFeed] fetch feed")
	}
	if len(entries) == 0 {
		return nil
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Published.After(entries[j].Published)
	})
	newest := entries[0].Published

	baseline, anchored, err := p.stores.State.Baseline(ctx, feed.RSS)
	if err != nil {
		return errors.Wrap(err, "[processFeed] baseline")
	}

	if !anchored {
		// First sight of a feed: handle only its newest entry, then anchor
		// the baseline so history is never replayed.
		entryErr := p.processEntry(ctx, feed.RSS, showID, entries[0], mode)
		if err := p.stores.State.SetBaseline(ctx, feed.RSS, newest); err != nil {
			return errors.Wrap(err, "[processFeed] anchor baseline")
		}
		return entryErr
	}

	// Strictly newer than the baseline, oldest first so threads appear in
	// publish order.
	var fresh []Entry
	for _, e := range entries {
		if e.Published.After(baseline) {
			fresh = append(fresh, e)
		}
	}
	sort.Slice(fresh, func(i, j int) bool {
		return fresh[i].Published.Before(fresh[j].Published)
	})
	if len(fresh) > maxEntriesPerPoll {
		fresh = fresh[:maxEntriesPerPoll]
	}

	var stopErr error
	for _, entry := range fresh {
		if err := p.processEntry(ctx, feed.RSS, showID, entry, mode); err != nil {
			if errors.Is(err, ErrReauthRequired) {
				stopErr = err
				break
			}
			log.Error().Err(err).Str("feed", feed.RSS).Str("episode", entry.Title).Msg("episode handling failed")
		}
	}

	// The baseline always advances to the newest publish time seen, even
	// when nothing was posted, so stale batches are never rescanned.
	if newest.After(baseline) {
		if err := p.stores.State.SetBaseline(ctx, feed.RSS, newest); err != nil {
			return errors.Wrap(err, "[processFeed] advance baseline")
		}
	}
	return stopErr
}

// processEntry handles one episode. The episode is marked seen whatever the
// outcome, so nothing is ever posted twice or retried.
func (p *Poller) processEntry(ctx context.Context, feedURL, showID string, entry Entry, mode feedMode) error {
	seen, err := p.stores.Seen.Seen(ctx, feedURL, entry.GUID)
	if err != nil {
		return errors.Wrap(err, "[processEntry] seen lookup")
	}
	if seen {
		return nil
	}

	var episodeID string
	var handleErr error
	switch mode {
	case modeScan:
		episodeID, handleErr = p.handleScan(ctx, showID, entry)
	case modeDigest:
		episodeID, handleErr = p.handleDigest(ctx, showID, entry)
	}

	if err := p.stores.Seen.MarkSeen(ctx, feedURL, entry.GUID, episodeID, entry.Published); err != nil {
		log.Error().Err(err).Str("episode", entry.Title).Msg("mark seen failed")
	}
	return handleErr
}

// handleScan posts a timestamped thread when the episode mentions the topic
// and the classifier confirms it. Episodes that simply don't match are
// skipped silently; only infrastructure failures return errors.
func (p *Poller) handleScan(ctx context.Context, showID string, entry Entry) (string, error) {
	if entry.AudioURL == "" {
		log.Debug().Str("episode", entry.Title).Msg("no audio enclosure")
		return "", nil
	}

	transcript, err := p.transcriber.TranscribeURL(ctx, entry.AudioURL)
	if err != nil {
		return "", errors.Wrap(err, "[handleScan] transcribe")
	}

	window, found := FindKeywordWindow(transcript.Segments, p.feeds.Keywords)
	if !found {
		return "", nil
	}

	verdict, err := p.classifier.Classify(ctx, window.Snippet)
	if err != nil {
		return "", errors.Wrap(err, "[handleScan] classify")
	}
	if !verdict.Relevant {
		log.Debug().Str("episode", entry.Title).Msg("keyword window off topic")
		return "", nil
	}

	topic := strings.TrimSpace(verdict.Topic)
	if topic == "" {
		topic = p.feeds.Topic
	}
	summary := strings.TrimSpace(verdict.Summary)
	if summary == "" {
		log.Warn().Str("episode", entry.Title).Msg("classifier returned no summary, skipping post")
		return "", nil
	}

	episode, err := p.spotify.EpisodeForTitle(ctx, showID, entry.Title)
	if errors.Is(err, ErrEpisodeNotFound) {
		log.Info().Str("episode", entry.Title).Msg("no spotify match")
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "[handleScan] spotify lookup")
	}

	link := TimestampLink(episode.ID, window.Start)
	first, second := ComposeScanPosts(entry.Title, window.Start, topic, link, summary, p.feeds.PostCharLimit)
	if err := p.service.PostThread(ctx, first, second); err != nil {
		return episode.ID, errors.Wrap(err, "[handleScan] post thread")
	}

	log.Info().Str("episode", entry.Title).Int("offsetSeconds", window.Start).Msg("posted keyword hit")
	return episode.ID, nil
}

// handleDigest posts a title-plus-link thread with a whole-episode summary.
func (p *Poller) handleDigest(ctx context.Context, showID string, entry Entry) (string, error) {
	if entry.AudioURL == "" {
		log.Debug().Str("episode", entry.Title).Msg("no audio enclosure")
		return "", nil
	}

	transcript, err := p.transcriber.TranscribeURL(ctx, entry.AudioURL)
	if err != nil {
		return "", errors.Wrap(err, "[handleDigest] transcribe")
	}

	summary, err := p.classifier.Summarize(ctx, transcript.Text)
	if err != nil {
		return "", errors.Wrap(err, "[handleDigest] summarize")
	}
	if summary == "" {
		log.Warn().Str("episode", entry.Title).Msg("summarizer returned nothing, skipping post")
		return "", nil
	}

	episode, err := p.spotify.EpisodeForTitle(ctx, showID, entry.Title)
	if errors.Is(err, ErrEpisodeNotFound) {
		log.Info().Str("episode", entry.Title).Msg("no spotify match")
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "[handleDigest] spotify lookup")
	}

	first, second := ComposeDigestPosts(entry.Title, EpisodeLink(episode.ID), summary, p.feeds.PostCharLimit)
	if err := p.service.PostThread(ctx, first, second); err != nil {
		return episode.ID, errors.Wrap(err, "[handleDigest] post thread")
	}

	log.Info().Str("episode", entry.Title).Msg("posted digest")
	return episode.ID, nil
}
