package watcher_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/podwatch-dev/podwatch/watcher"
)

const (
	testFeedURL  = "https://feeds.example.com/show.xml"
	testShowURL  = "https://open.spotify.com/show/5Tz9eGgXtNHmq3WVD3EwYx"
	testTopic    = "the fictional Ridgeline Rovers"
	testGUID     = "guid-1"
	testAudioURL = "https://cdn.example.com/episodes/ep1.mp3"
)

// fakeFeed serves a fixed entry list per feed URL.
type fakeFeed struct {
	mu      sync.Mutex
	entries map[string][]watcher.Entry
	fetches []string
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{entries: make(map[string][]watcher.Entry)}
}

func (f *fakeFeed) set(feedURL string, entries []watcher.Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[feedURL] = entries
}

func (f *fakeFeed) Fetch(_ context.Context, feedURL string) ([]watcher.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches = append(f.fetches, feedURL)
	return append([]watcher.Entry{}, f.entries[feedURL]...), nil
}

func (f *fakeFeed) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetches)
}

// fakeSpotify matches every title to one episode unless told otherwise.
type fakeSpotify struct {
	miss bool
}

func (f *fakeSpotify) EpisodeForTitle(_ context.Context, _, _ string) (*watcher.SpotifyEpisode, error) {
	if f.miss {
		return nil, watcher.ErrEpisodeNotFound
	}
	return &watcher.SpotifyEpisode{ID: "ep123abc", Name: "matched"}, nil
}

// fakeTranscriber returns the same transcript for every episode and counts
// calls so dedup tests can assert nothing was re-transcribed.
type fakeTranscriber struct {
	mu         sync.Mutex
	transcript *watcher.Transcript
	calls      int
}

func (f *fakeTranscriber) TranscribeURL(_ context.Context, _ string) (*watcher.Transcript, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.transcript, nil
}

func (f *fakeTranscriber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeClassifier answers with a fixed verdict and summary.
type fakeClassifier struct {
	verdict watcher.Verdict
	summary string
}

func (f *fakeClassifier) Classify(_ context.Context, _ string) (*watcher.Verdict, error) {
	v := f.verdict
	return &v, nil
}

func (f *fakeClassifier) Summarize(_ context.Context, _ string) (string, error) {
	return f.summary, nil
}

// fakePoster records posted threads; failAll simulates a dead session.
type fakePoster struct {
	mu      sync.Mutex
	threads [][2]string
	failAll error
}

func (f *fakePoster) PostThread(_ context.Context, firstText, secondText string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return f.failAll
	}
	f.threads = append(f.threads, [2]string{firstText, secondText})
	return nil
}

func (f *fakePoster) posted() [][2]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][2]string{}, f.threads...)
}

type testFixture struct {
	feeds       *watcher.FeedsConfig
	store       *watcher.InMemoryStore
	feed        *fakeFeed
	spotify     *fakeSpotify
	transcriber *fakeTranscriber
	classifier  *fakeClassifier
	poster      *fakePoster
	poller      *watcher.Poller
}

// keywordTranscript mentions the first keyword two minutes in.
func keywordTranscript() *watcher.Transcript {
	return &watcher.Transcript{
		Text: "intro chatter rovers traded their captain talk",
		Segments: []watcher.Segment{
			{Start: 0, End: 60, Text: "intro chatter"},
			{Start: 60, End: 125, Text: "other league news"},
			{Start: 125.3, End: 140, Text: "the Rovers traded their captain"},
			{Start: 140, End: 200, Text: "and the fans are furious"},
		},
	}
}

func setupTestFixture(t *testing.T, cfg *watcher.FeedsConfig) *testFixture {
	t.Helper()

	f := &testFixture{
		feeds:       cfg,
		store:       watcher.NewInMemoryStore(),
		feed:        newFakeFeed(),
		spotify:     &fakeSpotify{},
		transcriber: &fakeTranscriber{transcript: keywordTranscript()},
		classifier: &fakeClassifier{
			verdict: watcher.Verdict{Relevant: true, Topic: "Trade talk", Summary: "The captain was traded."},
			summary: "Episode summary.",
		},
		poster: &fakePoster{},
	}

	poller, err := watcher.NewPoller(
		cfg,
		watcher.Stores{State: f.store, Seen: f.store},
		f.feed,
		f.spotify,
		f.transcriber,
		f.classifier,
		f.poster,
	)
	require.NoError(t, err)
	f.poller = poller
	return f
}

func scanConfig() *watcher.FeedsConfig {
	return &watcher.FeedsConfig{
		PostCharLimit: 300,
		Topic:         testTopic,
		Keywords:      []string{"rovers"},
		ScanFeeds:     []watcher.Feed{{RSS: testFeedURL, SpotifyShow: testShowURL}},
	}
}

func digestConfig() *watcher.FeedsConfig {
	return &watcher.FeedsConfig{
		PostCharLimit: 300,
		DigestFeeds:   []watcher.Feed{{RSS: testFeedURL, SpotifyShow: testShowURL}},
	}
}

func entryAt(guid string, published time.Time) watcher.Entry {
	return watcher.Entry{
		Title:     "Episode " + guid,
		GUID:      guid,
		Published: published,
		AudioURL:  testAudioURL,
	}
}

func TestPoller_FirstSightHandlesOnlyNewest(t *testing.T) {
	f := setupTestFixture(t, scanConfig())
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	f.feed.set(testFeedURL, []watcher.Entry{
		entryAt("old-1", base.Add(-48*time.Hour)),
		entryAt("new-1", base),
		entryAt("old-2", base.Add(-24*time.Hour)),
	})

	f.poller.Poll(context.Background())

	require.Equal(t, 1, f.transcriber.callCount())
	require.Len(t, f.poster.posted(), 1)
	require.Contains(t, f.poster.posted()[0][0], "Episode new-1")

	anchoredAt, anchored, err := f.store.Baseline(context.Background(), testFeedURL)
	require.NoError(t, err)
	require.True(t, anchored)
	require.Equal(t, base, anchoredAt)

	// Same feed content again: nothing is newer than the baseline.
	f.poller.Poll(context.Background())
	require.Equal(t, 1, f.transcriber.callCount())
	require.Len(t, f.poster.posted(), 1)
}

func TestPoller_ProcessesNewerEntriesOldestFirst(t *testing.T) {
	f := setupTestFixture(t, scanConfig())
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	require.NoError(t, f.store.SetBaseline(context.Background(), testFeedURL, base))

	f.feed.set(testFeedURL, []watcher.Entry{
		entryAt("newer-2", base.Add(2*time.Hour)),
		entryAt("stale", base.Add(-time.Hour)),
		entryAt("newer-1", base.Add(time.Hour)),
	})

	f.poller.Poll(context.Background())

	posted := f.poster.posted()
	require.Len(t, posted, 2)
	require.Contains(t, posted[0][0], "Episode newer-1")
	require.Contains(t, posted[1][0], "Episode newer-2")

	at, _, err := f.store.Baseline(context.Background(), testFeedURL)
	require.NoError(t, err)
	require.Equal(t, base.Add(2*time.Hour), at)
}

func TestPoller_CapsBacklogPerRound(t *testing.T) {
	f := setupTestFixture(t, scanConfig())
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	require.NoError(t, f.store.SetBaseline(context.Background(), testFeedURL, base))

	var entries []watcher.Entry
	for i := 1; i <= 15; i++ {
		entries = append(entries, entryAt(fmt.Sprintf("ep-%02d", i), base.Add(time.Duration(i)*time.Minute)))
	}
	f.feed.set(testFeedURL, entries)

	f.poller.Poll(context.Background())
	require.Len(t, f.poster.posted(), 10)

	// The baseline advanced past the uncapped tail, so the next round does
	// not pick the skipped entries up.
	f.poller.Poll(context.Background())
	require.Len(t, f.poster.posted(), 10)
}

func TestPoller_SeenEpisodeIsNotReprocessed(t *testing.T) {
	f := setupTestFixture(t, scanConfig())
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	require.NoError(t, f.store.SetBaseline(context.Background(), testFeedURL, base))
	require.NoError(t, f.store.MarkSeen(context.Background(), testFeedURL, testGUID, "", base.Add(time.Hour)))

	f.feed.set(testFeedURL, []watcher.Entry{entryAt(testGUID, base.Add(time.Hour))})

	f.poller.Poll(context.Background())

	require.Zero(t, f.transcriber.callCount())
	require.Empty(t, f.poster.posted())
}

func TestPoller_OffTopicAdvancesBaselineWithoutPosting(t *testing.T) {
	f := setupTestFixture(t, scanConfig())
	f.classifier.verdict = watcher.Verdict{Relevant: false}
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	require.NoError(t, f.store.SetBaseline(context.Background(), testFeedURL, base))
	f.feed.set(testFeedURL, []watcher.Entry{entryAt(testGUID, base.Add(time.Hour))})

	f.poller.Poll(context.Background())

	require.Empty(t, f.poster.posted())
	at, _, err := f.store.Baseline(context.Background(), testFeedURL)
	require.NoError(t, err)
	require.Equal(t, base.Add(time.Hour), at)

	seen, err := f.store.Seen(context.Background(), testFeedURL, testGUID)
	require.NoError(t, err)
	require.True(t, seen)
}

func TestPoller_ScanComposesTimestampedThread(t *testing.T) {
	f := setupTestFixture(t, scanConfig())
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	require.NoError(t, f.store.SetBaseline(context.Background(), testFeedURL, base))
	f.feed.set(testFeedURL, []watcher.Entry{entryAt(testGUID, base.Add(time.Hour))})

	f.poller.Poll(context.Background())

	posted := f.poster.posted()
	require.Len(t, posted, 1)

	// The keyword lands at 125.3s; the window opens 10s earlier.
	first := posted[0][0]
	require.Contains(t, first, "01:55")
	require.Contains(t, first, "https://open.spotify.com/episode/ep123abc?t=115")
	require.Contains(t, first, "Trade talk")
	require.Equal(t, "The captain was traded.", posted[0][1])
}

func TestPoller_DigestPostsWholeEpisodeSummary(t *testing.T) {
	f := setupTestFixture(t, digestConfig())
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	require.NoError(t, f.store.SetBaseline(context.Background(), testFeedURL, base))
	f.feed.set(testFeedURL, []watcher.Entry{entryAt(testGUID, base.Add(time.Hour))})

	f.poller.Poll(context.Background())

	posted := f.poster.posted()
	require.Len(t, posted, 1)
	require.Equal(t, "Episode "+testGUID+" https://open.spotify.com/episode/ep123abc", posted[0][0])
	require.Equal(t, "Episode summary.", posted[0][1])
}

func TestPoller_NoSpotifyMatchSkipsPostButMarksSeen(t *testing.T) {
	f := setupTestFixture(t, scanConfig())
	f.spotify.miss = true
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	require.NoError(t, f.store.SetBaseline(context.Background(), testFeedURL, base))
	f.feed.set(testFeedURL, []watcher.Entry{entryAt(testGUID, base.Add(time.Hour))})

	f.poller.Poll(context.Background())

	require.Empty(t, f.poster.posted())
	seen, err := f.store.Seen(context.Background(), testFeedURL, testGUID)
	require.NoError(t, err)
	require.True(t, seen)
}

func TestPoller_ReauthDemandStopsTheRound(t *testing.T) {
	secondFeed := "https://feeds.example.com/other.xml"
	cfg := scanConfig()
	cfg.ScanFeeds = append(cfg.ScanFeeds, watcher.Feed{RSS: secondFeed, SpotifyShow: testShowURL})

	f := setupTestFixture(t, cfg)
	f.poster.failAll = errors.Wrap(watcher.ErrReauthRequired, "service returned 401")

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	require.NoError(t, f.store.SetBaseline(context.Background(), testFeedURL, base))
	require.NoError(t, f.store.SetBaseline(context.Background(), secondFeed, base))
	f.feed.set(testFeedURL, []watcher.Entry{entryAt(testGUID, base.Add(time.Hour))})
	f.feed.set(secondFeed, []watcher.Entry{entryAt("other-1", base.Add(time.Hour))})

	f.poller.Poll(context.Background())

	// The first feed's failing entry is still marked seen; the second feed
	// was never fetched.
	seen, err := f.store.Seen(context.Background(), testFeedURL, testGUID)
	require.NoError(t, err)
	require.True(t, seen)
	require.Equal(t, 1, f.feed.fetchCount())
}

func TestPoller_ClampsLongPosts(t *testing.T) {
	cfg := scanConfig()
	cfg.PostCharLimit = 40
	f := setupTestFixture(t, cfg)

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	require.NoError(t, f.store.SetBaseline(context.Background(), testFeedURL, base))
	entry := entryAt(testGUID, base.Add(time.Hour))
	entry.Title = strings.Repeat("Very Long Title ", 10)
	f.feed.set(testFeedURL, []watcher.Entry{entry})

	f.poller.Poll(context.Background())

	posted := f.poster.posted()
	require.Len(t, posted, 1)
	require.Equal(t, 40, len([]rune(posted[0][0])))
	require.True(t, strings.HasSuffix(posted[0][0], "…"))
}

func TestNewPoller_Validation(t *testing.T) {
	cfg := scanConfig()
	store := watcher.NewInMemoryStore()
	stores := watcher.Stores{State: store, Seen: store}

	_, err := watcher.NewPoller(nil, stores, newFakeFeed(), &fakeSpotify{}, &fakeTranscriber{}, &fakeClassifier{}, &fakePoster{})
	require.Error(t, err)

	_, err = watcher.NewPoller(cfg, watcher.Stores{}, newFakeFeed(), &fakeSpotify{}, &fakeTranscriber{}, &fakeClassifier{}, &fakePoster{})
	require.Error(t, err)

	_, err = watcher.NewPoller(cfg, stores, nil, &fakeSpotify{}, &fakeTranscriber{}, &fakeClassifier{}, &fakePoster{})
	require.Error(t, err)

	_, err = watcher.NewPoller(cfg, stores, newFakeFeed(), &fakeSpotify{}, &fakeTranscriber{}, &fakeClassifier{}, nil)
	require.Error(t, err)
}
