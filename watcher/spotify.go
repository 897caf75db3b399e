package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	spotifyTokenURL    = "https://accounts.spotify.com/api/token"
	spotifyAPIBaseURL  = "https://api.spotify.com/v1"
	spotifyEpisodeBase = "https://open.spotify.com/episode/"

	episodePageLimit = 50
	episodeMarket    = "US"
)

// ErrEpisodeNotFound is returned when no recent episode of the show matches
// the feed entry's title.
var ErrEpisodeNotFound = errors.New("spotify episode not found")

var showIDPattern = regexp.MustCompile(`/show/([A-Za-z0-9]+)`)

// ParseShowID extracts the show ID from an open.spotify.com show URL.
func ParseShowID(showURL string) (string, error) {
	m := showIDPattern.FindStringSubmatch(showURL)
	if m == nil {
		return "", errors.Errorf("[ParseShowID] no show id in %q", showURL)
	}
	return m[1], nil
}

// SpotifyEpisode is the slice of the episode object the watcher uses.
type SpotifyEpisode struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyClient looks up show episodes with an app token (client
// credentials grant, refreshed automatically).
type SpotifyClient struct {
	httpClient *http.Client
	apiBaseURL string
}

// SpotifyOption configures optional SpotifyClient behaviour
type SpotifyOption func(*SpotifyClient)

// WithSpotifyHTTPClient replaces the token-carrying client (primarily for testing)
func WithSpotifyHTTPClient(httpClient *http.Client) SpotifyOption {
	return func(c *SpotifyClient) {
		c.httpClient = httpClient
	}
}

// WithSpotifyAPIBaseURL points lookups at a different API host (primarily for testing)
func WithSpotifyAPIBaseURL(baseURL string) SpotifyOption {
	return func(c *SpotifyClient) {
		c.apiBaseURL = strings.TrimRight(baseURL, "/")
	}
}

// NewSpotifyClient creates a client that authenticates with the given app
// credentials. ctx scopes token refreshes, so pass a long-lived one.
func NewSpotifyClient(ctx context.Context, clientID, clientSecret string, options ...SpotifyOption) *SpotifyClient {
	cc := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyTokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	client := &SpotifyClient{
		httpClient: cc.Client(ctx),
		apiBaseURL: spotifyAPIBaseURL,
	}
	for _, opt := range options {
		opt(client)
	}
	return client
}

// EpisodeForTitle scans the show's recent episodes for one whose normalized
// name matches the entry title, exactly or by containment either way.
func (c *SpotifyClient) EpisodeForTitle(ctx context.Context, showID, title string) (*SpotifyEpisode, error) {
	endpoint := fmt.Sprintf("%s/shows/%s/episodes?limit=%d&market=%s",
		c.apiBaseURL, url.PathEscape(showID), episodePageLimit, episodeMarket)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "[EpisodeForTitle] build request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "[EpisodeForTitle] list episodes")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "[EpisodeForTitle] read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("[EpisodeForTitle] spotify returned %d", resp.StatusCode)
	}

	var page struct {
		Items []SpotifyEpisode `json:"items"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, errors.Wrap(err, "[EpisodeForTitle] decode response")
	}

	want := normalizeTitle(title)
	for _, ep := range page.Items {
		got := normalizeTitle(ep.Name)
		if got == want ||
			(want != "" && strings.Contains(got, want)) ||
			(got != "" && strings.Contains(want, got)) {
			found := ep
			return &found, nil
		}
	}
	return nil, ErrEpisodeNotFound
}

// EpisodeLink is the public page for an episode.
func EpisodeLink(episodeID string) string {
	return spotifyEpisodeBase + episodeID
}

// TimestampLink is the episode page with a best-effort start offset.
func TimestampLink(episodeID string, seconds int) string {
	return fmt.Sprintf("%s%s?t=%d", spotifyEpisodeBase, episodeID, seconds)
}

var titleNoise = regexp.MustCompile(`[^a-z0-9 ]`)

func normalizeTitle(s string) string {
	return titleNoise.ReplaceAllString(strings.ToLower(s), "")
}
