package watcher

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const defaultPostCharLimit = 300

// Feed is one podcast to poll: its RSS feed plus the Spotify show used to
// build episode links.
type Feed struct {
	RSS         string `yaml:"rss"`
	SpotifyShow string `yaml:"spotify_show"`
}

// FeedsConfig is the operator-maintained feeds file. Scan feeds are searched
// for a keyword window and only posted when the classifier confirms the
// topic; digest feeds get a whole-episode summary every time.
type FeedsConfig struct {
	PostCharLimit int      `yaml:"post_char_limit"`
	Topic         string   `yaml:"topic"`
	Keywords      []string `yaml:"keywords"`
	ScanFeeds     []Feed   `yaml:"scan_feeds"`
	DigestFeeds   []Feed   `yaml:"digest_feeds"`
}

// LoadFeeds reads and validates the feeds file. Keywords are matched
// case-insensitively, so they are lowercased once here.
func LoadFeeds(path string) (*FeedsConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "[LoadFeeds] read feeds file")
	}

	var cfg FeedsConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, errors.Wrap(err, "[LoadFeeds] parse feeds file")
	}

	if cfg.PostCharLimit <= 0 {
		cfg.PostCharLimit = defaultPostCharLimit
	}
	for i, k := range cfg.Keywords {
		cfg.Keywords[i] = strings.ToLower(strings.TrimSpace(k))
	}

	for _, f := range append(append([]Feed{}, cfg.ScanFeeds...), cfg.DigestFeeds...) {
		if f.RSS == "" {
			return nil, errors.New("[LoadFeeds] every feed needs an rss url")
		}
		if f.SpotifyShow == "" {
			return nil, errors.New("[LoadFeeds] every feed needs a spotify_show url")
		}
	}
	if len(cfg.ScanFeeds) > 0 {
		if cfg.Topic == "" {
			return nil, errors.New("[LoadFeeds] scan feeds need a topic")
		}
		if len(cfg.Keywords) == 0 {
			return nil, errors.New("[LoadFeeds] scan feeds need keywords")
		}
	}

	return &cfg, nil
}
