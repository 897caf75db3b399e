package config

import (
	"strconv"
	"time"
)

const (
	feedsFileVar    = "FEEDS_FILE"
	pollIntervalVar = "POLL_INTERVAL_SECONDS"
	webBaseURLVar   = "WEB_BASE_URL"
)

type WatcherConfig interface {
	GetFeedsFile() string
	GetPollInterval() time.Duration
	GetWebBaseURL() string
	GetSpotifyClientID() string
	GetSpotifyClientSecret() string
	GetGeminiAPIKey() string
	GetGeminiModel() string
	GetTranscribeAPIKey() string
	GetTranscribeBaseURL() string
	GetTranscribeModel() string
}

type Watcher struct{}

var _ WatcherConfig = Watcher{}

func (Watcher) GetFeedsFile() string {
	return GetEnv(feedsFileVar, "./config/feeds.yaml")
}

func (Watcher) GetPollInterval() time.Duration {
	seconds, err := strconv.Atoi(GetEnv(pollIntervalVar, "600"))
	if err != nil || seconds <= 0 {
		seconds = 600
	}
	return time.Duration(seconds) * time.Second
}

// GetWebBaseURL is the base URL of the publishing service the watcher posts
// threads through.
func (Watcher) GetWebBaseURL() string {
	return GetEnv(webBaseURLVar, "http://localhost:8080")
}

func (Watcher) GetSpotifyClientID() string {
	return GetEnv("SPOTIFY_CLIENT_ID", "")
}

func (Watcher) GetSpotifyClientSecret() string {
	return GetEnv("SPOTIFY_CLIENT_SECRET", "")
}

func (Watcher) GetGeminiAPIKey() string {
	return GetEnv("GEMINI_API_KEY", "")
}

func (Watcher) GetGeminiModel() string {
	return GetEnv("GEMINI_MODEL", "gemini-2.5-flash-lite")
}

// GetTranscribeAPIKey authenticates against an OpenAI compatible audio
// transcription endpoint.
func (Watcher) GetTranscribeAPIKey() string {
	return GetEnv("TRANSCRIBE_API_KEY", "")
}

func (Watcher) GetTranscribeBaseURL() string {
	return GetEnv("TRANSCRIBE_BASE_URL", "")
}

func (Watcher) GetTranscribeModel() string {
	return GetEnv("TRANSCRIBE_MODEL", "whisper-1")
}
