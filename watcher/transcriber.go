package watcher

import (
	"context"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
)

// Segment is one timed span of a transcript, in seconds from episode start.
type Segment struct {
	Start float64
	End   float64
	Text  string
}

// Transcript is a whole episode's text plus its timed segments.
type Transcript struct {
	Text     string
	Segments []Segment
}

// Transcriber downloads enclosure audio and sends it to an OpenAI
// compatible transcription endpoint, asking for verbose output so segment
// timings come back.
type Transcriber struct {
	api        *openai.Client
	httpClient *http.Client
	model      string
}

// TranscriberOption configures optional Transcriber behaviour
type TranscriberOption func(*Transcriber)

// WithTranscriberHTTPClient replaces the audio download client (primarily for testing)
func WithTranscriberHTTPClient(httpClient *http.Client) TranscriberOption {
	return func(t *Transcriber) {
		t.httpClient = httpClient
	}
}

// NewTranscriber creates a transcriber. baseURL may be empty for the
// default OpenAI endpoint.
func NewTranscriber(apiKey, baseURL, model string, options ...TranscriberOption) *Transcriber {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = strings.TrimRight(baseURL, "/")
	}

	t := &Transcriber{
		api: openai.NewClientWithConfig(config),
		// The timeout covers the whole enclosure transfer.
		httpClient: &http.Client{Timeout: 10 * time.Minute},
		model:      model,
	}
	for _, opt := range options {
		opt(t)
	}
	return t
}

// TranscribeURL streams the audio at audioURL into the transcription
// endpoint without buffering the episode in memory.
func (t *Transcriber) TranscribeURL(ctx context.Context, audioURL string) (*Transcript, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "[TranscribeURL] build download request")
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "[TranscribeURL] download audio")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("[TranscribeURL] enclosure returned %d", resp.StatusCode)
	}

	out, err := t.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		Reader:   resp.Body,
		FilePath: audioFilename(audioURL),
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[TranscribeURL] transcribe")
	}

	transcript := &Transcript{Segments: make([]Segment, 0, len(out.Segments))}
	texts := make([]string, 0, len(out.Segments))
	for _, seg := range out.Segments {
		text := strings.TrimSpace(seg.Text)
		transcript.Segments = append(transcript.Segments, Segment{
			Start: seg.Start,
			End:   seg.End,
			Text:  text,
		})
		texts = append(texts, text)
	}
	transcript.Text = strings.Join(texts, " ")
	if transcript.Text == "" {
		transcript.Text = strings.TrimSpace(out.Text)
	}
	return transcript, nil
}

// audioFilename names the upload part; the endpoint sniffs the container
// from the extension.
func audioFilename(audioURL string) string {
	parsed, err := url.Parse(audioURL)
	if err != nil || path.Ext(parsed.Path) == "" {
		return "episode.mp3"
	}
	return path.Base(parsed.Path)
}
