package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/genai"
)

// summarizeInputLimit caps how much transcript is sent to the summarizer.
const summarizeInputLimit = 50000

// Verdict is the model's structured answer for a keyword window.
type Verdict struct {
	Relevant bool   `json:"relevant"`
	Topic    string `json:"topic"`
	Summary  string `json:"summary"`
}

// Classifier decides whether a transcript window is about the configured
// topic and writes digest summaries. Responses to Classify are constrained
// to a JSON schema so the answer always parses.
type Classifier struct {
	client *genai.Client
	model  string
	topic  string
}

func NewClassifier(ctx context.Context, apiKey, model, topic string) (*Classifier, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[NewClassifier] create client")
	}

	return &Classifier{
		client: client,
		model:  model,
		topic:  topic,
	}, nil
}

// Classify asks whether the snippet is about the topic. Thinking is
// disabled; the call is a cheap yes/no with a short topic and summary.
func (c *Classifier) Classify(ctx context.Context, snippet string) (*Verdict, error) {
	prompt := fmt.Sprintf(
		"Decide if the following podcast snippet is about %s. "+
			"Return JSON with fields: relevant (boolean), topic (short), summary (<=300 chars, neutral). "+
			"Only mark relevant true if the snippet clearly refers to it.",
		c.topic)

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"relevant": {Type: genai.TypeBoolean},
				"topic":    {Type: genai.TypeString},
				"summary":  {Type: genai.TypeString},
			},
			Required: []string{"relevant"},
		},
		ThinkingConfig: &genai.ThinkingConfig{ThinkingBudget: genai.Ptr(int32(0))},
	}

	text, err := c.generate(ctx, prompt+"\n\n"+snippet, config)
	if err != nil {
		return nil, errors.Wrap(err, "[Classify] generate")
	}

	var verdict Verdict
	if err := json.Unmarshal([]byte(text), &verdict); err != nil {
		return nil, errors.Wrap(err, "[Classify] decode verdict")
	}
	return &verdict, nil
}

// Summarize produces a plain-text summary of the transcript, truncated on
// input so very long episodes stay inside the model's context.
func (c *Classifier) Summarize(ctx context.Context, transcript string) (string, error) {
	runes := []rune(transcript)
	if len(runes) > summarizeInputLimit {
		transcript = string(runes[:summarizeInputLimit])
	}

	prompt := "Summarize this podcast episode transcript in two or three neutral " +
		"sentences, under 280 characters total. Plain text only."

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "text/plain",
		ThinkingConfig:   &genai.ThinkingConfig{ThinkingBudget: genai.Ptr(int32(0))},
	}

	text, err := c.generate(ctx, prompt+"\n\n"+transcript, config)
	if err != nil {
		return "", errors.Wrap(err, "[Summarize] generate")
	}
	return strings.TrimSpace(text), nil
}

func (c *Classifier) generate(ctx context.Context, text string, config *genai.GenerateContentConfig) (string, error) {
	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{genai.NewPartFromText(text)},
	}}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("model returned no candidates")
	}

	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		out.WriteString(part.Text)
	}
	return out.String(), nil
}
