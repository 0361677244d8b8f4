// Package openai classifies headline sentiment with the Chat Completions API.
package openai

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"signal-trader/internal/api"
	"signal-trader/internal/interfaces"
	"signal-trader/internal/llm"
	"signal-trader/internal/store"
	"signal-trader/internal/trace"
	"signal-trader/internal/types"
)

const defaultBaseURL = "https://api.openai.com"

type Classifier struct {
	cfg    store.SentimentConfig
	apiKey string
	client *api.Client
}

var _ interfaces.SentimentClassifier = (*Classifier)(nil)

// New reads OPENAI_API_KEY; OPENAI_BASE_URL overrides the endpoint.
func New(cfg store.SentimentConfig) (*Classifier, error) {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return nil, errors.New("OPENAI_API_KEY missing")
	}
	base := defaultBaseURL
	if u := os.Getenv("OPENAI_BASE_URL"); u != "" {
		base = strings.TrimSuffix(u, "/")
	}
	return newClassifier(cfg, key, base), nil
}

func newClassifier(cfg store.SentimentConfig, key, base string) *Classifier {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 40
	}
	return &Classifier{
		cfg:    cfg,
		apiKey: key,
		client: api.NewClient(api.WithBaseURL(base), api.WithTimeout(20*time.Second)),
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

func (c *Classifier) Classify(ctx context.Context, headlines []string) (types.Sentiment, error) {
	if len(headlines) == 0 {
		return types.NeutralSentiment(), nil
	}
	ctx, span := trace.StartSpan(ctx, "openai-api-call")
	defer span.End()

	body := map[string]any{
		"model": c.cfg.Model,
		"messages": []message{
			{Role: "system", Content: llm.System(c.cfg.System)},
			{Role: "user", Content: llm.Prompt(headlines)},
		},
		"temperature": c.cfg.Temperature,
		"max_tokens":  c.cfg.MaxTokens,
	}
	resp, err := c.client.POST(ctx, "/v1/chat/completions", body, map[string]string{"Authorization": "Bearer " + c.apiKey})
	if err != nil {
		return types.Sentiment{}, err
	}

	var r chatResponse
	if err := resp.ParseJSON(&r); err != nil {
		return types.Sentiment{}, err
	}
	if len(r.Choices) == 0 {
		return types.Sentiment{}, errors.New("openai: no choices")
	}

	s := llm.ParseSentiment(r.Choices[0].Message.Content)
	s.Headlines = len(headlines)
	s.Source = "openai"
	return s, nil
}
