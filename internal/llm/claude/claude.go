// Package claude classifies headline sentiment with Anthropic's Messages API.
package claude

import (
	"context"
	"encoding/json"
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

const (
	defaultEndpoint = "https://api.anthropic.com/v1/messages"
	apiVersion      = "2023-06-01"
)

type Classifier struct {
	cfg      store.SentimentConfig
	apiKey   string
	endpoint string
	client   *api.Client
}

var _ interfaces.SentimentClassifier = (*Classifier)(nil)

// New reads CLAUDE_API_KEY. For a proxy, set CLAUDE_API_ENDPOINT.
func New(cfg store.SentimentConfig) (*Classifier, error) {
	key := os.Getenv("CLAUDE_API_KEY")
	if key == "" {
		return nil, errors.New("CLAUDE_API_KEY missing")
	}
	endpoint := defaultEndpoint
	if ep := os.Getenv("CLAUDE_API_ENDPOINT"); ep != "" {
		endpoint = ep
	}
	return newClassifier(cfg, key, endpoint), nil
}

func newClassifier(cfg store.SentimentConfig, key, endpoint string) *Classifier {
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-haiku-latest"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 40
	}
	return &Classifier{
		cfg:      cfg,
		apiKey:   key,
		endpoint: endpoint,
		client:   api.NewClient(api.WithTimeout(20 * time.Second)),
	}
}

func (c *Classifier) Classify(ctx context.Context, headlines []string) (types.Sentiment, error) {
	if len(headlines) == 0 {
		return types.NeutralSentiment(), nil
	}
	ctx, span := trace.StartSpan(ctx, "claude-api-call")
	defer span.End()

	body := map[string]any{
		"model":  c.cfg.Model,
		"system": llm.System(c.cfg.System),
		"messages": []map[string]string{
			{"role": "user", "content": llm.Prompt(headlines)},
		},
		"max_tokens":  c.cfg.MaxTokens,
		"temperature": c.cfg.Temperature,
	}
	resp, err := c.client.POST(ctx, c.endpoint, body, map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": apiVersion,
	})
	if err != nil {
		return types.Sentiment{}, err
	}

	s := llm.ParseSentiment(replyText(resp.Body))
	s.Headlines = len(headlines)
	s.Source = "claude"
	return s, nil
}

// replyText pulls the assistant text out of a Messages response, falling
// back to older completion-style fields and finally the raw body.
func replyText(raw []byte) string {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return string(raw)
	}

	if blocks, ok := m["content"].([]any); ok {
		var parts []string
		for _, b := range blocks {
			if bm, ok := b.(map[string]any); ok {
				if txt, ok := bm["text"].(string); ok {
					parts = append(parts, txt)
				}
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n")
		}
	}
	for _, k := range []string{"completion", "output_text", "result"} {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return string(raw)
}
