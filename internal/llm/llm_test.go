package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"signal-trader/internal/types"
)

func TestParseSentiment(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		label types.SentimentLabel
		score float64
	}{
		{"json", `{"label":"positive","score":0.7}`, types.SentimentPositive, 0.7},
		{"json in prose", "Sure.\n```json\n{\"label\": \"Negative\", \"score\": -0.4}\n```", types.SentimentNegative, -0.4},
		{"score clamped", `{"label":"negative","score":-3}`, types.SentimentNegative, -1},
		{"confidence with negative label", `{"label":"negative","score":0.9}`, types.SentimentNegative, -0.9},
		{"confidence with positive label", `{"label":"positive","score":-0.7}`, types.SentimentPositive, 0.7},
		{"neutral ignores score", `{"label":"neutral","score":0.8}`, types.SentimentNeutral, 0},
		{"label only", `{"label":"negative"}`, types.SentimentNegative, -1},
		{"score only", `{"score":0.2}`, types.SentimentPositive, 0.2},
		{"bare word", "Positive.", types.SentimentPositive, 1},
		{"first word wins", "negative, though some positive notes", types.SentimentNegative, -1},
		{"garbage", "I cannot say", types.SentimentNeutral, 0},
		{"empty", "", types.SentimentNeutral, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseSentiment(tt.in)
			assert.Equal(t, tt.label, got.Label)
			assert.InDelta(t, tt.score, got.Score, 1e-9)
		})
	}
}

func TestPrompt(t *testing.T) {
	p := Prompt([]string{" Nifty hits record ", "Banks slide"})
	assert.Contains(t, p, "positive, neutral, or negative")
	assert.Contains(t, p, "1. Nifty hits record\n2. Banks slide\n")
}

func TestSystem(t *testing.T) {
	assert.Equal(t, DefaultSystem, System("  "))
	assert.Equal(t, "custom", System("custom"))
}
