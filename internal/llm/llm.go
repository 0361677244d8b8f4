// Package llm holds what the sentiment classifiers share: the prompt and
// a forgiving parser for model output.
package llm

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"signal-trader/internal/types"
)

const DefaultSystem = "You are a markets desk analyst for Indian equities. " +
	`Reply ONLY with compact JSON: {"label":"positive|neutral|negative","score":<number between -1 and 1>}.`

// Prompt is the user message for a headline batch.
func Prompt(headlines []string) string {
	var b strings.Builder
	b.WriteString("Classify the market sentiment of these headlines as positive, neutral, or negative:\n\n")
	for i, h := range headlines {
		fmt.Fprintf(&b, "%d. %s\n", i+1, strings.TrimSpace(h))
	}
	return b.String()
}

// System returns s, or DefaultSystem when s is blank.
func System(s string) string {
	if strings.TrimSpace(s) == "" {
		return DefaultSystem
	}
	return s
}

type reply struct {
	Label string   `json:"label"`
	Score *float64 `json:"score"`
}

// ParseSentiment reads a model reply. A JSON object anywhere in the text
// wins; otherwise the first label word found is used. Unreadable output
// is neutral.
func ParseSentiment(text string) types.Sentiment {
	t := strings.TrimSpace(text)
	if start, end := strings.Index(t, "{"), strings.LastIndex(t, "}"); start >= 0 && end > start {
		var r reply
		if err := json.Unmarshal([]byte(t[start:end+1]), &r); err == nil {
			if s, ok := fromReply(r); ok {
				return s
			}
		}
	}

	lower := strings.ToLower(t)
	best, bestAt := types.SentimentNeutral, -1
	for _, l := range []types.SentimentLabel{types.SentimentPositive, types.SentimentNegative, types.SentimentNeutral} {
		if i := strings.Index(lower, string(l)); i >= 0 && (bestAt < 0 || i < bestAt) {
			best, bestAt = l, i
		}
	}
	return types.Sentiment{Label: best, Score: labelScore(best)}
}

func fromReply(r reply) (types.Sentiment, bool) {
	label := types.SentimentLabel(strings.ToLower(strings.TrimSpace(r.Label)))
	switch label {
	case types.SentimentPositive, types.SentimentNeutral, types.SentimentNegative:
	default:
		if r.Score == nil {
			return types.Sentiment{}, false
		}
		label = labelFor(*r.Score)
	}
	score := labelScore(label)
	if r.Score != nil && !math.IsNaN(*r.Score) {
		// A known label fixes the sign; the score only carries magnitude.
		score *= math.Min(1, math.Abs(*r.Score))
		if label == types.SentimentNeutral {
			score = 0
		}
	}
	return types.Sentiment{Label: label, Score: score}, true
}

func labelScore(l types.SentimentLabel) float64 {
	switch l {
	case types.SentimentPositive:
		return 1
	case types.SentimentNegative:
		return -1
	}
	return 0
}

func labelFor(score float64) types.SentimentLabel {
	switch {
	case score > 0:
		return types.SentimentPositive
	case score < 0:
		return types.SentimentNegative
	}
	return types.SentimentNeutral
}
