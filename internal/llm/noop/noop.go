// Package noop is the classifier used when no LLM is configured.
package noop

import (
	"context"

	"signal-trader/internal/interfaces"
	"signal-trader/internal/logger"
	"signal-trader/internal/types"
)

// Classifier always reports neutral sentiment.
type Classifier struct{}

var _ interfaces.SentimentClassifier = Classifier{}

func New() Classifier { return Classifier{} }

func (Classifier) Classify(ctx context.Context, headlines []string) (types.Sentiment, error) {
	logger.Debug(ctx, "Noop classifier called - always neutral", "headlines", len(headlines))
	s := types.NeutralSentiment()
	s.Headlines = len(headlines)
	s.Source = "noop"
	return s, nil
}
