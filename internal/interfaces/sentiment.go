package interfaces

import (
	"context"

	"signal-trader/internal/types"
)

// SentimentClassifier labels a batch of headlines.
type SentimentClassifier interface {
	Classify(ctx context.Context, headlines []string) (types.Sentiment, error)
}

// HeadlineSource returns recent market headlines for a query.
type HeadlineSource interface {
	Headlines(ctx context.Context, query string, limit int) ([]string, error)
}
