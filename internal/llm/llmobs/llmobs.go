package llmobs

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"signal-trader/internal/interfaces"
	"signal-trader/internal/logger"
	"signal-trader/internal/trace"
	"signal-trader/internal/types"
)

// observableClassifier wraps a SentimentClassifier with logging and tracing
type observableClassifier struct {
	classifier interfaces.SentimentClassifier
}

var _ interfaces.SentimentClassifier = (*observableClassifier)(nil)

func Wrap(c interfaces.SentimentClassifier) interfaces.SentimentClassifier {
	return &observableClassifier{classifier: c}
}

func (oc *observableClassifier) Classify(ctx context.Context, headlines []string) (types.Sentiment, error) {
	ctx, span := trace.StartSpan(ctx, "llm.Classify")
	defer span.End()
	span.SetAttributes(attribute.Int("headlines", len(headlines)))

	// Skip(1) so the caller, not this wrapper, shows up as the source
	logger.DebugSkip(ctx, 1, "Requesting sentiment", "headlines", len(headlines))

	s, err := oc.classifier.Classify(ctx, headlines)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Sentiment classification failed", err, "headlines", len(headlines))
		return types.Sentiment{}, err
	}

	span.SetAttributes(attribute.String("label", string(s.Label)), attribute.Float64("score", s.Score))
	logger.InfoSkip(ctx, 1, "Sentiment received",
		"label", s.Label,
		"score", s.Score,
		"source", s.Source,
	)
	return s, nil
}
