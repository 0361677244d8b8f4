// Package sentiment turns recent headlines into a market mood.
package sentiment

import (
	"context"
	"strings"
	"sync"

	"signal-trader/internal/interfaces"
	"signal-trader/internal/logger"
	"signal-trader/internal/types"
)

// Service never fails: no headlines, a headline error or a classifier error
// all come back as neutral.
type Service struct {
	headlines  interfaces.HeadlineSource
	classifier interfaces.SentimentClassifier
	query      string
	limit      int

	mu       sync.Mutex
	lastKey  string
	lastMood types.Sentiment
}

func NewService(h interfaces.HeadlineSource, c interfaces.SentimentClassifier, query string, limit int) *Service {
	if limit <= 0 {
		limit = 5
	}
	return &Service{headlines: h, classifier: c, query: query, limit: limit}
}

// Current classifies the latest headlines. An unchanged headline set reuses
// the previous classification.
func (s *Service) Current(ctx context.Context) types.Sentiment {
	if s.headlines == nil || s.classifier == nil {
		return types.NeutralSentiment()
	}

	h, err := s.headlines.Headlines(ctx, s.query, s.limit)
	if err != nil {
		logger.Warn(ctx, "Headlines unavailable, sentiment neutral", "query", s.query, "error", err)
		return types.NeutralSentiment()
	}
	if len(h) == 0 {
		return types.NeutralSentiment()
	}

	key := strings.Join(h, "\n")
	s.mu.Lock()
	if key == s.lastKey {
		mood := s.lastMood
		s.mu.Unlock()
		return mood
	}
	s.mu.Unlock()

	mood, err := s.classifier.Classify(ctx, h)
	if err != nil {
		logger.Warn(ctx, "Sentiment classification failed, sentiment neutral", "headlines", len(h), "error", err)
		return types.NeutralSentiment()
	}
	mood.Headlines = len(h)

	s.mu.Lock()
	s.lastKey, s.lastMood = key, mood
	s.mu.Unlock()
	return mood
}
