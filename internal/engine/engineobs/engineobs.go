package engineobs

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"signal-trader/internal/interfaces"
	"signal-trader/internal/logger"
	"signal-trader/internal/trace"
	"signal-trader/internal/types"
)

type observableEngine struct {
	engine interfaces.Engine
}

var _ interfaces.Engine = (*observableEngine)(nil)

func Wrap(eng interfaces.Engine) interfaces.Engine {
	return &observableEngine{engine: eng}
}

func (oe *observableEngine) Step(ctx context.Context, symbol string) (*types.StepResult, error) {
	ctx, span := trace.StartSpan(ctx, "engine.Step")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol))

	start := time.Now()
	logger.DebugSkip(ctx, 1, "Evaluating symbol", "symbol", symbol)

	result, err := oe.engine.Step(ctx, symbol)
	if result != nil {
		span.SetAttributes(
			attribute.String("action", string(result.Decision.Action)),
			attribute.String("outcome", result.Outcome),
		)
	}
	if err != nil {
		fields := []any{"symbol", symbol, "duration_ms", time.Since(start).Milliseconds()}
		if result != nil {
			fields = append(fields, "outcome", result.Outcome)
		}
		logger.ErrorWithErrSkip(ctx, 1, "Evaluation failed", err, fields...)
		return result, err
	}

	logger.InfoSkip(ctx, 1, "Evaluation completed",
		"symbol", symbol,
		"action", result.Decision.Action,
		"outcome", result.Outcome,
		"price", result.Price,
		"orders", len(result.Orders),
		"daily_pnl", result.State.DailyPnL.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}
