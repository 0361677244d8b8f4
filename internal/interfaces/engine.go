package interfaces

import (
	"context"

	"signal-trader/internal/types"
)

type Engine interface {
	Step(ctx context.Context, symbol string) (*types.StepResult, error)
}

// Executor turns a decision into an acknowledged order.
type Executor interface {
	Execute(ctx context.Context, d types.Decision) (types.Order, error)
}
