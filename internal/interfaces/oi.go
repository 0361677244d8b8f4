package interfaces

import (
	"context"

	"signal-trader/internal/types"
)

// OIFetcher returns the current option chain for an underlying.
type OIFetcher interface {
	Snapshot(ctx context.Context, underlying string) (types.OISnapshot, error)
}
