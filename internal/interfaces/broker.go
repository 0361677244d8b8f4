package interfaces

import (
	"context"

	"signal-trader/internal/types"
)

// Broker is the order-routing and market-data collaborator.
// Errors are classified with broker.IsTransient.
type Broker interface {
	Login(ctx context.Context) (types.Session, error)
	Candles(ctx context.Context, q types.CandleQuery) ([]types.Candle, error)
	PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error)
}
