// Package brokerobs wraps any broker adapter with spans and logs.
package brokerobs

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"signal-trader/internal/broker"
	"signal-trader/internal/interfaces"
	"signal-trader/internal/logger"
	"signal-trader/internal/trace"
	"signal-trader/internal/types"
)

type observableBroker struct {
	name   string
	broker interfaces.Broker
}

var _ interfaces.Broker = (*observableBroker)(nil)

// Wrap decorates b; name is the provider label on spans and logs.
func Wrap(name string, b interfaces.Broker) interfaces.Broker {
	return &observableBroker{name: name, broker: b}
}

func (ob *observableBroker) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	ctx, span := trace.StartSpan(ctx, "broker."+op)
	span.SetAttributes(append(attrs, attribute.String("broker.provider", ob.name))...)
	return ctx, span
}

func kind(err error) string {
	if broker.IsTransient(err) {
		return "transient"
	}
	return "terminal"
}

func (ob *observableBroker) Login(ctx context.Context) (types.Session, error) {
	ctx, span := ob.start(ctx, "Login")
	defer span.End()

	s, err := ob.broker.Login(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Broker login failed", err, "provider", ob.name, "kind", kind(err))
		return types.Session{}, err
	}
	logger.InfoSkip(ctx, 1, "Broker login succeeded", "provider", ob.name, "expires_at", s.ExpiresAt.Format(time.RFC3339))
	return s, nil
}

func (ob *observableBroker) Candles(ctx context.Context, q types.CandleQuery) ([]types.Candle, error) {
	ctx, span := ob.start(ctx, "Candles",
		attribute.String("symbol", q.Symbol),
		attribute.String("interval", q.Interval),
	)
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching candles", "symbol", q.Symbol, "interval", q.Interval, "from", q.From, "to", q.To)

	candles, err := ob.broker.Candles(ctx, q)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch candles", err, "symbol", q.Symbol, "kind", kind(err))
		return nil, err
	}
	span.SetAttributes(attribute.Int("candles", len(candles)))
	logger.DebugSkip(ctx, 1, "Candles fetched", "symbol", q.Symbol, "count", len(candles))
	return candles, nil
}

func (ob *observableBroker) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	ctx, span := ob.start(ctx, "PlaceOrder",
		attribute.String("symbol", req.Symbol),
		attribute.String("side", string(req.Side)),
		attribute.Int("qty", req.Qty),
	)
	defer span.End()

	logger.InfoSkip(ctx, 1, "Placing order", "symbol", req.Symbol, "side", req.Side, "qty", req.Qty, "tag", req.Tag)

	resp, err := ob.broker.PlaceOrder(ctx, req)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to place order", err,
			"symbol", req.Symbol,
			"side", req.Side,
			"qty", req.Qty,
			"kind", kind(err),
		)
		return types.OrderResp{}, err
	}

	span.SetAttributes(attribute.String("order_id", resp.OrderID))
	logger.InfoSkip(ctx, 1, "Order placed", "symbol", req.Symbol, "order_id", resp.OrderID, "status", resp.Status)
	return resp, nil
}
