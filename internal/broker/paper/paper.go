// Package paper is an in-process broker for DRY_RUN mode. Candles are a
// deterministic function of symbol and bar time, so repeated fetches agree.
package paper

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"signal-trader/internal/broker"
	"signal-trader/internal/interfaces"
	"signal-trader/internal/logger"
	"signal-trader/internal/store"
	"signal-trader/internal/types"
)

type Paper struct {
	mu     sync.Mutex
	orders []types.OrderReq
	now    func() time.Time
}

var _ interfaces.Broker = (*Paper)(nil)

func New() *Paper {
	return &Paper{now: time.Now}
}

func (p *Paper) Login(ctx context.Context) (types.Session, error) {
	return types.Session{AccessToken: "paper", ExpiresAt: p.now().Add(24 * time.Hour)}, nil
}

func (p *Paper) Candles(ctx context.Context, q types.CandleQuery) ([]types.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, broker.Transient("candles", err)
	}
	step, err := store.ParseInterval(q.Interval)
	if err != nil {
		return nil, broker.Terminal("candles", err)
	}
	to := q.To
	if to.IsZero() {
		to = p.now()
	}
	start := q.From.Truncate(step)
	if start.Before(q.From) {
		start = start.Add(step)
	}

	var out []types.Candle
	for t := start; !t.After(to); t = t.Add(step) {
		out = append(out, bar(q.Symbol, t, step))
	}
	return out, nil
}

func seed(symbol string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	return h.Sum64()
}

// noise is a repeatable value in [-1, 1) for (symbol, ts).
func noise(s uint64, ts int64) float64 {
	x := s ^ uint64(ts)*0x9E3779B97F4A7C15
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	return float64(x%2000)/1000 - 1
}

func mid(s uint64, ts int64) float64 {
	base := 100 + float64(s%2900)
	phase := float64(s % 360)
	// a slow daily swing plus a faster intraday one
	slow := math.Sin(float64(ts)/86400*2*math.Pi/7 + phase)
	fast := math.Sin(float64(ts)/3600*2*math.Pi/3 + phase/2)
	return base * (1 + 0.03*slow + 0.01*fast + 0.002*noise(s, ts))
}

func bar(symbol string, t time.Time, step time.Duration) types.Candle {
	s := seed(symbol)
	ts := t.Unix()
	open := mid(s, ts)
	closeP := mid(s, ts+int64(step/time.Second))
	spread := math.Abs(noise(s, ts+1)) * open * 0.002
	return types.Candle{
		Ts:    ts,
		Open:  round2(open),
		High:  round2(math.Max(open, closeP) + spread),
		Low:   round2(math.Min(open, closeP) - spread),
		Close: round2(closeP),
		Vol:   float64(1000 + int64(math.Abs(noise(s, ts+2))*9000)),
	}
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }

// PlaceOrder fills immediately.
func (p *Paper) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	if err := ctx.Err(); err != nil {
		return types.OrderResp{}, broker.Transient("place_order", err)
	}
	if req.Qty <= 0 {
		return types.OrderResp{}, broker.Terminal("place_order", fmt.Errorf("invalid quantity %d", req.Qty))
	}
	p.mu.Lock()
	p.orders = append(p.orders, req)
	p.mu.Unlock()

	id := "SIM-" + uuid.NewString()
	logger.Info(ctx, "Paper order filled", "order_id", id, "symbol", req.Symbol, "side", req.Side, "qty", req.Qty)
	return types.OrderResp{OrderID: id, Status: "COMPLETE"}, nil
}

// Orders returns the requests filled so far.
func (p *Paper) Orders() []types.OrderReq {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.OrderReq(nil), p.orders...)
}
