// Package risk owns the process-wide daily loss budget.
package risk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"signal-trader/internal/logger"
	"signal-trader/internal/store"
	"signal-trader/internal/types"
)

// IST is the exchange's calendar; the daily budget resets at IST midnight.
var IST = time.FixedZone("IST", 19800)

// ErrRiskRejected is the policy block sentinel. It is an expected outcome, not a fault.
var ErrRiskRejected = errors.New("risk rejected")

// Rejection reasons.
const (
	ReasonLossLimit    = "DAILY_LOSS_LIMIT"
	ReasonSanityBound  = "SANITY_BOUND"
	ReasonInvalidOrder = "INVALID_ORDER"
	ReasonExposureCap  = "EXPOSURE_CAP"
)

// RejectedError carries why a decision was blocked.
type RejectedError struct {
	Reason   string
	Detail   string
	Decision types.Decision
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("risk rejected %s %s: %s (%s)", e.Decision.Action, e.Decision.Symbol, e.Reason, e.Detail)
}

func (e *RejectedError) Unwrap() error { return ErrRiskRejected }

// Gate serializes every read and write of the daily P&L.
type Gate struct {
	mu       sync.Mutex
	state    types.RiskState
	bounds   map[string]store.Bound
	capital  decimal.Decimal
	tradePct decimal.Decimal
	now      func() time.Time
}

type Option func(*Gate)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithState seeds the budget, e.g. after a restart.
func WithState(s types.RiskState) Option {
	return func(g *Gate) { g.state = s }
}

func NewGate(cfg store.RiskConfig, opts ...Option) *Gate {
	g := &Gate{
		bounds:   cfg.Bounds,
		capital:  decimal.NewFromFloat(cfg.Capital),
		tradePct: decimal.NewFromFloat(cfg.PerTradeRiskPct),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.state.DailyLossLimit = decimal.NewFromFloat(cfg.DailyLossLimit)
	if g.state.ResetDate.IsZero() {
		g.state.ResetDate = Day(g.now())
	}
	return g
}

// Day returns IST midnight of t.
func Day(t time.Time) time.Time {
	t = t.In(IST)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, IST)
}

// rollover must be called with mu held. ResetDate never moves backwards.
func (g *Gate) rollover(ctx context.Context) {
	today := Day(g.now())
	if !today.After(g.state.ResetDate) {
		return
	}
	if !g.state.DailyPnL.IsZero() {
		logger.Info(ctx, "Daily P&L reset",
			"previous_pnl", g.state.DailyPnL.String(),
			"previous_date", g.state.ResetDate.Format("2006-01-02"),
			"date", today.Format("2006-01-02"),
		)
	}
	g.state.DailyPnL = decimal.Zero
	g.state.ResetDate = today
}

// Check returns nil when d may be sent to the broker, or a *RejectedError.
func (g *Gate) Check(ctx context.Context, d types.Decision) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollover(ctx)

	reject := func(reason, detail string) error {
		logger.Risk(ctx, d.Symbol, reason,
			"detail", detail,
			"decision_id", d.ID,
			"daily_pnl", g.state.DailyPnL.String(),
			"daily_loss_limit", g.state.DailyLossLimit.String(),
		)
		return &RejectedError{Reason: reason, Detail: detail, Decision: d}
	}

	if g.state.Blocked() {
		return reject(ReasonLossLimit, fmt.Sprintf("daily pnl %s at or below limit %s",
			g.state.DailyPnL.String(), g.state.DailyLossLimit.String()))
	}

	for name, b := range g.bounds {
		s, ok := d.Signals[name]
		if !ok {
			continue
		}
		if math.IsNaN(s.Value) || !b.Contains(s.Value) {
			return reject(ReasonSanityBound, fmt.Sprintf("%s=%.4f outside (%.2f, %.2f)", name, s.Value, b.Min, b.Max))
		}
	}

	if d.Qty <= 0 || d.ReferencePrice <= 0 || math.IsNaN(d.ReferencePrice) {
		return reject(ReasonInvalidOrder, fmt.Sprintf("qty=%d price=%.4f", d.Qty, d.ReferencePrice))
	}

	if g.capital.IsPositive() && g.tradePct.IsPositive() {
		maxExposure := g.capital.Mul(g.tradePct).Div(decimal.NewFromInt(100))
		if exposure := d.Notional(); exposure.GreaterThan(maxExposure) {
			return reject(ReasonExposureCap, fmt.Sprintf("exposure %s exceeds %s", exposure.StringFixed(2), maxExposure.StringFixed(2)))
		}
	}
	return nil
}

// IsTradeAllowed reports whether Check passes.
func (g *Gate) IsTradeAllowed(ctx context.Context, d types.Decision) bool {
	return g.Check(ctx, d) == nil
}

// RecordOutcome adds realized P&L from one closed trade. It is the only mutator
// of the daily P&L and returns the resulting state.
func (g *Gate) RecordOutcome(ctx context.Context, pnl decimal.Decimal) types.RiskState {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollover(ctx)
	g.state.DailyPnL = g.state.DailyPnL.Add(pnl)

	logger.Info(ctx, "Realized P&L recorded",
		"pnl", pnl.String(),
		"daily_pnl", g.state.DailyPnL.String(),
		"blocked", g.state.Blocked(),
	)
	return g.state
}

// Snapshot returns the current state after applying any pending rollover.
func (g *Gate) Snapshot(ctx context.Context) types.RiskState {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollover(ctx)
	return g.state
}
