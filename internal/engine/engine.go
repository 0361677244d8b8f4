// Package engine runs one evaluation of one symbol: candles to signals to a
// decision, through the executor, and back into the risk budget.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"signal-trader/internal/executor"
	"signal-trader/internal/interfaces"
	"signal-trader/internal/logger"
	"signal-trader/internal/metrics"
	"signal-trader/internal/oi"
	"signal-trader/internal/risk"
	"signal-trader/internal/signal"
	"signal-trader/internal/store"
	"signal-trader/internal/strategy"
	"signal-trader/internal/tradelog"
	"signal-trader/internal/types"
)

// ErrDataUnavailable means the step could not get enough candles to evaluate.
var ErrDataUnavailable = errors.New("market data unavailable")

// oiTTL bounds how often the option chain is fetched; every symbol in a
// cycle shares one underlying.
const oiTTL = time.Minute

// RiskBudget is the part of the risk gate the engine feeds realized P&L into.
type RiskBudget interface {
	RecordOutcome(ctx context.Context, pnl decimal.Decimal) types.RiskState
	Snapshot(ctx context.Context) types.RiskState
}

// Mood supplies the current market sentiment. It must not fail.
type Mood interface {
	Current(ctx context.Context) types.Sentiment
}

type DecisionJournal interface {
	AppendDecision(e tradelog.DecisionEntry) error
}

type Params struct {
	Config    *store.Config
	Broker    interfaces.Broker
	Executor  interfaces.Executor
	Budget    RiskBudget
	OI        interfaces.OIFetcher // nil disables OI signals
	Sentiment Mood                 // nil means neutral
	Journal   DecisionJournal
	Alerter   interfaces.Alerter
	Metrics   *metrics.Metrics
}

type Engine struct {
	cfg       *store.Config
	broker    interfaces.Broker
	exec      interfaces.Executor
	budget    RiskBudget
	oi        interfaces.OIFetcher
	sentiment Mood
	journal   DecisionJournal
	alerter   interfaces.Alerter
	metrics   *metrics.Metrics
	source    *signal.Source
	positions *positionManager
	now       func() time.Time

	oiMu   sync.Mutex
	oiAt   time.Time
	oiLast *types.OIAnalysis
}

var _ interfaces.Engine = (*Engine)(nil)

func New(p Params) *Engine {
	return &Engine{
		cfg:       p.Config,
		broker:    p.Broker,
		exec:      p.Executor,
		budget:    p.Budget,
		oi:        p.OI,
		sentiment: p.Sentiment,
		journal:   p.Journal,
		alerter:   p.Alerter,
		metrics:   p.Metrics,
		source:    signal.NewSource(p.Config.Strategy),
		positions: newPositionManager(),
		now:       time.Now,
	}
}

// window is how far back to ask for n bars. Intraday bars only exist for
// about a quarter of the day and not at all on weekends.
func window(bar time.Duration, n int) time.Duration {
	span := bar * time.Duration(n)
	if bar < 24*time.Hour {
		return span*4 + 4*24*time.Hour
	}
	return span*3/2 + 5*24*time.Hour
}

func (e *Engine) candles(ctx context.Context, symbol string, now time.Time) ([]types.Candle, error) {
	q := types.CandleQuery{
		Exchange: e.cfg.Exchange,
		Symbol:   symbol,
		Interval: e.cfg.Interval,
		From:     now.Add(-window(e.cfg.BarDuration(), e.cfg.LookbackBars)),
		To:       now,
	}
	cs, err := e.broker.Candles(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDataUnavailable, symbol, err)
	}
	if len(cs) < e.cfg.MinBars {
		return nil, fmt.Errorf("%w: %s: got %d bars, need %d", ErrDataUnavailable, symbol, len(cs), e.cfg.MinBars)
	}
	if len(cs) > e.cfg.LookbackBars {
		cs = cs[len(cs)-e.cfg.LookbackBars:]
	}
	if last := cs[len(cs)-1].Close; last <= 0 || math.IsNaN(last) {
		return nil, fmt.Errorf("%w: %s: bad last close %v", ErrDataUnavailable, symbol, last)
	}
	return cs, nil
}

// openInterest returns the cached analysis, refetching once it is older
// than oiTTL. A failed fetch leaves the OI signals out of this step.
func (e *Engine) openInterest(ctx context.Context, now time.Time) (*types.OIAnalysis, bool) {
	if e.oi == nil {
		return nil, false
	}
	e.oiMu.Lock()
	defer e.oiMu.Unlock()

	if e.oiLast != nil && now.Sub(e.oiAt) < oiTTL {
		return e.oiLast, true
	}

	snap, err := e.oi.Snapshot(ctx, e.cfg.OI.Underlying)
	if err != nil {
		logger.Warn(ctx, "Option chain unavailable, OI signals absent", "underlying", e.cfg.OI.Underlying, "error", err)
		return nil, false
	}
	a, err := oi.Analyze(snap)
	if err != nil {
		logger.Warn(ctx, "Option chain unusable, OI signals absent", "underlying", e.cfg.OI.Underlying, "error", err)
		return nil, false
	}
	e.oiLast, e.oiAt = &a, now
	return &a, true
}

func (e *Engine) mood(ctx context.Context) types.Sentiment {
	if e.sentiment == nil {
		return types.NeutralSentiment()
	}
	return e.sentiment.Current(ctx)
}

func indicatorValues(signals map[string]types.IndicatorSignal) map[string]float64 {
	out := make(map[string]float64, len(signals))
	for k, s := range signals {
		// JSON has no NaN
		if !math.IsNaN(s.Value) && !math.IsInf(s.Value, 0) {
			out[k] = s.Value
		}
	}
	return out
}

// Step evaluates symbol once. A risk rejection is a normal result. When an
// order fails, or fills but cannot be journaled, the result and the error
// are both returned.
func (e *Engine) Step(ctx context.Context, symbol string) (*types.StepResult, error) {
	now := e.now()

	cs, err := e.candles(ctx, symbol, now)
	if err != nil {
		return nil, err
	}
	latest := cs[len(cs)-1]
	price := latest.Close

	signals := e.source.Technical(cs)
	if a, ok := e.openInterest(ctx, now); ok {
		signal.Merge(signals, e.source.FromOI(*a))
	}
	sent := e.mood(ctx)
	signals[types.SignalSentiment] = e.source.FromSentiment(sent, now)

	v := strategy.Evaluate(signals, sent, e.cfg.Strategy)
	reason := v.Reason()
	e.metrics.Decision(symbol, string(v.Action))
	logger.Decision(ctx, symbol, string(v.Action), reason, "price", price, "sentiment", sent.Label)

	d := types.Decision{
		ID:             uuid.NewString(),
		Symbol:         symbol,
		Action:         v.Action,
		Qty:            e.cfg.Qty.For(symbol),
		ReferencePrice: price,
		Signals:        signals,
		Reason:         reason,
		Time:           now,
	}
	if e.journal != nil {
		if err := e.journal.AppendDecision(tradelog.DecisionEntry{
			DecisionID: d.ID,
			Symbol:     symbol,
			Action:     d.Action,
			Reason:     reason,
			Price:      price,
			Indicators: indicatorValues(signals),
			Sentiment:  string(sent.Label),
		}); err != nil {
			logger.Warn(ctx, "Decision journal append failed", "symbol", symbol, "error", err)
		}
	}

	res := &types.StepResult{Symbol: symbol, Decision: d, Price: price, Time: latest.Ts, Reason: reason}
	if d.Action == types.ActionHold {
		res.Outcome = types.OutcomeHold
		res.State = e.budget.Snapshot(ctx)
		return res, nil
	}

	order, err := e.exec.Execute(ctx, d)
	switch {
	case errors.Is(err, risk.ErrRiskRejected):
		res.Outcome = types.OutcomeRiskRejected
		res.Reason = reason + " | " + err.Error()
		res.State = e.budget.Snapshot(ctx)
		return res, nil

	case err != nil && order.ID == "":
		res.Outcome = types.OutcomeFailed
		res.Reason = reason + " | " + err.Error()
		res.State = e.budget.Snapshot(ctx)
		return res, err
	}

	// the broker acknowledged the order; book it even if the journal write failed
	res.Outcome = types.OutcomeFilled
	res.Orders = []types.Order{order}
	res.State = e.book(ctx, order)
	if err != nil && !errors.Is(err, executor.ErrAuditWrite) {
		logger.Warn(ctx, "Unexpected executor error alongside a filled order", "symbol", symbol, "error", err)
	}
	return res, err
}

// book updates the ledger and, when the fill realized P&L, the risk budget.
// This is the only place the engine reports P&L.
func (e *Engine) book(ctx context.Context, o types.Order) types.RiskState {
	f := e.positions.apply(o.Symbol, o.Action, o.Qty, decimal.NewFromFloat(o.Price), o.SubmittedAt)
	logger.Info(ctx, "Position updated",
		"symbol", o.Symbol,
		"side", o.Action,
		"qty", o.Qty,
		"price", o.Price,
		"net_qty", f.position.qty,
		"avg_price", f.position.avg.StringFixed(2),
		"realized_pnl", f.realized.StringFixed(2),
	)
	if f.closedQty == 0 {
		return e.budget.Snapshot(ctx)
	}

	state := e.budget.RecordOutcome(ctx, f.realized)
	pnl, _ := state.DailyPnL.Float64()
	e.metrics.SetDailyPnL(pnl)

	// alert only on the fill that crosses the limit
	before := state.DailyPnL.Sub(f.realized)
	if state.Blocked() && before.GreaterThan(state.DailyLossLimit) {
		e.alert(ctx, types.Alert{
			Kind:    types.AlertLossLimit,
			Symbol:  o.Symbol,
			Message: fmt.Sprintf("daily P&L %s reached loss limit %s; trading halted until the next IST day", state.DailyPnL.StringFixed(2), state.DailyLossLimit.StringFixed(2)),
			Time:    e.now(),
		})
	}
	return state
}

func (e *Engine) alert(ctx context.Context, a types.Alert) {
	if e.alerter == nil {
		return
	}
	if err := e.alerter.Alert(ctx, a); err != nil {
		logger.ErrorWithErr(ctx, "Failed to send alert", err, "kind", a.Kind)
	}
}
