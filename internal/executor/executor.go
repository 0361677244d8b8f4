// Package executor places orders for decisions that pass the risk gate.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"

	"signal-trader/internal/broker"
	"signal-trader/internal/interfaces"
	"signal-trader/internal/logger"
	"signal-trader/internal/metrics"
	"signal-trader/internal/risk"
	"signal-trader/internal/store"
	"signal-trader/internal/trace"
	"signal-trader/internal/types"
)

var (
	// ErrOrderExecutionFailed is wrapped by every *ExecutionError.
	ErrOrderExecutionFailed = errors.New("order execution failed")
	// ErrNothingToExecute is returned for HOLD decisions.
	ErrNothingToExecute = errors.New("nothing to execute")
	// ErrAuditWrite means the broker acknowledged the order but the journal append failed.
	ErrAuditWrite = errors.New("audit journal write failed")
)

// ExecutionError ends a decision that never got an acknowledged order.
type ExecutionError struct {
	Decision types.Decision
	Attempts int
	Terminal bool
	Err      error
}

func (e *ExecutionError) Error() string {
	kind := "retries exhausted"
	if e.Terminal {
		kind = "terminal"
	}
	return fmt.Sprintf("order execution failed for %s %s after %d attempt(s) (%s): %v",
		e.Decision.Action, e.Decision.Symbol, e.Attempts, kind, e.Err)
}

func (e *ExecutionError) Unwrap() []error {
	return []error{ErrOrderExecutionFailed, e.Err}
}

// Gate is the risk check the executor consults before every placement.
type Gate interface {
	Check(ctx context.Context, d types.Decision) error
}

type Params struct {
	Broker   interfaces.Broker
	Gate     Gate
	Journal  interfaces.AuditLog
	Alerter  interfaces.Alerter
	Metrics  *metrics.Metrics
	Config   store.ExecutorConfig
	Exchange string
	Product  string
}

type Executor struct {
	broker   interfaces.Broker
	gate     Gate
	journal  interfaces.AuditLog
	alerter  interfaces.Alerter
	metrics  *metrics.Metrics
	cfg      store.ExecutorConfig
	exchange string
	product  string
	now      func() time.Time
}

var _ interfaces.Executor = (*Executor)(nil)

func New(p Params) *Executor {
	if p.Config.MaxAttempts < 1 {
		p.Config.MaxAttempts = 1
	}
	return &Executor{
		broker:   p.Broker,
		gate:     p.Gate,
		journal:  p.Journal,
		alerter:  p.Alerter,
		metrics:  p.Metrics,
		cfg:      p.Config,
		exchange: p.Exchange,
		product:  p.Product,
		now:      time.Now,
	}
}

// policy bounds total attempts to MaxAttempts and stops early when ctx ends.
func (e *Executor) policy(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff
	if e.cfg.Exponential {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = e.cfg.Backoff()
		eb.MaxInterval = e.cfg.MaxBackoff()
		eb.MaxElapsedTime = 0
		b = eb
	} else {
		b = backoff.NewConstantBackOff(e.cfg.Backoff())
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(e.cfg.MaxAttempts-1)), ctx)
}

// tag lets the broker-side order be traced back to its decision.
func tag(decisionID string) string {
	if len(decisionID) > 8 {
		decisionID = decisionID[:8]
	}
	return "ST-" + decisionID
}

// Execute runs PENDING -> (RiskRejected | Submitted -> (Filled | retry | TerminalFailure)).
// On success the journal entry is durable before Execute returns.
func (e *Executor) Execute(ctx context.Context, d types.Decision) (types.Order, error) {
	if d.Action != types.ActionBuy && d.Action != types.ActionSell {
		return types.Order{}, ErrNothingToExecute
	}

	ctx, span := trace.StartSpan(ctx, "executor.Execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("symbol", d.Symbol),
		attribute.String("side", string(d.Action)),
		attribute.Int("qty", d.Qty),
		attribute.String("decision_id", d.ID),
	)

	if err := e.gate.Check(ctx, d); err != nil {
		reason := "unknown"
		var rej *risk.RejectedError
		if errors.As(err, &rej) {
			reason = rej.Reason
		}
		e.metrics.RiskRejected(reason)
		return types.Order{DecisionID: d.ID, Symbol: d.Symbol, Action: d.Action, Qty: d.Qty, Status: types.OrderRejected}, err
	}

	req := types.OrderReq{
		Exchange: e.exchange,
		Symbol:   d.Symbol,
		Side:     d.Action,
		Qty:      d.Qty,
		Product:  e.product,
		Tag:      tag(d.ID),
	}

	attempts := 0
	var lastErr error
	terminal := false

	// Retries re-place with the same tag. Broker has no lookup by tag, so an
	// attempt that timed out after reaching the exchange can be duplicated.
	place := func() (types.OrderResp, error) {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.AttemptTimeout())
		defer cancel()

		resp, err := e.broker.PlaceOrder(attemptCtx, req)
		if err == nil && resp.OrderID == "" {
			err = broker.Terminal("place_order", errors.New("acknowledged without order id"))
		}
		if err == nil {
			e.metrics.OrderAttempt("ok")
			return resp, nil
		}

		lastErr = err
		timedOut := errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
		if ctx.Err() != nil || !(timedOut || broker.IsTransient(err)) {
			terminal = ctx.Err() == nil
			e.metrics.OrderAttempt("terminal")
			return resp, backoff.Permanent(err)
		}
		e.metrics.OrderAttempt("transient")
		return resp, err
	}

	notify := func(err error, wait time.Duration) {
		logger.Warn(ctx, "Order attempt failed, retrying",
			"symbol", d.Symbol,
			"decision_id", d.ID,
			"attempt", attempts,
			"max_attempts", e.cfg.MaxAttempts,
			"wait", wait,
			"error", err,
		)
	}

	resp, err := backoff.RetryNotifyWithData(place, e.policy(ctx), notify)
	if err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return types.Order{}, e.fail(ctx, d, attempts, terminal, lastErr)
	}

	order := types.Order{
		ID:           resp.OrderID,
		DecisionID:   d.ID,
		Symbol:       d.Symbol,
		Action:       d.Action,
		Qty:          d.Qty,
		Price:        d.ReferencePrice,
		Status:       types.OrderFilled,
		BrokerStatus: resp.Status,
		SubmittedAt:  e.now(),
		Attempts:     attempts,
		Retries:      attempts - 1,
	}

	if err := e.journal.Append(types.OrderLogEntry{
		Time:       order.SubmittedAt.In(risk.IST).Format("2006-01-02 15:04:05"),
		OrderID:    order.ID,
		Status:     order.Status,
		DecisionID: d.ID,
		Symbol:     d.Symbol,
		Side:       d.Action,
		Qty:        d.Qty,
		Price:      d.ReferencePrice,
		Attempts:   attempts,
	}); err != nil {
		e.raise(ctx, types.Alert{
			Kind:    types.AlertAuditFailed,
			Symbol:  d.Symbol,
			Message: fmt.Sprintf("order %s acknowledged but not journaled", order.ID),
			Err:     err,
			Time:    e.now(),
		})
		return order, fmt.Errorf("%w: order %s: %v", ErrAuditWrite, order.ID, err)
	}

	logger.Trade(ctx, d.Symbol, string(d.Action), d.Qty, d.ReferencePrice, order.ID,
		"decision_id", d.ID,
		"attempts", attempts,
		"broker_status", resp.Status,
	)
	return order, nil
}

func (e *Executor) fail(ctx context.Context, d types.Decision, attempts int, terminal bool, cause error) error {
	kind := "exhausted"
	if terminal {
		kind = "terminal"
	}
	e.metrics.OrderFailed(kind)

	ee := &ExecutionError{Decision: d, Attempts: attempts, Terminal: terminal, Err: cause}
	e.raise(ctx, types.Alert{
		Kind:    types.AlertOrderFailed,
		Symbol:  d.Symbol,
		Message: fmt.Sprintf("%s x%d decision %s failed after %d attempt(s) (%s)", d.Action, d.Qty, d.ID, attempts, kind),
		Err:     cause,
		Time:    e.now(),
	})
	return ee
}

func (e *Executor) raise(ctx context.Context, a types.Alert) {
	if e.alerter == nil {
		logger.Alert(ctx, string(a.Kind), a.Message, "symbol", a.Symbol, "error", a.Err)
		return
	}
	if err := e.alerter.Alert(ctx, a); err != nil {
		logger.Warn(ctx, "Alert delivery failed", "kind", a.Kind, "error", err)
	}
}
