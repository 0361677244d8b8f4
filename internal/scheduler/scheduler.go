// Package scheduler drives evaluation cycles on a fixed interval. At most one
// cycle runs at a time; ticks that land on a running cycle are dropped.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"signal-trader/internal/engine"
	"signal-trader/internal/interfaces"
	"signal-trader/internal/logger"
	"signal-trader/internal/metrics"
	"signal-trader/internal/trace"
	"signal-trader/internal/types"
)

// ErrCycleInProgress is returned by Trigger while another cycle runs.
var ErrCycleInProgress = errors.New("cycle already in progress")

type Params struct {
	Engine     interfaces.Engine
	Symbols    []string
	Interval   time.Duration
	RunOnStart bool
	Alerter    interfaces.Alerter
	Metrics    *metrics.Metrics
}

type Scheduler struct {
	p       Params
	running sync.Mutex
	tick    func(time.Duration) (<-chan time.Time, func())
}

func New(p Params) *Scheduler {
	return &Scheduler{p: p, tick: newTicker}
}

func newTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Run blocks until ctx is cancelled. A cycle in flight at cancellation is
// allowed to finish before Run returns; no new one starts.
func (s *Scheduler) Run(ctx context.Context) error {
	logger.Info(ctx, "Scheduler started", "interval", s.p.Interval, "symbols", s.p.Symbols, "run_on_start", s.p.RunOnStart)

	if s.p.RunOnStart {
		if err := s.Trigger(ctx); err != nil && !errors.Is(err, ErrCycleInProgress) {
			return err
		}
	}

	c, stop := s.tick(s.p.Interval)
	defer stop()
	var inflight sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			inflight.Wait()
			logger.Info(ctx, "Scheduler stopped")
			return ctx.Err()
		case <-c:
			if ctx.Err() != nil {
				continue
			}
			inflight.Add(1)
			go func() {
				defer inflight.Done()
				if err := s.Trigger(ctx); errors.Is(err, ErrCycleInProgress) {
					s.p.Metrics.CycleSkipped()
					logger.Warn(ctx, "Previous cycle still running, tick skipped")
				}
			}()
		}
	}
}

// Trigger runs one cycle now unless one is already running. It returns
// ctx.Err() if ctx is already done.
func (s *Scheduler) Trigger(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.running.TryLock() {
		return ErrCycleInProgress
	}
	defer s.running.Unlock()

	s.cycle(context.WithoutCancel(ctx))
	return nil
}

func (s *Scheduler) cycle(ctx context.Context) {
	ctx, span := trace.StartSpan(ctx, "scheduler.Cycle")
	defer span.End()
	span.SetAttributes(attribute.Int("symbols", len(s.p.Symbols)))

	start := time.Now()
	defer func() { s.p.Metrics.CycleDone(time.Since(start)) }()

	var failed int
	for _, sym := range s.p.Symbols {
		if err := s.step(ctx, sym); err != nil {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("failed", failed))

	if failed > 0 && failed == len(s.p.Symbols) {
		s.alert(ctx, types.Alert{
			Kind:    types.AlertCycleFailed,
			Message: fmt.Sprintf("all %d symbols failed this cycle", failed),
			Time:    time.Now(),
		})
	}
	logger.Info(ctx, "Cycle finished", "symbols", len(s.p.Symbols), "failed", failed, "duration", time.Since(start))
}

// step isolates one symbol: an error or panic is logged and the cycle moves on.
func (s *Scheduler) step(ctx context.Context, symbol string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			logger.Error(ctx, "Step panicked", "symbol", symbol, "panic", r, "stack", string(debug.Stack()))
			s.alert(ctx, types.Alert{Kind: types.AlertCycleFailed, Symbol: symbol, Message: "step panicked", Err: err, Time: time.Now()})
		}
	}()

	res, err := s.p.Engine.Step(ctx, symbol)
	switch {
	case errors.Is(err, engine.ErrDataUnavailable):
		logger.Warn(ctx, "Skipping symbol, no usable data", "symbol", symbol, "error", err)
	case err != nil:
		outcome := ""
		if res != nil {
			outcome = res.Outcome
		}
		logger.ErrorWithErr(ctx, "Step failed", err, "symbol", symbol, "outcome", outcome)
	}
	return err
}

func (s *Scheduler) alert(ctx context.Context, a types.Alert) {
	if s.p.Alerter == nil {
		logger.Alert(ctx, string(a.Kind), a.Message, "symbol", a.Symbol)
		return
	}
	if err := s.p.Alerter.Alert(ctx, a); err != nil {
		logger.Warn(ctx, "Alert delivery failed", "kind", a.Kind, "error", err)
	}
}
