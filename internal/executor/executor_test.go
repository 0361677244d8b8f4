package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-trader/internal/broker"
	"signal-trader/internal/risk"
	"signal-trader/internal/store"
	"signal-trader/internal/tradelog"
	"signal-trader/internal/types"
)

type fakeBroker struct {
	mu    sync.Mutex
	calls int
	place func(ctx context.Context, call int, req types.OrderReq) (types.OrderResp, error)
	reqs  []types.OrderReq
}

func (f *fakeBroker) Login(ctx context.Context) (types.Session, error) { return types.Session{}, nil }

func (f *fakeBroker) Candles(ctx context.Context, q types.CandleQuery) ([]types.Candle, error) {
	return nil, nil
}

func (f *fakeBroker) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	return f.place(ctx, call, req)
}

type fakeJournal struct {
	entries []types.OrderLogEntry
	err     error
}

func (f *fakeJournal) Append(e types.OrderLogEntry) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, e)
	return nil
}

type fakeAlerter struct{ alerts []types.Alert }

func (f *fakeAlerter) Alert(ctx context.Context, a types.Alert) error {
	f.alerts = append(f.alerts, a)
	return nil
}

type openGate struct{}

func (openGate) Check(ctx context.Context, d types.Decision) error { return nil }

func execConfig() store.ExecutorConfig {
	return store.ExecutorConfig{MaxAttempts: 3, BackoffMs: 1, MaxBackoffMs: 4, AttemptTimeoutMs: 50}
}

func buy() types.Decision {
	return types.Decision{
		ID:             "0f8fad5b-d9cb-469f-a165-70867728950e",
		Symbol:         "RELIANCE",
		Action:         types.ActionBuy,
		Qty:            2,
		ReferencePrice: 2500,
		Signals:        map[string]types.IndicatorSignal{types.SignalRSI: {Name: types.SignalRSI, Value: 25}},
	}
}

func newExecutor(b *fakeBroker, g Gate, j *fakeJournal, a *fakeAlerter) *Executor {
	return New(Params{Broker: b, Gate: g, Journal: j, Alerter: a, Config: execConfig(), Exchange: "NSE", Product: "MIS"})
}

func TestTimeoutsThenSuccess(t *testing.T) {
	b := &fakeBroker{place: func(ctx context.Context, call int, req types.OrderReq) (types.OrderResp, error) {
		if call < 3 {
			<-ctx.Done()
			return types.OrderResp{}, ctx.Err()
		}
		return types.OrderResp{OrderID: "240304000123", Status: "COMPLETE"}, nil
	}}
	dir := t.TempDir()
	j := tradelog.New(dir)
	a := &fakeAlerter{}
	e := New(Params{Broker: b, Gate: openGate{}, Journal: j, Alerter: a, Config: execConfig(), Exchange: "NSE", Product: "MIS"})

	order, err := e.Execute(context.Background(), buy())
	require.NoError(t, err)

	assert.Equal(t, types.OrderFilled, order.Status)
	assert.Equal(t, "240304000123", order.ID)
	assert.Equal(t, 3, order.Attempts)
	assert.Equal(t, 2, order.Retries)
	assert.Empty(t, a.alerts)

	entries, err := j.ReadOrders(order.SubmittedAt)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "240304000123", entries[0].OrderID)
	assert.Equal(t, types.OrderFilled, entries[0].Status)
	assert.Equal(t, 3, entries[0].Attempts)
}

func TestTransientExhaustion(t *testing.T) {
	cause := errors.New("502 bad gateway")
	b := &fakeBroker{place: func(ctx context.Context, call int, req types.OrderReq) (types.OrderResp, error) {
		return types.OrderResp{}, broker.Transient("place_order", cause)
	}}
	j, a := &fakeJournal{}, &fakeAlerter{}

	_, err := newExecutor(b, openGate{}, j, a).Execute(context.Background(), buy())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOrderExecutionFailed)
	assert.ErrorIs(t, err, cause)
	var ee *ExecutionError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, 3, ee.Attempts)
	assert.False(t, ee.Terminal)
	assert.Equal(t, "RELIANCE", ee.Decision.Symbol)

	assert.Equal(t, 3, b.calls)
	assert.Empty(t, j.entries)
	require.Len(t, a.alerts, 1)
	assert.Equal(t, types.AlertOrderFailed, a.alerts[0].Kind)
}

func TestTerminalErrorIsNotRetried(t *testing.T) {
	b := &fakeBroker{place: func(ctx context.Context, call int, req types.OrderReq) (types.OrderResp, error) {
		return types.OrderResp{}, broker.Terminal("place_order", errors.New("insufficient margin"))
	}}
	j, a := &fakeJournal{}, &fakeAlerter{}

	_, err := newExecutor(b, openGate{}, j, a).Execute(context.Background(), buy())

	var ee *ExecutionError
	require.True(t, errors.As(err, &ee))
	assert.True(t, ee.Terminal)
	assert.Equal(t, 1, ee.Attempts)
	assert.ErrorIs(t, err, broker.ErrTerminal)
	assert.Equal(t, 1, b.calls)
	assert.Empty(t, j.entries)
	assert.Len(t, a.alerts, 1)
}

func TestUnclassifiedErrorIsTerminal(t *testing.T) {
	b := &fakeBroker{place: func(ctx context.Context, call int, req types.OrderReq) (types.OrderResp, error) {
		return types.OrderResp{}, errors.New("invalid tradingsymbol")
	}}
	_, err := newExecutor(b, openGate{}, &fakeJournal{}, &fakeAlerter{}).Execute(context.Background(), buy())
	assert.ErrorIs(t, err, ErrOrderExecutionFailed)
	assert.Equal(t, 1, b.calls)
}

func TestMissingOrderIDIsTerminal(t *testing.T) {
	b := &fakeBroker{place: func(ctx context.Context, call int, req types.OrderReq) (types.OrderResp, error) {
		return types.OrderResp{Status: "OK"}, nil
	}}
	j := &fakeJournal{}
	_, err := newExecutor(b, openGate{}, j, &fakeAlerter{}).Execute(context.Background(), buy())
	assert.ErrorIs(t, err, ErrOrderExecutionFailed)
	assert.Empty(t, j.entries)
}

func TestRiskRejectedSkipsBroker(t *testing.T) {
	b := &fakeBroker{place: func(ctx context.Context, call int, req types.OrderReq) (types.OrderResp, error) {
		t.Fatal("broker must not be called")
		return types.OrderResp{}, nil
	}}
	cfg := store.Config{Symbols: []string{"X"}}
	cfg.ApplyDefaults()
	gate := risk.NewGate(cfg.Risk)
	gate.RecordOutcome(context.Background(), decimal.NewFromInt(-500))
	j, a := &fakeJournal{}, &fakeAlerter{}

	order, err := newExecutor(b, gate, j, a).Execute(context.Background(), buy())

	assert.ErrorIs(t, err, risk.ErrRiskRejected)
	assert.NotErrorIs(t, err, ErrOrderExecutionFailed)
	assert.Equal(t, types.OrderRejected, order.Status)
	assert.Zero(t, b.calls)
	assert.Empty(t, j.entries)
	assert.Empty(t, a.alerts)
}

func TestHoldIsNothingToExecute(t *testing.T) {
	d := buy()
	d.Action = types.ActionHold
	_, err := newExecutor(&fakeBroker{}, openGate{}, &fakeJournal{}, nil).Execute(context.Background(), d)
	assert.ErrorIs(t, err, ErrNothingToExecute)
}

func TestAuditFailureSurfacesWithOrder(t *testing.T) {
	b := &fakeBroker{place: func(ctx context.Context, call int, req types.OrderReq) (types.OrderResp, error) {
		return types.OrderResp{OrderID: "X1"}, nil
	}}
	a := &fakeAlerter{}
	order, err := newExecutor(b, openGate{}, &fakeJournal{err: errors.New("disk full")}, a).Execute(context.Background(), buy())

	assert.ErrorIs(t, err, ErrAuditWrite)
	assert.Equal(t, "X1", order.ID)
	require.Len(t, a.alerts, 1)
	assert.Equal(t, types.AlertAuditFailed, a.alerts[0].Kind)
}

func TestAlertsCarryClockTime(t *testing.T) {
	fixed := time.Date(2024, 3, 4, 5, 30, 0, 0, time.UTC)

	failing := &fakeBroker{place: func(ctx context.Context, call int, req types.OrderReq) (types.OrderResp, error) {
		return types.OrderResp{}, broker.Terminal("place_order", errors.New("insufficient margin"))
	}}
	a := &fakeAlerter{}
	e := newExecutor(failing, openGate{}, &fakeJournal{}, a)
	e.now = func() time.Time { return fixed }
	_, err := e.Execute(context.Background(), buy())
	require.Error(t, err)

	acked := &fakeBroker{place: func(ctx context.Context, call int, req types.OrderReq) (types.OrderResp, error) {
		return types.OrderResp{OrderID: "X2"}, nil
	}}
	e = newExecutor(acked, openGate{}, &fakeJournal{err: errors.New("disk full")}, a)
	e.now = func() time.Time { return fixed }
	_, err = e.Execute(context.Background(), buy())
	require.ErrorIs(t, err, ErrAuditWrite)

	require.Len(t, a.alerts, 2)
	assert.Equal(t, types.AlertOrderFailed, a.alerts[0].Kind)
	assert.Equal(t, types.AlertAuditFailed, a.alerts[1].Kind)
	for _, al := range a.alerts {
		assert.True(t, fixed.Equal(al.Time))
	}
}

func TestOrderRequestShape(t *testing.T) {
	b := &fakeBroker{place: func(ctx context.Context, call int, req types.OrderReq) (types.OrderResp, error) {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return types.OrderResp{OrderID: "X2"}, nil
	}}
	_, err := newExecutor(b, openGate{}, &fakeJournal{}, nil).Execute(context.Background(), buy())
	require.NoError(t, err)

	require.Len(t, b.reqs, 1)
	assert.Equal(t, types.OrderReq{Exchange: "NSE", Symbol: "RELIANCE", Side: types.ActionBuy, Qty: 2, Product: "MIS", Tag: "ST-0f8fad5b"}, b.reqs[0])
}

func TestCallerCancellationStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := &fakeBroker{place: func(c context.Context, call int, req types.OrderReq) (types.OrderResp, error) {
		cancel()
		return types.OrderResp{}, broker.Transient("place_order", errors.New("reset"))
	}}
	e := newExecutor(b, openGate{}, &fakeJournal{}, &fakeAlerter{})
	e.cfg.BackoffMs = 1000

	start := time.Now()
	_, err := e.Execute(ctx, buy())
	assert.ErrorIs(t, err, ErrOrderExecutionFailed)
	assert.Equal(t, 1, b.calls)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestExponentialPolicyBoundsAttempts(t *testing.T) {
	b := &fakeBroker{place: func(ctx context.Context, call int, req types.OrderReq) (types.OrderResp, error) {
		return types.OrderResp{}, broker.Transient("place_order", errors.New("timeout"))
	}}
	e := newExecutor(b, openGate{}, &fakeJournal{}, &fakeAlerter{})
	e.cfg.Exponential = true
	e.cfg.MaxAttempts = 4

	_, err := e.Execute(context.Background(), buy())
	assert.ErrorIs(t, err, ErrOrderExecutionFailed)
	assert.Equal(t, 4, b.calls)
}
