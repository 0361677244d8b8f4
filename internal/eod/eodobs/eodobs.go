// Package eodobs traces and logs end-of-day summaries.
package eodobs

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"signal-trader/internal/interfaces"
	"signal-trader/internal/logger"
	"signal-trader/internal/trace"
)

type observableSummarizer struct {
	inner interfaces.EodSummarizer
}

var _ interfaces.EodSummarizer = (*observableSummarizer)(nil)

func Wrap(s interfaces.EodSummarizer) interfaces.EodSummarizer {
	return &observableSummarizer{inner: s}
}

func (o *observableSummarizer) SummarizeDay(t time.Time) (string, error) {
	day := t.Format("2006-01-02")
	ctx, span := trace.StartSpan(context.Background(), "eod.SummarizeDay")
	defer span.End()
	span.SetAttributes(attribute.String("date", day))

	p, err := o.inner.SummarizeDay(t)
	o.report(ctx, day, p, err)
	return p, err
}

func (o *observableSummarizer) SummarizeToday() (string, error) {
	ctx, span := trace.StartSpan(context.Background(), "eod.SummarizeToday")
	defer span.End()

	p, err := o.inner.SummarizeToday()
	o.report(ctx, "today", p, err)
	return p, err
}

func (o *observableSummarizer) report(ctx context.Context, day, p string, err error) {
	switch {
	case err != nil:
		logger.ErrorWithErrSkip(ctx, 2, "EOD summary failed", err, "date", day)
	case p == "":
		logger.InfoSkip(ctx, 2, "No filled orders for EOD summary", "date", day)
	default:
		logger.InfoSkip(ctx, 2, "EOD summary written", "date", day, "csv_path", p)
	}
}

// ShouldRunNow is polled every minute, so it only logs at debug.
func (o *observableSummarizer) ShouldRunNow() (bool, string) {
	ok, p := o.inner.ShouldRunNow()
	logger.Debug(context.Background(), "EOD check", "should_run", ok, "csv_path", p)
	return ok, p
}
