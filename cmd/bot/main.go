package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"signal-trader/internal/interfaces"
	"signal-trader/internal/logger"
	"signal-trader/internal/metrics"
	"signal-trader/internal/trace"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	if err := initializeSystem(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = trace.Shutdown(shutdownCtx)
	}()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	a, err := build(ctx, cfg)
	if err != nil {
		return err
	}

	// a failed login is retried lazily by the session keeper on the first call
	if _, err := a.broker.Login(ctx); err != nil {
		logger.ErrorWithErr(ctx, "Broker login failed", err)
	}

	logger.Info(ctx, "Bot started", "mode", cfg.Mode, "provider", cfg.Broker.Provider)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.scheduler.Run(gctx) })
	if cfg.Metrics.Addr != "" {
		g.Go(func() error { return serveMetrics(gctx, a) })
	}
	g.Go(func() error { return watchEOD(gctx, a.eod) })

	err = g.Wait()
	logger.Info(context.Background(), "Shutting down")
	if _, eerr := a.eod.SummarizeToday(); eerr != nil {
		logger.ErrorWithErr(context.Background(), "Final EOD summary failed", eerr)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func serveMetrics(ctx context.Context, a *app) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(a.registry))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger.Info(ctx, "Metrics server listening", "addr", a.cfg.Metrics.Addr)

	select {
	case err := <-errc:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	}
}

// watchEOD writes the summary once per day after market close.
func watchEOD(ctx context.Context, s interfaces.EodSummarizer) error {
	tick := time.NewTicker(time.Minute)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			if ok, _ := s.ShouldRunNow(); ok {
				_, _ = s.SummarizeToday()
			}
		}
	}
}
