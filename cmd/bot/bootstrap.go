package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"signal-trader/internal/alert"
	"signal-trader/internal/api"
	"signal-trader/internal/broker/angelone"
	"signal-trader/internal/broker/brokerobs"
	"signal-trader/internal/broker/paper"
	"signal-trader/internal/broker/zerodha"
	"signal-trader/internal/engine"
	"signal-trader/internal/engine/engineobs"
	"signal-trader/internal/eod"
	"signal-trader/internal/eod/eodobs"
	"signal-trader/internal/executor"
	"signal-trader/internal/interfaces"
	"signal-trader/internal/llm/claude"
	"signal-trader/internal/llm/llmobs"
	"signal-trader/internal/llm/noop"
	"signal-trader/internal/llm/openai"
	"signal-trader/internal/logger"
	"signal-trader/internal/metrics"
	"signal-trader/internal/news"
	"signal-trader/internal/oi"
	"signal-trader/internal/risk"
	"signal-trader/internal/scheduler"
	"signal-trader/internal/sentiment"
	"signal-trader/internal/store"
	"signal-trader/internal/trace"
	"signal-trader/internal/tradelog"
)

// initializeSystem loads .env and sets up logging and tracing.
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

func loadConfig(ctx context.Context) (*store.Config, error) {
	path := os.Getenv("CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	logger.Info(ctx, "Config loaded", "path", path, "mode", cfg.Mode, "symbols", cfg.Symbols, "interval", cfg.Interval)
	return cfg, nil
}

// retentionDays prefers TRADER_LOG_RETENTION_DAYS over audit.retention_days.
func retentionDays(cfg *store.Config) int {
	if v := os.Getenv("TRADER_LOG_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return cfg.Audit.RetentionDays
}

func compressOldLogs(ctx context.Context, j *tradelog.Journal, days int) {
	if err := j.CompressOlder(days); err != nil {
		logger.Warn(ctx, "Failed to compress old logs", "error", err)
	}
}

// initializeBroker picks the provider. DRY_RUN never reaches a real broker.
func initializeBroker(ctx context.Context, cfg *store.Config) (interfaces.Broker, error) {
	timeout := time.Duration(cfg.Broker.RequestTimeoutMs) * time.Millisecond
	margin := time.Duration(cfg.Broker.RefreshMarginSeconds) * time.Second

	if !cfg.IsLive() {
		logger.Warn(ctx, "Running in DRY_RUN mode - candles and orders are simulated")
		return brokerobs.Wrap("paper", paper.New()), nil
	}

	switch cfg.Broker.Provider {
	case "ANGELONE":
		return brokerobs.Wrap("angelone", angelone.New(angelone.Params{
			APIKey:        os.Getenv("ANGEL_API_KEY"),
			ClientCode:    os.Getenv("ANGEL_CLIENT_CODE"),
			PIN:           os.Getenv("ANGEL_PIN"),
			TOTPSecret:    os.Getenv("ANGEL_TOTP_SECRET"),
			Exchange:      cfg.Exchange,
			SymbolTokens:  cfg.Broker.SymbolTokens,
			RefreshMargin: margin,
			Timeout:       timeout,
		})), nil
	case "ZERODHA":
		return brokerobs.Wrap("zerodha", zerodha.New(zerodha.Params{
			APIKey:        os.Getenv("KITE_API_KEY"),
			APISecret:     os.Getenv("KITE_API_SECRET"),
			RequestToken:  os.Getenv("KITE_REQUEST_TOKEN"),
			AccessToken:   os.Getenv("KITE_ACCESS_TOKEN"),
			Exchange:      cfg.Exchange,
			RefreshMargin: margin,
			HTTPClient:    api.NewClient(api.WithTimeout(timeout)).HTTPClient(),
		})), nil
	}
	return nil, fmt.Errorf("unknown broker provider %q", cfg.Broker.Provider)
}

// initializeClassifier falls back to the neutral classifier when the
// configured provider has no credentials.
func initializeClassifier(ctx context.Context, cfg *store.Config) interfaces.SentimentClassifier {
	var (
		c   interfaces.SentimentClassifier
		err error
	)
	switch cfg.Sentiment.Provider {
	case "OPENAI":
		c, err = openai.New(cfg.Sentiment)
	case "CLAUDE":
		c, err = claude.New(cfg.Sentiment)
	}
	if err != nil {
		logger.Warn(ctx, "Sentiment provider unavailable - using neutral classifier", "provider", cfg.Sentiment.Provider, "error", err)
		c = nil
	}
	if c == nil {
		c = noop.New()
	}
	return llmobs.Wrap(c)
}

func initializeHeadlines(ctx context.Context, cfg *store.Config) interfaces.HeadlineSource {
	var src interfaces.HeadlineSource
	if cfg.Sentiment.HeadlineSource == "NEWSAPI" {
		n, err := news.NewNewsAPI(os.Getenv("NEWS_API_KEY"))
		if err != nil {
			logger.Warn(ctx, "NewsAPI unavailable - scraping headlines instead", "error", err)
		} else {
			src = n
		}
	}
	if src == nil {
		src = news.NewScraper(15*time.Second, news.DefaultSources()...)
	}
	return news.NewCache(src, time.Duration(cfg.Sentiment.CacheMinutes)*time.Minute)
}

func initializeAlerts(ctx context.Context, cfg *store.Config, m *metrics.Metrics) interfaces.Alerter {
	channels := []interfaces.Alerter{alert.Log{}}

	if tok := os.Getenv(cfg.Alerts.TelegramTokenEnv); tok != "" && cfg.Alerts.TelegramChatID != 0 {
		tg, err := alert.NewTelegram(tok, cfg.Alerts.TelegramChatID)
		if err != nil {
			logger.Warn(ctx, "Telegram alerts disabled", "error", err)
		} else {
			channels = append(channels, tg)
		}
	}
	if hook := os.Getenv(cfg.Alerts.DiscordWebhookEnv); hook != "" {
		channels = append(channels, alert.NewDiscord(hook, api.NewClient(api.WithTimeout(10*time.Second))))
	}
	return alert.NewFanout(m, channels...)
}

// app is everything main runs.
type app struct {
	cfg       *store.Config
	broker    interfaces.Broker
	scheduler *scheduler.Scheduler
	eod       interfaces.EodSummarizer
	registry  *prometheus.Registry
}

func build(ctx context.Context, cfg *store.Config) (*app, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	journal := tradelog.New(cfg.Audit.Dir)
	compressOldLogs(ctx, journal, retentionDays(cfg))

	brk, err := initializeBroker(ctx, cfg)
	if err != nil {
		return nil, err
	}
	alerter := initializeAlerts(ctx, cfg, m)
	gate := risk.NewGate(cfg.Risk)

	exec := executor.New(executor.Params{
		Broker:   brk,
		Gate:     gate,
		Journal:  journal,
		Alerter:  alerter,
		Metrics:  m,
		Config:   cfg.Executor,
		Exchange: cfg.Exchange,
		Product:  cfg.Broker.Product,
	})

	var chain interfaces.OIFetcher
	if cfg.OI.IsEnabled() {
		chain = oi.NewNSE()
	}

	// the noop classifier ignores headlines, so skip fetching them
	var headlines interfaces.HeadlineSource
	if cfg.Sentiment.Provider != "NOOP" {
		headlines = initializeHeadlines(ctx, cfg)
	}
	mood := sentiment.NewService(
		headlines,
		initializeClassifier(ctx, cfg),
		cfg.Sentiment.Query,
		cfg.Sentiment.MaxHeadlines,
	)

	eng := engineobs.Wrap(engine.New(engine.Params{
		Config:    cfg,
		Broker:    brk,
		Executor:  exec,
		Budget:    gate,
		OI:        chain,
		Sentiment: mood,
		Journal:   journal,
		Alerter:   alerter,
		Metrics:   m,
	}))

	sched := scheduler.New(scheduler.Params{
		Engine:     eng,
		Symbols:    cfg.Symbols,
		Interval:   cfg.PollInterval(),
		RunOnStart: cfg.ShouldRunOnStart(),
		Alerter:    alerter,
		Metrics:    m,
	})

	return &app{
		cfg:       cfg,
		broker:    brk,
		scheduler: sched,
		eod:       eodobs.Wrap(eod.New(journal, journal.Dir())),
		registry:  reg,
	}, nil
}
