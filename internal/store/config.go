package store

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Mode         string   `yaml:"mode"`
	Exchange     string   `yaml:"exchange"`
	Symbols      []string `yaml:"symbols"`
	Interval     string   `yaml:"interval"`
	LookbackBars int      `yaml:"lookback_bars"`
	MinBars      int      `yaml:"min_bars"`
	PollSeconds  int      `yaml:"poll_seconds"`
	RunOnStart   *bool    `yaml:"run_on_start"`

	Broker    BrokerConfig    `yaml:"broker"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Risk      RiskConfig      `yaml:"risk"`
	Executor  ExecutorConfig  `yaml:"executor"`
	Qty       QtyConfig       `yaml:"qty"`
	Sentiment SentimentConfig `yaml:"sentiment"`
	OI        OIConfig        `yaml:"oi"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Audit     AuditConfig     `yaml:"audit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type BrokerConfig struct {
	Provider             string         `yaml:"provider"`
	RequestTimeoutMs     int            `yaml:"request_timeout_ms"`
	RefreshMarginSeconds int            `yaml:"refresh_margin_seconds"`
	Product              string         `yaml:"product"`
	SymbolTokens         map[string]int `yaml:"symbol_tokens"`
}

// StrategyConfig lists the required indicators and every threshold the combiner uses.
type StrategyConfig struct {
	Required         []string `yaml:"required"`
	RSIPeriod        int      `yaml:"rsi_period"`
	RSIOversold      float64  `yaml:"rsi_oversold"`
	RSIOverbought    float64  `yaml:"rsi_overbought"`
	MACDFast         int      `yaml:"macd_fast"`
	MACDSlow         int      `yaml:"macd_slow"`
	MACDSignal       int      `yaml:"macd_signal"`
	MACDThreshold    float64  `yaml:"macd_threshold"`
	EMAShort         int      `yaml:"ema_short"`
	EMALong          int      `yaml:"ema_long"`
	PCRBullish       float64  `yaml:"pcr_bullish"`
	PCRBearish       float64  `yaml:"pcr_bearish"`
	SentimentBullish float64  `yaml:"sentiment_bullish"`
	SentimentBearish float64  `yaml:"sentiment_bearish"`
}

// Requires reports whether name is in the required set.
func (s StrategyConfig) Requires(name string) bool {
	for _, r := range s.Required {
		if r == name {
			return true
		}
	}
	return false
}

// Bound is an exclusive sanity range for a signal value.
type Bound struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

func (b Bound) Contains(v float64) bool {
	return v > b.Min && v < b.Max
}

type RiskConfig struct {
	DailyLossLimit  float64          `yaml:"daily_loss_limit"`
	Capital         float64          `yaml:"capital"`
	PerTradeRiskPct float64          `yaml:"per_trade_risk_pct"`
	Bounds          map[string]Bound `yaml:"bounds"`
}

type ExecutorConfig struct {
	MaxAttempts      int  `yaml:"max_attempts"`
	BackoffMs        int  `yaml:"backoff_ms"`
	Exponential      bool `yaml:"exponential"`
	MaxBackoffMs     int  `yaml:"max_backoff_ms"`
	AttemptTimeoutMs int  `yaml:"attempt_timeout_ms"`
}

func (e ExecutorConfig) Backoff() time.Duration {
	return time.Duration(e.BackoffMs) * time.Millisecond
}

func (e ExecutorConfig) MaxBackoff() time.Duration {
	return time.Duration(e.MaxBackoffMs) * time.Millisecond
}

func (e ExecutorConfig) AttemptTimeout() time.Duration {
	return time.Duration(e.AttemptTimeoutMs) * time.Millisecond
}

type QtyConfig struct {
	Default   int            `yaml:"default"`
	PerSymbol map[string]int `yaml:"per_symbol"`
}

// For returns the configured order size for symbol.
func (q QtyConfig) For(symbol string) int {
	if n, ok := q.PerSymbol[symbol]; ok && n > 0 {
		return n
	}
	return q.Default
}

type SentimentConfig struct {
	Provider       string  `yaml:"provider"`
	Model          string  `yaml:"model"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float32 `yaml:"temperature"`
	System         string  `yaml:"system"`
	Query          string  `yaml:"query"`
	MaxHeadlines   int     `yaml:"max_headlines"`
	HeadlineSource string  `yaml:"headline_source"`
	CacheMinutes   int     `yaml:"cache_minutes"`
}

type OIConfig struct {
	Enabled    *bool  `yaml:"enabled"`
	Underlying string `yaml:"underlying"`
}

func (o OIConfig) IsEnabled() bool {
	return o.Enabled == nil || *o.Enabled
}

type AlertsConfig struct {
	TelegramChatID    int64  `yaml:"telegram_chat_id"`
	TelegramTokenEnv  string `yaml:"telegram_token_env"`
	DiscordWebhookEnv string `yaml:"discord_webhook_env"`
}

type AuditConfig struct {
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollSeconds) * time.Second
}

// ParseInterval reads Kite-style bar intervals: "minute", "<n>minute", "day".
func ParseInterval(interval string) (time.Duration, error) {
	switch interval {
	case "minute":
		return time.Minute, nil
	case "day":
		return 24 * time.Hour, nil
	}
	if n, ok := strings.CutSuffix(interval, "minute"); ok {
		if m, err := strconv.Atoi(n); err == nil && m > 0 {
			return time.Duration(m) * time.Minute, nil
		}
	}
	return 0, fmt.Errorf("unsupported interval %q", interval)
}

// BarDuration is the length of one candle. Validate rejects intervals it cannot parse.
func (c *Config) BarDuration() time.Duration {
	d, _ := ParseInterval(c.Interval)
	return d
}

func (c *Config) ShouldRunOnStart() bool {
	return c.RunOnStart == nil || *c.RunOnStart
}

func (c *Config) IsLive() bool {
	return c.Mode == "LIVE"
}

func (c *Config) Validate() error {
	if c.Mode != "DRY_RUN" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if len(c.Symbols) == 0 {
		return errors.New("symbols cannot be empty")
	}
	if _, err := ParseInterval(c.Interval); err != nil {
		return err
	}
	switch c.Broker.Provider {
	case "ZERODHA", "ANGELONE":
	default:
		return fmt.Errorf("broker.provider must be 'ZERODHA' or 'ANGELONE', got '%s'", c.Broker.Provider)
	}
	if c.MinBars <= 0 || c.LookbackBars < c.MinBars {
		return fmt.Errorf("lookback_bars (%d) must be >= min_bars (%d) > 0", c.LookbackBars, c.MinBars)
	}
	if c.Strategy.RSIOversold >= c.Strategy.RSIOverbought {
		return fmt.Errorf("strategy.rsi_oversold (%.2f) must be below rsi_overbought (%.2f)",
			c.Strategy.RSIOversold, c.Strategy.RSIOverbought)
	}
	if c.Strategy.PCRBullish > c.Strategy.PCRBearish {
		return fmt.Errorf("strategy.pcr_bullish (%.2f) must not exceed pcr_bearish (%.2f)",
			c.Strategy.PCRBullish, c.Strategy.PCRBearish)
	}
	if c.Strategy.SentimentBearish >= c.Strategy.SentimentBullish {
		return fmt.Errorf("strategy.sentiment_bearish (%.2f) must be below sentiment_bullish (%.2f)",
			c.Strategy.SentimentBearish, c.Strategy.SentimentBullish)
	}
	if c.Strategy.MACDFast >= c.Strategy.MACDSlow {
		return fmt.Errorf("strategy.macd_fast (%d) must be below macd_slow (%d)", c.Strategy.MACDFast, c.Strategy.MACDSlow)
	}
	if c.Risk.DailyLossLimit >= 0 {
		return fmt.Errorf("risk.daily_loss_limit must be negative, got %.2f", c.Risk.DailyLossLimit)
	}
	if c.Risk.PerTradeRiskPct <= 0 || c.Risk.PerTradeRiskPct > 100 {
		return fmt.Errorf("risk.per_trade_risk_pct must be between 0-100, got %.2f", c.Risk.PerTradeRiskPct)
	}
	for name, b := range c.Risk.Bounds {
		if b.Min >= b.Max {
			return fmt.Errorf("risk.bounds.%s: min (%.2f) must be below max (%.2f)", name, b.Min, b.Max)
		}
	}
	if c.Executor.MaxAttempts < 1 {
		return fmt.Errorf("executor.max_attempts must be >= 1, got %d", c.Executor.MaxAttempts)
	}
	if c.Qty.Default <= 0 {
		return fmt.Errorf("qty.default must be positive, got %d", c.Qty.Default)
	}
	switch c.Sentiment.Provider {
	case "OPENAI", "CLAUDE", "NOOP":
	default:
		return fmt.Errorf("sentiment.provider must be 'OPENAI', 'CLAUDE' or 'NOOP', got '%s'", c.Sentiment.Provider)
	}
	switch c.Sentiment.HeadlineSource {
	case "NEWSAPI", "SCRAPE":
	default:
		return fmt.Errorf("sentiment.headline_source must be 'NEWSAPI' or 'SCRAPE', got '%s'", c.Sentiment.HeadlineSource)
	}
	return nil
}

// ApplyDefaults fills every unset key.
func (c *Config) ApplyDefaults() {
	if c.Mode == "" {
		c.Mode = "DRY_RUN"
	}
	if c.Exchange == "" {
		c.Exchange = "NSE"
	}
	if c.Interval == "" {
		c.Interval = "5minute"
	}
	if c.LookbackBars == 0 {
		c.LookbackBars = 100
	}
	if c.MinBars == 0 {
		c.MinBars = 35
	}
	if c.PollSeconds == 0 {
		c.PollSeconds = 300
	}

	if c.Broker.Provider == "" {
		c.Broker.Provider = "ZERODHA"
	}
	if c.Broker.RequestTimeoutMs == 0 {
		c.Broker.RequestTimeoutMs = 10000
	}
	if c.Broker.RefreshMarginSeconds == 0 {
		c.Broker.RefreshMarginSeconds = 300
	}
	if c.Broker.Product == "" {
		c.Broker.Product = "MIS"
	}

	s := &c.Strategy
	if s.Required == nil {
		s.Required = []string{"RSI", "MACD", "OI_TREND", "SENTIMENT"}
	}
	if s.RSIPeriod == 0 {
		s.RSIPeriod = 14
	}
	if s.RSIOversold == 0 {
		s.RSIOversold = 30
	}
	if s.RSIOverbought == 0 {
		s.RSIOverbought = 70
	}
	if s.MACDFast == 0 {
		s.MACDFast = 12
	}
	if s.MACDSlow == 0 {
		s.MACDSlow = 26
	}
	if s.MACDSignal == 0 {
		s.MACDSignal = 9
	}
	if s.EMAShort == 0 {
		s.EMAShort = 5
	}
	if s.EMALong == 0 {
		s.EMALong = 20
	}
	if s.PCRBullish == 0 {
		s.PCRBullish = 0.8
	}
	if s.PCRBearish == 0 {
		s.PCRBearish = 1.2
	}
	if s.SentimentBullish == 0 {
		s.SentimentBullish = 0.5
	}
	if s.SentimentBearish == 0 {
		s.SentimentBearish = -0.5
	}

	if c.Risk.DailyLossLimit == 0 {
		c.Risk.DailyLossLimit = -500
	}
	if c.Risk.Capital == 0 {
		c.Risk.Capital = 100000
	}
	if c.Risk.PerTradeRiskPct == 0 {
		c.Risk.PerTradeRiskPct = 100
	}
	if c.Risk.Bounds == nil {
		c.Risk.Bounds = map[string]Bound{"RSI": {Min: 20, Max: 80}}
	}

	e := &c.Executor
	if e.MaxAttempts == 0 {
		e.MaxAttempts = 3
	}
	if e.BackoffMs == 0 {
		e.BackoffMs = 1000
	}
	if e.MaxBackoffMs == 0 {
		e.MaxBackoffMs = 8000
	}
	if e.AttemptTimeoutMs == 0 {
		e.AttemptTimeoutMs = 10000
	}

	if c.Qty.Default == 0 {
		c.Qty.Default = 1
	}

	if c.Sentiment.Provider == "" {
		c.Sentiment.Provider = "NOOP"
	}
	if c.Sentiment.MaxTokens == 0 {
		c.Sentiment.MaxTokens = 10
	}
	if c.Sentiment.Temperature == 0 {
		c.Sentiment.Temperature = 0.2
	}
	if c.Sentiment.Query == "" {
		c.Sentiment.Query = "nifty OR bank nifty OR sensex"
	}
	if c.Sentiment.MaxHeadlines == 0 {
		c.Sentiment.MaxHeadlines = 5
	}
	if c.Sentiment.HeadlineSource == "" {
		c.Sentiment.HeadlineSource = "NEWSAPI"
	}
	if c.Sentiment.CacheMinutes == 0 {
		c.Sentiment.CacheMinutes = 15
	}

	if c.OI.Underlying == "" {
		c.OI.Underlying = "NIFTY"
	}
	if c.Alerts.TelegramTokenEnv == "" {
		c.Alerts.TelegramTokenEnv = "TELEGRAM_BOT_TOKEN"
	}
	if c.Alerts.DiscordWebhookEnv == "" {
		c.Alerts.DiscordWebhookEnv = "DISCORD_WEBHOOK_URL"
	}
	if c.Audit.Dir == "" {
		c.Audit.Dir = "logs"
	}
}

// Read parses YAML, applies defaults and validates.
func Read(r io.Reader) (*Config, error) {
	var c Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	c.ApplyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Read(bytes.NewReader(b))
}
