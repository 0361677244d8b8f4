package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadAppliesDefaults(t *testing.T) {
	cfg, err := Read(strings.NewReader("symbols: [RELIANCE, TCS]\n"))
	require.NoError(t, err)

	assert.Equal(t, "DRY_RUN", cfg.Mode)
	assert.Equal(t, "NSE", cfg.Exchange)
	assert.Equal(t, 300, cfg.PollSeconds)
	assert.True(t, cfg.ShouldRunOnStart())
	assert.Equal(t, -500.0, cfg.Risk.DailyLossLimit)
	assert.Equal(t, Bound{Min: 20, Max: 80}, cfg.Risk.Bounds["RSI"])
	assert.Equal(t, 3, cfg.Executor.MaxAttempts)
	assert.Equal(t, 1000, cfg.Executor.BackoffMs)
	assert.Equal(t, []string{"RSI", "MACD", "OI_TREND", "SENTIMENT"}, cfg.Strategy.Required)
	assert.Equal(t, 30.0, cfg.Strategy.RSIOversold)
	assert.Equal(t, 70.0, cfg.Strategy.RSIOverbought)
	assert.True(t, cfg.OI.IsEnabled())
}

func TestReadOverrides(t *testing.T) {
	yml := `
mode: LIVE
symbols: [INFY]
run_on_start: false
broker:
  provider: ANGELONE
strategy:
  required: [RSI]
risk:
  daily_loss_limit: -1000
  bounds:
    RSI: {min: 10, max: 90}
executor:
  max_attempts: 5
qty:
  default: 2
  per_symbol: {INFY: 7}
oi:
  enabled: false
`
	cfg, err := Read(strings.NewReader(yml))
	require.NoError(t, err)

	assert.True(t, cfg.IsLive())
	assert.False(t, cfg.ShouldRunOnStart())
	assert.Equal(t, "ANGELONE", cfg.Broker.Provider)
	assert.Equal(t, []string{"RSI"}, cfg.Strategy.Required)
	assert.Equal(t, -1000.0, cfg.Risk.DailyLossLimit)
	assert.Equal(t, 5, cfg.Executor.MaxAttempts)
	assert.Equal(t, 7, cfg.Qty.For("INFY"))
	assert.Equal(t, 2, cfg.Qty.For("TCS"))
	assert.False(t, cfg.OI.IsEnabled())
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"no symbols":         "mode: DRY_RUN\n",
		"bad mode":           "mode: PAPER\nsymbols: [A]\n",
		"positive limit":     "symbols: [A]\nrisk: {daily_loss_limit: 100}\n",
		"inverted rsi":       "symbols: [A]\nstrategy: {rsi_oversold: 80, rsi_overbought: 20}\n",
		"bad provider":       "symbols: [A]\nbroker: {provider: UPSTOX}\n",
		"bad bound":          "symbols: [A]\nrisk: {bounds: {RSI: {min: 80, max: 20}}}\n",
		"negative attempts":  "symbols: [A]\nexecutor: {max_attempts: -1}\n",
		"unknown field":      "symbols: [A]\nuniverse_static: [B]\n",
		"bad sentiment":      "symbols: [A]\nsentiment: {provider: GEMINI}\n",
		"lookback below min": "symbols: [A]\nlookback_bars: 10\nmin_bars: 35\n",
		"bad interval":       "symbols: [A]\ninterval: 2hours\n",
	}
	for name, yml := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Read(strings.NewReader(yml))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte("symbols: [SBIN]\npoll_seconds: 60\n"), 0o644))

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"SBIN"}, cfg.Symbols)
	assert.Equal(t, "1m0s", cfg.PollInterval().String())

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestBoundIsExclusive(t *testing.T) {
	b := Bound{Min: 20, Max: 80}
	assert.False(t, b.Contains(20))
	assert.True(t, b.Contains(20.01))
	assert.False(t, b.Contains(80))
}

func TestParseInterval(t *testing.T) {
	for in, want := range map[string]time.Duration{
		"minute":   time.Minute,
		"15minute": 15 * time.Minute,
		"day":      24 * time.Hour,
	} {
		got, err := ParseInterval(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"0minute", "fortnight", ""} {
		_, err := ParseInterval(bad)
		assert.Error(t, err, bad)
	}
}
