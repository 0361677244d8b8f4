package signal

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-trader/internal/store"
	"signal-trader/internal/types"
)

func strategyConfig() store.StrategyConfig {
	c := store.Config{Symbols: []string{"X"}}
	c.ApplyDefaults()
	return c.Strategy
}

func candles(closes ...float64) []types.Candle {
	out := make([]types.Candle, len(closes))
	for i, c := range closes {
		out[i] = types.Candle{Ts: int64(1700000000 + i*300), Open: c, High: c + 1, Low: c - 1, Close: c}
	}
	return out
}

func TestTechnicalFallingMarket(t *testing.T) {
	var closes []float64
	for i := 0; i < 60; i++ {
		closes = append(closes, 500-float64(i)*2)
	}
	src := NewSource(strategyConfig())
	got := src.Technical(candles(closes...))

	require.Len(t, got, 5)
	assert.Equal(t, types.DirectionNeutral, got[types.SignalATR].Direction)
	assert.InDelta(t, 3.0, got[types.SignalATR].Value, 0.5)
	assert.Less(t, got[types.SignalBBPctB].Value, 0.5, "a steady fall closes near the lower band")
	assert.Equal(t, types.DirectionBuy, got[types.SignalRSI].Direction, "oversold reads bullish")
	assert.Equal(t, types.DirectionSell, got[types.SignalEMACross].Direction)
	assert.Equal(t, time.Unix(1700000000+59*300, 0), got[types.SignalRSI].Timestamp)
}

func TestTechnicalShortHistoryIsNeutral(t *testing.T) {
	got := NewSource(strategyConfig()).Technical(candles(1, 2, 3))
	for _, name := range []string{types.SignalRSI, types.SignalMACD, types.SignalEMACross, types.SignalATR, types.SignalBBPctB} {
		assert.True(t, math.IsNaN(got[name].Value), name)
		assert.Equal(t, types.DirectionNeutral, got[name].Direction, name)
	}
	assert.Empty(t, NewSource(strategyConfig()).Technical(nil))
}

func TestFromOI(t *testing.T) {
	now := time.Now()
	got := NewSource(strategyConfig()).FromOI(types.OIAnalysis{PCR: 1.35, Trend: types.TrendLongBuildup, Time: now})

	assert.Equal(t, 1.0, got[types.SignalOITrend].Value)
	assert.Equal(t, types.DirectionBuy, got[types.SignalOITrend].Direction)
	assert.Equal(t, types.DirectionSell, got[types.SignalPCR].Direction)

	got = NewSource(strategyConfig()).FromOI(types.OIAnalysis{PCR: 0.6, Trend: types.TrendShortBuildup})
	assert.Equal(t, types.DirectionSell, got[types.SignalOITrend].Direction)
	assert.Equal(t, types.DirectionBuy, got[types.SignalPCR].Direction)
}

func TestFromSentimentAndMerge(t *testing.T) {
	src := NewSource(strategyConfig())
	s := src.FromSentiment(types.Sentiment{Label: types.SentimentNegative}, time.Time{})
	assert.Equal(t, -1.0, s.Value)
	assert.Equal(t, types.DirectionSell, s.Direction)

	merged := Merge(nil,
		map[string]types.IndicatorSignal{"A": {Value: 1}},
		map[string]types.IndicatorSignal{"A": {Value: 2}, "B": {Value: 3}},
	)
	assert.Equal(t, 2.0, merged["A"].Value)
	assert.Len(t, merged, 2)
}
