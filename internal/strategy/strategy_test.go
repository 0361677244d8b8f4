package strategy

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"signal-trader/internal/store"
	"signal-trader/internal/types"
)

func testConfig() store.StrategyConfig {
	var c store.Config
	c.Symbols = []string{"X"}
	c.ApplyDefaults()
	return c.Strategy
}

func sig(name string, v float64) types.IndicatorSignal {
	return types.IndicatorSignal{Name: name, Value: v, Timestamp: time.Unix(0, 0)}
}

func signals(rsi, macd, oiTrend float64) map[string]types.IndicatorSignal {
	return map[string]types.IndicatorSignal{
		types.SignalRSI:     sig(types.SignalRSI, rsi),
		types.SignalMACD:    sig(types.SignalMACD, macd),
		types.SignalOITrend: sig(types.SignalOITrend, oiTrend),
	}
}

func TestCombineAllBullishBuys(t *testing.T) {
	cfg := testConfig()
	pos := types.Sentiment{Label: types.SentimentPositive}

	assert.Equal(t, types.ActionBuy, Combine(signals(25, 1.2, 1), pos, cfg))
}

func TestCombineAllBearishSells(t *testing.T) {
	cfg := testConfig()
	neg := types.Sentiment{Label: types.SentimentNegative}

	assert.Equal(t, types.ActionSell, Combine(signals(75, -0.8, -1), neg, cfg))
}

func TestCombineMixedHolds(t *testing.T) {
	cfg := testConfig()

	assert.Equal(t, types.ActionHold, Combine(signals(25, 1.2, 1), types.Sentiment{Label: types.SentimentNegative}, cfg))
	assert.Equal(t, types.ActionHold, Combine(signals(25, -1.2, 1), types.Sentiment{Label: types.SentimentPositive}, cfg))
	assert.Equal(t, types.ActionHold, Combine(signals(50, 1.2, 1), types.Sentiment{Label: types.SentimentPositive}, cfg))
	assert.Equal(t, types.ActionHold, Combine(signals(25, 1.2, 1), types.NeutralSentiment(), cfg))
}

func TestMissingIndicatorIsNeutral(t *testing.T) {
	cfg := testConfig()
	s := signals(25, 1.2, 1)
	delete(s, types.SignalOITrend)

	v := Evaluate(s, types.Sentiment{Label: types.SentimentPositive}, cfg)
	assert.Equal(t, types.ActionHold, v.Action)
	assert.Equal(t, []string{types.SignalOITrend}, v.Neutral)
}

func TestNaNIsNeutral(t *testing.T) {
	cfg := testConfig()
	v := Evaluate(signals(math.NaN(), 1.2, 1), types.Sentiment{Label: types.SentimentPositive}, cfg)
	assert.Equal(t, types.ActionHold, v.Action)
	assert.Contains(t, v.Neutral, types.SignalRSI)
}

func TestKnownSignalsIgnoreStampedDirection(t *testing.T) {
	cfg := testConfig()
	cfg.Required = []string{types.SignalRSI}
	s := map[string]types.IndicatorSignal{
		types.SignalRSI: {Name: types.SignalRSI, Value: 55, Direction: types.DirectionBuy},
	}
	assert.Equal(t, types.ActionHold, Combine(s, types.NeutralSentiment(), cfg))
}

func TestUnknownSignalUsesDirection(t *testing.T) {
	cfg := testConfig()
	cfg.Required = []string{"VWAP"}
	s := map[string]types.IndicatorSignal{"VWAP": {Name: "VWAP", Value: 1, Direction: types.DirectionSell}}

	assert.Equal(t, types.ActionSell, Combine(s, types.NeutralSentiment(), cfg))
}

func TestEmptyRequiredHolds(t *testing.T) {
	cfg := testConfig()
	cfg.Required = nil
	assert.Equal(t, types.ActionHold, Combine(signals(25, 1.2, 1), types.Sentiment{Label: types.SentimentPositive}, cfg))
}

func TestSentimentScoreThresholds(t *testing.T) {
	cfg := testConfig()
	cfg.Required = []string{types.SignalSentiment}

	assert.Equal(t, types.ActionBuy, Combine(nil, types.Sentiment{Score: 0.5}, cfg))
	assert.Equal(t, types.ActionHold, Combine(nil, types.Sentiment{Score: 0.49}, cfg))
	assert.Equal(t, types.ActionSell, Combine(nil, types.Sentiment{Score: -0.7}, cfg))
}

func TestClassifyPCR(t *testing.T) {
	cfg := testConfig()
	d, ok := Classify(types.SignalPCR, 0.7, cfg)
	assert.True(t, ok)
	assert.Equal(t, types.DirectionBuy, d)
	d, _ = Classify(types.SignalPCR, 1.3, cfg)
	assert.Equal(t, types.DirectionSell, d)
	d, _ = Classify(types.SignalPCR, 1.0, cfg)
	assert.Equal(t, types.DirectionNeutral, d)
	_, ok = Classify("VWAP", 1, cfg)
	assert.False(t, ok)
}

// Randomized check that BUY only fires when every required input is bullish,
// SELL only when every one is bearish, and repeated calls agree.
func TestCombineConjunctionProperty(t *testing.T) {
	cfg := testConfig()
	cfg.Required = append(cfg.Required, types.SignalPCR, types.SignalEMACross)
	rng := rand.New(rand.NewSource(42))
	labels := []types.SentimentLabel{types.SentimentPositive, types.SentimentNeutral, types.SentimentNegative}

	for i := 0; i < 5000; i++ {
		s := map[string]types.IndicatorSignal{}
		if rng.Intn(5) > 0 {
			s[types.SignalRSI] = sig(types.SignalRSI, rng.Float64()*100)
		}
		if rng.Intn(5) > 0 {
			s[types.SignalMACD] = sig(types.SignalMACD, rng.NormFloat64())
		}
		if rng.Intn(5) > 0 {
			s[types.SignalOITrend] = sig(types.SignalOITrend, float64(rng.Intn(3)-1))
		}
		if rng.Intn(5) > 0 {
			s[types.SignalPCR] = sig(types.SignalPCR, rng.Float64()*2)
		}
		if rng.Intn(5) > 0 {
			s[types.SignalEMACross] = sig(types.SignalEMACross, rng.NormFloat64())
		}
		sent := types.Sentiment{Label: labels[rng.Intn(3)]}

		got := Combine(s, sent, cfg)
		assert.Equal(t, got, Combine(s, sent, cfg))

		v := Evaluate(s, sent, cfg)
		switch got {
		case types.ActionBuy:
			assert.Len(t, v.Bullish, len(cfg.Required))
			assert.Less(t, s[types.SignalRSI].Value, cfg.RSIOversold)
			assert.Equal(t, types.SentimentPositive, sent.Label)
		case types.ActionSell:
			assert.Len(t, v.Bearish, len(cfg.Required))
			assert.Greater(t, s[types.SignalRSI].Value, cfg.RSIOverbought)
			assert.Equal(t, types.SentimentNegative, sent.Label)
		default:
			assert.False(t, len(v.Bullish) == len(cfg.Required) || len(v.Bearish) == len(cfg.Required))
		}
	}
}

func TestVerdictReason(t *testing.T) {
	v := Verdict{Bullish: []string{"MACD", "RSI"}, Neutral: []string{"SENTIMENT"}}
	assert.Equal(t, "bullish=MACD,RSI neutral=SENTIMENT", v.Reason())
	assert.Equal(t, "no required indicators", Verdict{}.Reason())
}
