// Package signal turns raw indicator values into IndicatorSignal records.
package signal

import (
	"math"
	"time"

	"signal-trader/internal/store"
	"signal-trader/internal/strategy"
	"signal-trader/internal/ta"
	"signal-trader/internal/types"
)

type Source struct {
	cfg store.StrategyConfig
}

func NewSource(cfg store.StrategyConfig) *Source {
	return &Source{cfg: cfg}
}

// New builds one record, stamping the direction from the strategy thresholds.
func (s *Source) New(name string, value float64, ts time.Time) types.IndicatorSignal {
	d, _ := strategy.Classify(name, value, s.cfg)
	return types.IndicatorSignal{Name: name, Value: value, Direction: d, Timestamp: ts}
}

// Technical computes RSI, MACD histogram and EMA spread from candles, plus
// ATR(14) and Bollinger %B(20, 2) for the journal and the risk bounds.
// Indicators without enough history come back NaN and NEUTRAL.
func (s *Source) Technical(candles []types.Candle) map[string]types.IndicatorSignal {
	out := make(map[string]types.IndicatorSignal, 3)
	if len(candles) == 0 {
		return out
	}
	_, highs, lows, closes, _ := ta.Series(candles)
	ts := candles[len(candles)-1].Time()

	out[types.SignalRSI] = s.New(types.SignalRSI, ta.RSI(closes, s.cfg.RSIPeriod), ts)

	_, _, hist := ta.MACD(closes, s.cfg.MACDFast, s.cfg.MACDSlow, s.cfg.MACDSignal)
	out[types.SignalMACD] = s.New(types.SignalMACD, hist, ts)

	spread := ta.EMA(closes, s.cfg.EMAShort) - ta.EMA(closes, s.cfg.EMALong)
	out[types.SignalEMACross] = s.New(types.SignalEMACross, spread, ts)

	out[types.SignalATR] = s.New(types.SignalATR, ta.ATR(highs, lows, closes, 14), ts)
	out[types.SignalBBPctB] = s.New(types.SignalBBPctB, percentB(closes), ts)

	return out
}

// percentB is where the last close sits in its Bollinger band: 0 at the
// lower band, 1 at the upper.
func percentB(closes []float64) float64 {
	_, up, low := ta.Bollinger(closes, 20, 2)
	if up == low {
		return math.NaN()
	}
	return (closes[len(closes)-1] - low) / (up - low)
}

// FromOI yields PCR and OI_TREND records. OI_TREND is +1 for long buildup, -1 otherwise.
func (s *Source) FromOI(a types.OIAnalysis) map[string]types.IndicatorSignal {
	trend := -1.0
	if a.Trend == types.TrendLongBuildup {
		trend = 1
	}
	return map[string]types.IndicatorSignal{
		types.SignalPCR:     s.New(types.SignalPCR, a.PCR, a.Time),
		types.SignalOITrend: s.New(types.SignalOITrend, trend, a.Time),
	}
}

func (s *Source) FromSentiment(sent types.Sentiment, ts time.Time) types.IndicatorSignal {
	return s.New(types.SignalSentiment, strategy.SentimentScore(sent), ts)
}

// Merge copies every record into dst, later maps winning.
func Merge(dst map[string]types.IndicatorSignal, srcs ...map[string]types.IndicatorSignal) map[string]types.IndicatorSignal {
	if dst == nil {
		dst = make(map[string]types.IndicatorSignal)
	}
	for _, src := range srcs {
		for k, v := range src {
			dst[k] = v
		}
	}
	return dst
}
