// Package ta exposes the last value of common indicators computed by go-talib.
// Every function returns NaN when the input is too short to be meaningful.
package ta

import (
	"math"

	"github.com/markcheno/go-talib"

	"signal-trader/internal/types"
)

// Series splits candles into column slices.
func Series(candles []types.Candle) (opens, highs, lows, closes, vols []float64) {
	n := len(candles)
	opens, highs, lows = make([]float64, n), make([]float64, n), make([]float64, n)
	closes, vols = make([]float64, n), make([]float64, n)
	for i, c := range candles {
		opens[i], highs[i], lows[i], closes[i], vols[i] = c.Open, c.High, c.Low, c.Close, c.Vol
	}
	return
}

func last(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	return vals[len(vals)-1]
}

func EMA(closes []float64, n int) float64 {
	if n <= 1 || len(closes) < n {
		return math.NaN()
	}
	return last(talib.Ema(closes, n))
}

// RSI uses Wilder smoothing.
func RSI(closes []float64, period int) float64 {
	if period <= 1 || len(closes) <= period {
		return math.NaN()
	}
	return last(talib.Rsi(closes, period))
}

// MACD returns the latest MACD line, signal line and histogram.
func MACD(closes []float64, fast, slow, signal int) (macd, sig, hist float64) {
	if fast <= 1 || slow <= fast || signal <= 0 || len(closes) < slow+signal-1 {
		return math.NaN(), math.NaN(), math.NaN()
	}
	m, s, h := talib.Macd(closes, fast, slow, signal)
	return last(m), last(s), last(h)
}

func Bollinger(closes []float64, n int, k float64) (mid, up, low float64) {
	if n <= 1 || len(closes) < n {
		return math.NaN(), math.NaN(), math.NaN()
	}
	u, m, l := talib.BBands(closes, n, k, k, talib.SMA)
	return last(m), last(u), last(l)
}

func ATR(highs, lows, closes []float64, period int) float64 {
	if len(highs) != len(lows) || len(lows) != len(closes) {
		return math.NaN()
	}
	if period <= 0 || len(closes) <= period {
		return math.NaN()
	}
	return last(talib.Atr(highs, lows, closes, period))
}
