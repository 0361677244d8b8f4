// Package strategy combines indicator signals into a trading action.
// Everything here is pure: no I/O, no clock, no shared state.
package strategy

import (
	"math"
	"sort"
	"strings"

	"signal-trader/internal/store"
	"signal-trader/internal/types"
)

// Verdict is a combined action plus which required inputs leaned which way.
type Verdict struct {
	Action  types.Action
	Bullish []string
	Bearish []string
	Neutral []string
}

// Reason renders the verdict for logs and the decision journal.
func (v Verdict) Reason() string {
	parts := make([]string, 0, 3)
	if len(v.Bullish) > 0 {
		parts = append(parts, "bullish="+strings.Join(v.Bullish, ","))
	}
	if len(v.Bearish) > 0 {
		parts = append(parts, "bearish="+strings.Join(v.Bearish, ","))
	}
	if len(v.Neutral) > 0 {
		parts = append(parts, "neutral="+strings.Join(v.Neutral, ","))
	}
	if len(parts) == 0 {
		return "no required indicators"
	}
	return strings.Join(parts, " ")
}

// Classify maps a known indicator value to a direction using cfg thresholds.
// ok is false for names the combiner does not know.
func Classify(name string, value float64, cfg store.StrategyConfig) (d types.Direction, ok bool) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return types.DirectionNeutral, isKnown(name)
	}
	switch name {
	case types.SignalRSI:
		return band(value < cfg.RSIOversold, value > cfg.RSIOverbought), true
	case types.SignalMACD:
		return band(value > cfg.MACDThreshold, value < -cfg.MACDThreshold), true
	case types.SignalEMACross:
		return band(value > 0, value < 0), true
	case types.SignalPCR:
		// high put/call ratio reads as bearish positioning
		return band(value < cfg.PCRBullish, value > cfg.PCRBearish), true
	case types.SignalOITrend:
		return band(value > 0, value < 0), true
	case types.SignalSentiment:
		return band(value >= cfg.SentimentBullish, value <= cfg.SentimentBearish), true
	}
	return types.DirectionNeutral, false
}

func isKnown(name string) bool {
	switch name {
	case types.SignalRSI, types.SignalMACD, types.SignalEMACross,
		types.SignalPCR, types.SignalOITrend, types.SignalSentiment:
		return true
	}
	return false
}

func band(bull, bear bool) types.Direction {
	switch {
	case bull && !bear:
		return types.DirectionBuy
	case bear && !bull:
		return types.DirectionSell
	}
	return types.DirectionNeutral
}

// SentimentScore converts a classified sentiment into the numeric score the
// thresholds apply to. A label without a score counts as +/-1.
func SentimentScore(s types.Sentiment) float64 {
	if s.Score != 0 {
		return s.Score
	}
	switch s.Label {
	case types.SentimentPositive:
		return 1
	case types.SentimentNegative:
		return -1
	}
	return 0
}

func direction(name string, signals map[string]types.IndicatorSignal, sentiment types.Sentiment, cfg store.StrategyConfig) types.Direction {
	if name == types.SignalSentiment {
		d, _ := Classify(name, SentimentScore(sentiment), cfg)
		return d
	}
	sig, present := signals[name]
	if !present {
		return types.DirectionNeutral
	}
	if d, known := Classify(name, sig.Value, cfg); known {
		return d
	}
	switch sig.Direction {
	case types.DirectionBuy, types.DirectionSell:
		return sig.Direction
	}
	return types.DirectionNeutral
}

// Evaluate applies the conjunctive rule: BUY when every required input is
// bullish, SELL when every one is bearish, HOLD otherwise. Missing inputs are
// neutral. Output is sorted so equal inputs give equal verdicts.
func Evaluate(signals map[string]types.IndicatorSignal, sentiment types.Sentiment, cfg store.StrategyConfig) Verdict {
	v := Verdict{Action: types.ActionHold}
	if len(cfg.Required) == 0 {
		return v
	}

	seen := make(map[string]bool, len(cfg.Required))
	for _, name := range cfg.Required {
		if seen[name] {
			continue
		}
		seen[name] = true
		switch direction(name, signals, sentiment, cfg) {
		case types.DirectionBuy:
			v.Bullish = append(v.Bullish, name)
		case types.DirectionSell:
			v.Bearish = append(v.Bearish, name)
		default:
			v.Neutral = append(v.Neutral, name)
		}
	}
	sort.Strings(v.Bullish)
	sort.Strings(v.Bearish)
	sort.Strings(v.Neutral)

	total := len(seen)
	allBull := len(v.Bullish) == total
	allBear := len(v.Bearish) == total
	switch {
	case allBull && !allBear:
		v.Action = types.ActionBuy
	case allBear && !allBull:
		v.Action = types.ActionSell
	}
	return v
}

// Combine returns only the action of Evaluate.
func Combine(signals map[string]types.IndicatorSignal, sentiment types.Sentiment, cfg store.StrategyConfig) types.Action {
	return Evaluate(signals, sentiment, cfg).Action
}
