// Package oi fetches index option chains from NSE and reduces them to
// put/call positioning.
package oi

import (
	"errors"
	"math"

	"signal-trader/internal/types"
)

// ErrEmptyChain means the chain had no call open interest, so PCR is undefined.
var ErrEmptyChain = errors.New("option chain has no call open interest")

// changeDominance is how much larger one side's OI change must be to count.
const changeDominance = 1.5

// Analyze is pure. PCR is total put OI over total call OI, rounded to two
// places; the trend is long buildup when PCR is above 1.
func Analyze(s types.OISnapshot) (types.OIAnalysis, error) {
	var calls, puts, callChg, putChg float64
	for _, k := range s.Strikes {
		calls += k.CallOI
		puts += k.PutOI
		callChg += k.CallOIChange
		putChg += k.PutOIChange
	}
	if calls <= 0 {
		return types.OIAnalysis{}, ErrEmptyChain
	}

	pcr := math.Round(puts/calls*100) / 100
	trend := types.TrendShortBuildup
	if pcr > 1 {
		trend = types.TrendLongBuildup
	}

	// writers adding calls cap the upside; adding puts builds a floor
	dir := types.DirectionNeutral
	switch {
	case callChg > putChg*changeDominance:
		dir = types.DirectionSell
	case putChg > callChg*changeDominance:
		dir = types.DirectionBuy
	}

	return types.OIAnalysis{
		PCR:             pcr,
		Trend:           trend,
		TotalCallOI:     calls,
		TotalPutOI:      puts,
		ChangeDirection: dir,
		Time:            s.FetchedAt,
	}, nil
}
