package oi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-trader/internal/api"
	"signal-trader/internal/types"
)

func TestAnalyze(t *testing.T) {
	at := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		strikes []types.StrikeOI
		pcr     float64
		trend   types.OITrend
		dir     types.Direction
	}{
		{
			name:    "put heavy",
			strikes: []types.StrikeOI{{CallOI: 1000, PutOI: 1300, CallOIChange: 100, PutOIChange: 400}},
			pcr:     1.3, trend: types.TrendLongBuildup, dir: types.DirectionBuy,
		},
		{
			name: "call heavy",
			strikes: []types.StrikeOI{
				{CallOI: 2000, PutOI: 700, CallOIChange: 500, PutOIChange: 100},
				{CallOI: 1000, PutOI: 500, CallOIChange: 100, PutOIChange: 50},
			},
			pcr: 0.4, trend: types.TrendShortBuildup, dir: types.DirectionSell,
		},
		{
			name:    "exactly one is short buildup",
			strikes: []types.StrikeOI{{CallOI: 1000, PutOI: 1000, CallOIChange: 100, PutOIChange: 140}},
			pcr:     1, trend: types.TrendShortBuildup, dir: types.DirectionNeutral,
		},
		{
			name:    "rounded to two places",
			strikes: []types.StrikeOI{{CallOI: 3, PutOI: 2}},
			pcr:     0.67, trend: types.TrendShortBuildup, dir: types.DirectionNeutral,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Analyze(types.OISnapshot{Strikes: tt.strikes, FetchedAt: at})
			require.NoError(t, err)
			assert.Equal(t, tt.pcr, a.PCR)
			assert.Equal(t, tt.trend, a.Trend)
			assert.Equal(t, tt.dir, a.ChangeDirection)
			assert.Equal(t, at, a.Time)
		})
	}
}

func TestAnalyzeEmptyChain(t *testing.T) {
	_, err := Analyze(types.OISnapshot{Strikes: []types.StrikeOI{{PutOI: 10}}})
	assert.ErrorIs(t, err, ErrEmptyChain)
}

const chainJSON = `{"records":{"expiryDates":["07-Mar-2024","14-Mar-2024"],"underlyingValue":22400.5,"data":[
{"strikePrice":22300,"expiryDate":"07-Mar-2024","CE":{"openInterest":1000,"changeinOpenInterest":50},"PE":{"openInterest":1500,"changeinOpenInterest":200}},
{"strikePrice":22400,"expiryDate":"07-Mar-2024","CE":{"openInterest":800,"changeinOpenInterest":10}},
{"strikePrice":22400,"expiryDate":"14-Mar-2024","CE":{"openInterest":99999,"changeinOpenInterest":0},"PE":{"openInterest":1,"changeinOpenInterest":0}}]}}`

func TestNSESnapshotWarmsUpOnForbidden(t *testing.T) {
	apiCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/option-chain":
			http.SetCookie(w, &http.Cookie{Name: "nsit", Value: "ok", Path: "/"})
		case "/api/option-chain-indices":
			apiCalls++
			assert.Equal(t, "NIFTY", r.URL.Query().Get("symbol"))
			if c, err := r.Cookie("nsit"); err != nil || c.Value != "ok" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			_, _ = w.Write([]byte(chainJSON))
		}
	}))
	defer srv.Close()

	n := NewNSE(api.WithBaseURL(srv.URL))
	snap, err := n.Snapshot(context.Background(), "NIFTY")
	require.NoError(t, err)

	assert.Equal(t, 2, apiCalls)
	assert.Equal(t, "07-Mar-2024", snap.Expiry)
	assert.Equal(t, 22400.5, snap.Spot)
	require.Len(t, snap.Strikes, 2)
	assert.Equal(t, 0.0, snap.Strikes[1].PutOI)

	a, err := Analyze(snap)
	require.NoError(t, err)
	assert.Equal(t, 0.83, a.PCR)
	assert.Equal(t, types.DirectionBuy, a.ChangeDirection)
}

func TestNSESnapshotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewNSE(api.WithBaseURL(srv.URL)).Snapshot(context.Background(), "BANKNIFTY")
	assert.ErrorContains(t, err, "BANKNIFTY")
}
