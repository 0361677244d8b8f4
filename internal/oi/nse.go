package oi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"signal-trader/internal/api"
	"signal-trader/internal/interfaces"
	"signal-trader/internal/logger"
	"signal-trader/internal/types"
)

const nseBaseURL = "https://www.nseindia.com"

// NSE reads the public option-chain endpoint. NSE only answers API calls
// that carry cookies from a prior page visit, so a 401/403 triggers one
// warm-up request and a retry.
type NSE struct {
	client *api.Client
	now    func() time.Time
}

var _ interfaces.OIFetcher = (*NSE)(nil)

func NewNSE(opts ...api.ClientOption) *NSE {
	jar, _ := cookiejar.New(nil)
	opts = append([]api.ClientOption{
		api.WithBaseURL(nseBaseURL),
		api.WithHTTPClient(&http.Client{Jar: jar, Timeout: 15 * time.Second}),
		api.WithHeaders(api.NSEHeaders()),
	}, opts...)
	return &NSE{client: api.NewClient(opts...), now: time.Now}
}

type legOI struct {
	OpenInterest         float64 `json:"openInterest"`
	ChangeInOpenInterest float64 `json:"changeinOpenInterest"`
}

type chainResponse struct {
	Records struct {
		ExpiryDates     []string `json:"expiryDates"`
		UnderlyingValue float64  `json:"underlyingValue"`
		Data            []struct {
			StrikePrice float64 `json:"strikePrice"`
			ExpiryDate  string  `json:"expiryDate"`
			CE          *legOI  `json:"CE"`
			PE          *legOI  `json:"PE"`
		} `json:"data"`
	} `json:"records"`
}

func (n *NSE) warmUp(ctx context.Context) {
	if _, err := n.client.GET(ctx, "/option-chain", api.BrowserHeaders()); err != nil {
		logger.Debug(ctx, "NSE warm-up request failed", "error", err)
	}
}

func (n *NSE) fetch(ctx context.Context, underlying string) (*api.Response, error) {
	path := "/api/option-chain-indices?symbol=" + url.QueryEscape(underlying)
	resp, err := n.client.GET(ctx, path)
	var he *api.HTTPError
	if errors.As(err, &he) && (he.StatusCode == http.StatusUnauthorized || he.StatusCode == http.StatusForbidden) {
		n.warmUp(ctx)
		resp, err = n.client.GET(ctx, path)
	}
	return resp, err
}

// Snapshot returns the nearest expiry's chain for an index underlying.
func (n *NSE) Snapshot(ctx context.Context, underlying string) (types.OISnapshot, error) {
	resp, err := n.fetch(ctx, underlying)
	if err != nil {
		return types.OISnapshot{}, fmt.Errorf("option chain %s: %w", underlying, err)
	}

	var r chainResponse
	if err := resp.ParseJSON(&r); err != nil {
		return types.OISnapshot{}, fmt.Errorf("option chain %s: %w", underlying, err)
	}
	if len(r.Records.ExpiryDates) == 0 {
		return types.OISnapshot{}, fmt.Errorf("option chain %s: no expiries", underlying)
	}

	expiry := r.Records.ExpiryDates[0]
	snap := types.OISnapshot{
		Underlying: underlying,
		Expiry:     expiry,
		Spot:       r.Records.UnderlyingValue,
		FetchedAt:  n.now(),
	}
	for _, row := range r.Records.Data {
		if row.ExpiryDate != expiry {
			continue
		}
		k := types.StrikeOI{Strike: row.StrikePrice}
		if row.CE != nil {
			k.CallOI, k.CallOIChange = row.CE.OpenInterest, row.CE.ChangeInOpenInterest
		}
		if row.PE != nil {
			k.PutOI, k.PutOIChange = row.PE.OpenInterest, row.PE.ChangeInOpenInterest
		}
		snap.Strikes = append(snap.Strikes, k)
	}
	return snap, nil
}
