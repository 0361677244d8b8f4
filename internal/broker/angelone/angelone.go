// Package angelone is a SmartAPI (Angel One) broker adapter.
package angelone

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp/totp"

	"signal-trader/internal/api"
	"signal-trader/internal/broker"
	"signal-trader/internal/interfaces"
	"signal-trader/internal/types"
)

const (
	DefaultBaseURL = "https://apiconnect.angelbroking.com"

	loginPath   = "/rest/auth/angelbroking/user/v1/loginByPassword"
	refreshPath = "/rest/auth/angelbroking/jwt/v1/generateTokens"
	candlePath  = "/rest/secure/angelbroking/historical/v1/getCandleData"
	orderPath   = "/rest/secure/angelbroking/order/v1/placeOrder"

	// used when the JWT carries no exp claim
	defaultTokenTTL = 24 * time.Hour
	candleLayout    = "2006-01-02 15:04"
)

var ist = time.FixedZone("IST", 19800)

// Error codes that mean the session is no longer usable.
var tokenErrorCodes = map[string]bool{"AG8001": true, "AG8002": true, "AG8003": true}

// Error codes SmartAPI returns for temporary server-side trouble.
var retryableCodes = map[string]bool{"AB1004": true, "AB2001": true}

type Params struct {
	BaseURL       string
	APIKey        string
	ClientCode    string
	PIN           string
	TOTPSecret    string
	Exchange      string
	SymbolTokens  map[string]int
	RefreshMargin time.Duration
	Timeout       time.Duration
}

type AngelOne struct {
	p      Params
	client *api.Client
	keeper *broker.SessionKeeper
	now    func() time.Time
}

var _ interfaces.Broker = (*AngelOne)(nil)

func New(p Params) *AngelOne {
	if p.BaseURL == "" {
		p.BaseURL = DefaultBaseURL
	}
	if p.Exchange == "" {
		p.Exchange = "NSE"
	}
	if p.Timeout == 0 {
		p.Timeout = 10 * time.Second
	}
	a := &AngelOne{
		p: p,
		client: api.NewClient(
			api.WithBaseURL(p.BaseURL),
			api.WithTimeout(p.Timeout),
			api.WithHeaders(map[string]string{
				"Accept":           "application/json",
				"X-UserType":       "USER",
				"X-SourceID":       "WEB",
				"X-ClientLocalIP":  "127.0.0.1",
				"X-ClientPublicIP": "127.0.0.1",
				"X-MACAddress":     "00:00:00:00:00:00",
				"X-PrivateKey":     p.APIKey,
			}),
		),
		now: time.Now,
	}
	a.keeper = broker.NewSessionKeeper(a.login, a.refresh, p.RefreshMargin)
	return a
}

// envelope is SmartAPI's common response shape.
type envelope[T any] struct {
	Status    bool   `json:"status"`
	Message   string `json:"message"`
	ErrorCode string `json:"errorcode"`
	Data      T      `json:"data"`
}

type tokenData struct {
	JWTToken     string `json:"jwtToken"`
	RefreshToken string `json:"refreshToken"`
	FeedToken    string `json:"feedToken"`
}

// tokenExpiry reads the exp claim without verifying the signature; the
// broker is the verifier, this only schedules the refresh.
func (a *AngelOne) tokenExpiry(raw string) time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return a.now().Add(defaultTokenTTL)
}

func (a *AngelOne) session(d tokenData) types.Session {
	return types.Session{
		AccessToken:  d.JWTToken,
		RefreshToken: d.RefreshToken,
		FeedToken:    d.FeedToken,
		ExpiresAt:    a.tokenExpiry(d.JWTToken),
	}
}

func (a *AngelOne) login(ctx context.Context) (types.Session, error) {
	code, err := totp.GenerateCode(a.p.TOTPSecret, a.now())
	if err != nil {
		return types.Session{}, broker.Terminal("login", fmt.Errorf("totp: %w", err))
	}
	body := map[string]string{"clientcode": a.p.ClientCode, "password": a.p.PIN, "totp": code}

	var out envelope[tokenData]
	if err := post(ctx, a, "login", loginPath, "", body, &out); err != nil {
		return types.Session{}, err
	}
	if out.Data.JWTToken == "" {
		return types.Session{}, broker.Terminal("login", errors.New("no jwtToken in response"))
	}
	return a.session(out.Data), nil
}

func (a *AngelOne) refresh(ctx context.Context, cur types.Session) (types.Session, error) {
	var out envelope[tokenData]
	if err := post(ctx, a, "refresh", refreshPath, cur.AccessToken, map[string]string{"refreshToken": cur.RefreshToken}, &out); err != nil {
		return types.Session{}, err
	}
	if out.Data.RefreshToken == "" {
		out.Data.RefreshToken = cur.RefreshToken
	}
	return a.session(out.Data), nil
}

func (a *AngelOne) Login(ctx context.Context) (types.Session, error) {
	return a.keeper.Login(ctx)
}

// APIError is a response with status=false.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string { return e.Code + ": " + e.Message }

// fail drops the session when the broker says the token is no longer good.
// It must not run inside login or refresh, which hold the keeper's lock.
func (a *AngelOne) fail(err error) error {
	var ae *APIError
	var he *api.HTTPError
	if (errors.As(err, &ae) && tokenErrorCodes[ae.Code]) || (errors.As(err, &he) && he.StatusCode == http.StatusUnauthorized) {
		a.keeper.Invalidate()
	}
	return err
}

// post sends an authenticated (when bearer != "") request and decodes the envelope.
func post[T any](ctx context.Context, a *AngelOne, op, path, bearer string, body any, out *envelope[T]) error {
	req := api.NewRequest(http.MethodPost, path).WithContext(ctx).WithBody(body)
	if bearer != "" {
		req.WithHeader("Authorization", "Bearer "+bearer)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		if broker.IsTransient(err) {
			return broker.Transient(op, err)
		}
		return broker.Terminal(op, err)
	}
	if err := resp.ParseJSON(out); err != nil {
		return broker.Terminal(op, err)
	}
	if !out.Status {
		err := &APIError{Code: out.ErrorCode, Message: out.Message}
		if retryableCodes[out.ErrorCode] {
			return broker.Transient(op, err)
		}
		return broker.Terminal(op, err)
	}
	return nil
}

func (a *AngelOne) symbolToken(symbol string) (string, error) {
	tok, ok := a.p.SymbolTokens[symbol]
	if !ok {
		return "", broker.Terminal("symbol_token", fmt.Errorf("no symbol token configured for %s", symbol))
	}
	return strconv.Itoa(tok), nil
}

// Interval maps Kite-style interval names onto SmartAPI's.
func Interval(kite string) (string, error) {
	switch kite {
	case "minute", "1minute":
		return "ONE_MINUTE", nil
	case "3minute":
		return "THREE_MINUTE", nil
	case "5minute":
		return "FIVE_MINUTE", nil
	case "10minute":
		return "TEN_MINUTE", nil
	case "15minute":
		return "FIFTEEN_MINUTE", nil
	case "30minute":
		return "THIRTY_MINUTE", nil
	case "60minute", "hour":
		return "ONE_HOUR", nil
	case "day":
		return "ONE_DAY", nil
	}
	return "", fmt.Errorf("unsupported interval %q", kite)
}

func (a *AngelOne) Candles(ctx context.Context, q types.CandleQuery) ([]types.Candle, error) {
	s, err := a.keeper.Ensure(ctx)
	if err != nil {
		return nil, err
	}
	tok, err := a.symbolToken(q.Symbol)
	if err != nil {
		return nil, err
	}
	interval, err := Interval(q.Interval)
	if err != nil {
		return nil, broker.Terminal("candles", err)
	}
	exchange := q.Exchange
	if exchange == "" {
		exchange = a.p.Exchange
	}

	body := map[string]string{
		"exchange":    exchange,
		"symboltoken": tok,
		"interval":    interval,
		"fromdate":    q.From.In(ist).Format(candleLayout),
		"todate":      q.To.In(ist).Format(candleLayout),
	}
	var out envelope[[][]any]
	if err := post(ctx, a, "candles", candlePath, s.AccessToken, body, &out); err != nil {
		return nil, a.fail(err)
	}

	candles := make([]types.Candle, 0, len(out.Data))
	for _, row := range out.Data {
		c, err := parseCandle(row)
		if err != nil {
			return nil, broker.Terminal("candles", err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

// parseCandle reads [timestamp, open, high, low, close, volume].
func parseCandle(row []any) (types.Candle, error) {
	if len(row) < 6 {
		return types.Candle{}, fmt.Errorf("short candle row: %v", row)
	}
	tsRaw, ok := row[0].(string)
	if !ok {
		return types.Candle{}, fmt.Errorf("bad candle timestamp: %v", row[0])
	}
	ts, err := time.Parse(time.RFC3339, tsRaw)
	if err != nil {
		return types.Candle{}, fmt.Errorf("bad candle timestamp: %w", err)
	}
	var vals [5]float64
	for i := range vals {
		f, ok := row[i+1].(float64)
		if !ok {
			return types.Candle{}, fmt.Errorf("bad candle value at %d: %v", i+1, row[i+1])
		}
		vals[i] = f
	}
	return types.Candle{Ts: ts.Unix(), Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Vol: vals[4]}, nil
}

type orderData struct {
	OrderID string `json:"orderid"`
}

func (a *AngelOne) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	s, err := a.keeper.Ensure(ctx)
	if err != nil {
		return types.OrderResp{}, err
	}
	tok, err := a.symbolToken(req.Symbol)
	if err != nil {
		return types.OrderResp{}, err
	}
	exchange := req.Exchange
	if exchange == "" {
		exchange = a.p.Exchange
	}
	product := "INTRADAY"
	if req.Product == "CNC" {
		product = "DELIVERY"
	}

	body := map[string]string{
		"variety":         "NORMAL",
		"tradingsymbol":   req.Symbol + "-EQ",
		"symboltoken":     tok,
		"transactiontype": string(req.Side),
		"exchange":        exchange,
		"ordertype":       "MARKET",
		"producttype":     product,
		"duration":        "DAY",
		"quantity":        strconv.Itoa(req.Qty),
		"ordertag":        req.Tag,
	}
	var out envelope[orderData]
	if err := post(ctx, a, "place_order", orderPath, s.AccessToken, body, &out); err != nil {
		return types.OrderResp{}, a.fail(err)
	}
	return types.OrderResp{OrderID: out.Data.OrderID, Status: "PLACED", Message: out.Message}, nil
}
