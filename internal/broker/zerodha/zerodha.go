package zerodha

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"signal-trader/internal/broker"
	"signal-trader/internal/interfaces"
	"signal-trader/internal/types"
)

var ist = time.FixedZone("IST", 19800)

// kiteAPI is the subset of *kiteconnect.Client used here.
type kiteAPI interface {
	SetAccessToken(accessToken string)
	GenerateSession(requestToken string, apiSecret string) (kiteconnect.UserSession, error)
	RenewAccessToken(refreshToken string, apiSecret string) (kiteconnect.UserSessionTokens, error)
	GetInstrumentsByExchange(exchange string) (kiteconnect.Instruments, error)
	GetHistoricalData(instrumentToken int, interval string, fromDate time.Time, toDate time.Time, continuous bool, OI bool) ([]kiteconnect.HistoricalData, error)
	PlaceOrder(variety string, orderParams kiteconnect.OrderParams) (kiteconnect.OrderResponse, error)
}

type Params struct {
	APIKey        string
	APISecret     string
	RequestToken  string
	AccessToken   string
	Exchange      string
	RefreshMargin time.Duration
	HTTPClient    *http.Client
}

// Zerodha talks to Kite Connect. Every authenticated call first ensures the
// session is valid, refreshing it when it is about to expire.
type Zerodha struct {
	p           Params
	kite        kiteAPI
	keeper      *broker.SessionKeeper
	instruments *instrumentMapper

	tokenMu sync.Mutex
	token   string
	now     func() time.Time
}

var _ interfaces.Broker = (*Zerodha)(nil)

func New(p Params) *Zerodha {
	kc := kiteconnect.New(p.APIKey)
	if p.HTTPClient != nil {
		kc.SetHTTPClient(p.HTTPClient)
	}
	return newWithClient(p, kc)
}

func newWithClient(p Params, kite kiteAPI) *Zerodha {
	if p.Exchange == "" {
		p.Exchange = "NSE"
	}
	z := &Zerodha{p: p, kite: kite, instruments: newInstrumentMapper(), now: time.Now}
	z.keeper = broker.NewSessionKeeper(z.login, z.refresh, p.RefreshMargin)
	return z
}

// nextExpiry is when Kite invalidates access tokens: 06:00 IST the following morning.
func nextExpiry(t time.Time) time.Time {
	t = t.In(ist)
	six := time.Date(t.Year(), t.Month(), t.Day(), 6, 0, 0, 0, ist)
	if !t.Before(six) {
		six = six.AddDate(0, 0, 1)
	}
	return six
}

func (z *Zerodha) login(ctx context.Context) (types.Session, error) {
	if z.p.RequestToken == "" {
		if z.p.AccessToken == "" {
			return types.Session{}, broker.Terminal("login", errors.New("KITE_ACCESS_TOKEN or KITE_REQUEST_TOKEN required"))
		}
		return types.Session{AccessToken: z.p.AccessToken, ExpiresAt: nextExpiry(z.now())}, nil
	}

	us, err := broker.Await(ctx, func() (kiteconnect.UserSession, error) {
		return z.kite.GenerateSession(z.p.RequestToken, z.p.APISecret)
	})
	if err != nil {
		return types.Session{}, classify("login", err)
	}
	// request tokens are single use
	z.p.RequestToken = ""
	z.p.AccessToken = us.AccessToken
	return types.Session{
		AccessToken:  us.AccessToken,
		RefreshToken: us.RefreshToken,
		ExpiresAt:    nextExpiry(z.now()),
	}, nil
}

func (z *Zerodha) refresh(ctx context.Context, cur types.Session) (types.Session, error) {
	tokens, err := broker.Await(ctx, func() (kiteconnect.UserSessionTokens, error) {
		return z.kite.RenewAccessToken(cur.RefreshToken, z.p.APISecret)
	})
	if err != nil {
		return types.Session{}, classify("refresh", err)
	}
	rt := tokens.RefreshToken
	if rt == "" {
		rt = cur.RefreshToken
	}
	return types.Session{AccessToken: tokens.AccessToken, RefreshToken: rt, ExpiresAt: nextExpiry(z.now())}, nil
}

// authorize makes sure the client carries a valid token.
func (z *Zerodha) authorize(ctx context.Context) error {
	s, err := z.keeper.Ensure(ctx)
	if err != nil {
		return err
	}
	z.tokenMu.Lock()
	defer z.tokenMu.Unlock()
	if s.AccessToken != z.token {
		z.kite.SetAccessToken(s.AccessToken)
		z.token = s.AccessToken
	}
	return nil
}

func (z *Zerodha) Login(ctx context.Context) (types.Session, error) {
	s, err := z.keeper.Login(ctx)
	if err != nil {
		return types.Session{}, err
	}
	if err := z.authorize(ctx); err != nil {
		return types.Session{}, err
	}
	return s, nil
}

func (z *Zerodha) loadInstruments(ctx context.Context) error {
	if z.instruments.isLoaded() {
		return nil
	}
	list, err := broker.Await(ctx, func() (kiteconnect.Instruments, error) {
		return z.kite.GetInstrumentsByExchange(z.p.Exchange)
	})
	if err != nil {
		return classify("instruments", err)
	}
	for _, ins := range list {
		z.instruments.addMapping(ins.Tradingsymbol, ins.InstrumentToken)
	}
	z.instruments.markLoaded()
	return nil
}

func (z *Zerodha) Candles(ctx context.Context, q types.CandleQuery) ([]types.Candle, error) {
	if err := z.authorize(ctx); err != nil {
		return nil, err
	}
	if err := z.loadInstruments(ctx); err != nil {
		return nil, err
	}
	token, err := z.instruments.getToken(q.Symbol)
	if err != nil {
		return nil, broker.Terminal("candles", err)
	}

	bars, err := broker.Await(ctx, func() ([]kiteconnect.HistoricalData, error) {
		return z.kite.GetHistoricalData(token, q.Interval, q.From, q.To, false, false)
	})
	if err != nil {
		return nil, z.fail("candles", err)
	}

	out := make([]types.Candle, 0, len(bars))
	for _, b := range bars {
		out = append(out, types.Candle{
			Ts:    b.Date.Time.Unix(),
			Open:  b.Open,
			High:  b.High,
			Low:   b.Low,
			Close: b.Close,
			Vol:   float64(b.Volume),
		})
	}
	return out, nil
}

func (z *Zerodha) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	if err := z.authorize(ctx); err != nil {
		return types.OrderResp{}, err
	}

	side := kiteconnect.TransactionTypeBuy
	if req.Side == types.ActionSell {
		side = kiteconnect.TransactionTypeSell
	}
	exchange := req.Exchange
	if exchange == "" {
		exchange = z.p.Exchange
	}
	product := req.Product
	if product == "" {
		product = kiteconnect.ProductMIS
	}

	params := kiteconnect.OrderParams{
		Exchange:        exchange,
		Tradingsymbol:   req.Symbol,
		Validity:        kiteconnect.ValidityDay,
		Product:         product,
		OrderType:       kiteconnect.OrderTypeMarket,
		TransactionType: side,
		Quantity:        req.Qty,
		Tag:             req.Tag,
	}
	resp, err := broker.Await(ctx, func() (kiteconnect.OrderResponse, error) {
		return z.kite.PlaceOrder(kiteconnect.VarietyRegular, params)
	})
	if err != nil {
		return types.OrderResp{}, z.fail("place_order", err)
	}
	return types.OrderResp{OrderID: resp.OrderID, Status: "PLACED"}, nil
}

// fail classifies err and drops the session on token errors so the next call logs in again.
func (z *Zerodha) fail(op string, err error) error {
	var ke kiteconnect.Error
	if errors.As(err, &ke) && ke.ErrorType == kiteconnect.TokenError {
		z.keeper.Invalidate()
	}
	return classify(op, err)
}

// classify maps Kite exception types onto transient/terminal.
func classify(op string, err error) error {
	var ke kiteconnect.Error
	if errors.As(err, &ke) {
		switch ke.ErrorType {
		case kiteconnect.NetworkError, kiteconnect.DataError:
			return broker.Transient(op, err)
		case kiteconnect.GeneralError:
			if ke.Code == http.StatusTooManyRequests || ke.Code >= 500 {
				return broker.Transient(op, err)
			}
		}
		return broker.Terminal(op, fmt.Errorf("%s: %w", ke.ErrorType, err))
	}
	if broker.IsTransient(err) {
		return broker.Transient(op, err)
	}
	return broker.Terminal(op, err)
}
