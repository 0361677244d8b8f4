package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one OHLCV bar. Ts is unix seconds.
type Candle struct {
	Ts                          int64
	Open, High, Low, Close, Vol float64
}

func (c Candle) Time() time.Time { return time.Unix(c.Ts, 0) }

// CandleQuery selects historical bars from a broker.
type CandleQuery struct {
	Exchange string
	Symbol   string
	Interval string // e.g. "5minute"
	From, To time.Time
}

// Direction is the bias of a single indicator reading.
type Direction string

const (
	DirectionBuy     Direction = "BUY"
	DirectionSell    Direction = "SELL"
	DirectionNeutral Direction = "NEUTRAL"
)

// Action is the outcome of combining signals.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Opposite returns the order side that closes a position opened by a.
func (a Action) Opposite() Action {
	switch a {
	case ActionBuy:
		return ActionSell
	case ActionSell:
		return ActionBuy
	}
	return ActionHold
}

// Signal names known to the combiner.
const (
	SignalRSI       = "RSI"
	SignalMACD      = "MACD"
	SignalEMACross  = "EMA_CROSS"
	SignalPCR       = "PCR"
	SignalOITrend   = "OI_TREND"
	SignalSentiment = "SENTIMENT"

	// Informational only; always NEUTRAL but can be bounded by the risk gate.
	SignalATR    = "ATR"
	SignalBBPctB = "BB_PCT_B"
)

// IndicatorSignal is a normalized indicator reading.
type IndicatorSignal struct {
	Name      string    `json:"name"`
	Value     float64   `json:"value"`
	Direction Direction `json:"direction"`
	Timestamp time.Time `json:"timestamp"`
}

// Decision is the combiner's intent for one symbol at one evaluation.
type Decision struct {
	ID             string                     `json:"id"`
	Symbol         string                     `json:"symbol"`
	Action         Action                     `json:"action"`
	Qty            int                        `json:"qty"`
	ReferencePrice float64                    `json:"reference_price"`
	Signals        map[string]IndicatorSignal `json:"signals,omitempty"`
	Reason         string                     `json:"reason,omitempty"`
	Time           time.Time                  `json:"time"`
}

// Notional is qty times reference price.
func (d Decision) Notional() decimal.Decimal {
	return decimal.NewFromFloat(d.ReferencePrice).Mul(decimal.NewFromInt(int64(d.Qty)))
}

// RiskState is the risk gate's daily budget snapshot.
type RiskState struct {
	DailyPnL       decimal.Decimal `json:"daily_pnl"`
	DailyLossLimit decimal.Decimal `json:"daily_loss_limit"`
	ResetDate      time.Time       `json:"reset_date"`
}

// Blocked reports whether the daily loss budget is exhausted.
func (s RiskState) Blocked() bool {
	return s.DailyPnL.LessThanOrEqual(s.DailyLossLimit)
}

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderSubmitted OrderStatus = "SUBMITTED"
	OrderFilled    OrderStatus = "FILLED"
	OrderFailed    OrderStatus = "FAILED"
	OrderRejected  OrderStatus = "REJECTED"
)

// Order is an order acknowledged by the broker.
type Order struct {
	ID           string      `json:"id"`
	DecisionID   string      `json:"decision_id"`
	Symbol       string      `json:"symbol"`
	Action       Action      `json:"action"`
	Qty          int         `json:"qty"`
	Price        float64     `json:"price"`
	Status       OrderStatus `json:"status"`
	BrokerStatus string      `json:"broker_status,omitempty"`
	SubmittedAt  time.Time   `json:"submitted_at"`
	Attempts     int         `json:"attempts"`
	Retries      int         `json:"retries"`
}

// OrderLogEntry is one line of the order audit journal.
type OrderLogEntry struct {
	Time       string      `json:"time"`
	OrderID    string      `json:"order_id"`
	Status     OrderStatus `json:"status"`
	DecisionID string      `json:"decision_id,omitempty"`
	Symbol     string      `json:"symbol,omitempty"`
	Side       Action      `json:"side,omitempty"`
	Qty        int         `json:"qty,omitempty"`
	Price      float64     `json:"price,omitempty"`
	Attempts   int         `json:"attempts,omitempty"`
}

// OrderReq is what a broker is asked to place.
type OrderReq struct {
	Exchange string
	Symbol   string
	Side     Action
	Qty      int
	Product  string
	Tag      string
}

type OrderResp struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Session is an authenticated broker session.
type Session struct {
	AccessToken  string
	RefreshToken string
	FeedToken    string
	ExpiresAt    time.Time
}

// Valid reports whether the session is usable at now with margin to spare.
func (s Session) Valid(now time.Time, margin time.Duration) bool {
	return s.AccessToken != "" && now.Add(margin).Before(s.ExpiresAt)
}

type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNeutral  SentimentLabel = "neutral"
	SentimentNegative SentimentLabel = "negative"
)

// Sentiment is a classified news mood. Score is in [-1, 1].
type Sentiment struct {
	Label     SentimentLabel `json:"label"`
	Score     float64        `json:"score"`
	Headlines int            `json:"headlines"`
	Source    string         `json:"source,omitempty"`
}

func NeutralSentiment() Sentiment {
	return Sentiment{Label: SentimentNeutral}
}

// StrikeOI is open interest at one strike.
type StrikeOI struct {
	Strike       float64
	CallOI       float64
	PutOI        float64
	CallOIChange float64
	PutOIChange  float64
}

// OISnapshot is an option chain for one underlying and expiry.
type OISnapshot struct {
	Underlying string
	Expiry     string
	Spot       float64
	Strikes    []StrikeOI
	FetchedAt  time.Time
}

type OITrend string

const (
	TrendLongBuildup  OITrend = "long_buildup"
	TrendShortBuildup OITrend = "short_buildup"
)

// OIAnalysis summarizes an option chain.
type OIAnalysis struct {
	PCR             float64   `json:"pcr"`
	Trend           OITrend   `json:"trend"`
	TotalCallOI     float64   `json:"total_call_oi"`
	TotalPutOI      float64   `json:"total_put_oi"`
	ChangeDirection Direction `json:"change_direction"`
	Time            time.Time `json:"time"`
}

// StepResult describes one evaluation of one symbol.
type StepResult struct {
	Symbol   string    `json:"symbol"`
	Decision Decision  `json:"decision"`
	Outcome  string    `json:"outcome"`
	Price    float64   `json:"price"`
	Time     int64     `json:"time"`
	Orders   []Order   `json:"orders"`
	Reason   string    `json:"reason"`
	State    RiskState `json:"risk_state"`
}

// Step outcomes.
const (
	OutcomeHold         = "HOLD"
	OutcomeFilled       = "FILLED"
	OutcomeRiskRejected = "RISK_REJECTED"
	OutcomeFailed       = "FAILED"
)

// AlertKind classifies operator alerts.
type AlertKind string

const (
	AlertOrderFailed AlertKind = "ORDER_FAILED"
	AlertAuditFailed AlertKind = "AUDIT_FAILED"
	AlertLossLimit   AlertKind = "LOSS_LIMIT"
	AlertCycleFailed AlertKind = "CYCLE_FAILED"
)

// Alert is a side-channel notification for an operator.
type Alert struct {
	Kind    AlertKind
	Symbol  string
	Message string
	Err     error
	Time    time.Time
}
