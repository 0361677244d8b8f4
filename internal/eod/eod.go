// Package eod writes the end-of-day CSV from the order journal.
package eod

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"signal-trader/internal/interfaces"
	"signal-trader/internal/types"
)

var ist = time.FixedZone("IST", 19800)

// OrderReader returns the journaled orders for t's IST date.
type OrderReader interface {
	ReadOrders(t time.Time) ([]types.OrderLogEntry, error)
}

type aggRow struct {
	Symbol    string
	BuyQty    int
	BuyValue  decimal.Decimal
	SellQty   int
	SellValue decimal.Decimal
}

func (r *aggRow) buyAvg() decimal.Decimal {
	if r.BuyQty == 0 {
		return decimal.Zero
	}
	return r.BuyValue.Div(decimal.NewFromInt(int64(r.BuyQty)))
}

func (r *aggRow) sellAvg() decimal.Decimal {
	if r.SellQty == 0 {
		return decimal.Zero
	}
	return r.SellValue.Div(decimal.NewFromInt(int64(r.SellQty)))
}

// realized is the P&L on the matched quantity at average prices.
func (r *aggRow) realized() decimal.Decimal {
	matched := min(r.BuyQty, r.SellQty)
	return r.sellAvg().Sub(r.buyAvg()).Mul(decimal.NewFromInt(int64(matched)))
}

type Summarizer struct {
	orders OrderReader
	dir    string
	now    func() time.Time
}

var _ interfaces.EodSummarizer = (*Summarizer)(nil)

// New writes summaries under <dir>/eod.
func New(orders OrderReader, dir string) *Summarizer {
	if dir == "" {
		dir = "logs"
	}
	return &Summarizer{orders: orders, dir: dir, now: time.Now}
}

func (s *Summarizer) csvPath(t time.Time) string {
	return filepath.Join(s.dir, "eod", t.In(ist).Format("2006-01-02")+".csv")
}

func marketClose(t time.Time) time.Time {
	t = t.In(ist)
	return time.Date(t.Year(), t.Month(), t.Day(), 15, 40, 0, 0, ist)
}

// SummarizeDay aggregates t's filled orders per symbol. No trades means no
// file and an empty path.
func (s *Summarizer) SummarizeDay(t time.Time) (string, error) {
	entries, err := s.orders.ReadOrders(t)
	if err != nil {
		return "", err
	}

	aggs := map[string]*aggRow{}
	for _, e := range entries {
		if e.Status != types.OrderFilled || e.Qty <= 0 {
			continue
		}
		row := aggs[e.Symbol]
		if row == nil {
			row = &aggRow{Symbol: e.Symbol}
			aggs[e.Symbol] = row
		}
		value := decimal.NewFromFloat(e.Price).Mul(decimal.NewFromInt(int64(e.Qty)))
		switch e.Side {
		case types.ActionBuy:
			row.BuyQty += e.Qty
			row.BuyValue = row.BuyValue.Add(value)
		case types.ActionSell:
			row.SellQty += e.Qty
			row.SellValue = row.SellValue.Add(value)
		}
	}
	if len(aggs) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(aggs))
	for k := range aggs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	outPath := s.csvPath(t)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	w := csv.NewWriter(out)
	headers := []string{"symbol", "buy_qty", "buy_avg", "sell_qty", "sell_avg", "realized_pnl", "gross_buy_value", "gross_sell_value"}
	if err := w.Write(headers); err != nil {
		return "", err
	}
	var totalBuy, totalSell, totalPnL decimal.Decimal
	for _, k := range keys {
		r := aggs[k]
		pnl := r.realized()
		rec := []string{
			r.Symbol,
			strconv.Itoa(r.BuyQty),
			r.buyAvg().StringFixed(4),
			strconv.Itoa(r.SellQty),
			r.sellAvg().StringFixed(4),
			pnl.StringFixed(2),
			r.BuyValue.StringFixed(2),
			r.SellValue.StringFixed(2),
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
		totalBuy = totalBuy.Add(r.BuyValue)
		totalSell = totalSell.Add(r.SellValue)
		totalPnL = totalPnL.Add(pnl)
	}
	if err := w.Write([]string{"TOTAL", "", "", "", "", totalPnL.StringFixed(2), totalBuy.StringFixed(2), totalSell.StringFixed(2)}); err != nil {
		return "", err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return outPath, out.Sync()
}

func (s *Summarizer) SummarizeToday() (string, error) {
	return s.SummarizeDay(s.now())
}

// ShouldRunNow is true once after 15:40 IST: until today's CSV exists.
func (s *Summarizer) ShouldRunNow() (bool, string) {
	now := s.now()
	outPath := s.csvPath(now)
	if !now.After(marketClose(now)) {
		return false, outPath
	}
	if _, err := os.Stat(outPath); errors.Is(err, os.ErrNotExist) {
		return true, outPath
	}
	return false, outPath
}
