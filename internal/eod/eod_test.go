package eod

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-trader/internal/tradelog"
	"signal-trader/internal/types"
)

type staticOrders []types.OrderLogEntry

func (s staticOrders) ReadOrders(time.Time) ([]types.OrderLogEntry, error) { return s, nil }

func readCSV(t *testing.T, p string) [][]string {
	t.Helper()
	f, err := os.Open(p)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestSummarizeDayAggregatesFills(t *testing.T) {
	dir := t.TempDir()
	s := New(staticOrders{
		{OrderID: "1", Status: types.OrderFilled, Symbol: "TCS", Side: types.ActionBuy, Qty: 10, Price: 100},
		{OrderID: "2", Status: types.OrderFilled, Symbol: "TCS", Side: types.ActionBuy, Qty: 10, Price: 110},
		{OrderID: "3", Status: types.OrderFilled, Symbol: "TCS", Side: types.ActionSell, Qty: 10, Price: 120},
		{OrderID: "4", Status: types.OrderFilled, Symbol: "INFY", Side: types.ActionSell, Qty: 1, Price: 0.1},
		{OrderID: "5", Status: types.OrderFilled, Symbol: "INFY", Side: types.ActionBuy, Qty: 1, Price: 0.2},
		{OrderID: "6", Status: types.OrderFailed, Symbol: "SBIN", Side: types.ActionBuy, Qty: 1, Price: 500},
	}, dir)
	day := time.Date(2024, 3, 4, 16, 0, 0, 0, ist)

	p, err := s.SummarizeDay(day)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "eod", "2024-03-04.csv"), p)

	rows := readCSV(t, p)
	require.Len(t, rows, 4)
	assert.Equal(t, "symbol", rows[0][0])
	assert.Equal(t, []string{"INFY", "1", "0.2000", "1", "0.1000", "-0.10", "0.20", "0.10"}, rows[1])
	assert.Equal(t, []string{"TCS", "20", "105.0000", "10", "120.0000", "150.00", "2100.00", "1200.00"}, rows[2])
	assert.Equal(t, []string{"TOTAL", "", "", "", "", "149.90", "2100.20", "1200.10"}, rows[3])
}

func TestSummarizeDayWithoutTrades(t *testing.T) {
	dir := t.TempDir()
	s := New(staticOrders{{OrderID: "x", Status: types.OrderRejected, Symbol: "TCS", Side: types.ActionBuy, Qty: 1}}, dir)

	p, err := s.SummarizeDay(time.Now())
	require.NoError(t, err)
	assert.Empty(t, p)
	assert.NoDirExists(t, filepath.Join(dir, "eod"))
}

func TestSummarizeFromJournal(t *testing.T) {
	dir := t.TempDir()
	j := tradelog.New(dir)
	require.NoError(t, j.Append(types.OrderLogEntry{OrderID: "a", Status: types.OrderFilled, Symbol: "RELIANCE", Side: types.ActionBuy, Qty: 2, Price: 2500}))

	p, err := New(j, dir).SummarizeToday()
	require.NoError(t, err)
	rows := readCSV(t, p)
	assert.Equal(t, "RELIANCE", rows[1][0])
	assert.Equal(t, "5000.00", rows[1][6])
}

func TestShouldRunNow(t *testing.T) {
	dir := t.TempDir()
	s := New(staticOrders{{OrderID: "1", Status: types.OrderFilled, Symbol: "TCS", Side: types.ActionBuy, Qty: 1, Price: 1}}, dir)

	s.now = func() time.Time { return time.Date(2024, 3, 4, 15, 30, 0, 0, ist) }
	ok, _ := s.ShouldRunNow()
	assert.False(t, ok, "market still open")

	s.now = func() time.Time { return time.Date(2024, 3, 4, 15, 41, 0, 0, ist) }
	ok, p := s.ShouldRunNow()
	assert.True(t, ok)

	got, err := s.SummarizeToday()
	require.NoError(t, err)
	assert.Equal(t, p, got)

	ok, _ = s.ShouldRunNow()
	assert.False(t, ok, "already written")
}
