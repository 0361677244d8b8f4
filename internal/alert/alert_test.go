package alert

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-trader/internal/api"
	"signal-trader/internal/types"
)

type fakeBot struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbotapi.Message{}, f.err
}

type recorder struct {
	got []types.Alert
	err error
}

func (r *recorder) Alert(ctx context.Context, a types.Alert) error {
	r.got = append(r.got, a)
	return r.err
}

func TestFormat(t *testing.T) {
	a := types.Alert{Kind: types.AlertOrderFailed, Symbol: "TCS", Message: "3 attempts", Err: errors.New("timeout")}
	assert.Equal(t, "[ORDER_FAILED] TCS: 3 attempts (error: timeout)", Format(a))
	assert.Equal(t, "[LOSS_LIMIT]", Format(types.Alert{Kind: types.AlertLossLimit}))
}

func TestTelegram(t *testing.T) {
	bot := &fakeBot{}
	tg := &Telegram{bot: bot, chatID: 42}

	require.NoError(t, tg.Alert(context.Background(), types.Alert{Kind: types.AlertOrderFailed, Symbol: "INFY"}))
	require.Len(t, bot.sent, 1)
	assert.Equal(t, int64(42), bot.sent[0].ChatID)
	assert.Contains(t, bot.sent[0].Text, "INFY")

	bot.err = errors.New("blocked")
	assert.Error(t, tg.Alert(context.Background(), types.Alert{}))
}

func TestDiscord(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscord(srv.URL, api.NewClient())
	require.NoError(t, d.Alert(context.Background(), types.Alert{Kind: types.AlertAuditFailed, Message: "disk full"}))

	embeds := body["embeds"].([]any)
	assert.Equal(t, "AUDIT_FAILED", embeds[0].(map[string]any)["title"])
}

func TestFanoutContinuesPastFailures(t *testing.T) {
	bad := &recorder{err: errors.New("down")}
	good := &recorder{}
	f := NewFanout(nil, bad, good)

	err := f.Alert(context.Background(), types.Alert{Kind: types.AlertCycleFailed})
	assert.Error(t, err)
	assert.Len(t, bad.got, 1)
	require.Len(t, good.got, 1)
	assert.False(t, good.got[0].Time.IsZero())
}
