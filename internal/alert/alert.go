// Package alert delivers operator notifications on a channel separate from the
// structured log: Telegram, a Discord webhook, or just the log itself.
package alert

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"signal-trader/internal/api"
	"signal-trader/internal/interfaces"
	"signal-trader/internal/logger"
	"signal-trader/internal/metrics"
	"signal-trader/internal/types"
)

// Format renders an alert as plain text.
func Format(a types.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", a.Kind)
	if a.Symbol != "" {
		fmt.Fprintf(&b, " %s", a.Symbol)
	}
	if a.Message != "" {
		fmt.Fprintf(&b, ": %s", a.Message)
	}
	if a.Err != nil {
		fmt.Fprintf(&b, " (error: %v)", a.Err)
	}
	return b.String()
}

// Log writes alerts to the structured log at ERROR with type=ALERT.
type Log struct{}

func (Log) Alert(ctx context.Context, a types.Alert) error {
	fields := []any{"symbol", a.Symbol}
	if a.Err != nil {
		fields = append(fields, "error", a.Err.Error())
	}
	logger.Alert(ctx, string(a.Kind), a.Message, fields...)
	return nil
}

// telegramSender is the part of *tgbotapi.BotAPI used here.
type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Telegram struct {
	bot    telegramSender
	chatID int64
}

// NewTelegram authenticates the bot token against the Telegram API.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &Telegram{bot: bot, chatID: chatID}, nil
}

func (t *Telegram) Alert(ctx context.Context, a types.Alert) error {
	msg := tgbotapi.NewMessage(t.chatID, Format(a))
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// Discord posts an embed to a webhook.
type Discord struct {
	client     *api.Client
	webhookURL string
}

func NewDiscord(webhookURL string, client *api.Client) *Discord {
	if client == nil {
		client = api.NewClient(api.WithTimeout(10 * time.Second))
	}
	return &Discord{client: client, webhookURL: webhookURL}
}

func (d *Discord) Alert(ctx context.Context, a types.Alert) error {
	ts := a.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	payload := map[string]any{
		"embeds": []map[string]any{{
			"title":       string(a.Kind),
			"description": Format(a),
			"color":       0xE74C3C,
			"timestamp":   ts.Format(time.RFC3339),
		}},
	}
	if _, err := d.client.POST(ctx, d.webhookURL, payload); err != nil {
		return fmt.Errorf("discord webhook: %w", err)
	}
	return nil
}

// Fanout logs every alert, forwards it to each channel and counts it.
// One failing channel does not stop the others.
type Fanout struct {
	channels []interfaces.Alerter
	metrics  *metrics.Metrics
}

var _ interfaces.Alerter = (*Fanout)(nil)

func NewFanout(m *metrics.Metrics, channels ...interfaces.Alerter) *Fanout {
	return &Fanout{channels: channels, metrics: m}
}

func (f *Fanout) Alert(ctx context.Context, a types.Alert) error {
	if a.Time.IsZero() {
		a.Time = time.Now()
	}
	f.metrics.Alert(string(a.Kind))
	_ = Log{}.Alert(ctx, a)

	var errs []error
	for _, ch := range f.channels {
		if err := ch.Alert(ctx, a); err != nil {
			logger.Warn(ctx, "Alert channel failed", "kind", a.Kind, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
