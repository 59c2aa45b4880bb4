// File: internal/notify/telegram.go

// Package notify delivers the run outcome to a Telegram chat. Delivery is
// strictly best-effort: a notification failure is logged and swallowed.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/nkrsz/renewctl/internal/config"
	"github.com/nkrsz/renewctl/internal/renewal"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const defaultAPIBase = "https://api.telegram.org"

const sendTimeout = 15 * time.Second

// Notifier posts run outcomes to the configured chat.
type Notifier struct {
	cfg     config.NotifyConfig
	apiBase string
	client  *http.Client
	log     *zap.Logger
}

// NewNotifier builds the notifier. With incomplete configuration every
// Notify call becomes a logged no-op.
func NewNotifier(cfg config.NotifyConfig, httpClient *http.Client, logger *zap.Logger) *Notifier {
	return &Notifier{
		cfg:     cfg,
		apiBase: defaultAPIBase,
		client:  httpClient,
		log:     logger.Named("notify"),
	}
}

// WithAPIBase overrides the Telegram API base URL.
func (n *Notifier) WithAPIBase(base string) *Notifier {
	n.apiBase = base
	return n
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// Notify renders and delivers the outcome message. Never returns an error;
// failures are logged.
func (n *Notifier) Notify(ctx context.Context, outcome renewal.Outcome) {
	if !n.cfg.Enabled() {
		n.log.Debug("Notifier not configured, skipping")
		return
	}

	if err := n.send(ctx, RenderMessage(outcome)); err != nil {
		n.log.Warn("Notification delivery failed", zap.Error(err))
		return
	}
	n.log.Info("Notification sent", zap.String("status", string(outcome.Status)))
}

func (n *Notifier) send(ctx context.Context, text string) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:    n.cfg.TelegramChatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.cfg.TelegramToken)
	req, err := http.NewRequestWithContext(sendCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}
	return nil
}

// messageHeadings carry the per-status wording, HTML-formatted for
// Telegram.
var messageHeadings = map[renewal.Status]string{
	renewal.StatusSuccess:   "✅ <b>VPS renewal completed</b>",
	renewal.StatusUnexpired: "ℹ️ <b>VPS not yet renewable</b>",
	renewal.StatusFailed:    "❌ <b>VPS renewal failed</b>",
	renewal.StatusUnknown:   "⚠️ <b>VPS renewal outcome unclear</b>, check the panel manually",
}

// RenderMessage produces the notification body. Dates display in JST.
func RenderMessage(outcome renewal.Outcome) string {
	heading, ok := messageHeadings[outcome.Status]
	if !ok {
		heading = string(outcome.Status)
	}

	msg := heading
	msg += fmt.Sprintf("\nRun: %s", outcome.FinishedAt.In(renewal.JST).Format("2006-01-02 15:04 MST"))
	if outcome.ExpiryBefore.Known() {
		msg += fmt.Sprintf("\nExpiry before: %s", outcome.ExpiryBefore.Date.Format("2006-01-02"))
	}
	if outcome.ExpiryAfter.Known() {
		msg += fmt.Sprintf("\nExpiry after: %s", outcome.ExpiryAfter.Date.Format("2006-01-02"))
	}
	if outcome.ErrorDetail != "" {
		msg += fmt.Sprintf("\nDetail: %s", outcome.ErrorDetail)
	}
	return msg
}
