package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Payload is what an escalation contact receives. It deliberately carries no
// message text, only the matched phrases.
type Payload struct {
	AlertID   string    `json:"alertId"`
	EventID   string    `json:"eventId"`
	UserID    uint64    `json:"userId"`
	SessionID string    `json:"sessionId"`
	Level     string    `json:"level"`
	Keywords  []string  `json:"keywords"`
	Timestamp time.Time `json:"timestamp"`
}

type Notifier interface {
	Notify(ctx context.Context, p Payload) error
}

// New returns a webhook notifier when url is set, else one that only logs.
func New(url string, log *zap.Logger) Notifier {
	if url == "" {
		return &LogNotifier{log: log}
	}
	return NewWebhook(url)
}

type Webhook struct {
	url    string
	client *http.Client
}

func NewWebhook(url string) *Webhook {
	return &Webhook{url: url, client: &http.Client{Timeout: 10 * time.Second}}
}

func (w *Webhook) Notify(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: status %d", resp.StatusCode)
	}
	return nil
}

type LogNotifier struct {
	log *zap.Logger
}

func (n *LogNotifier) Notify(_ context.Context, p Payload) error {
	n.log.Warn("crisis escalation",
		zap.String("alert_id", p.AlertID),
		zap.String("event_id", p.EventID),
		zap.Uint64("user_id", p.UserID),
		zap.String("session_id", p.SessionID),
		zap.String("level", p.Level),
		zap.Strings("keywords", p.Keywords),
	)
	return nil
}
