package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// LarkNotifier posts grouped signal text to a Lark custom-bot webhook.
type LarkNotifier struct {
	webhookURL string
	client     *http.Client
	logger     zerolog.Logger
}

// NewLarkNotifier constructs a Lark webhook notifier.
func NewLarkNotifier(webhookURL string, timeout time.Duration, logger zerolog.Logger) *LarkNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LarkNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "alert_lark").Logger(),
	}
}

// Notify sends a text message to the webhook.
func (n *LarkNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]any{
		"msg_type": "text",
		"content": map[string]string{
			"text": renderMessage(note),
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal lark payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create lark request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send lark request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("lark webhook returned status %d", resp.StatusCode)
	}

	var result struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if result.Code != 0 {
			return fmt.Errorf("lark webhook rejected message: code=%d msg=%s", result.Code, result.Msg)
		}
	}

	n.logger.Info().
		Str("owner", note.Owner).
		Int("signals", len(note.Signals)).
		Msg("notification delivered (lark)")
	return nil
}

var _ Notifier = (*LarkNotifier)(nil)
