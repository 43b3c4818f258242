// Package notify delivers operator alerts. The engine sends a message at
// launch and on fatal errors so unattended runs do not fail silently.
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

	"github.com/gmcnicol/pairtrader/internal/config"
)

// Notifier delivers a text message to the operator.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// New returns a Telegram notifier when credentials are configured and a
// no-op notifier otherwise.
func New(cfg *config.Config, logger *zap.Logger) Notifier {
	if cfg.TelegramBotToken == "" || cfg.TelegramChatID == "" {
		logger.Info("Telegram credentials not set, notifications disabled")
		return Nop{}
	}
	return NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID)
}

// Nop discards all notifications.
type Nop struct{}

func (Nop) Send(context.Context, string) error { return nil }

// Telegram delivers notifications via the Telegram Bot API.
type Telegram struct {
	token  string
	chatID string
	client *http.Client
}

// NewTelegram creates a Telegram notifier for the given bot token and chat ID.
func NewTelegram(token, chatID string) *Telegram {
	return &Telegram{
		token:  token,
		chatID: chatID,
		client: &http.Client{Timeout: 3 * time.Second},
	}
}

// Send posts the text to the configured chat using the sendMessage API.
func (t *Telegram) Send(ctx context.Context, text string) error {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.token)

	payload := map[string]string{
		"chat_id": t.chatID,
		"text":    text,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
