package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TelegramSender delivers through the Telegram Bot API. Owner-addressed
// messages go to the recipient's chat; broadcasts fall back to the operator
// chat configured at construction.
type TelegramSender struct {
	token        string
	operatorChat string
	client       *http.Client
}

// NewTelegramSender builds a sender for the given bot token. operatorChat is
// the chat id used when a message carries no recipient.
func NewTelegramSender(token, operatorChat string) *TelegramSender {
	return &TelegramSender{
		token:        token,
		operatorChat: operatorChat,
		client:       &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts a sendMessage call addressed to recipient, or to the operator
// chat when recipient is empty. The title is rendered bold via Markdown.
func (t *TelegramSender) Send(ctx context.Context, recipient, title, message string) error {
	chatID := recipient
	if chatID == "" {
		chatID = t.operatorChat
	}
	if chatID == "" {
		return fmt.Errorf("telegram: no chat id for message %q", title)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.token)

	payload := map[string]string{
		"chat_id":    chatID,
		"text":       fmt.Sprintf("*%s*\n%s", title, message),
		"parse_mode": "Markdown",
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

// Name returns the channel identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}
