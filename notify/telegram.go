package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Telegram sends messages through the Bot API sendMessage endpoint
type Telegram struct {
	client *resty.Client
	token  string
	chatID string
}

// NewTelegram creates a Telegram sink for the given bot token and chat
func NewTelegram(token, chatID string) *Telegram {
	return &Telegram{
		client: resty.New().SetTimeout(10 * time.Second),
		token:  token,
		chatID: chatID,
	}
}

// Send delivers one plain-text message
func (t *Telegram) Send(ctx context.Context, message string) error {
	resp, err := t.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"chat_id": t.chatID,
			"text":    message,
		}).
		Post(fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.token))
	if err != nil {
		return &DeliveryError{Sink: "telegram", Err: err}
	}
	if resp.IsError() {
		return &DeliveryError{Sink: "telegram", Err: fmt.Errorf("status %s: %s", resp.Status(), resp.String())}
	}
	return nil
}
