package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Webhook POSTs messages as JSON to an arbitrary endpoint
type Webhook struct {
	client *resty.Client
	url    string
}

// NewWebhook creates a webhook sink
func NewWebhook(url string) *Webhook {
	return &Webhook{
		client: resty.New().SetTimeout(10 * time.Second),
		url:    url,
	}
}

// Send posts {"text": message}
func (w *Webhook) Send(ctx context.Context, message string) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"text": message}).
		Post(w.url)
	if err != nil {
		return &DeliveryError{Sink: "webhook", Err: err}
	}
	if resp.IsError() {
		return &DeliveryError{Sink: "webhook", Err: fmt.Errorf("status %s", resp.Status())}
	}
	return nil
}
