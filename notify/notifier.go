// Package notify delivers plain-text messages to configured sinks.
// Delivery failure is never fatal to the pipeline.
package notify

import (
	"context"
	"fmt"

	"travel-monitor/config"
	"travel-monitor/utils"
)

// Notifier accepts a plain-text message
type Notifier interface {
	Send(ctx context.Context, message string) error
}

// DeliveryError reports a failed delivery to one named sink
type DeliveryError struct {
	Sink string
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s delivery failed: %v", e.Sink, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Multi fans a message out to several sinks, logging and continuing on
// individual failures. Send never returns an error.
type Multi struct {
	sinks  []Notifier
	logger *utils.Logger
}

// NewMulti builds the sink set from configuration. With notifications
// disabled or no sink configured, the result delivers nowhere.
func NewMulti(cfg config.NotifyConfig, logger *utils.Logger) *Multi {
	m := &Multi{logger: logger}
	if !cfg.Enabled {
		return m
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		m.sinks = append(m.sinks, NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	if cfg.WebhookURL != "" {
		m.sinks = append(m.sinks, NewWebhook(cfg.WebhookURL))
	}
	return m
}

// Send delivers to every sink; failures are logged and swallowed
func (m *Multi) Send(ctx context.Context, message string) error {
	for _, sink := range m.sinks {
		if err := sink.Send(ctx, message); err != nil {
			m.logger.Warn("Notification delivery failed: %v", err)
		}
	}
	return nil
}
