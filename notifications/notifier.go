// Package notifications delivers triggered alerts over Telegram, to connected browsers
// and to configured webhooks.
package notifications

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Delivery channels
const (
	ChannelTelegram = "TELEGRAM"
	ChannelBrowser  = "BROWSER"
	ChannelBoth     = "BOTH"
)

// Message is one notification. Method selects the user facing channels; webhooks receive
// every message their alert type filter accepts.
type Message struct {
	AlertID   uint                   `json:"alert_id"`
	AlertType string                 `json:"alert_type"`
	Ticker    string                 `json:"ticker"`
	Title     string                 `json:"title"`
	Text      string                 `json:"text"`
	Method    string                 `json:"method"`
	ChatID    string                 `json:"chat_id,omitempty"`
	At        time.Time              `json:"at"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Wants reports whether the message should go out on channel.
func (m Message) Wants(channel string) bool {
	if m.Method == "" || m.Method == ChannelBoth {
		return true
	}
	return m.Method == channel
}

// Notifier sends a message on one channel.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, msg Message) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Dispatcher routes messages to the configured channels. Any channel may be nil.
type Dispatcher struct {
	Telegram Notifier
	Browser  Notifier
	Webhooks Notifier
	log      *zap.Logger
}

// NewDispatcher creates a dispatcher over the given channels.
func NewDispatcher(telegram, browser, webhooks Notifier, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{Telegram: telegram, Browser: browser, Webhooks: webhooks, log: log}
}

// Notify delivers msg on every channel it asks for. A failing channel does not stop the
// others; the failures are joined into the returned error.
func (d *Dispatcher) Notify(ctx context.Context, msg Message) error {
	if msg.At.IsZero() {
		msg.At = time.Now()
	}

	var errs []error
	if d.Telegram != nil && msg.Wants(ChannelTelegram) {
		if err := d.Telegram.Notify(ctx, msg); err != nil {
			d.log.Warn("⚠️ Telegram notification failed", zap.String("ticker", msg.Ticker), zap.Error(err))
			errs = append(errs, err)
		}
	}
	if d.Browser != nil && msg.Wants(ChannelBrowser) {
		if err := d.Browser.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	if d.Webhooks != nil {
		if err := d.Webhooks.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
