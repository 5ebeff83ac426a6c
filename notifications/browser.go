package notifications

import "context"

// EventAlert is the event name browsers receive for triggered alerts.
const EventAlert = "alert"

// Publisher pushes an event to connected browsers (SSE broker, websocket hub).
type Publisher interface {
	Publish(event string, payload interface{})
}

// BrowserNotifier fans alerts out to every browser publisher.
type BrowserNotifier struct {
	publishers []Publisher
}

// NewBrowserNotifier creates a notifier over the given publishers.
func NewBrowserNotifier(publishers ...Publisher) *BrowserNotifier {
	var ps []Publisher
	for _, p := range publishers {
		if p != nil {
			ps = append(ps, p)
		}
	}
	return &BrowserNotifier{publishers: ps}
}

// Notify publishes msg. Delivery is best effort.
func (b *BrowserNotifier) Notify(ctx context.Context, msg Message) error {
	for _, p := range b.publishers {
		p.Publish(EventAlert, msg)
	}
	return nil
}
