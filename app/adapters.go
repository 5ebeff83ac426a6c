package app

import (
	"context"
	"fmt"

	"wheel-screener/alerts"
	"wheel-screener/gateway"
	"wheel-screener/notifications"
)

// fanout publishes every event to each browser channel (SSE and websocket).
type fanout []notifications.Publisher

func (f fanout) Publish(event string, payload interface{}) {
	for _, p := range f {
		p.Publish(event, payload)
	}
}

type stockQuoter interface {
	StockQuote(ctx context.Context, ticker string) (*gateway.Quote, error)
}

// gatewayPrices prefers the live gateway quote and falls back to the market data
// provider while the gateway session is down.
type gatewayPrices struct {
	gateway  stockQuoter
	fallback alerts.PriceSource
}

func (g gatewayPrices) StockPrice(ctx context.Context, ticker string) (float64, error) {
	q, err := g.gateway.StockQuote(ctx, ticker)
	if err == nil && q != nil && q.Price() > 0 {
		return q.Price(), nil
	}
	if g.fallback == nil {
		if err == nil {
			err = fmt.Errorf("no price for %s", ticker)
		}
		return 0, err
	}
	return g.fallback.StockPrice(ctx, ticker)
}
