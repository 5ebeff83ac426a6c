package app

import (
	"context"
	"errors"
	"testing"

	"wheel-screener/gateway"
)

type quoteFunc func(ctx context.Context, ticker string) (*gateway.Quote, error)

func (f quoteFunc) StockQuote(ctx context.Context, ticker string) (*gateway.Quote, error) {
	return f(ctx, ticker)
}

type priceFunc func(ctx context.Context, ticker string) (float64, error)

func (f priceFunc) StockPrice(ctx context.Context, ticker string) (float64, error) {
	return f(ctx, ticker)
}

func TestGatewayPrices(t *testing.T) {
	provider := priceFunc(func(ctx context.Context, ticker string) (float64, error) { return 60, nil })
	down := quoteFunc(func(ctx context.Context, ticker string) (*gateway.Quote, error) {
		return nil, gateway.ErrNotConnected
	})

	tests := []struct {
		name    string
		prices  gatewayPrices
		want    float64
		wantErr bool
	}{
		{
			name: "mid quote",
			prices: gatewayPrices{gateway: quoteFunc(func(ctx context.Context, ticker string) (*gateway.Quote, error) {
				return &gateway.Quote{Bid: 61, Ask: 62, Mid: 61.5}, nil
			}), fallback: provider},
			want: 61.5,
		},
		{
			name: "empty quote falls back",
			prices: gatewayPrices{gateway: quoteFunc(func(ctx context.Context, ticker string) (*gateway.Quote, error) {
				return &gateway.Quote{}, nil
			}), fallback: provider},
			want: 60,
		},
		{name: "gateway down falls back", prices: gatewayPrices{gateway: down, fallback: provider}, want: 60},
		{name: "no fallback", prices: gatewayPrices{gateway: down}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.prices.StockPrice(context.Background(), "KO")
			if tt.wantErr {
				if !errors.Is(err, gateway.ErrNotConnected) {
					t.Errorf("expected ErrNotConnected, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %.2f, got %.2f", tt.want, got)
			}
		})
	}
}

type recorder struct{ events []string }

func (r *recorder) Publish(event string, payload interface{}) { r.events = append(r.events, event) }

func TestFanout(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	fanout{a, b}.Publish("signal", nil)
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("each publisher should get the event: %v %v", a.events, b.events)
	}
}
