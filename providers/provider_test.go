package providers

import (
	"context"
	"testing"
	"time"

	"wheel-screener/market"
)

type fakeSource struct {
	chain      *Chain
	chainCalls int
}

func (f *fakeSource) History(ctx context.Context, ticker string) ([]market.PriceBar, error) {
	return nil, ErrNoData
}

func (f *fakeSource) Fundamentals(ctx context.Context, ticker string) (*market.Fundamentals, error) {
	if ticker != "KO" {
		return nil, ErrNoData
	}
	return &market.Fundamentals{Ticker: ticker, Price: 61.5}, nil
}

func (f *fakeSource) OptionChain(ctx context.Context, ticker string, maxExpiries int) (*Chain, error) {
	f.chainCalls++
	c := *f.chain
	c.Quotes = append([]market.OptionQuote(nil), f.chain.Quotes...)
	return &c, nil
}

func TestProviderOptionChain(t *testing.T) {
	now := time.Date(2026, 1, 5, 15, 0, 0, 0, time.UTC)
	given := -0.31
	src := &fakeSource{chain: &Chain{
		Ticker:          "KO",
		UnderlyingPrice: 61.5,
		Quotes: []market.OptionQuote{
			{Strike: 60, Type: market.Put, Expiry: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)},
			{Strike: 60, Type: market.Put, Expiry: time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC)},
			{Strike: 58, Type: market.Put, Expiry: time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC), Delta: &given},
			{Strike: 65, Type: market.Call, Expiry: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)},
		},
	}}

	p := NewProvider(src, nil, TTLs{Chain: time.Minute}, 0, nil)
	p.now = func() time.Time { return now }

	chain, err := p.OptionChain(context.Background(), "ko")
	if err != nil {
		t.Fatalf("OptionChain: %v", err)
	}
	if len(chain.Quotes) != 3 {
		t.Fatalf("expected the expired contract to be dropped, got %d quotes", len(chain.Quotes))
	}
	for _, q := range chain.Quotes {
		if q.Delta == nil {
			t.Errorf("delta not filled for %+v", q)
		}
	}
	if *chain.Quotes[1].Delta != given {
		t.Errorf("vendor delta overwritten: %v", *chain.Quotes[1].Delta)
	}
	if d := *chain.Quotes[0].Delta; d >= 0 {
		t.Errorf("estimated PUT delta should be negative, got %v", d)
	}
	if p.maxExpiries != 4 {
		t.Errorf("expected default of 4 expiries, got %d", p.maxExpiries)
	}
}

func TestProviderStockPrice(t *testing.T) {
	p := NewProvider(&fakeSource{}, nil, TTLs{}, 2, nil)
	price, err := p.StockPrice(context.Background(), "ko")
	if err != nil || price != 61.5 {
		t.Errorf("StockPrice = %v, %v", price, err)
	}
	if _, err := p.StockPrice(context.Background(), "XYZ"); err == nil {
		t.Error("expected error for unknown ticker")
	}
}
