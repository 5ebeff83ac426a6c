// Package providers fetches market data (daily bars, fundamentals, option chains) and
// caches the responses in redis.
package providers

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"wheel-screener/cache"
	"wheel-screener/database"
	"wheel-screener/market"
	"wheel-screener/scoring"
)

// ErrNoData is returned when the vendor has nothing for a ticker.
var ErrNoData = database.ErrDataUnavailable

// Source is a raw market data vendor.
type Source interface {
	History(ctx context.Context, ticker string) ([]market.PriceBar, error)
	Fundamentals(ctx context.Context, ticker string) (*market.Fundamentals, error)
	OptionChain(ctx context.Context, ticker string, maxExpiries int) (*Chain, error)
}

// TTLs sets how long each kind of response stays cached. Zero disables caching of that kind.
type TTLs struct {
	History      time.Duration
	Fundamentals time.Duration
	Chain        time.Duration
}

// Provider is the cached, normalised view of a Source used by the refresher.
type Provider struct {
	src         Source
	redis       *cache.RedisClient
	ttl         TTLs
	maxExpiries int
	log         *zap.Logger
	now         func() time.Time
}

// NewProvider wraps src. redis may be nil.
func NewProvider(src Source, redis *cache.RedisClient, ttl TTLs, maxExpiries int, log *zap.Logger) *Provider {
	if log == nil {
		log = zap.NewNop()
	}
	if maxExpiries <= 0 {
		maxExpiries = 4
	}
	return &Provider{
		src:         src,
		redis:       redis,
		ttl:         ttl,
		maxExpiries: maxExpiries,
		log:         log,
		now:         time.Now,
	}
}

func (p *Provider) cacheFor(ttl time.Duration) *cache.RedisClient {
	if ttl <= 0 {
		return nil
	}
	return p.redis
}

// History returns the daily bars of ticker.
func (p *Provider) History(ctx context.Context, ticker string) ([]market.PriceBar, error) {
	ticker = strings.ToUpper(ticker)
	return cache.GetOrLoad(ctx, p.cacheFor(p.ttl.History), "history:"+ticker, p.ttl.History,
		func(ctx context.Context) ([]market.PriceBar, error) {
			return p.src.History(ctx, ticker)
		})
}

// Fundamentals returns the company snapshot of ticker.
func (p *Provider) Fundamentals(ctx context.Context, ticker string) (*market.Fundamentals, error) {
	ticker = strings.ToUpper(ticker)
	return cache.GetOrLoad(ctx, p.cacheFor(p.ttl.Fundamentals), "fundamentals:"+ticker, p.ttl.Fundamentals,
		func(ctx context.Context) (*market.Fundamentals, error) {
			return p.src.Fundamentals(ctx, ticker)
		})
}

// OptionChain returns the chain of ticker with expired contracts dropped and a delta
// estimated for every contract the vendor left without one.
func (p *Provider) OptionChain(ctx context.Context, ticker string) (*Chain, error) {
	ticker = strings.ToUpper(ticker)
	chain, err := cache.GetOrLoad(ctx, p.cacheFor(p.ttl.Chain), "chain:"+ticker, p.ttl.Chain,
		func(ctx context.Context) (*Chain, error) {
			return p.src.OptionChain(ctx, ticker, p.maxExpiries)
		})
	if err != nil {
		return nil, err
	}

	now := p.now()
	live := chain.Quotes[:0:0]
	for _, q := range chain.Quotes {
		if q.DTE(now) >= 0 {
			live = append(live, q)
		}
	}
	chain.Quotes = live

	if chain.UnderlyingPrice > 0 {
		scoring.FillMissingDelta(chain.Quotes, chain.UnderlyingPrice, func(q market.OptionQuote) int {
			return q.DTE(now)
		})
	} else {
		p.log.Debug("No underlying price, deltas left unset", zap.String("ticker", ticker))
	}
	return chain, nil
}

// StockPrice returns the latest price of ticker from the fundamentals endpoint.
func (p *Provider) StockPrice(ctx context.Context, ticker string) (float64, error) {
	f, err := p.src.Fundamentals(ctx, strings.ToUpper(ticker))
	if err != nil {
		return 0, err
	}
	if f.Price <= 0 {
		return 0, ErrNoData
	}
	return f.Price, nil
}
