package signals

import (
	"wheel-screener/indicators"
	"wheel-screener/market"
)

// Screening thresholds applied before any contract is looked at
const (
	MinPrice     = 10.0
	MaxPrice     = 200.0
	MinAvgVolume = 1_000_000.0
	MinMarketCap = 1e9
)

// Rejection reasons returned by Screen
const (
	RejectPrice     = "price outside $10-$200"
	RejectVolume    = "average volume below 1M"
	RejectMarketCap = "market cap below $1B"
	RejectROE       = "ROE below minimum"
	RejectNoPuts    = "no PUT quotes"
)

// Candidate bundles everything the generator needs for one stock.
type Candidate struct {
	Fundamentals market.Fundamentals
	Snapshot     *indicators.Snapshot
	Chain        []market.OptionQuote
}

// Screen applies the stock level filters. An unknown ROE does not reject the stock.
func Screen(c Candidate, cfg Config) (bool, string) {
	f := c.Fundamentals
	if f.Price < MinPrice || f.Price > MaxPrice {
		return false, RejectPrice
	}
	if f.AvgVolume == nil || *f.AvgVolume < MinAvgVolume {
		return false, RejectVolume
	}
	if f.MarketCap == nil || *f.MarketCap < MinMarketCap {
		return false, RejectMarketCap
	}
	if f.ROE != nil && *f.ROE*100 < cfg.MinROE {
		return false, RejectROE
	}
	for _, q := range c.Chain {
		if q.Type == market.Put {
			return true, ""
		}
	}
	return false, RejectNoPuts
}
