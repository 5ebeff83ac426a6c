// Package scoring turns fundamentals, indicator snapshots and option chains into the
// wheel score, the entry timing signal and the per-contract signal quality score.
//
// All functions are pure. Missing inputs contribute zero points instead of failing.
package scoring

import (
	"wheel-screener/indicators"
	"wheel-screener/market"
)

// Sub-score caps of the wheel score
const (
	MaxVolatility = 25
	MaxLiquidity  = 20
	MaxTechnical  = 25
	MaxStability  = 20
	MaxPrice      = 10
)

// WheelScore is the 0-100 wheel suitability score of one stock.
//
// Key Fields:
//   - Volatility: average PUT IV tiers (0-25)
//   - Liquidity: average volume plus average PUT open interest (0-20)
//   - Technical: RSI tiers plus EMA trend (0-25)
//   - Stability: market cap, beta and dividend yield (0-20)
//   - Price: share price sweet spot (0-10)
//   - HasData: false when neither indicators nor PUT quotes were available
type WheelScore struct {
	Volatility int    `json:"volatility_score"`
	Liquidity  int    `json:"liquidity_score"`
	Technical  int    `json:"technical_score"`
	Stability  int    `json:"stability_score"`
	Price      int    `json:"price_score"`
	Total      int    `json:"total_score"`
	Grade      string `json:"grade"`
	HasData    bool   `json:"has_data"`
}

// CalculateWheelScore scores a stock. snap may be nil when indicators were never computed.
func CalculateWheelScore(f market.Fundamentals, snap *indicators.Snapshot, puts PutStats) WheelScore {
	ws := WheelScore{
		Volatility: volatilityPoints(puts.AvgIV),
		Liquidity:  capAt(volumePoints(f.AvgVolume)+openInterestPoints(puts.AvgOI), MaxLiquidity),
		Technical:  capAt(rsiWheelPoints(snap)+trendPoints(snap), MaxTechnical),
		Stability:  capAt(marketCapPoints(f.MarketCap)+betaPoints(f.Beta)+dividendPoints(f.DividendYield), MaxStability),
		Price:      pricePoints(f.Price),
		HasData:    snap != nil || puts.Count > 0,
	}
	ws.Total = ws.Volatility + ws.Liquidity + ws.Technical + ws.Stability + ws.Price
	ws.Grade = WheelGrade(ws.Total)
	return ws
}

// WheelGrade maps a wheel score total to A-D.
func WheelGrade(total int) string {
	switch {
	case total >= 80:
		return "A"
	case total >= 65:
		return "B"
	case total >= 50:
		return "C"
	default:
		return "D"
	}
}

// Score trends relative to the previous stored wheel score
const (
	TrendImproving = "improving"
	TrendDeclining = "declining"
	TrendStable    = "stable"
)

// ScoreTrend compares today's total with the previous one.
func ScoreTrend(current, previous int) string {
	diff := current - previous
	switch {
	case diff > 5:
		return TrendImproving
	case diff < -5:
		return TrendDeclining
	default:
		return TrendStable
	}
}

func volatilityPoints(avgIV *float64) int {
	if avgIV == nil {
		return 0
	}
	iv := *avgIV * 100
	switch {
	case iv > 50:
		return 25
	case iv > 35:
		return 20
	case iv > 25:
		return 15
	case iv > 15:
		return 10
	default:
		return 5
	}
}

func volumePoints(avgVolume *float64) int {
	if avgVolume == nil {
		return 0
	}
	v := *avgVolume
	switch {
	case v > 10_000_000:
		return 10
	case v > 5_000_000:
		return 8
	case v > 1_000_000:
		return 6
	case v > 500_000:
		return 4
	default:
		return 2
	}
}

func openInterestPoints(avgOI *float64) int {
	if avgOI == nil {
		return 0
	}
	oi := *avgOI
	switch {
	case oi > 1000:
		return 10
	case oi > 500:
		return 8
	case oi > 100:
		return 6
	case oi > 50:
		return 4
	default:
		return 2
	}
}

func rsiWheelPoints(snap *indicators.Snapshot) int {
	if snap == nil || snap.RSI == nil {
		return 0
	}
	rsi := *snap.RSI
	switch {
	case rsi < 35:
		return 15
	case rsi < 50:
		return 12
	case rsi < 65:
		return 8
	case rsi < 75:
		return 4
	default:
		return 1
	}
}

func trendPoints(snap *indicators.Snapshot) int {
	if snap == nil {
		return 0
	}
	switch snap.Trend {
	case indicators.Bullish:
		return 10
	case indicators.NeutralTrend:
		return 5
	default:
		return 0
	}
}

func marketCapPoints(mc *float64) int {
	if mc == nil {
		return 0
	}
	switch {
	case *mc > 100e9:
		return 8
	case *mc > 10e9:
		return 6
	case *mc > 2e9:
		return 4
	default:
		return 2
	}
}

func betaPoints(beta *float64) int {
	if beta == nil {
		return 0
	}
	switch {
	case *beta < 0.8:
		return 6
	case *beta < 1.2:
		return 4
	default:
		return 2
	}
}

func dividendPoints(yield *float64) int {
	if yield == nil || *yield <= 0 {
		return 0
	}
	switch {
	case *yield > 0.03:
		return 6
	case *yield > 0.01:
		return 4
	default:
		return 2
	}
}

func pricePoints(price float64) int {
	switch {
	case price <= 0:
		return 0
	case price >= 10 && price <= 50:
		return 10
	case (price >= 5 && price < 10) || (price > 50 && price <= 100):
		return 7
	case price > 100 && price <= 200:
		return 5
	case price < 5:
		return 3
	default:
		return 2
	}
}
