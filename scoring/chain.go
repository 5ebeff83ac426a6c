package scoring

import "wheel-screener/market"

// PutStats summarises the PUT side of a chain.
//
// AvgIV averages implied volatility over quotes that report it. AvgOI averages open
// interest over quotes with OI > 0. Either is nil when no quote qualifies.
type PutStats struct {
	Count int
	AvgIV *float64
	AvgOI *float64
}

// SummarizePuts builds PutStats from a mixed chain.
func SummarizePuts(chain []market.OptionQuote) PutStats {
	var stats PutStats
	var ivSum, oiSum float64
	var ivN, oiN int

	for _, q := range chain {
		if q.Type != market.Put {
			continue
		}
		stats.Count++
		if q.ImpliedVolatility != nil {
			ivSum += *q.ImpliedVolatility
			ivN++
		}
		if q.OpenInterest > 0 {
			oiSum += float64(q.OpenInterest)
			oiN++
		}
	}

	if ivN > 0 {
		stats.AvgIV = market.Float(ivSum / float64(ivN))
	}
	if oiN > 0 {
		stats.AvgOI = market.Float(oiSum / float64(oiN))
	}
	return stats
}

func capAt(v, limit int) int {
	if v > limit {
		return limit
	}
	return v
}
