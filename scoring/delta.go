package scoring

import (
	"math"

	"wheel-screener/market"
)

// EstimateDelta approximates delta from moneyness when a chain omits Greeks.
// Moneyness is (price - strike) / price. Contracts with 1 to 6 days left are scaled
// down by 0.7 + 0.3*dte/7; an unknown or zero dte leaves the estimate unscaled.
func EstimateDelta(t market.OptionType, price, strike float64, dte int) float64 {
	if price <= 0 {
		return 0
	}
	m := (price - strike) / price

	var delta float64
	if t == market.Call {
		switch {
		case m >= 0.10:
			delta = 0.8
		case m >= 0.05:
			delta = 0.6
		case m >= 0:
			delta = 0.5
		case m >= -0.05:
			delta = 0.35
		case m >= -0.10:
			delta = 0.25
		default:
			delta = 0.15
		}
	} else {
		switch {
		case m <= -0.10:
			delta = -0.8
		case m <= -0.05:
			delta = -0.6
		case m <= 0:
			delta = -0.5
		case m <= 0.05:
			delta = -0.35
		case m <= 0.10:
			delta = -0.25
		default:
			delta = -0.15
		}
	}

	if dte > 0 && dte < 7 {
		delta *= 0.7 + 0.3*float64(dte)/7
	}
	return math.Round(delta*10000) / 10000
}

// FillMissingDelta sets an estimated delta on quotes that lack one.
func FillMissingDelta(chain []market.OptionQuote, price float64, dte func(market.OptionQuote) int) {
	for i := range chain {
		if chain[i].Delta != nil {
			continue
		}
		d := EstimateDelta(chain[i].Type, price, chain[i].Strike, dte(chain[i]))
		chain[i].Delta = &d
	}
}
