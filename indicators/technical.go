// Package indicators derives RSI, EMA trend, Bollinger Bands and support/resistance
// levels from daily price bars.
//
// Every calculation returns nil (or an empty label) when the series is too short for its
// lookback. Callers never receive fabricated values.
package indicators

import (
	"math"
)

// Default lookbacks
const (
	RSIPeriod       = 14
	EMAFast         = 50
	EMASlow         = 200
	BollingerPeriod = 20
	BollingerStdDev = 2.0
	LevelWindow     = 10
	HistoryBars     = 180

	trendTolerance = 1e-9
)

// RSISignal classifies an RSI reading.
type RSISignal string

const (
	Oversold   RSISignal = "OVERSOLD"
	NeutralRSI RSISignal = "NEUTRAL"
	Overbought RSISignal = "OVERBOUGHT"
)

// Trend is the EMA50 vs EMA200 regime.
type Trend string

const (
	Bullish      Trend = "BULLISH"
	Bearish      Trend = "BEARISH"
	NeutralTrend Trend = "NEUTRAL"
)

// BandPosition labels where price sits relative to the Bollinger Bands.
type BandPosition string

const (
	AboveUpper BandPosition = "Above Upper"
	UpperHalf  BandPosition = "Upper Half"
	LowerHalf  BandPosition = "Lower Half"
	BelowLower BandPosition = "Below Lower"
)

// Inside reports whether the position is between the bands.
func (p BandPosition) Inside() bool {
	return p == UpperHalf || p == LowerHalf
}

// RSI computes the relative strength index over the last period deltas of closes using
// simple averages of gains and losses. A flat window has no defined RSI and yields nil.
func RSI(closes []float64, period int) *float64 {
	if period <= 0 || len(closes) < period+1 {
		return nil
	}

	var gain, loss float64
	for i := len(closes) - period; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gain += delta
		} else {
			loss -= delta
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)

	if avgLoss == 0 {
		if avgGain == 0 {
			return nil
		}
		v := 100.0
		return &v
	}

	rs := avgGain / avgLoss
	v := 100 - 100/(1+rs)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// ClassifyRSI maps an RSI value to its signal. Nil maps to NEUTRAL.
func ClassifyRSI(rsi *float64) RSISignal {
	if rsi == nil {
		return NeutralRSI
	}
	switch {
	case *rsi < 30:
		return Oversold
	case *rsi > 70:
		return Overbought
	default:
		return NeutralRSI
	}
}

// EMA returns the exponential moving average of closes with smoothing 2/(period+1),
// seeded from the first close. Nil when fewer than period closes exist.
func EMA(closes []float64, period int) *float64 {
	if period <= 0 || len(closes) < period {
		return nil
	}
	k := 2.0 / float64(period+1)
	ema := closes[0]
	for _, c := range closes[1:] {
		ema = c*k + ema*(1-k)
	}
	return &ema
}

// ClassifyTrend compares the fast and slow EMA.
func ClassifyTrend(fast, slow *float64) Trend {
	if fast == nil || slow == nil {
		return NeutralTrend
	}
	diff := *fast - *slow
	switch {
	case math.Abs(diff) <= trendTolerance:
		return NeutralTrend
	case diff > 0:
		return Bullish
	default:
		return Bearish
	}
}

// Bands holds one Bollinger Band reading.
type Bands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Bollinger computes the bands over the last period closes with population deviation.
func Bollinger(closes []float64, period int, width float64) *Bands {
	if period <= 0 || len(closes) < period {
		return nil
	}
	window := closes[len(closes)-period:]

	var sum float64
	for _, c := range window {
		sum += c
	}
	mean := sum / float64(period)

	var sq float64
	for _, c := range window {
		sq += (c - mean) * (c - mean)
	}
	sd := math.Sqrt(sq / float64(period))

	return &Bands{
		Upper:  mean + width*sd,
		Middle: mean,
		Lower:  mean - width*sd,
	}
}

// Position labels price against the bands.
func (b *Bands) Position(price float64) BandPosition {
	if b == nil {
		return ""
	}
	switch {
	case price > b.Upper:
		return AboveUpper
	case price < b.Lower:
		return BelowLower
	case price > b.Middle:
		return UpperHalf
	default:
		return LowerHalf
	}
}
