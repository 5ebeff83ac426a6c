package scoring

import (
	"math"

	"wheel-screener/indicators"
	"wheel-screener/market"
)

// SignalQuality is the 40/35/25 contract level score used by the signal generator.
// It is scored independently from the wheel score.
type SignalQuality struct {
	Stock          int     `json:"stock_score"`
	Technical      int     `json:"technical_score"`
	Options        int     `json:"options_score"`
	Total          int     `json:"quality_score"`
	AssignmentRisk float64 `json:"assignment_risk"`
}

const defaultAssignmentRisk = 30.0

// CalculateSignalQuality scores one candidate contract. apy is the annualised yield in percent.
func CalculateSignalQuality(f market.Fundamentals, snap *indicators.Snapshot, q market.OptionQuote, apy float64) SignalQuality {
	var sq SignalQuality

	// Stock quality (40)
	if f.ROE != nil {
		roe := *f.ROE * 100
		switch {
		case roe >= 20:
			sq.Stock += 10
		case roe >= 15:
			sq.Stock += 7
		case roe >= 10:
			sq.Stock += 5
		}
	}
	if f.MarketCap != nil {
		switch {
		case *f.MarketCap >= 100e9:
			sq.Stock += 10
		case *f.MarketCap >= 10e9:
			sq.Stock += 7
		case *f.MarketCap >= 1e9:
			sq.Stock += 5
		}
	}
	if f.Beta != nil {
		switch {
		case *f.Beta < 0.8:
			sq.Stock += 10
		case *f.Beta < 1.2:
			sq.Stock += 7
		case *f.Beta < 1.5:
			sq.Stock += 4
		}
	}
	if f.AvgVolume != nil {
		switch {
		case *f.AvgVolume >= 10_000_000:
			sq.Stock += 10
		case *f.AvgVolume >= 5_000_000:
			sq.Stock += 7
		case *f.AvgVolume >= 1_000_000:
			sq.Stock += 5
		}
	}

	// Technical setup (35)
	if snap == nil {
		sq.Technical = 15
	} else {
		rsi := snap.RSISignal
		if snap.RSI == nil {
			rsi = indicators.NeutralRSI
		}
		switch rsi {
		case indicators.Oversold:
			sq.Technical += 15
		case indicators.NeutralRSI:
			sq.Technical += 10
		}
		switch snap.Trend {
		case indicators.Bullish:
			sq.Technical += 10
		case indicators.NeutralTrend:
			sq.Technical += 5
		}
		if snap.NearSupport() {
			sq.Technical += 10
		}
	}

	// Option metrics (25)
	sq.AssignmentRisk = defaultAssignmentRisk
	if q.Delta != nil {
		d := math.Abs(*q.Delta)
		sq.AssignmentRisk = d * 100
		switch {
		case d >= 0.25 && d <= 0.35:
			sq.Options += 10
		case d >= 0.20 && d <= 0.40:
			sq.Options += 7
		case d >= 0.15 && d <= 0.45:
			sq.Options += 4
		}
	}
	switch {
	case apy >= 30:
		sq.Options += 10
	case apy >= 20:
		sq.Options += 8
	case apy >= 15:
		sq.Options += 6
	case apy >= 10:
		sq.Options += 4
	}
	if q.ImpliedVolatility != nil {
		iv := *q.ImpliedVolatility * 100
		switch {
		case iv >= 30 && iv <= 60:
			sq.Options += 5
		case iv >= 20 && iv <= 80:
			sq.Options += 3
		}
	}

	sq.Total = sq.Stock + sq.Technical + sq.Options
	return sq
}

// SignalGrade maps a signal quality score to A-C.
func SignalGrade(quality int) string {
	switch {
	case quality >= 80:
		return "A"
	case quality >= 60:
		return "B"
	default:
		return "C"
	}
}
