package scoring

import (
	"fmt"

	"wheel-screener/indicators"
	"wheel-screener/market"
)

// Entry signal labels
const (
	SignalSellPutNow = "SELL PUT NOW"
	SignalGoodEntry  = "GOOD ENTRY"
	SignalWaitForDip = "WAIT FOR DIP"
	SignalAvoid      = "AVOID"
	SignalNoData     = "NO_DATA"

	QualityExcellent = "EXCELLENT"
	QualityGood      = "GOOD"
	QualityFair      = "FAIR"
	QualityPoor      = "POOR"
	QualityNA        = "N/A"
)

const (
	entryTechnicalCap = 40
	entryPremiumCap   = 30
	entryContextCap   = 20
	entryBase         = 10
)

// EntrySignal answers whether now is a good time to sell a put on a stock.
type EntrySignal struct {
	Score     int     `json:"score"`
	Signal    string  `json:"signal"`
	Quality   string  `json:"quality"`
	Technical int     `json:"technical_score"`
	Premium   int     `json:"premium_score"`
	Context   int     `json:"context_score"`
	Penalty   int     `json:"risk_penalty"`
	Reasons   Reasons `json:"reasons"`
}

// CalculateEntrySignal scores the entry timing. A nil snapshot short circuits to NO_DATA.
func CalculateEntrySignal(f market.Fundamentals, snap *indicators.Snapshot, puts PutStats) EntrySignal {
	if snap == nil {
		return EntrySignal{
			Signal:  SignalNoData,
			Quality: QualityNA,
			Reasons: Reasons{{Code: "NO_INDICATORS", Severity: Negative, Message: "indicators missing."}},
		}
	}

	price := f.Price
	if price <= 0 {
		price = snap.Price
	}

	var es EntrySignal
	reasons := &es.Reasons

	// Technical setup
	technical := 0
	if snap.RSI != nil {
		rsi := *snap.RSI
		switch {
		case rsi < 35:
			technical += 20
			reasons.Add("RSI_OVERSOLD", Positive, fmt.Sprintf("RSI oversold (%.1f), prime time for CSPs", rsi))
		case rsi < 50:
			technical += 15
			reasons.Add("RSI_FAVORABLE", Positive, fmt.Sprintf("RSI favorable (%.1f), good CSP entry", rsi))
		case rsi < 65:
			technical += 8
			reasons.Add("RSI_NEUTRAL", Neutral, fmt.Sprintf("RSI neutral (%.1f), wait for dip", rsi))
		case rsi < 75:
			technical += 3
			reasons.Add("RSI_ELEVATED", Caution, fmt.Sprintf("RSI elevated (%.1f), not ideal", rsi))
		default:
			reasons.Add("RSI_OVERBOUGHT", Negative, fmt.Sprintf("RSI overbought (%.1f), avoid CSPs", rsi))
		}
	}

	if s := snap.Support(); s != nil && *s > 0 && price > 0 {
		dist := (price - *s) / *s * 100
		switch {
		case dist < 3:
			technical += 15
			reasons.Add("NEAR_SUPPORT", Positive, fmt.Sprintf("Near support $%.2f (%.1f%% away)", *s, dist))
		case dist < 8:
			technical += 10
			reasons.Add("CLOSE_TO_SUPPORT", Neutral, fmt.Sprintf("Close to support $%.2f (%.1f%% away)", *s, dist))
		case dist < 15:
			technical += 5
			reasons.Add("FAR_FROM_SUPPORT", Caution, fmt.Sprintf("Moderate distance from support (%.1f%%)", dist))
		}
	}

	switch snap.Trend {
	case indicators.Bullish:
		technical += 10
		reasons.Add("TREND_BULLISH", Positive, "Above 50-day EMA, ideal for the wheel")
	case indicators.NeutralTrend:
		technical += 5
		reasons.Add("TREND_NEUTRAL", Neutral, "Neutral trend, acceptable")
	default:
		reasons.Add("TREND_BEARISH", Caution, "Below 50-day EMA, not ideal for CSPs")
	}
	es.Technical = capAt(technical, entryTechnicalCap)

	// Option premium
	premium := 0
	if puts.AvgIV != nil {
		iv := *puts.AvgIV * 100
		switch {
		case iv > 40:
			premium += 20
			reasons.Add("IV_HIGH", Positive, fmt.Sprintf("High IV (%.1f%%), excellent premiums", iv))
		case iv > 25:
			premium += 15
			reasons.Add("IV_MODERATE", Positive, fmt.Sprintf("Moderate IV (%.1f%%), good premiums", iv))
		case iv > 15:
			premium += 8
			reasons.Add("IV_LOW", Neutral, fmt.Sprintf("Low IV (%.1f%%), limited premiums", iv))
		default:
			premium += 3
			reasons.Add("IV_VERY_LOW", Negative, fmt.Sprintf("Very low IV (%.1f%%), poor premiums", iv))
		}
	}
	if puts.AvgOI != nil {
		oi := *puts.AvgOI
		switch {
		case oi > 500:
			premium += 10
			reasons.Add("OI_HIGH", Positive, fmt.Sprintf("High liquidity (OI: %d)", int(oi)))
		case oi > 100:
			premium += 7
			reasons.Add("OI_MODERATE", Neutral, fmt.Sprintf("Moderate liquidity (OI: %d)", int(oi)))
		default:
			premium += 3
			reasons.Add("OI_LOW", Caution, fmt.Sprintf("Low liquidity (OI: %d)", int(oi)))
		}
	}
	es.Premium = capAt(premium, entryPremiumCap)

	// Market context
	marketCtx := 0
	if pos, ok := f.RangePosition(); ok {
		switch {
		case pos < 30:
			marketCtx += 15
			reasons.Add("RANGE_LOW", Positive, fmt.Sprintf("Near 52-week low (%.0f%% of range)", pos))
		case pos < 50:
			marketCtx += 10
			reasons.Add("RANGE_BELOW_MID", Neutral, fmt.Sprintf("Below mid-range (%.0f%% of range)", pos))
		case pos < 70:
			marketCtx += 5
			reasons.Add("RANGE_UPPER", Caution, fmt.Sprintf("In upper range (%.0f%% of range)", pos))
		default:
			reasons.Add("RANGE_HIGH", Negative, fmt.Sprintf("Near 52-week high (%.0f%% of range)", pos))
		}
	}
	switch {
	case snap.BandPosition == indicators.BelowLower:
		marketCtx += 5
		reasons.Add("BB_BELOW_LOWER", Positive, "Below lower Bollinger Band, oversold")
	case snap.BandPosition.Inside():
		marketCtx += 3
		reasons.Add("BB_MIDDLE", Neutral, "Mid Bollinger Band range")
	case snap.BandPosition == indicators.AboveUpper:
		reasons.Add("BB_ABOVE_UPPER", Negative, "Above upper Bollinger Band, overbought")
	}
	es.Context = capAt(marketCtx, entryContextCap)

	// Risk penalty
	if r := snap.Resistance(); r != nil && price > 0 {
		if (*r-price)/price*100 < 3 {
			es.Penalty += 5
			reasons.Add("NEAR_RESISTANCE", Caution, fmt.Sprintf("Near resistance $%.2f, risk of rejection", *r))
		}
	}
	if snap.RSI != nil && *snap.RSI > 70 {
		es.Penalty += 7
		reasons.Add("OVERBOUGHT_PENALTY", Negative, "Overbought (RSI > 70), avoid selling CSPs")
	}

	score := es.Technical + es.Premium + es.Context - es.Penalty
	if score < 0 {
		score = 0
	}
	es.Score = score + entryBase
	es.Signal, es.Quality = entryLabels(es.Score)
	return es
}

func entryLabels(score int) (string, string) {
	switch {
	case score >= 75:
		return SignalSellPutNow, QualityExcellent
	case score >= 60:
		return SignalGoodEntry, QualityGood
	case score >= 45:
		return SignalWaitForDip, QualityFair
	default:
		return SignalAvoid, QualityPoor
	}
}
