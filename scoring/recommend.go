package scoring

import (
	"fmt"

	"wheel-screener/indicators"
	"wheel-screener/market"
)

// Recommendation is the bullish/bearish read of a stock plus its wheel suitability.
type Recommendation struct {
	Label       string   `json:"recommendation"`
	Action      string   `json:"action"`
	Confidence  int      `json:"confidence"`
	Reasoning   string   `json:"reasoning"`
	Bullish     int      `json:"bullish_score"`
	Bearish     int      `json:"bearish_score"`
	Signals     Reasons  `json:"signals"`
	WheelPoints int      `json:"wheel_score"`
	WheelRating string   `json:"strategy_rating"`
	WheelNotes  []string `json:"wheel_signals"`
}

// Recommend builds a recommendation. Without indicators it only asks for them.
func Recommend(f market.Fundamentals, snap *indicators.Snapshot) Recommendation {
	if snap == nil {
		return Recommendation{
			Label:       "Calculate Indicators",
			Action:      "neutral",
			Reasoning:   "Technical indicators need to be calculated first.",
			WheelRating: wheelRating(0),
		}
	}

	var rec Recommendation
	sig := &rec.Signals

	if snap.RSI != nil {
		rsi := *snap.RSI
		switch {
		case rsi < 30:
			rec.Bullish += 30
			sig.Add("RSI_OVERSOLD", Positive, "RSI oversold, strong buy signal")
		case rsi < 40:
			rec.Bullish += 20
			sig.Add("RSI_LOW", Positive, "RSI low, bullish opportunity")
		case rsi > 70:
			rec.Bearish += 30
			sig.Add("RSI_OVERBOUGHT", Caution, "RSI overbought, caution advised")
		case rsi > 60:
			rec.Bearish += 20
			sig.Add("RSI_ELEVATED", Caution, "RSI elevated, consider selling")
		default:
			sig.Add("RSI_NEUTRAL", Neutral, "RSI neutral, wait for better entry")
		}
	}

	switch snap.Trend {
	case indicators.Bullish:
		rec.Bullish += 25
		sig.Add("TREND_BULLISH", Positive, "Bullish trend, EMA 50 > EMA 200")
	case indicators.Bearish:
		rec.Bearish += 25
		sig.Add("TREND_BEARISH", Caution, "Bearish trend, EMA 50 < EMA 200")
	}

	if snap.NearSupport() {
		rec.Bullish += 25
		sig.Add("NEAR_SUPPORT", Positive, "Near support, good entry point")
	} else if snap.NearResistance() {
		rec.Bearish += 25
		sig.Add("NEAR_RESISTANCE", Caution, "Near resistance, consider taking profits")
	}

	switch snap.BandPosition {
	case indicators.BelowLower:
		rec.Bullish += 20
		sig.Add("BB_BELOW_LOWER", Positive, "Below lower band, oversold condition")
	case indicators.AboveUpper:
		rec.Bearish += 20
		sig.Add("BB_ABOVE_UPPER", Caution, "Above upper band, overbought condition")
	}

	total := rec.Bullish - rec.Bearish
	rec.Confidence = total
	if rec.Confidence < 0 {
		rec.Confidence = -rec.Confidence
	}
	if rec.Confidence > 100 {
		rec.Confidence = 100
	}

	switch {
	case total > 50:
		rec.Label, rec.Action = "Strong Buy", "buy"
		rec.Reasoning = fmt.Sprintf("Multiple bullish signals detected. Score: +%d. Excellent opportunity for cash-secured puts.", total)
	case total > 20:
		rec.Label, rec.Action = "Buy", "buy"
		rec.Reasoning = fmt.Sprintf("Bullish indicators present. Score: +%d. Good entry for the wheel.", total)
	case total < -50:
		rec.Label, rec.Action = "Strong Sell / Avoid", "sell"
		rec.Reasoning = fmt.Sprintf("Multiple bearish signals detected. Score: %d. Not recommended for new positions.", total)
	case total < -20:
		rec.Label, rec.Action = "Caution", "sell"
		rec.Reasoning = fmt.Sprintf("Bearish indicators present. Score: %d. Consider covered calls if assigned.", total)
	default:
		rec.Label, rec.Action = "Hold / Neutral", "neutral"
		rec.Reasoning = fmt.Sprintf("Mixed signals. Score: %d. Wait for a clearer opportunity.", total)
	}

	rec.WheelPoints, rec.WheelNotes = wheelSuitability(f, snap)
	rec.WheelRating = wheelRating(rec.WheelPoints)
	return rec
}

func wheelSuitability(f market.Fundamentals, snap *indicators.Snapshot) (int, []string) {
	points := 0
	var notes []string

	if f.DividendYield != nil && *f.DividendYield*100 > 2 {
		points += 15
		notes = append(notes, "Pays dividend, extra income potential")
	}
	if f.Beta != nil && *f.Beta >= 0.8 && *f.Beta <= 1.2 {
		points += 15
		notes = append(notes, "Moderate volatility, stable premiums")
	}
	if f.AvgVolume != nil && *f.AvgVolume > 1_000_000 {
		points += 15
		notes = append(notes, "High liquidity, easy entry and exit")
	}
	if f.MarketCap != nil && *f.MarketCap > 10e9 {
		points += 10
		notes = append(notes, "Large cap, lower risk")
	}
	if snap.RSI != nil && *snap.RSI < 40 {
		points += 20
		notes = append(notes, "RSI favorable, good put selling opportunity")
	}
	if snap.Trend == indicators.Bullish {
		points += 15
		notes = append(notes, "Uptrend, lower assignment risk")
	}
	if snap.NearSupport() {
		points += 10
		notes = append(notes, "Near support, protected downside")
	}
	return points, notes
}

func wheelRating(points int) string {
	switch {
	case points >= 70:
		return "Excellent for Wheel"
	case points >= 50:
		return "Good for Wheel"
	case points >= 30:
		return "Fair for Wheel"
	default:
		return "Not Ideal for Wheel"
	}
}
