// Package market holds the plain data shapes shared by the indicator calculator,
// the scorers and the signal generator. Nothing in here touches the network or the database.
package market

import (
	"strings"
	"time"
)

// OptionType is the right of an option contract.
type OptionType string

const (
	Put  OptionType = "PUT"
	Call OptionType = "CALL"
)

// ParseOptionType accepts PUT/CALL as well as the single letter rights used by brokers.
func ParseOptionType(s string) (OptionType, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PUT", "P":
		return Put, true
	case "CALL", "C":
		return Call, true
	}
	return "", false
}

// Right returns the single letter right ("P" or "C").
func (t OptionType) Right() string {
	if t == Call {
		return "C"
	}
	return "P"
}

// PriceBar is one daily OHLCV bar.
type PriceBar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Closes extracts the close series from bars.
func Closes(bars []PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Fundamentals is the ticker keyed company snapshot used for screening and scoring.
// Nil pointers mean the vendor did not report the value.
//
// Units:
//   - ROE and DividendYield are fractions (0.25 == 25%)
//   - MarketCap is in dollars, AvgVolume in shares per day
type Fundamentals struct {
	Ticker        string   `json:"ticker"`
	Name          string   `json:"name,omitempty"`
	Sector        string   `json:"sector,omitempty"`
	Price         float64  `json:"price"`
	MarketCap     *float64 `json:"market_cap,omitempty"`
	Beta          *float64 `json:"beta,omitempty"`
	ROE           *float64 `json:"roe,omitempty"`
	DividendYield *float64 `json:"dividend_yield,omitempty"`
	AvgVolume     *float64 `json:"avg_volume,omitempty"`
	High52        *float64 `json:"fifty_two_week_high,omitempty"`
	Low52         *float64 `json:"fifty_two_week_low,omitempty"`
}

// RangePosition returns where Price sits inside the 52 week range, in percent.
func (f Fundamentals) RangePosition() (float64, bool) {
	if f.High52 == nil || f.Low52 == nil || f.Price <= 0 {
		return 0, false
	}
	span := *f.High52 - *f.Low52
	if span <= 0 {
		return 0, false
	}
	return (f.Price - *f.Low52) / span * 100, true
}

// OptionQuote is a single contract of an option chain. Bid, Ask and Last are zero when
// not quoted. Greeks and IV are nil when the chain provider omits them.
type OptionQuote struct {
	Ticker            string     `json:"ticker"`
	Expiry            time.Time  `json:"expiry"`
	Strike            float64    `json:"strike"`
	Type              OptionType `json:"type"`
	Bid               float64    `json:"bid"`
	Ask               float64    `json:"ask"`
	Last              float64    `json:"last"`
	Volume            int64      `json:"volume"`
	OpenInterest      int64      `json:"open_interest"`
	ImpliedVolatility *float64   `json:"implied_volatility,omitempty"`
	Delta             *float64   `json:"delta,omitempty"`
	Gamma             *float64   `json:"gamma,omitempty"`
	Theta             *float64   `json:"theta,omitempty"`
	Vega              *float64   `json:"vega,omitempty"`
}

// Mid is the bid/ask midpoint, falling back to the last trade when either side is missing.
func (q OptionQuote) Mid() float64 {
	if q.Bid > 0 && q.Ask > 0 {
		return (q.Bid + q.Ask) / 2
	}
	return q.Last
}

// DTE returns calendar days from now until expiry.
func (q OptionQuote) DTE(now time.Time) int {
	return DaysBetween(now, q.Expiry)
}

// DaysBetween counts whole calendar days from a to b using their dates only.
func DaysBetween(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

// Float returns a pointer to v. Handy for optional fields.
func Float(v float64) *float64 {
	return &v
}
