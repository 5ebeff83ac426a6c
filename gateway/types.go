package gateway

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Quote is a market data snapshot. Option quotes also carry IV and delta when the
// gateway has computed greeks.
type Quote struct {
	ConID int      `json:"conid"`
	Last  float64  `json:"last"`
	Bid   float64  `json:"bid"`
	Ask   float64  `json:"ask"`
	Mid   float64  `json:"mid"`
	IV    *float64 `json:"iv,omitempty"`
	Delta *float64 `json:"delta,omitempty"`
}

// Price returns the mid when both sides are quoted, else the last trade.
func (q Quote) Price() float64 {
	if q.Mid > 0 {
		return q.Mid
	}
	return q.Last
}

// Position is one line of the brokerage portfolio.
//
// Key Fields:
//   - Quantity: negative for short positions
//   - AvgCost: per share for stocks, per contract (x100) for options
//   - Right: "P" or "C", empty for stocks
type Position struct {
	ConID         int       `json:"conid"`
	Ticker        string    `json:"ticker"`
	AssetClass    string    `json:"asset_class"`
	Quantity      float64   `json:"quantity"`
	MarketPrice   float64   `json:"market_price"`
	MarketValue   float64   `json:"market_value"`
	AvgCost       float64   `json:"avg_cost"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	Strike        float64   `json:"strike,omitempty"`
	Expiry        time.Time `json:"expiry,omitempty"`
	Right         string    `json:"right,omitempty"`
}

// IsShort reports whether the position was opened by selling.
func (p Position) IsShort() bool {
	return p.Quantity < 0
}

// Portfolio is the account's positions split by asset class.
type Portfolio struct {
	Stocks  []Position `json:"stocks"`
	Options []Position `json:"options"`
	// Unreadable lists the tickers of option lines that could not be parsed.
	Unreadable []string `json:"unreadable,omitempty"`
}

// OrderRequest is a limit or market order for a stock or option contract.
type OrderRequest struct {
	Ticker    string    `json:"ticker"`
	SecType   string    `json:"sec_type"` // STK or OPT
	Action    string    `json:"action"`   // BUY or SELL
	OrderType string    `json:"order_type"`
	Quantity  int       `json:"quantity"`
	Limit     float64   `json:"limit_price,omitempty"`
	Strike    float64   `json:"strike,omitempty"`
	Expiry    time.Time `json:"expiry,omitempty"`
	Right     string    `json:"right,omitempty"`
}

// OrderResult is the gateway's acknowledgement of a placed order.
type OrderResult struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// OpenOrder is a working order on the account.
type OpenOrder struct {
	OrderID   string  `json:"order_id"`
	ConID     int     `json:"conid"`
	Ticker    string  `json:"ticker"`
	SecType   string  `json:"sec_type"`
	Side      string  `json:"side"`
	Quantity  float64 `json:"quantity"`
	Filled    float64 `json:"filled"`
	Limit     float64 `json:"limit_price"`
	Status    string  `json:"status"`
	OrderType string  `json:"order_type"`
}

type searchResult struct {
	ConID    interface{} `json:"conid"`
	Symbol   string      `json:"symbol"`
	Sections []struct {
		SecType string `json:"secType"`
		Months  string `json:"months"`
	} `json:"sections"`
}

type contractInfo struct {
	ConID        int     `json:"conid"`
	Symbol       string  `json:"symbol"`
	Strike       float64 `json:"strike"`
	Right        string  `json:"right"`
	MaturityDate string  `json:"maturityDate"`
}

type portfolioLine struct {
	ConID         interface{} `json:"conid"`
	ContractDesc  string      `json:"contractDesc"`
	Ticker        string      `json:"ticker"`
	AssetClass    string      `json:"assetClass"`
	Position      interface{} `json:"position"`
	MktPrice      interface{} `json:"mktPrice"`
	MktValue      interface{} `json:"mktValue"`
	AvgCost       interface{} `json:"avgCost"`
	UnrealizedPnl interface{} `json:"unrealizedPnl"`
	Strike        interface{} `json:"strike"`
	Expiry        string      `json:"expiry"`
	PutOrCall     string      `json:"putOrCall"`
}

// parseFieldValue extracts a float from the shapes the gateway uses for numeric fields:
// numbers, strings (sometimes prefixed with C or H for close or halted, or suffixed
// with %), and {"v": ...}.
func parseFieldValue(field interface{}) (float64, bool) {
	switch val := field.(type) {
	case nil:
		return 0, false
	case float64:
		return val, true
	case int:
		return float64(val), true
	case string:
		s := strings.TrimLeft(strings.TrimSpace(val), "CH")
		s = strings.TrimSuffix(strings.ReplaceAll(s, ",", ""), "%")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case map[string]interface{}:
		if v, ok := val["v"]; ok {
			return parseFieldValue(v)
		}
	}
	return 0, false
}

func parseFloat(field interface{}) float64 {
	f, _ := parseFieldValue(field)
	return f
}

func parseInt(field interface{}) int {
	return int(parseFloat(field))
}

// monthCode formats an expiry the way secdef endpoints expect it, e.g. JAN26.
func monthCode(t time.Time) string {
	return strings.ToUpper(t.Format("Jan06"))
}

// parseExpiry accepts the YYYYMMDD form used by positions and contract info.
func parseExpiry(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty expiry")
	}
	return time.Parse("20060102", s)
}

func formatStrike(strike float64) string {
	return strconv.FormatFloat(strike, 'f', -1, 64)
}

// parseID renders a numeric or string identifier without exponent notation.
func parseID(field interface{}) string {
	switch v := field.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	}
	return fmt.Sprint(field)
}
