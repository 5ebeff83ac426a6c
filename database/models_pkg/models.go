package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"

	"wheel-screener/indicators"
	"wheel-screener/market"
	"wheel-screener/scoring"
)

// Stock is the ticker keyed fundamentals record.
// Fundamentals are refreshed independently from indicators and option chains.
//
// Key Fields:
//   - Ticker: unique symbol (upper case)
//   - LastPrice: last close or live price used for screening
//   - ROE/DividendYield: fractions as reported by the data vendor
//   - FundamentalsAt: when the fundamentals were last fetched (data freshness)
type Stock struct {
	ID             uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	Ticker         string     `gorm:"size:12;uniqueIndex;not null" json:"ticker"`
	Name           string     `gorm:"size:200" json:"name"`
	Sector         string     `gorm:"size:100" json:"sector,omitempty"`
	LastPrice      float64    `gorm:"type:decimal(12,4)" json:"last_price"`
	MarketCap      *float64   `gorm:"type:decimal(20,2)" json:"market_cap,omitempty"`
	Beta           *float64   `gorm:"type:decimal(8,4)" json:"beta,omitempty"`
	ROE            *float64   `gorm:"type:decimal(10,6)" json:"roe,omitempty"`
	DividendYield  *float64   `gorm:"type:decimal(10,6)" json:"dividend_yield,omitempty"`
	AvgVolume      *float64   `gorm:"type:decimal(20,2)" json:"avg_volume,omitempty"`
	High52         *float64   `gorm:"type:decimal(12,4)" json:"fifty_two_week_high,omitempty"`
	Low52          *float64   `gorm:"type:decimal(12,4)" json:"fifty_two_week_low,omitempty"`
	FundamentalsAt *time.Time `gorm:"index" json:"fundamentals_at,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime;index" json:"updated_at"`
}

// TableName specifies the table name for Stock
func (Stock) TableName() string {
	return "stocks"
}

// Fundamentals converts the record to the scoring input.
func (s *Stock) Fundamentals() market.Fundamentals {
	return market.Fundamentals{
		Ticker:        s.Ticker,
		Name:          s.Name,
		Sector:        s.Sector,
		Price:         s.LastPrice,
		MarketCap:     s.MarketCap,
		Beta:          s.Beta,
		ROE:           s.ROE,
		DividendYield: s.DividendYield,
		AvgVolume:     s.AvgVolume,
		High52:        s.High52,
		Low52:         s.Low52,
	}
}

// ApplyFundamentals copies vendor values onto the record. Missing vendor values keep
// the previously stored ones.
func (s *Stock) ApplyFundamentals(f market.Fundamentals, at time.Time) {
	if f.Name != "" {
		s.Name = f.Name
	}
	if f.Sector != "" {
		s.Sector = f.Sector
	}
	if f.Price > 0 {
		s.LastPrice = f.Price
	}
	s.MarketCap = keep(s.MarketCap, f.MarketCap)
	s.Beta = keep(s.Beta, f.Beta)
	s.ROE = keep(s.ROE, f.ROE)
	s.DividendYield = keep(s.DividendYield, f.DividendYield)
	s.AvgVolume = keep(s.AvgVolume, f.AvgVolume)
	s.High52 = keep(s.High52, f.High52)
	s.Low52 = keep(s.Low52, f.Low52)
	s.FundamentalsAt = &at
}

func keep(old, new *float64) *float64 {
	if new != nil {
		return new
	}
	return old
}

// Watchlist holds the tickers the screener refreshes and generates signals for.
type Watchlist struct {
	ID      uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Ticker  string    `gorm:"size:12;uniqueIndex;not null" json:"ticker"`
	Notes   string    `gorm:"type:text" json:"notes,omitempty"`
	AddedAt time.Time `gorm:"autoCreateTime" json:"added_at"`
}

// TableName specifies the table name for Watchlist
func (Watchlist) TableName() string {
	return "watchlist"
}

// IndicatorRecord is the single, overwritten indicator snapshot of a stock.
//
// Key Fields:
//   - StockID: one record per stock (unique)
//   - RSI/EMA50/EMA200/BB*: nil when the lookback was not met
//   - SupportLevels/ResistanceLevels: up to 3 levels, closest first, no padding stored
//   - PriceHistory: JSON encoded bars retained for charting and level detection
type IndicatorRecord struct {
	ID               uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	StockID          uint            `gorm:"uniqueIndex;not null" json:"stock_id"`
	Ticker           string          `gorm:"size:12;index;not null" json:"ticker"`
	Price            float64         `gorm:"type:decimal(12,4)" json:"price"`
	RSI              *float64        `gorm:"type:decimal(8,4)" json:"rsi,omitempty"`
	RSISignal        string          `gorm:"size:12" json:"rsi_signal"`
	EMA50            *float64        `gorm:"column:ema_50;type:decimal(12,4)" json:"ema_50,omitempty"`
	EMA200           *float64        `gorm:"column:ema_200;type:decimal(12,4)" json:"ema_200,omitempty"`
	EMATrend         string          `gorm:"size:10" json:"ema_trend"`
	BBUpper          *float64        `gorm:"type:decimal(12,4)" json:"bb_upper,omitempty"`
	BBMiddle         *float64        `gorm:"type:decimal(12,4)" json:"bb_middle,omitempty"`
	BBLower          *float64        `gorm:"type:decimal(12,4)" json:"bb_lower,omitempty"`
	BBPosition       string          `gorm:"size:16" json:"bb_position,omitempty"`
	SupportLevels    pq.Float64Array `gorm:"type:double precision[]" json:"support_levels"`
	ResistanceLevels pq.Float64Array `gorm:"type:double precision[]" json:"resistance_levels"`
	PriceHistory     datatypes.JSON  `gorm:"type:jsonb" json:"-"`
	CalculatedAt     time.Time       `gorm:"index;not null" json:"calculated_at"`
}

// TableName specifies the table name for IndicatorRecord
func (IndicatorRecord) TableName() string {
	return "technical_indicators"
}

// NewIndicatorRecord flattens a snapshot into its persisted form.
func NewIndicatorRecord(stockID uint, snap *indicators.Snapshot) (*IndicatorRecord, error) {
	history, err := json.Marshal(snap.History)
	if err != nil {
		return nil, fmt.Errorf("encode price history: %w", err)
	}

	rec := &IndicatorRecord{
		StockID:          stockID,
		Ticker:           snap.Ticker,
		Price:            snap.Price,
		RSI:              snap.RSI,
		RSISignal:        string(snap.RSISignal),
		EMA50:            snap.EMA50,
		EMA200:           snap.EMA200,
		EMATrend:         string(snap.Trend),
		BBPosition:       string(snap.BandPosition),
		SupportLevels:    compactLevels(snap.Levels.Supports),
		ResistanceLevels: compactLevels(snap.Levels.Resistances),
		PriceHistory:     datatypes.JSON(history),
		CalculatedAt:     snap.CalculatedAt,
	}
	if snap.Bands != nil {
		rec.BBUpper = market.Float(snap.Bands.Upper)
		rec.BBMiddle = market.Float(snap.Bands.Middle)
		rec.BBLower = market.Float(snap.Bands.Lower)
	}
	return rec, nil
}

// Snapshot rebuilds the in-memory snapshot used by the scorers.
func (r *IndicatorRecord) Snapshot() (*indicators.Snapshot, error) {
	snap := &indicators.Snapshot{
		Ticker:       r.Ticker,
		Price:        r.Price,
		RSI:          r.RSI,
		RSISignal:    indicators.RSISignal(r.RSISignal),
		EMA50:        r.EMA50,
		EMA200:       r.EMA200,
		Trend:        indicators.Trend(r.EMATrend),
		BandPosition: indicators.BandPosition(r.BBPosition),
		Levels: indicators.Levels{
			Supports:    padLevels(r.SupportLevels),
			Resistances: padLevels(r.ResistanceLevels),
		},
		CalculatedAt: r.CalculatedAt,
	}
	if r.BBUpper != nil && r.BBMiddle != nil && r.BBLower != nil {
		snap.Bands = &indicators.Bands{Upper: *r.BBUpper, Middle: *r.BBMiddle, Lower: *r.BBLower}
	}
	if len(r.PriceHistory) > 0 {
		if err := json.Unmarshal(r.PriceHistory, &snap.History); err != nil {
			return nil, fmt.Errorf("decode price history: %w", err)
		}
	}
	return snap, nil
}

func compactLevels(levels [indicators.MaxLevels]*float64) pq.Float64Array {
	out := pq.Float64Array{}
	for _, l := range levels {
		if l != nil {
			out = append(out, *l)
		}
	}
	return out
}

func padLevels(levels pq.Float64Array) [indicators.MaxLevels]*float64 {
	var out [indicators.MaxLevels]*float64
	for i := 0; i < len(levels) && i < indicators.MaxLevels; i++ {
		out[i] = market.Float(levels[i])
	}
	return out
}

// OptionContract is one quoted contract of a stock's chain.
// Unique on (stock, expiry, strike, type); refreshes upsert in place.
type OptionContract struct {
	ID                uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	StockID           uint      `gorm:"not null;uniqueIndex:idx_option_contract" json:"stock_id"`
	Ticker            string    `gorm:"size:12;index;not null" json:"ticker"`
	Expiry            time.Time `gorm:"type:date;not null;uniqueIndex:idx_option_contract" json:"expiry"`
	Strike            float64   `gorm:"type:decimal(12,4);not null;uniqueIndex:idx_option_contract" json:"strike"`
	OptionType        string    `gorm:"size:4;not null;uniqueIndex:idx_option_contract" json:"option_type"` // PUT, CALL
	Bid               float64   `gorm:"type:decimal(12,4)" json:"bid"`
	Ask               float64   `gorm:"type:decimal(12,4)" json:"ask"`
	Last              float64   `gorm:"type:decimal(12,4)" json:"last"`
	Volume            int64     `json:"volume"`
	OpenInterest      int64     `json:"open_interest"`
	ImpliedVolatility *float64  `gorm:"type:decimal(10,6)" json:"implied_volatility,omitempty"`
	Delta             *float64  `gorm:"type:decimal(10,6)" json:"delta,omitempty"`
	Gamma             *float64  `gorm:"type:decimal(10,6)" json:"gamma,omitempty"`
	Theta             *float64  `gorm:"type:decimal(10,6)" json:"theta,omitempty"`
	Vega              *float64  `gorm:"type:decimal(10,6)" json:"vega,omitempty"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for OptionContract
func (OptionContract) TableName() string {
	return "options"
}

// NewOptionContract maps a quote onto a contract row of stockID.
func NewOptionContract(stockID uint, q market.OptionQuote) OptionContract {
	return OptionContract{
		StockID:           stockID,
		Ticker:            q.Ticker,
		Expiry:            q.Expiry,
		Strike:            q.Strike,
		OptionType:        string(q.Type),
		Bid:               q.Bid,
		Ask:               q.Ask,
		Last:              q.Last,
		Volume:            q.Volume,
		OpenInterest:      q.OpenInterest,
		ImpliedVolatility: q.ImpliedVolatility,
		Delta:             q.Delta,
		Gamma:             q.Gamma,
		Theta:             q.Theta,
		Vega:              q.Vega,
	}
}

// Quote converts the row back to the scoring shape.
func (o *OptionContract) Quote() market.OptionQuote {
	return market.OptionQuote{
		Ticker:            o.Ticker,
		Expiry:            o.Expiry,
		Strike:            o.Strike,
		Type:              market.OptionType(o.OptionType),
		Bid:               o.Bid,
		Ask:               o.Ask,
		Last:              o.Last,
		Volume:            o.Volume,
		OpenInterest:      o.OpenInterest,
		ImpliedVolatility: o.ImpliedVolatility,
		Delta:             o.Delta,
		Gamma:             o.Gamma,
		Theta:             o.Theta,
		Vega:              o.Vega,
	}
}

// Quotes converts a slice of rows.
func Quotes(rows []OptionContract) []market.OptionQuote {
	out := make([]market.OptionQuote, len(rows))
	for i := range rows {
		out[i] = rows[i].Quote()
	}
	return out
}

// WheelScoreRecord is one day's wheel score of a stock.
// The history is append-only with at most one row per stock per calendar day,
// enforced by the repository checking before insert.
type WheelScoreRecord struct {
	ID              uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	StockID         uint      `gorm:"index:idx_wheel_stock_date;not null" json:"stock_id"`
	Ticker          string    `gorm:"size:12;index;not null" json:"ticker"`
	ScoreDate       time.Time `gorm:"type:date;index:idx_wheel_stock_date;not null" json:"score_date"`
	VolatilityScore int       `json:"volatility_score"`
	LiquidityScore  int       `json:"liquidity_score"`
	TechnicalScore  int       `json:"technical_score"`
	StabilityScore  int       `json:"stability_score"`
	PriceScore      int       `json:"price_score"`
	TotalScore      int       `gorm:"index" json:"total_score"`
	Grade           string    `gorm:"size:1" json:"grade"`
	Trend           string    `gorm:"size:10" json:"trend,omitempty"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for WheelScoreRecord
func (WheelScoreRecord) TableName() string {
	return "wheel_scores"
}

// NewWheelScoreRecord stores ws for the calendar day of at.
func NewWheelScoreRecord(stockID uint, ticker string, ws scoring.WheelScore, at time.Time) WheelScoreRecord {
	return WheelScoreRecord{
		StockID:         stockID,
		Ticker:          ticker,
		ScoreDate:       DateOf(at),
		VolatilityScore: ws.Volatility,
		LiquidityScore:  ws.Liquidity,
		TechnicalScore:  ws.Technical,
		StabilityScore:  ws.Stability,
		PriceScore:      ws.Price,
		TotalScore:      ws.Total,
		Grade:           ws.Grade,
	}
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
