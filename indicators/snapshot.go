package indicators

import (
	"errors"
	"fmt"
	"time"

	"wheel-screener/market"
)

// ErrInsufficientData is returned when a series is too short for even the RSI lookback.
var ErrInsufficientData = errors.New("insufficient price history")

// Snapshot is the full indicator set for one stock.
//
// Key Fields:
//   - RSI/RSISignal: 14 period RSI, nil when the window is flat or too short
//   - EMA50/EMA200/Trend: trend regime, NEUTRAL whenever either EMA is missing
//   - Bands/BandPosition: 20 period Bollinger Bands and the label for Price
//   - Levels: three supports below and three resistances above Price
//   - History: the most recent bars (at most HistoryBars)
type Snapshot struct {
	Ticker       string
	Price        float64
	RSI          *float64
	RSISignal    RSISignal
	EMA50        *float64
	EMA200       *float64
	Trend        Trend
	Bands        *Bands
	BandPosition BandPosition
	Levels       Levels
	History      []market.PriceBar
	CalculatedAt time.Time
}

// Calculate builds a snapshot from daily bars ordered oldest first. The last close is the
// reference price. Each indicator degrades on its own when its lookback is not met.
func Calculate(ticker string, bars []market.PriceBar, now time.Time) (*Snapshot, error) {
	if len(bars) < RSIPeriod+1 {
		return nil, fmt.Errorf("%s: %w (%d bars)", ticker, ErrInsufficientData, len(bars))
	}

	closes := market.Closes(bars)
	price := closes[len(closes)-1]

	snap := &Snapshot{
		Ticker:       ticker,
		Price:        price,
		CalculatedAt: now,
	}

	snap.RSI = RSI(closes, RSIPeriod)
	snap.RSISignal = ClassifyRSI(snap.RSI)

	snap.EMA50 = EMA(closes, EMAFast)
	snap.EMA200 = EMA(closes, EMASlow)
	snap.Trend = ClassifyTrend(snap.EMA50, snap.EMA200)

	snap.Bands = Bollinger(closes, BollingerPeriod, BollingerStdDev)
	snap.BandPosition = snap.Bands.Position(price)

	snap.Levels = SupportResistance(bars, price, LevelWindow)

	start := 0
	if len(bars) > HistoryBars {
		start = len(bars) - HistoryBars
	}
	snap.History = append([]market.PriceBar(nil), bars[start:]...)

	return snap, nil
}

// NearSupport reports whether price is within 3% of a support level.
func (s *Snapshot) NearSupport() bool {
	return s != nil && NearLevel(s.Price, s.Levels.Supports)
}

// NearResistance reports whether price is within 3% of a resistance level.
func (s *Snapshot) NearResistance() bool {
	return s != nil && NearLevel(s.Price, s.Levels.Resistances)
}

// Support returns the closest support or nil.
func (s *Snapshot) Support() *float64 {
	if s == nil {
		return nil
	}
	return s.Levels.Supports[0]
}

// Resistance returns the closest resistance or nil.
func (s *Snapshot) Resistance() *float64 {
	if s == nil {
		return nil
	}
	return s.Levels.Resistances[0]
}
