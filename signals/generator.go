// Package signals screens stocks and turns qualifying option contracts into wheel
// trade signals: cash-secured puts on watchlist stocks and covered calls on held shares.
package signals

import (
	"fmt"
	"math"
	"sort"
	"time"

	"wheel-screener/indicators"
	"wheel-screener/market"
	"wheel-screener/scoring"
)

// Type is the kind of wheel trade a signal recommends.
type Type string

const (
	CashSecuredPut Type = "CASH_SECURED_PUT"
	CoveredCall    Type = "COVERED_CALL"
)

const (
	// MaxPerStock caps the signals emitted for one stock (or one stock position).
	MaxPerStock = 2
	// MinQuality is the lowest quality score that produces a signal (grade B).
	MinQuality = 60

	targetDeltaLow  = 0.25
	targetDeltaHigh = 0.35
	coveredCallLoss = 100.0
)

// Holding is a stock position eligible for covered calls.
type Holding struct {
	Ticker          string
	Shares          int
	CostBasis       float64
	UnrealizedPLPct *float64
}

// Signal is a generated trade recommendation, not yet persisted.
type Signal struct {
	Ticker      string                `json:"ticker"`
	Type        Type                  `json:"signal_type"`
	Option      market.OptionQuote    `json:"option"`
	DTE         int                   `json:"dte"`
	Premium     float64               `json:"premium"`
	ErrPct      float64               `json:"err_pct"`
	APYPct      float64               `json:"apy_pct"`
	BreakEven   float64               `json:"break_even"`
	MaxLossPct  float64               `json:"max_loss_pct"`
	Quality     scoring.SignalQuality `json:"quality"`
	Grade       string                `json:"grade"`
	Reasons     scoring.Reasons       `json:"reasons"`
	GeneratedAt time.Time             `json:"generated_at"`
}

// Generator emits signals using one user's thresholds.
type Generator struct {
	cfg Config
}

// NewGenerator creates a generator for cfg.
func NewGenerator(cfg Config) *Generator {
	return &Generator{cfg: cfg}
}

// Config returns the thresholds in use.
func (g *Generator) Config() Config {
	return g.cfg
}

// GeneratePuts returns up to MaxPerStock cash-secured put signals for a screened stock.
// Stocks without indicators or in a bearish trend produce nothing.
func (g *Generator) GeneratePuts(c Candidate, now time.Time) []Signal {
	snap := c.Snapshot
	if snap == nil || snap.Trend == indicators.Bearish {
		return nil
	}

	puts := filterChain(c.Chain, market.Put, now, func(q market.OptionQuote) bool { return true })
	sort.SliceStable(puts, func(i, j int) bool {
		if !puts[i].Expiry.Equal(puts[j].Expiry) {
			return puts[i].Expiry.Before(puts[j].Expiry)
		}
		return puts[i].Strike > puts[j].Strike
	})

	var out []Signal
	for _, q := range puts {
		dte := q.DTE(now)
		if !g.meetsCriteria(q, dte) || !inTargetDelta(q.Delta) || dte <= 0 {
			continue
		}

		premium := q.Mid()
		if q.Strike == 0 || premium == 0 {
			continue
		}

		errPct := premium / (q.Strike * 100) * 100
		apy := errPct * 365 / float64(dte)
		quality := scoring.CalculateSignalQuality(c.Fundamentals, snap, q, apy)
		if quality.Total < MinQuality {
			continue
		}

		out = append(out, Signal{
			Ticker:      c.Fundamentals.Ticker,
			Type:        CashSecuredPut,
			Option:      q,
			DTE:         dte,
			Premium:     premium,
			ErrPct:      errPct,
			APYPct:      apy,
			BreakEven:   q.Strike - premium/100,
			MaxLossPct:  g.cfg.MaxLossPerTrade,
			Quality:     quality,
			Grade:       scoring.SignalGrade(quality.Total),
			Reasons:     putReasons(q, snap, premium, quality),
			GeneratedAt: now,
		})
		if len(out) >= MaxPerStock {
			break
		}
	}
	return out
}

// GenerateCalls returns up to MaxPerStock covered call signals for a held stock.
// Only OTM calls are considered. There is no trend exclusion since the shares are owned.
func (g *Generator) GenerateCalls(c Candidate, h Holding, now time.Time) []Signal {
	snap := c.Snapshot
	if snap == nil {
		return nil
	}
	price := c.Fundamentals.Price
	if price <= 0 {
		price = snap.Price
	}

	calls := filterChain(c.Chain, market.Call, now, func(q market.OptionQuote) bool { return q.Strike > price })
	sort.SliceStable(calls, func(i, j int) bool {
		if !calls[i].Expiry.Equal(calls[j].Expiry) {
			return calls[i].Expiry.Before(calls[j].Expiry)
		}
		return calls[i].Strike < calls[j].Strike
	})

	var out []Signal
	for _, q := range calls {
		dte := q.DTE(now)
		if dte < g.cfg.MinDTE || dte > g.cfg.MaxDTE || dte <= 0 {
			continue
		}
		if !inTargetDelta(q.Delta) {
			continue
		}
		premium := q.Mid()
		if premium <= 0 {
			continue
		}

		errPct := premium / (q.Strike * 100) * 100
		apy := errPct * 365 / float64(dte)
		quality := scoring.CalculateSignalQuality(c.Fundamentals, snap, q, apy)
		if quality.Total < MinQuality {
			continue
		}

		out = append(out, Signal{
			Ticker:      c.Fundamentals.Ticker,
			Type:        CoveredCall,
			Option:      q,
			DTE:         dte,
			Premium:     premium,
			ErrPct:      errPct,
			APYPct:      apy,
			BreakEven:   price - premium/100,
			MaxLossPct:  coveredCallLoss,
			Quality:     quality,
			Grade:       scoring.SignalGrade(quality.Total),
			Reasons:     callReasons(q, snap, h, premium),
			GeneratedAt: now,
		})
		if len(out) >= MaxPerStock {
			break
		}
	}
	return out
}

// meetsCriteria applies the user's DTE window, signed delta bounds and IV ceiling.
// Missing delta or IV skips that check.
func (g *Generator) meetsCriteria(q market.OptionQuote, dte int) bool {
	if dte < g.cfg.MinDTE || dte > g.cfg.MaxDTE {
		return false
	}
	if q.Delta != nil && (*q.Delta > g.cfg.MaxDelta || *q.Delta < g.cfg.MinDelta) {
		return false
	}
	if q.ImpliedVolatility != nil && *q.ImpliedVolatility > g.cfg.MaxIV {
		return false
	}
	return true
}

func inTargetDelta(delta *float64) bool {
	if delta == nil {
		return true
	}
	d := math.Abs(*delta)
	return d >= targetDeltaLow && d <= targetDeltaHigh
}

func filterChain(chain []market.OptionQuote, t market.OptionType, now time.Time, keep func(market.OptionQuote) bool) []market.OptionQuote {
	var out []market.OptionQuote
	for _, q := range chain {
		if q.Type != t || q.DTE(now) < 0 || !keep(q) {
			continue
		}
		out = append(out, q)
	}
	return out
}

func deltaText(delta *float64) string {
	if delta == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.2f", math.Abs(*delta))
}

func putReasons(q market.OptionQuote, snap *indicators.Snapshot, premium float64, quality scoring.SignalQuality) scoring.Reasons {
	var r scoring.Reasons
	r.Add("WHEEL_CSP", scoring.Neutral, "Wheel strategy: cash-secured put entry")
	r.Add("CONTRACT", scoring.Neutral, fmt.Sprintf("Strike $%.2f | Delta %s", q.Strike, deltaText(q.Delta)))

	if snap.RSI != nil {
		switch rsi := *snap.RSI; {
		case rsi < 40:
			r.Add("RSI_OVERSOLD", scoring.Positive, fmt.Sprintf("RSI %.1f, stock oversold, good put entry", rsi))
		case rsi < 60:
			r.Add("RSI_NEUTRAL", scoring.Positive, fmt.Sprintf("RSI %.1f, neutral, favorable for puts", rsi))
		}
	}

	switch snap.Trend {
	case indicators.Bullish:
		r.Add("TREND_BULLISH", scoring.Positive, "Bullish trend reduces assignment risk")
	case indicators.NeutralTrend:
		r.Add("TREND_NEUTRAL", scoring.Neutral, "Neutral trend, standard wheel entry")
	}

	if snap.NearSupport() {
		r.Add("NEAR_SUPPORT", scoring.Positive, "Price near support, protected downside")
	}
	if s := snap.Support(); s != nil {
		if q.Strike <= *s {
			r.Add("STRIKE_AT_SUPPORT", scoring.Positive, fmt.Sprintf("Strike at or below support $%.2f", *s))
		} else {
			r.Add("STRIKE_ABOVE_SUPPORT", scoring.Caution, fmt.Sprintf("Strike above support $%.2f", *s))
		}
	}

	r.Add("PREMIUM", scoring.Neutral, fmt.Sprintf("Collect $%.2f premium", premium))
	if quality.AssignmentRisk < 30 {
		r.Add("ASSIGNMENT_LOW", scoring.Positive, fmt.Sprintf("%.0f%% assignment risk, likely expires worthless", quality.AssignmentRisk))
	} else {
		r.Add("ASSIGNMENT_RISK", scoring.Caution, fmt.Sprintf("%.0f%% assignment risk, may get assigned at $%.2f", quality.AssignmentRisk, q.Strike))
		r.Add("IF_ASSIGNED", scoring.Neutral, "If assigned, sell covered calls at resistance")
	}
	return r
}

func callReasons(q market.OptionQuote, snap *indicators.Snapshot, h Holding, premium float64) scoring.Reasons {
	var r scoring.Reasons
	r.Add("WHEEL_CC", scoring.Neutral, "Wheel strategy: covered call on held shares")
	r.Add("POSITION", scoring.Neutral, fmt.Sprintf("Position: %d shares @ $%.2f", h.Shares, h.CostBasis))
	r.Add("CONTRACT", scoring.Neutral, fmt.Sprintf("Strike $%.2f | Delta %s", q.Strike, deltaText(q.Delta)))

	if h.UnrealizedPLPct != nil {
		if pct := *h.UnrealizedPLPct; pct > 0 {
			r.Add("POSITION_UP", scoring.Positive, fmt.Sprintf("Position up %.1f%%, good time to sell calls", pct))
		} else {
			r.Add("POSITION_DOWN", scoring.Caution, fmt.Sprintf("Position down %.1f%%, collect premium while waiting", math.Abs(pct)))
		}
	}

	if snap.NearResistance() {
		r.Add("NEAR_RESISTANCE", scoring.Positive, "Price near resistance, high probability call")
	}
	if res := snap.Resistance(); res != nil {
		if q.Strike >= *res {
			r.Add("STRIKE_AT_RESISTANCE", scoring.Positive, fmt.Sprintf("Strike at or above resistance $%.2f", *res))
		} else {
			r.Add("STRIKE_BELOW_RESISTANCE", scoring.Caution, fmt.Sprintf("Strike below resistance $%.2f", *res))
		}
	} else {
		r.Add("NO_RESISTANCE", scoring.Neutral, "No resistance level above price")
	}

	r.Add("PREMIUM", scoring.Neutral, fmt.Sprintf("Collect $%.2f premium", premium))
	if q.Delta != nil && *q.Delta > 0.30 {
		r.Add("CALL_AWAY_RISK", scoring.Caution, fmt.Sprintf("%.0f%% chance stock is called away", *q.Delta*100))
		r.Add("IF_CALLED", scoring.Neutral, fmt.Sprintf("If called: profit $%.2f", (q.Strike-h.CostBasis)*float64(h.Shares)))
	} else if q.Delta != nil {
		r.Add("KEEP_SHARES", scoring.Positive, fmt.Sprintf("%.0f%% chance expires worthless, keep shares", (1-*q.Delta)*100))
	}
	return r
}
