package positions

import (
	"time"

	"github.com/shopspring/decimal"

	models "wheel-screener/database/models_pkg"
	"wheel-screener/market"
)

// Metrics are the derived numbers of an option position.
//
// Key Fields:
//   - UnrealizedPL: TotalPremium - CurrentPremium x Contracts x 100, null until quoted or once closed
//   - MaxLoss: strike x contracts x 100 - premium for PUTs, null for CALLs
//   - ProfitTarget50: dollar profit at which half the premium is captured
type Metrics struct {
	DTE             int                 `json:"dte"`
	DaysHeld        int                 `json:"days_held"`
	MaxProfit       decimal.Decimal     `json:"max_profit"`
	MaxLoss         decimal.NullDecimal `json:"max_loss"`
	BreakEven       decimal.Decimal     `json:"break_even"`
	UnrealizedPL    decimal.NullDecimal `json:"unrealized_pl"`
	UnrealizedPLPct *float64            `json:"unrealized_pl_pct,omitempty"`
	ProfitTarget50  decimal.NullDecimal `json:"profit_target_50pct"`
}

// UnrealizedPL returns the open profit of a short option. ok is false when the position
// is not OPEN or has no current premium yet.
func UnrealizedPL(p *models.OptionPosition) (decimal.Decimal, bool) {
	if p.Status != models.PositionOpen || !p.CurrentPremium.Valid {
		return decimal.Zero, false
	}
	return p.TotalPremium.Sub(TotalPremium(p.CurrentPremium.Decimal, p.Contracts)), true
}

// ComputeMetrics derives all position metrics as of now.
func ComputeMetrics(p *models.OptionPosition, now time.Time) Metrics {
	m := Metrics{
		DTE:       market.DaysBetween(now, p.Expiry),
		MaxProfit: p.TotalPremium,
	}

	switch {
	case p.Status == models.PositionOpen:
		m.DaysHeld = market.DaysBetween(p.EntryDate, now)
	case p.ExitDate != nil:
		m.DaysHeld = market.DaysBetween(p.EntryDate, *p.ExitDate)
	}

	if p.OptionType == string(market.Put) {
		exposure := TotalPremium(p.Strike, p.Contracts)
		m.MaxLoss = decimal.NewNullDecimal(exposure.Sub(p.TotalPremium))
		m.BreakEven = p.Strike.Sub(p.EntryPremium)
	} else {
		m.BreakEven = p.Strike.Add(p.EntryPremium)
	}

	if pl, ok := UnrealizedPL(p); ok {
		m.UnrealizedPL = decimal.NewNullDecimal(pl)
		if p.TotalPremium.IsPositive() {
			pct := pl.Div(p.TotalPremium).Mul(decimal.NewFromInt(100)).InexactFloat64()
			m.UnrealizedPLPct = &pct
		}
		half := p.EntryPremium.Div(decimal.NewFromInt(2))
		m.ProfitTarget50 = decimal.NewNullDecimal(TotalPremium(half, p.Contracts))
	}
	return m
}

// StockMetrics are the derived numbers of a share position.
type StockMetrics struct {
	TotalCost       decimal.Decimal     `json:"total_cost"`
	CurrentValue    decimal.NullDecimal `json:"current_value"`
	UnrealizedPL    decimal.NullDecimal `json:"unrealized_pl"`
	UnrealizedPLPct *float64            `json:"unrealized_pl_pct,omitempty"`
	EffectiveBasis  decimal.Decimal     `json:"effective_cost_basis"`
}

// ComputeStockMetrics values a share position at its current price. Covered call premiums
// collected on the shares lower the effective basis.
func ComputeStockMetrics(p *models.StockPosition) StockMetrics {
	qty := decimal.NewFromInt(int64(p.Quantity))
	m := StockMetrics{
		TotalCost:      p.CostBasis.Mul(qty),
		EffectiveBasis: p.CostBasis,
	}
	if p.Quantity > 0 {
		m.EffectiveBasis = p.CostBasis.Sub(p.PremiumCollected.Div(qty))
	}
	if !p.CurrentPrice.Valid {
		return m
	}
	value := p.CurrentPrice.Decimal.Mul(qty)
	pl := value.Sub(m.TotalCost)
	m.CurrentValue = decimal.NewNullDecimal(value)
	m.UnrealizedPL = decimal.NewNullDecimal(pl)
	if m.TotalCost.IsPositive() {
		pct := pl.Div(m.TotalCost).Mul(decimal.NewFromInt(100)).InexactFloat64()
		m.UnrealizedPLPct = &pct
	}
	return m
}
