package positions

import (
	"fmt"
	"math"
	"time"

	models "wheel-screener/database/models_pkg"
	"wheel-screener/helpers"
	"wheel-screener/market"
)

// Notice levels
const (
	LevelCritical = "CRITICAL"
	LevelUrgent   = "URGENT"
	LevelWarning  = "WARNING"
	LevelHigh     = "HIGH"
)

// Recommendation priorities
const (
	PriorityHigh   = "HIGH"
	PriorityMedium = "MEDIUM"
	PriorityLow    = "LOW"
)

// Notice is an urgency alert raised by the analysis.
type Notice struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Action is a recommended next step.
type Action struct {
	Action   string `json:"action"`
	Priority string `json:"priority"`
	Reason   string `json:"reason"`
	Details  string `json:"details"`
}

// AssignmentOdds buckets how likely a short PUT is to be assigned.
type AssignmentOdds struct {
	Level       string  `json:"level"`
	DistancePct float64 `json:"distance_pct"`
}

// IfAssigned describes the share position a PUT assignment would create.
type IfAssigned struct {
	CostBasis    float64 `json:"cost_basis"`
	TotalCost    float64 `json:"total_cost"`
	CurrentValue float64 `json:"current_value"`
	UnrealizedPL float64 `json:"unrealized_pl"`
}

// Recovery is the gain on assigned shares if the stock recovers to Price.
type Recovery struct {
	Price   float64 `json:"price"`
	Gain    float64 `json:"gain"`
	GainPct float64 `json:"gain_pct"`
}

// ActionPlan groups plan steps by when they apply.
type ActionPlan struct {
	Immediate        []string `json:"immediate"`
	BeforeExpiration []string `json:"before_expiration"`
	AtExpiration     []string `json:"at_expiration"`
}

// Analysis is the rule based review of one option position.
type Analysis struct {
	PositionID      uint            `json:"position_id"`
	Ticker          string          `json:"ticker"`
	StockPrice      float64         `json:"stock_price"`
	DTE             int             `json:"dte"`
	CurrentPL       float64         `json:"current_pl"`
	CurrentPLPct    float64         `json:"current_pl_pct"`
	Alerts          []Notice        `json:"alerts"`
	Assignment      *AssignmentOdds `json:"assignment_probability,omitempty"`
	Recommendations []Action        `json:"recommendations"`
	IfAssigned      *IfAssigned     `json:"if_assigned,omitempty"`
	Recovery        []Recovery      `json:"recovery,omitempty"`
	Plan            ActionPlan      `json:"action_plan"`
}

// Analyze reviews p against the current stock price.
func Analyze(p *models.OptionPosition, stockPrice float64, now time.Time) Analysis {
	strike := p.Strike.InexactFloat64()
	premium := p.TotalPremium.InexactFloat64()
	perShare := p.EntryPremium.InexactFloat64()
	shares := float64(p.Contracts * 100)
	dte := market.DaysBetween(now, p.Expiry)
	isPut := p.OptionType == string(market.Put)

	a := Analysis{
		PositionID: p.ID,
		Ticker:     p.Ticker,
		StockPrice: stockPrice,
		DTE:        dte,
	}

	switch {
	case dte <= 0:
		a.Alerts = append(a.Alerts, Notice{LevelCritical, "EXPIRED, position needs immediate action"})
	case dte <= 2:
		a.Alerts = append(a.Alerts, Notice{LevelUrgent, fmt.Sprintf("EXPIRING IN %d %s, decision needed today", dte, plural(dte, "DAY", "DAYS"))})
	case dte <= 5:
		a.Alerts = append(a.Alerts, Notice{LevelWarning, fmt.Sprintf("%d days until expiration, plan your exit", dte)})
	}

	if isPut && strike > 0 {
		distance := (stockPrice - strike) / strike * 100
		odds := &AssignmentOdds{DistancePct: distance}
		switch {
		case stockPrice < strike*0.95:
			odds.Level = "VERY HIGH (>80%)"
			a.Alerts = append(a.Alerts, Notice{LevelHigh, fmt.Sprintf("High assignment risk: stock $%.2f is %.1f%% below strike $%.2f", stockPrice, math.Abs(distance), strike)})
		case stockPrice < strike:
			odds.Level = "HIGH (50-80%)"
		case stockPrice < strike*1.05:
			odds.Level = "MODERATE (20-50%)"
		default:
			odds.Level = "LOW (<20%)"
		}
		a.Assignment = odds
	}

	if pl, ok := UnrealizedPL(p); ok {
		a.CurrentPL = pl.InexactFloat64()
		if premium > 0 {
			a.CurrentPLPct = a.CurrentPL / premium * 100
		}
	}
	pct := a.CurrentPLPct

	switch {
	case pct >= 50:
		a.Recommendations = append(a.Recommendations, Action{
			Action:   "TAKE PROFIT",
			Priority: PriorityHigh,
			Reason:   fmt.Sprintf("Achieved %.0f%% profit (50%% rule met)", pct),
			Details:  fmt.Sprintf("Close position now to lock in $%.2f profit", a.CurrentPL),
		})
	case pct >= 30:
		a.Recommendations = append(a.Recommendations, Action{
			Action:   "CONSIDER CLOSING",
			Priority: PriorityMedium,
			Reason:   fmt.Sprintf("%.0f%% profit achieved", pct),
			Details:  "Good profit level, take it or wait for 50%",
		})
	}

	if dte > 0 && dte <= 7 {
		if stockPrice > strike*0.95 {
			a.Recommendations = append(a.Recommendations, Action{
				Action:   "CONSIDER ROLLING",
				Priority: PriorityMedium,
				Reason:   fmt.Sprintf("Expiring in %d days with good position", dte),
				Details:  "Roll out to the next expiration to collect more premium",
			})
		} else if stockPrice < strike {
			a.Recommendations = append(a.Recommendations, Action{
				Action:   "ROLL DOWN/OUT",
				Priority: PriorityHigh,
				Reason:   "At-risk position near expiration",
				Details:  "Roll to a lower strike or later date to avoid assignment",
			})
		}
	}

	if dte <= 3 && pct > 80 {
		a.Recommendations = append(a.Recommendations, Action{
			Action:   "LET EXPIRE",
			Priority: PriorityLow,
			Reason:   fmt.Sprintf("Only $%.2f remaining value", premium*(1-pct/100)),
			Details:  "Not worth the closing costs, let it expire worthless",
		})
	}

	if isPut && stockPrice < strike*0.98 {
		a.Recommendations = append(a.Recommendations, Action{
			Action:   "PREPARE FOR ASSIGNMENT",
			Priority: PriorityHigh,
			Reason:   "Stock near or below strike price",
			Details:  fmt.Sprintf("Ensure %s cash is available to buy %.0f shares at $%.2f", helpers.FormatUSD(strike*shares), shares, strike),
		})
	}

	if isPut {
		basis := strike - perShare
		a.IfAssigned = &IfAssigned{
			CostBasis:    basis,
			TotalCost:    strike * shares,
			CurrentValue: stockPrice * shares,
			UnrealizedPL: (stockPrice - basis) * shares,
		}
		for _, mult := range []float64{1.05, 1.10, 1.15} {
			target := strike * mult
			r := Recovery{Price: target, Gain: (target - basis) * shares}
			if basis != 0 {
				r.GainPct = (target - basis) / basis * 100
			}
			a.Recovery = append(a.Recovery, r)
		}
	}

	a.Plan = buildPlan(p, stockPrice, strike, premium, dte, pct, isPut)
	return a
}

func buildPlan(p *models.OptionPosition, price, strike, premium float64, dte int, pct float64, isPut bool) ActionPlan {
	var plan ActionPlan

	switch {
	case pct >= 50:
		plan.Immediate = append(plan.Immediate, fmt.Sprintf("Consider closing, already at %.0f%% profit", pct))
	case pct >= 30:
		plan.Immediate = append(plan.Immediate, fmt.Sprintf("Monitor closely, at %.0f%% profit and approaching the 50%% target", pct))
	}
	switch {
	case dte <= 2:
		plan.Immediate = append(plan.Immediate, "Monitor the stock price every hour, expiration imminent")
		if price < strike {
			plan.Immediate = append(plan.Immediate, fmt.Sprintf("Ensure $%.0f cash is available for assignment", strike*float64(p.Contracts*100)))
		}
	case dte <= 7:
		plan.Immediate = append(plan.Immediate, fmt.Sprintf("Review daily, %d days until expiration (%s)", dte, p.Expiry.Format("Jan 02")))
	}
	if price < strike*0.95 {
		plan.Immediate = append(plan.Immediate, "Stock significantly below strike, assignment risk HIGH")
	}

	plan.BeforeExpiration = append(plan.BeforeExpiration,
		fmt.Sprintf("Make a decision by %s (day before expiration)", p.Expiry.AddDate(0, 0, -1).Format("Jan 02")))
	if pct < 50 {
		plan.BeforeExpiration = append(plan.BeforeExpiration, "Set an alert for 50% profit and consider closing when reached")
	}
	if dte > 3 {
		plan.BeforeExpiration = append(plan.BeforeExpiration, "Option: roll to next month for more premium")
	}
	if isPut {
		plan.BeforeExpiration = append(plan.BeforeExpiration,
			fmt.Sprintf("If the stock drops to $%.2f, decide between assignment and rolling out", strike*0.95))

		if price > strike*1.02 {
			plan.AtExpiration = append(plan.AtExpiration,
				fmt.Sprintf("If %s stays above $%.2f the option expires worthless, keep the full $%.2f premium", p.Ticker, strike, premium))
		} else {
			plan.AtExpiration = append(plan.AtExpiration,
				fmt.Sprintf("If %s > $%.2f: expires worthless", p.Ticker, strike),
				fmt.Sprintf("If %s < $%.2f: assigned %d shares at $%.2f (needs %s cash)", p.Ticker, strike, p.Contracts*100, strike, helpers.FormatUSD(strike*float64(p.Contracts*100))),
				fmt.Sprintf("Real cost if assigned: $%.2f/share", strike-p.EntryPremium.InexactFloat64()))
		}
	}
	return plan
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
