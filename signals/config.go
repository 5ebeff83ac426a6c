package signals

import "fmt"

// Config holds the screening and option filter thresholds of one user.
//
// Units:
//   - MinDelta/MaxDelta are signed PUT deltas (-0.38 .. -0.20)
//   - MaxIV is a fraction (1.29 == 129%)
//   - MinROE, MinPremiumPct and MaxLossPerTrade are percentages
//   - MaxPositionSize is the cash a single position may secure, in dollars
type Config struct {
	MinDTE          int     `json:"min_dte"`
	MaxDTE          int     `json:"max_dte"`
	MinDelta        float64 `json:"min_delta"`
	MaxDelta        float64 `json:"max_delta"`
	MaxIV           float64 `json:"max_iv"`
	MinPremiumPct   float64 `json:"min_premium_pct"`
	MinROE          float64 `json:"min_roe"`
	MaxPositionSize float64 `json:"max_position_size"`
	MaxLossPerTrade float64 `json:"max_loss_per_trade"`
}

// DefaultConfig returns the thresholds used when no user config was saved yet.
func DefaultConfig() Config {
	return Config{
		MinDTE:          7,
		MaxDTE:          45,
		MinDelta:        -0.38,
		MaxDelta:        -0.20,
		MaxIV:           1.29,
		MinPremiumPct:   1.0,
		MinROE:          10,
		MaxPositionSize: 10000,
		MaxLossPerTrade: 30,
	}
}

// Validate rejects thresholds that can never match a contract.
func (c Config) Validate() error {
	if c.MinDTE < 0 || c.MaxDTE < c.MinDTE {
		return fmt.Errorf("invalid DTE window [%d, %d]", c.MinDTE, c.MaxDTE)
	}
	if c.MinDelta > c.MaxDelta {
		return fmt.Errorf("invalid delta bounds [%.2f, %.2f]", c.MinDelta, c.MaxDelta)
	}
	if c.MaxIV <= 0 {
		return fmt.Errorf("max IV must be positive, got %.2f", c.MaxIV)
	}
	if c.MaxPositionSize < 0 || c.MaxLossPerTrade < 0 {
		return fmt.Errorf("position limits must not be negative")
	}
	return nil
}
