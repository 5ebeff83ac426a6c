// Package positions manages the lifecycle of short option positions (open, close,
// assignment, expiry), their P/L metrics, the rule based position analysis and the
// synchronisation with the brokerage gateway.
package positions

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"wheel-screener/database"
	models "wheel-screener/database/models_pkg"
	"wheel-screener/market"
)

// ErrInvalidTransition is returned when a position is not OPEN anymore.
var ErrInvalidTransition = errors.New("invalid position transition")

var contractSize = decimal.NewFromInt(100)

// OpenRequest describes a newly sold option.
type OpenRequest struct {
	Ticker          string              `json:"ticker"`
	OptionType      string              `json:"option_type"`
	Strike          decimal.Decimal     `json:"strike"`
	Expiry          time.Time           `json:"expiry"`
	Contracts       int                 `json:"contracts"`
	EntryPremium    decimal.Decimal     `json:"entry_premium"`
	EntryStockPrice decimal.NullDecimal `json:"entry_stock_price"`
	SignalID        *uint               `json:"signal_id,omitempty"`
	Source          string              `json:"source,omitempty"`
	Notes           string              `json:"notes,omitempty"`
}

// Open validates req and builds an OPEN position. TotalPremium is
// EntryPremium x Contracts x 100.
func Open(req OpenRequest, now time.Time) (*models.OptionPosition, error) {
	ticker := strings.ToUpper(strings.TrimSpace(req.Ticker))
	if ticker == "" {
		return nil, database.NewInvalidParameter("ticker", "is required")
	}
	typ, ok := market.ParseOptionType(req.OptionType)
	if !ok {
		return nil, database.NewInvalidParameterWithValue("option_type", "must be PUT or CALL", req.OptionType)
	}
	if !req.Strike.IsPositive() {
		return nil, database.NewInvalidParameterWithValue("strike", "must be positive", req.Strike)
	}
	if req.Contracts <= 0 {
		return nil, database.NewInvalidParameterWithValue("contracts", "must be positive", req.Contracts)
	}
	if req.EntryPremium.IsNegative() {
		return nil, database.NewInvalidParameterWithValue("entry_premium", "must not be negative", req.EntryPremium)
	}
	if req.Expiry.IsZero() {
		return nil, database.NewInvalidParameter("expiry", "is required")
	}

	source := req.Source
	if source == "" {
		source = models.SourceManual
		if req.SignalID != nil {
			source = models.SourceSignal
		}
	}

	return &models.OptionPosition{
		SignalID:        req.SignalID,
		Ticker:          ticker,
		OptionType:      string(typ),
		Strike:          req.Strike,
		Expiry:          models.DateOf(req.Expiry),
		Contracts:       req.Contracts,
		EntryPremium:    req.EntryPremium,
		TotalPremium:    TotalPremium(req.EntryPremium, req.Contracts),
		EntryStockPrice: req.EntryStockPrice,
		EntryDate:       now,
		Status:          models.PositionOpen,
		Source:          source,
		Notes:           req.Notes,
	}, nil
}

// TotalPremium is the cash received for contracts sold at premium per share.
func TotalPremium(premium decimal.Decimal, contracts int) decimal.Decimal {
	return premium.Mul(decimal.NewFromInt(int64(contracts))).Mul(contractSize)
}

// IsTerminal reports whether a status accepts no further transitions.
func IsTerminal(status string) bool {
	return status != models.PositionOpen
}

func checkOpen(p *models.OptionPosition, to string) error {
	if IsTerminal(p.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, to)
	}
	return nil
}

// Close buys the option back at exitPremium per share.
func Close(p *models.OptionPosition, exitPremium decimal.Decimal, now time.Time, reason string) error {
	if err := checkOpen(p, models.PositionClosed); err != nil {
		return err
	}
	if exitPremium.IsNegative() {
		return database.NewInvalidParameterWithValue("exit_premium", "must not be negative", exitPremium)
	}
	cost := TotalPremium(exitPremium, p.Contracts)
	p.Status = models.PositionClosed
	p.ExitDate = &now
	p.ExitPremium = decimal.NewNullDecimal(exitPremium)
	p.RealizedPL = decimal.NewNullDecimal(p.TotalPremium.Sub(cost))
	if reason != "" {
		p.Notes = appendNote(p.Notes, reason)
	}
	return nil
}

// Expire marks an out of the money option as expired worthless. The full premium is kept.
func Expire(p *models.OptionPosition, now time.Time) error {
	if err := checkOpen(p, models.PositionExpired); err != nil {
		return err
	}
	p.Status = models.PositionExpired
	p.ExitDate = &now
	p.ExitPremium = decimal.NewNullDecimal(decimal.Zero)
	p.RealizedPL = decimal.NewNullDecimal(p.TotalPremium)
	return nil
}

// Assign marks the option assigned. For a PUT it returns the share position bought at the
// strike, with the premium folded into the cost basis. For a CALL the shares are called
// away and nil is returned.
func Assign(p *models.OptionPosition, now time.Time) (*models.StockPosition, error) {
	if err := checkOpen(p, models.PositionAssigned); err != nil {
		return nil, err
	}
	p.Status = models.PositionAssigned
	p.ExitDate = &now
	p.RealizedPL = decimal.NewNullDecimal(p.TotalPremium)

	if p.OptionType != string(market.Put) {
		return nil, nil
	}
	return &models.StockPosition{
		StockID:          p.StockID,
		Ticker:           p.Ticker,
		Quantity:         p.Contracts * 100,
		CostBasis:        p.Strike.Sub(p.EntryPremium),
		PremiumCollected: decimal.Zero,
		IsActive:         true,
		Source:           models.SourceAssignment,
		OpenedAt:         now,
	}, nil
}

func appendNote(notes, line string) string {
	if notes == "" {
		return line
	}
	return notes + "\n" + line
}
