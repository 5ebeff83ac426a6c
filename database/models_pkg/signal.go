package models

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"wheel-screener/scoring"
	"wheel-screener/signals"
)

// Signal statuses
const (
	SignalOpen      = "OPEN"
	SignalFilled    = "FILLED"
	SignalCancelled = "CANCELLED"
	SignalExpired   = "EXPIRED"
)

// Signal is a persisted wheel trade recommendation.
//
// Key Fields:
//   - SignalType: CASH_SECURED_PUT or COVERED_CALL
//   - Premium/ErrPct/APYPct/BreakEven: contract economics at generation time
//   - QualityScore/StockScore/TechnicalScore/OptionsScore: 40/35/25 quality split
//   - Grade: always derived from QualityScore when the row is saved
//   - ReasonCodes: ordered reason codes for filtering, Reasons holds the full records
//   - Status: OPEN, FILLED, CANCELLED, EXPIRED
type Signal struct {
	ID             uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	StockID        uint           `gorm:"index;not null" json:"stock_id"`
	OptionID       *uint          `gorm:"index" json:"option_id,omitempty"`
	Ticker         string         `gorm:"size:12;index;not null" json:"ticker"`
	SignalType     string         `gorm:"size:20;not null" json:"signal_type"`
	OptionType     string         `gorm:"size:4;not null" json:"option_type"`
	Strike         float64        `gorm:"type:decimal(12,4);not null" json:"strike"`
	Expiry         time.Time      `gorm:"type:date;index;not null" json:"expiry"`
	DTE            int            `gorm:"column:dte" json:"dte"`
	Delta          *float64       `gorm:"type:decimal(10,6)" json:"delta,omitempty"`
	Premium        float64        `gorm:"type:decimal(12,4)" json:"premium"`
	ErrPct         float64        `gorm:"type:decimal(12,6)" json:"err_pct"`
	APYPct         float64        `gorm:"column:apy_pct;type:decimal(12,6)" json:"apy_pct"`
	BreakEven      float64        `gorm:"type:decimal(12,4)" json:"break_even"`
	MaxLossPct     float64        `gorm:"type:decimal(8,2)" json:"max_loss_pct"`
	QualityScore   int            `gorm:"index" json:"quality_score"`
	StockScore     int            `json:"stock_score"`
	TechnicalScore int            `json:"technical_score"`
	OptionsScore   int            `json:"options_score"`
	AssignmentRisk float64        `gorm:"type:decimal(8,2)" json:"assignment_risk"`
	Grade          string         `gorm:"size:1" json:"grade"`
	ReasonCodes    pq.StringArray `gorm:"type:text[]" json:"reason_codes"`
	Reasons        datatypes.JSON `gorm:"type:jsonb" json:"reasons"`
	Status         string         `gorm:"size:12;index;default:OPEN" json:"status"`
	GeneratedAt    time.Time      `gorm:"index;not null" json:"generated_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for Signal
func (Signal) TableName() string {
	return "signals"
}

// BeforeSave recomputes the grade from the quality score on every create and update,
// overriding whatever grade the caller set.
func (s *Signal) BeforeSave(tx *gorm.DB) error {
	s.Grade = scoring.SignalGrade(s.QualityScore)
	if s.Status == "" {
		s.Status = SignalOpen
	}
	return nil
}

// NewSignal converts a generated signal into its row.
func NewSignal(stockID uint, optionID *uint, sig signals.Signal) (*Signal, error) {
	reasons, err := json.Marshal(sig.Reasons)
	if err != nil {
		return nil, err
	}
	return &Signal{
		StockID:        stockID,
		OptionID:       optionID,
		Ticker:         sig.Ticker,
		SignalType:     string(sig.Type),
		OptionType:     string(sig.Option.Type),
		Strike:         sig.Option.Strike,
		Expiry:         DateOf(sig.Option.Expiry),
		DTE:            sig.DTE,
		Delta:          sig.Option.Delta,
		Premium:        sig.Premium,
		ErrPct:         sig.ErrPct,
		APYPct:         sig.APYPct,
		BreakEven:      sig.BreakEven,
		MaxLossPct:     sig.MaxLossPct,
		QualityScore:   sig.Quality.Total,
		StockScore:     sig.Quality.Stock,
		TechnicalScore: sig.Quality.Technical,
		OptionsScore:   sig.Quality.Options,
		AssignmentRisk: sig.Quality.AssignmentRisk,
		Grade:          sig.Grade,
		ReasonCodes:    pq.StringArray(sig.Reasons.Codes()),
		Reasons:        datatypes.JSON(reasons),
		Status:         SignalOpen,
		GeneratedAt:    sig.GeneratedAt,
	}, nil
}

// DecodeReasons returns the stored reason records.
func (s *Signal) DecodeReasons() (scoring.Reasons, error) {
	var out scoring.Reasons
	if len(s.Reasons) == 0 {
		return out, nil
	}
	err := json.Unmarshal(s.Reasons, &out)
	return out, err
}
