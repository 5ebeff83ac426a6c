package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Option position statuses
const (
	PositionOpen     = "OPEN"
	PositionClosed   = "CLOSED"
	PositionAssigned = "ASSIGNED"
	PositionExpired  = "EXPIRED"
)

// Position sources
const (
	SourceManual     = "MANUAL"
	SourceSignal     = "SIGNAL"
	SourceGateway    = "GATEWAY"
	SourceAssignment = "ASSIGNMENT"
)

// OptionPosition is a short option held through its lifecycle.
//
// Key Fields:
//   - Contracts: number of contracts sold (1 contract = 100 shares)
//   - EntryPremium: per share premium received, TotalPremium = EntryPremium x Contracts x 100
//   - CurrentPremium: per share mark refreshed from the gateway, null until first quote
//   - Status: OPEN, CLOSED (bought back), ASSIGNED, EXPIRED
//   - ExitPremium/RealizedPL: set when the position leaves OPEN
type OptionPosition struct {
	ID              uint                `gorm:"primaryKey;autoIncrement" json:"id"`
	StockID         *uint               `gorm:"index" json:"stock_id,omitempty"`
	SignalID        *uint               `gorm:"index" json:"signal_id,omitempty"`
	Ticker          string              `gorm:"size:12;index;not null" json:"ticker"`
	OptionType      string              `gorm:"size:4;not null" json:"option_type"`
	Strike          decimal.Decimal     `gorm:"type:numeric(12,4);not null" json:"strike"`
	Expiry          time.Time           `gorm:"type:date;index;not null" json:"expiry"`
	Contracts       int                 `gorm:"not null" json:"contracts"`
	EntryPremium    decimal.Decimal     `gorm:"type:numeric(12,4);not null" json:"entry_premium"`
	TotalPremium    decimal.Decimal     `gorm:"type:numeric(14,2);not null" json:"total_premium"`
	EntryStockPrice decimal.NullDecimal `gorm:"type:numeric(12,4)" json:"entry_stock_price"`
	EntryDate       time.Time           `gorm:"not null" json:"entry_date"`
	CurrentPremium  decimal.NullDecimal `gorm:"type:numeric(12,4)" json:"current_premium"`
	QuotedAt        *time.Time          `json:"quoted_at,omitempty"`
	Status          string              `gorm:"size:10;index;not null;default:OPEN" json:"status"`
	ExitDate        *time.Time          `json:"exit_date,omitempty"`
	ExitPremium     decimal.NullDecimal `gorm:"type:numeric(12,4)" json:"exit_premium"`
	RealizedPL      decimal.NullDecimal `gorm:"type:numeric(14,2)" json:"realized_pl"`
	Source          string              `gorm:"size:12;default:MANUAL" json:"source"`
	Notes           string              `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt       time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for OptionPosition
func (OptionPosition) TableName() string {
	return "option_positions"
}

// StockPosition is a share position, usually the result of a PUT assignment.
//
// Key Fields:
//   - CostBasis: per share cost after premiums applied at assignment
//   - PremiumCollected: premiums collected from covered calls on these shares
//   - IsActive: false once the shares were called away or sold
type StockPosition struct {
	ID               uint                `gorm:"primaryKey;autoIncrement" json:"id"`
	StockID          *uint               `gorm:"index" json:"stock_id,omitempty"`
	Ticker           string              `gorm:"size:12;index;not null" json:"ticker"`
	Quantity         int                 `gorm:"not null" json:"quantity"`
	CostBasis        decimal.Decimal     `gorm:"type:numeric(12,4);not null" json:"cost_basis"`
	PremiumCollected decimal.Decimal     `gorm:"type:numeric(14,2);not null;default:0" json:"premium_collected"`
	CurrentPrice     decimal.NullDecimal `gorm:"type:numeric(12,4)" json:"current_price"`
	IsActive         bool                `gorm:"index;default:true" json:"is_active"`
	Source           string              `gorm:"size:12;default:MANUAL" json:"source"`
	OpenedAt         time.Time           `gorm:"not null" json:"opened_at"`
	ClosedAt         *time.Time          `json:"closed_at,omitempty"`
	UpdatedAt        time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for StockPosition
func (StockPosition) TableName() string {
	return "stock_positions"
}

// Order statuses
const (
	OrderSubmitted = "SUBMITTED"
	OrderFilled    = "FILLED"
	OrderCancelled = "CANCELLED"
	OrderRejected  = "REJECTED"
)

// Order is an order sent to the brokerage gateway.
type Order struct {
	ID             uint                `gorm:"primaryKey;autoIncrement" json:"id"`
	GatewayOrderID string              `gorm:"size:40;index" json:"gateway_order_id,omitempty"`
	Ticker         string              `gorm:"size:12;index;not null" json:"ticker"`
	SecType        string              `gorm:"size:4;not null" json:"sec_type"` // STK, OPT
	Action         string              `gorm:"size:4;not null" json:"action"`   // BUY, SELL
	OrderType      string              `gorm:"size:4;not null" json:"order_type"`
	Quantity       int                 `gorm:"not null" json:"quantity"`
	LimitPrice     decimal.NullDecimal `gorm:"type:numeric(12,4)" json:"limit_price"`
	Strike         decimal.NullDecimal `gorm:"type:numeric(12,4)" json:"strike"`
	Expiry         *time.Time          `gorm:"type:date" json:"expiry,omitempty"`
	Right          string              `gorm:"size:1" json:"right,omitempty"`
	Status         string              `gorm:"size:12;index" json:"status"`
	Message        string              `gorm:"type:text" json:"message,omitempty"`
	SignalID       *uint               `gorm:"index" json:"signal_id,omitempty"`
	PositionID     *uint               `gorm:"index" json:"position_id,omitempty"`
	CreatedAt      time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for Order
func (Order) TableName() string {
	return "orders"
}
