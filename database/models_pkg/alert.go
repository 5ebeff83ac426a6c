package models

import (
	"time"

	"github.com/shopspring/decimal"

	"wheel-screener/signals"
)

// Alert types
const (
	AlertStockPrice        = "STOCK_PRICE"
	AlertOptionPremium     = "OPTION_PREMIUM"
	AlertProfit50          = "50_PERCENT_PROFIT"
	AlertExpirationWarning = "EXPIRATION_WARNING"
	AlertAssignmentRisk    = "ASSIGNMENT_RISK"
)

// Alert statuses
const (
	AlertActive    = "ACTIVE"
	AlertTriggered = "TRIGGERED"
	AlertDismissed = "DISMISSED"
	AlertExpired   = "EXPIRED"
)

// Notification methods
const (
	NotifyTelegram = "TELEGRAM"
	NotifyBrowser  = "BROWSER"
	NotifyBoth     = "BOTH"
)

// Alert is a one-shot price or premium condition. Once TRIGGERED it never fires again;
// re-arming means creating a new alert.
//
// Key Fields:
//   - AlertType: STOCK_PRICE, OPTION_PREMIUM, 50_PERCENT_PROFIT, EXPIRATION_WARNING, ASSIGNMENT_RISK
//   - TargetPrice + TriggerAbove: stock price condition and its direction
//   - TargetPremium: option mark at or below which premium alerts fire
//   - NotificationMethod: TELEGRAM, BROWSER or BOTH
type Alert struct {
	ID                 uint                `gorm:"primaryKey;autoIncrement" json:"id"`
	AlertType          string              `gorm:"size:24;index;not null" json:"alert_type"`
	Ticker             string              `gorm:"size:12;index;not null" json:"ticker"`
	PositionID         *uint               `gorm:"index" json:"position_id,omitempty"`
	TargetPrice        decimal.NullDecimal `gorm:"type:numeric(12,4)" json:"target_price"`
	TargetPremium      decimal.NullDecimal `gorm:"type:numeric(12,4)" json:"target_premium"`
	TriggerAbove       bool                `json:"trigger_above"`
	Message            string              `gorm:"type:text" json:"message"`
	Status             string              `gorm:"size:10;index;not null;default:ACTIVE" json:"status"`
	NotificationMethod string              `gorm:"size:10;default:BOTH" json:"notification_method"`
	TelegramChatID     string              `gorm:"size:40" json:"telegram_chat_id,omitempty"`
	PushEnabled        bool                `gorm:"default:true" json:"push_enabled"`
	CreatedAt          time.Time           `gorm:"autoCreateTime" json:"created_at"`
	TriggeredAt        *time.Time          `json:"triggered_at,omitempty"`
	LastCheckedAt      *time.Time          `json:"last_checked_at,omitempty"`
}

// TableName specifies the table name for Alert
func (Alert) TableName() string {
	return "alerts"
}

// AlertWebhook is an outbound webhook receiving triggered alerts.
type AlertWebhook struct {
	ID                int        `gorm:"primaryKey;autoIncrement" json:"id"`
	Name              string     `gorm:"size:100;not null" json:"name"`
	URL               string     `gorm:"not null" json:"url"`
	Method            string     `gorm:"size:10;default:POST" json:"method"`
	AuthHeader        string     `gorm:"size:100" json:"auth_header,omitempty"`
	AuthValue         string     `json:"-"`
	AlertTypes        string     `json:"alert_types"` // comma separated, empty means all
	IsActive          bool       `gorm:"default:true" json:"is_active"`
	RetryCount        int        `gorm:"default:3" json:"retry_count"`
	RetryDelaySeconds int        `gorm:"default:5" json:"retry_delay_seconds"`
	TimeoutSeconds    int        `gorm:"default:10" json:"timeout_seconds"`
	LastTriggeredAt   *time.Time `json:"last_triggered_at,omitempty"`
	LastSuccessAt     *time.Time `json:"last_success_at,omitempty"`
	LastError         string     `json:"last_error,omitempty"`
	TotalSent         int        `gorm:"default:0" json:"total_sent"`
	TotalFailed       int        `gorm:"default:0" json:"total_failed"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for AlertWebhook
func (AlertWebhook) TableName() string {
	return "alert_webhooks"
}

// UserConfig stores the screener thresholds and notification defaults of the single user.
type UserConfig struct {
	ID              uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	MinDTE          int       `gorm:"default:7" json:"min_dte"`
	MaxDTE          int       `gorm:"default:45" json:"max_dte"`
	MinDelta        float64   `gorm:"type:decimal(6,4);default:-0.38" json:"min_delta"`
	MaxDelta        float64   `gorm:"type:decimal(6,4);default:-0.20" json:"max_delta"`
	MaxIV           float64   `gorm:"column:max_iv;type:decimal(6,4);default:1.29" json:"max_iv"`
	MinPremiumPct   float64   `gorm:"type:decimal(6,2);default:1.0" json:"min_premium_pct"`
	MinROE          float64   `gorm:"column:min_roe;type:decimal(6,2);default:10" json:"min_roe"`
	MaxPositionSize float64   `gorm:"type:decimal(14,2);default:10000" json:"max_position_size"`
	MaxLossPerTrade float64   `gorm:"type:decimal(6,2);default:30" json:"max_loss_per_trade"`
	TelegramChatID  string    `gorm:"size:40" json:"telegram_chat_id,omitempty"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for UserConfig
func (UserConfig) TableName() string {
	return "user_config"
}

// NewUserConfig builds a row from screener thresholds.
func NewUserConfig(c signals.Config) UserConfig {
	return UserConfig{
		MinDTE:          c.MinDTE,
		MaxDTE:          c.MaxDTE,
		MinDelta:        c.MinDelta,
		MaxDelta:        c.MaxDelta,
		MaxIV:           c.MaxIV,
		MinPremiumPct:   c.MinPremiumPct,
		MinROE:          c.MinROE,
		MaxPositionSize: c.MaxPositionSize,
		MaxLossPerTrade: c.MaxLossPerTrade,
	}
}

// ScreenerConfig returns the thresholds used by the signal generator.
func (u *UserConfig) ScreenerConfig() signals.Config {
	return signals.Config{
		MinDTE:          u.MinDTE,
		MaxDTE:          u.MaxDTE,
		MinDelta:        u.MinDelta,
		MaxDelta:        u.MaxDelta,
		MaxIV:           u.MaxIV,
		MinPremiumPct:   u.MinPremiumPct,
		MinROE:          u.MinROE,
		MaxPositionSize: u.MaxPositionSize,
		MaxLossPerTrade: u.MaxLossPerTrade,
	}
}
