// Package alerts evaluates price, premium and expiry alerts and dispatches the ones that
// fire.
package alerts

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

// ErrAlertNotActive is returned when triggering an alert that already left ACTIVE.
var ErrAlertNotActive = errors.New("alert is not active")

// ExpirationWarningDays is the DTE at or below which expiration warnings fire.
const ExpirationWarningDays = 3

// Input is the market state an alert is checked against. Nil fields are unknown.
type Input struct {
	StockPrice     *float64
	CurrentPremium *float64
	DTE            *int
}

// CheckTrigger reports whether a should fire for in. It never mutates a.
func CheckTrigger(a *models.Alert, in Input) bool {
	if a.Status != models.AlertActive {
		return false
	}

	switch a.AlertType {
	case models.AlertStockPrice, models.AlertAssignmentRisk:
		if in.StockPrice == nil || !a.TargetPrice.Valid {
			return false
		}
		target := a.TargetPrice.Decimal.InexactFloat64()
		if a.TriggerAbove {
			return *in.StockPrice >= target
		}
		return *in.StockPrice <= target

	case models.AlertOptionPremium, models.AlertProfit50:
		if in.CurrentPremium == nil || !a.TargetPremium.Valid {
			return false
		}
		return *in.CurrentPremium <= a.TargetPremium.Decimal.InexactFloat64()

	case models.AlertExpirationWarning:
		return in.DTE != nil && *in.DTE <= ExpirationWarningDays
	}
	return false
}

// Trigger moves a from ACTIVE to TRIGGERED. It succeeds once per alert.
func Trigger(a *models.Alert, now time.Time) error {
	if a.Status != models.AlertActive {
		return fmt.Errorf("%w: alert %d is %s", ErrAlertNotActive, a.ID, a.Status)
	}
	a.Status = models.AlertTriggered
	a.TriggeredAt = &now
	return nil
}

// Dismiss silences an ACTIVE alert.
func Dismiss(a *models.Alert) error {
	if a.Status != models.AlertActive {
		return fmt.Errorf("%w: alert %d is %s", ErrAlertNotActive, a.ID, a.Status)
	}
	a.Status = models.AlertDismissed
	return nil
}

// InferMethod picks the notification channels from what the user configured.
func InferMethod(chatID string, push bool) string {
	hasChat := strings.TrimSpace(chatID) != ""
	switch {
	case hasChat && !push:
		return models.NotifyTelegram
	case push && !hasChat:
		return models.NotifyBrowser
	default:
		return models.NotifyBoth
	}
}

// Delivery is where a new alert is sent once it fires.
type Delivery struct {
	ChatID string
	Push   bool
}

func (d Delivery) apply(a *models.Alert) {
	a.TelegramChatID = d.ChatID
	a.PushEnabled = d.Push
	a.NotificationMethod = InferMethod(d.ChatID, d.Push)
	a.Status = models.AlertActive
}

// NewPriceAlert builds a STOCK_PRICE alert firing when the stock crosses target.
func NewPriceAlert(ticker string, target decimal.Decimal, above bool, message string, d Delivery) (*models.Alert, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, database.NewInvalidParameter("ticker", "is required")
	}
	if !target.IsPositive() {
		return nil, database.NewInvalidParameterWithValue("target_price", "must be positive", target)
	}
	if message == "" {
		dir := "below"
		if above {
			dir = "above"
		}
		message = fmt.Sprintf("%s moved %s $%s", ticker, dir, target.StringFixed(2))
	}
	a := &models.Alert{
		AlertType:    models.AlertStockPrice,
		Ticker:       ticker,
		TargetPrice:  decimal.NewNullDecimal(target),
		TriggerAbove: above,
		Message:      message,
	}
	d.apply(a)
	return a, nil
}

// NewProfitAlert builds a 50_PERCENT_PROFIT alert: it fires once the option can be bought
// back for half the entry premium.
func NewProfitAlert(p *models.OptionPosition, d Delivery) *models.Alert {
	target := p.EntryPremium.Div(decimal.NewFromInt(2))
	a := &models.Alert{
		AlertType:     models.AlertProfit50,
		Ticker:        p.Ticker,
		PositionID:    &p.ID,
		TargetPremium: decimal.NewNullDecimal(target),
		Message: fmt.Sprintf("%s $%s %s reached 50%% profit, buy back at $%s or less",
			p.Ticker, p.Strike.StringFixed(2), p.OptionType, target.StringFixed(2)),
	}
	d.apply(a)
	return a
}

// NewExpirationAlert builds an EXPIRATION_WARNING alert for p.
func NewExpirationAlert(p *models.OptionPosition, d Delivery) *models.Alert {
	a := &models.Alert{
		AlertType:  models.AlertExpirationWarning,
		Ticker:     p.Ticker,
		PositionID: &p.ID,
		Message: fmt.Sprintf("%s $%s %s expires %s, decide whether to close, roll or let it expire",
			p.Ticker, p.Strike.StringFixed(2), p.OptionType, p.Expiry.Format("Jan 02")),
	}
	d.apply(a)
	return a
}

// NewAssignmentRiskAlert builds an ASSIGNMENT_RISK alert that fires when a short PUT goes
// in the money. It returns nil for CALLs.
func NewAssignmentRiskAlert(p *models.OptionPosition, d Delivery) *models.Alert {
	if p.OptionType != string(market.Put) {
		return nil
	}
	a := &models.Alert{
		AlertType:    models.AlertAssignmentRisk,
		Ticker:       p.Ticker,
		PositionID:   &p.ID,
		TargetPrice:  decimal.NewNullDecimal(p.Strike),
		TriggerAbove: false,
		Message: fmt.Sprintf("%s fell below the $%s PUT strike, assignment risk is high",
			p.Ticker, p.Strike.StringFixed(2)),
	}
	d.apply(a)
	return a
}

// Describe renders the notification text of a fired alert.
func Describe(a *models.Alert, in Input) string {
	var b strings.Builder
	b.WriteString(a.Message)
	switch {
	case in.StockPrice != nil && (a.AlertType == models.AlertStockPrice || a.AlertType == models.AlertAssignmentRisk):
		fmt.Fprintf(&b, "\nCurrent price: $%.2f", *in.StockPrice)
	case in.CurrentPremium != nil && (a.AlertType == models.AlertOptionPremium || a.AlertType == models.AlertProfit50):
		fmt.Fprintf(&b, "\nCurrent premium: $%.2f", *in.CurrentPremium)
	case in.DTE != nil && a.AlertType == models.AlertExpirationWarning:
		fmt.Fprintf(&b, "\nDays to expiration: %d", *in.DTE)
	}
	return b.String()
}

// Title is the short heading of a fired alert.
func Title(a *models.Alert) string {
	switch a.AlertType {
	case models.AlertStockPrice:
		return a.Ticker + " price alert"
	case models.AlertOptionPremium:
		return a.Ticker + " premium alert"
	case models.AlertProfit50:
		return a.Ticker + " 50% profit reached"
	case models.AlertExpirationWarning:
		return a.Ticker + " expiring soon"
	case models.AlertAssignmentRisk:
		return a.Ticker + " assignment risk"
	}
	return a.Ticker + " alert"
}
