package alerts

import (
	"context"
	"time"

	"go.uber.org/zap"

	models "wheel-screener/database/models_pkg"
	"wheel-screener/market"
	"wheel-screener/notifications"
)

// Store persists alerts. The status changes only apply to a row that is still ACTIVE
// and report whether this call made the change, so an alert leaves ACTIVE once even
// when two checks overlap.
type Store interface {
	CreateAlert(a *models.Alert) error
	ListActiveAlerts() ([]models.Alert, error)
	HasActiveAlert(positionID uint, alertType string) (bool, error)
	TriggerAlert(id uint, at time.Time) (bool, error)
	ExpireAlert(id uint) (bool, error)
	MarkAlertChecked(id uint, at time.Time) error
}

// PositionSource looks up the position an alert watches.
type PositionSource interface {
	GetOptionPosition(id uint) (*models.OptionPosition, error)
}

// PriceSource returns the latest stock price of a ticker.
type PriceSource interface {
	StockPrice(ctx context.Context, ticker string) (float64, error)
}

// CheckResult summarises one pass over the active alerts.
type CheckResult struct {
	Checked   int `json:"checked"`
	Triggered int `json:"triggered"`
	Expired   int `json:"expired"`
	Errors    int `json:"errors"`
}

// Service checks active alerts and notifies the ones that fire.
type Service struct {
	store     Store
	positions PositionSource
	prices    PriceSource
	notifier  notifications.Notifier
	log       *zap.Logger
	now       func() time.Time
}

// NewService creates an alert service. prices and notifier may be nil.
func NewService(store Store, positions PositionSource, prices PriceSource, notifier notifications.Notifier, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:     store,
		positions: positions,
		prices:    prices,
		notifier:  notifier,
		log:       log,
		now:       time.Now,
	}
}

// CheckAll evaluates every ACTIVE alert once. Alerts tied to a position that is no longer
// OPEN are expired instead of evaluated. An alert is notified only by the pass whose
// store update moved it to TRIGGERED. Failures on one alert are counted and the pass
// continues.
func (s *Service) CheckAll(ctx context.Context) (*CheckResult, error) {
	active, err := s.store.ListActiveAlerts()
	if err != nil {
		return nil, err
	}

	res := &CheckResult{}
	now := s.now()
	prices := make(map[string]*float64)

	for i := range active {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		a := &active[i]

		var pos *models.OptionPosition
		if a.PositionID != nil && s.positions != nil {
			pos, err = s.positions.GetOptionPosition(*a.PositionID)
			if err != nil {
				res.Errors++
				continue
			}
			if pos == nil || pos.Status != models.PositionOpen {
				expired, err := s.store.ExpireAlert(a.ID)
				if err != nil {
					res.Errors++
					continue
				}
				if expired {
					res.Expired++
				}
				continue
			}
		}

		in := Input{StockPrice: s.price(ctx, a.Ticker, prices)}
		if pos != nil {
			if pos.CurrentPremium.Valid {
				v := pos.CurrentPremium.Decimal.InexactFloat64()
				in.CurrentPremium = &v
			}
			dte := market.DaysBetween(now, pos.Expiry)
			in.DTE = &dte
		}

		res.Checked++
		if !CheckTrigger(a, in) {
			if err := s.store.MarkAlertChecked(a.ID, now); err != nil {
				res.Errors++
			}
			continue
		}

		if err := Trigger(a, now); err != nil {
			res.Errors++
			continue
		}
		won, err := s.store.TriggerAlert(a.ID, now)
		if err != nil {
			res.Errors++
			continue
		}
		if !won {
			s.log.Debug("Alert already left ACTIVE", zap.Uint("alert_id", a.ID))
			continue
		}
		res.Triggered++
		s.notify(ctx, a, in)
	}

	if res.Triggered > 0 || res.Expired > 0 {
		s.log.Info("🔔 Alert check complete",
			zap.Int("checked", res.Checked),
			zap.Int("triggered", res.Triggered),
			zap.Int("expired", res.Expired),
			zap.Int("errors", res.Errors))
	}
	return res, nil
}

// price fetches each ticker once per pass. Failures are cached as unknown.
func (s *Service) price(ctx context.Context, ticker string, seen map[string]*float64) *float64 {
	if p, ok := seen[ticker]; ok {
		return p
	}
	var out *float64
	if s.prices != nil {
		if v, err := s.prices.StockPrice(ctx, ticker); err == nil && v > 0 {
			out = &v
		} else if err != nil {
			s.log.Debug("Price unavailable for alert check", zap.String("ticker", ticker), zap.Error(err))
		}
	}
	seen[ticker] = out
	return out
}

func (s *Service) notify(ctx context.Context, a *models.Alert, in Input) {
	if s.notifier == nil {
		return
	}
	msg := notifications.Message{
		AlertID:   a.ID,
		AlertType: a.AlertType,
		Ticker:    a.Ticker,
		Title:     Title(a),
		Text:      Describe(a, in),
		Method:    a.NotificationMethod,
		ChatID:    a.TelegramChatID,
		At:        s.now(),
	}
	if a.PositionID != nil {
		msg.Data = map[string]interface{}{"position_id": *a.PositionID}
	}
	if err := s.notifier.Notify(ctx, msg); err != nil {
		s.log.Warn("⚠️ Alert notification incomplete", zap.Uint("alert_id", a.ID), zap.Error(err))
	}
}

// ArmPosition creates the standard alerts of an OPEN position (50% profit, expiration
// warning and, for PUTs, assignment risk) unless one of the same type is already active.
func (s *Service) ArmPosition(p *models.OptionPosition, d Delivery) (int, error) {
	if p.Status != models.PositionOpen {
		return 0, nil
	}
	candidates := []*models.Alert{
		NewProfitAlert(p, d),
		NewExpirationAlert(p, d),
		NewAssignmentRiskAlert(p, d),
	}

	created := 0
	for _, a := range candidates {
		if a == nil {
			continue
		}
		exists, err := s.store.HasActiveAlert(p.ID, a.AlertType)
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}
		if err := s.store.CreateAlert(a); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}
