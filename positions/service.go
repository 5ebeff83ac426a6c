package positions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"wheel-screener/database"
	models "wheel-screener/database/models_pkg"
	"wheel-screener/gateway"
	"wheel-screener/market"
)

// Store persists positions and orders.
type Store interface {
	CreateOptionPosition(p *models.OptionPosition) error
	SaveOptionPosition(p *models.OptionPosition) error
	GetOptionPosition(id uint) (*models.OptionPosition, error)
	ListOptionPositions(status string) ([]models.OptionPosition, error)
	FindOpenOptionPosition(ticker, optionType string, strike decimal.Decimal, expiry time.Time) (*models.OptionPosition, error)
	UpdateCurrentPremium(id uint, premium decimal.Decimal, at time.Time) error
	CreateStockPosition(p *models.StockPosition) error
	SaveStockPosition(p *models.StockPosition) error
	ListStockPositions(activeOnly bool) ([]models.StockPosition, error)
	FindActiveStockPosition(ticker string) (*models.StockPosition, error)
	AssignPosition(p *models.OptionPosition, shares *models.StockPosition) error
	CreateOrder(o *models.Order) error
	SaveOrder(o *models.Order) error
}

// Broker is the brokerage connection used for sync, marks and orders.
type Broker interface {
	Positions(ctx context.Context) (*gateway.Portfolio, error)
	StockQuote(ctx context.Context, ticker string) (*gateway.Quote, error)
	OptionQuote(ctx context.Context, ticker string, expiry time.Time, strike float64, right string) (*gateway.Quote, error)
	PlaceOrder(ctx context.Context, req gateway.OrderRequest) (*gateway.OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// ErrNoBroker is returned by operations that need the gateway when none is configured.
var ErrNoBroker = errors.New("brokerage gateway not configured")

// Service applies lifecycle transitions and keeps positions in line with the broker.
type Service struct {
	store  Store
	broker Broker
	log    *zap.Logger
	now    func() time.Time

	// MaxPositionSize caps the notional of a single order in dollars; zero disables it.
	MaxPositionSize float64
}

// NewService creates a position service. broker may be nil when no gateway is configured.
func NewService(store Store, broker Broker, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, broker: broker, log: log, now: time.Now}
}

// OpenPosition records a newly sold option.
func (s *Service) OpenPosition(req OpenRequest) (*models.OptionPosition, error) {
	p, err := Open(req, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateOptionPosition(p); err != nil {
		return nil, err
	}
	s.log.Info("📥 Position opened",
		zap.Uint("id", p.ID),
		zap.String("ticker", p.Ticker),
		zap.String("type", p.OptionType),
		zap.String("strike", p.Strike.String()),
		zap.Int("contracts", p.Contracts))
	return p, nil
}

func (s *Service) get(id uint) (*models.OptionPosition, error) {
	p, err := s.store.GetOptionPosition(id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, database.NewNotFound("position", id)
	}
	return p, nil
}

// ClosePosition buys back the option at exitPremium.
func (s *Service) ClosePosition(id uint, exitPremium decimal.Decimal, reason string) (*models.OptionPosition, error) {
	p, err := s.get(id)
	if err != nil {
		return nil, err
	}
	if err := Close(p, exitPremium, s.now(), reason); err != nil {
		return nil, err
	}
	if err := s.store.SaveOptionPosition(p); err != nil {
		return nil, err
	}
	s.log.Info("📤 Position closed", zap.Uint("id", p.ID), zap.String("realized_pl", p.RealizedPL.Decimal.String()))
	return p, nil
}

// ExpirePosition marks the option expired worthless.
func (s *Service) ExpirePosition(id uint) (*models.OptionPosition, error) {
	p, err := s.get(id)
	if err != nil {
		return nil, err
	}
	if err := Expire(p, s.now()); err != nil {
		return nil, err
	}
	if err := s.store.SaveOptionPosition(p); err != nil {
		return nil, err
	}
	return p, nil
}

// AssignPosition records an assignment. A PUT books the shares bought, a CALL retires
// the active share position that was called away.
func (s *Service) AssignPosition(id uint) (*models.OptionPosition, *models.StockPosition, error) {
	p, err := s.get(id)
	if err != nil {
		return nil, nil, err
	}
	return s.assign(p)
}

func (s *Service) assign(p *models.OptionPosition) (*models.OptionPosition, *models.StockPosition, error) {
	now := s.now()
	shares, err := Assign(p, now)
	if err != nil {
		return nil, nil, err
	}

	if shares == nil {
		held, err := s.store.FindActiveStockPosition(p.Ticker)
		if err != nil {
			return nil, nil, err
		}
		if held != nil {
			held.Quantity -= p.Contracts * 100
			if held.Quantity <= 0 {
				held.Quantity = 0
				held.IsActive = false
				held.ClosedAt = &now
			}
			shares = held
		}
	}

	if err := s.store.AssignPosition(p, shares); err != nil {
		return nil, nil, err
	}
	s.log.Info("📌 Position assigned",
		zap.Uint("id", p.ID),
		zap.String("ticker", p.Ticker),
		zap.String("type", p.OptionType))
	return p, shares, nil
}

// SyncResult summarises a gateway sync.
type SyncResult struct {
	Imported     int `json:"imported"`
	Updated      int `json:"updated"`
	StocksSynced int `json:"stocks_synced"`
	SkippedLong  int `json:"skipped_long"`
	OpenAtBroker int `json:"open_at_broker"`
	// Missing counts OPEN gateway-imported positions the broker no longer reports.
	// They stay OPEN; expired ones are settled by DetectExpirations.
	Missing int `json:"missing"`
	Errors  int `json:"errors"`
}

// SyncFromGateway reconciles local positions with the brokerage portfolio. Short options
// missing locally are imported, existing ones get a fresh mark and stock holdings are
// mirrored. Nothing is closed here: positions entered manually or from a signal are never
// touched, and gateway imports the broker stopped reporting are only logged. A failure on
// one line is counted and the sync moves on.
func (s *Service) SyncFromGateway(ctx context.Context) (*SyncResult, error) {
	if s.broker == nil {
		return nil, ErrNoBroker
	}
	portfolio, err := s.broker.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("SyncFromGateway: %w", err)
	}
	now := s.now()
	res := &SyncResult{}
	held := make(map[string]bool)
	// tickers with a line we could not read; their local rows cannot be judged missing
	unsure := make(map[string]bool)
	for _, t := range portfolio.Unreadable {
		unsure[strings.ToUpper(t)] = true
	}

	for _, bp := range portfolio.Options {
		if !bp.IsShort() {
			res.SkippedLong++
			continue
		}
		typ, ok := market.ParseOptionType(bp.Right)
		contracts := int(-bp.Quantity)
		if !ok || contracts <= 0 {
			unsure[strings.ToUpper(bp.Ticker)] = true
			continue
		}
		res.OpenAtBroker++
		strike := decimal.NewFromFloat(bp.Strike)
		held[contractKey(bp.Ticker, string(typ), strike, bp.Expiry)] = true

		if err := s.syncOption(bp, typ, contracts, strike, now, res); err != nil {
			res.Errors++
			s.log.Warn("⚠️ Broker position not synced",
				zap.String("ticker", bp.Ticker),
				zap.Float64("strike", bp.Strike),
				zap.Error(err))
		}
	}

	for _, bs := range portfolio.Stocks {
		if bs.Quantity <= 0 {
			continue
		}
		if err := s.syncStock(bs, now); err != nil {
			res.Errors++
			s.log.Warn("⚠️ Broker stock holding not synced", zap.String("ticker", bs.Ticker), zap.Error(err))
			continue
		}
		res.StocksSynced++
	}

	open, err := s.store.ListOptionPositions(models.PositionOpen)
	if err != nil {
		return res, err
	}
	for _, p := range open {
		if p.Source != models.SourceGateway || unsure[strings.ToUpper(p.Ticker)] {
			continue
		}
		if held[contractKey(p.Ticker, p.OptionType, p.Strike, p.Expiry)] {
			continue
		}
		res.Missing++
		s.log.Warn("⚠️ Imported position no longer reported by broker, left OPEN",
			zap.Uint("id", p.ID),
			zap.String("ticker", p.Ticker),
			zap.String("type", p.OptionType),
			zap.String("strike", p.Strike.String()))
	}

	s.log.Info("🔄 Gateway sync complete",
		zap.Int("imported", res.Imported),
		zap.Int("updated", res.Updated),
		zap.Int("missing", res.Missing),
		zap.Int("stocks", res.StocksSynced),
		zap.Int("errors", res.Errors))
	return res, nil
}

// syncOption marks an already tracked short option or imports a new one.
func (s *Service) syncOption(bp gateway.Position, typ market.OptionType, contracts int, strike decimal.Decimal, now time.Time, res *SyncResult) error {
	existing, err := s.store.FindOpenOptionPosition(bp.Ticker, string(typ), strike, bp.Expiry)
	if err != nil {
		return err
	}

	mark := decimal.NewFromFloat(bp.MarketValue).Abs().Div(TotalPremium(decimal.NewFromInt(1), contracts))
	if existing != nil {
		if err := s.store.UpdateCurrentPremium(existing.ID, mark, now); err != nil {
			return err
		}
		res.Updated++
		return nil
	}

	// avgCost is reported per contract
	entry := decimal.NewFromFloat(bp.AvgCost).Div(contractSize)
	p, err := Open(OpenRequest{
		Ticker:       bp.Ticker,
		OptionType:   string(typ),
		Strike:       strike,
		Expiry:       bp.Expiry,
		Contracts:    contracts,
		EntryPremium: entry,
		Source:       models.SourceGateway,
		Notes:        "Imported from brokerage gateway",
	}, now)
	if err != nil {
		return err
	}
	p.CurrentPremium = decimal.NewNullDecimal(mark)
	p.QuotedAt = &now
	if err := s.store.CreateOptionPosition(p); err != nil {
		return err
	}
	res.Imported++
	return nil
}

func (s *Service) syncStock(bs gateway.Position, now time.Time) error {
	existing, err := s.store.FindActiveStockPosition(bs.Ticker)
	if err != nil {
		return err
	}
	price := decimal.NewNullDecimal(decimal.NewFromFloat(bs.MarketPrice))
	if existing != nil {
		existing.Quantity = int(bs.Quantity)
		existing.CurrentPrice = price
		return s.store.SaveStockPosition(existing)
	}
	return s.store.CreateStockPosition(&models.StockPosition{
		Ticker:       strings.ToUpper(bs.Ticker),
		Quantity:     int(bs.Quantity),
		CostBasis:    decimal.NewFromFloat(bs.AvgCost),
		CurrentPrice: price,
		IsActive:     true,
		Source:       models.SourceGateway,
		OpenedAt:     now,
	})
}

func contractKey(ticker, optionType string, strike decimal.Decimal, expiry time.Time) string {
	return fmt.Sprintf("%s|%s|%s|%s", strings.ToUpper(ticker), optionType, strike.StringFixed(2), expiry.Format("2006-01-02"))
}

// RefreshQuotes fetches a fresh mark for every OPEN position. Quote failures are logged
// and counted, not returned.
func (s *Service) RefreshQuotes(ctx context.Context) (updated, failed int, err error) {
	if s.broker == nil {
		return 0, 0, ErrNoBroker
	}
	open, err := s.store.ListOptionPositions(models.PositionOpen)
	if err != nil {
		return 0, 0, err
	}

	var ok, bad int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := range open {
		p := open[i]
		g.Go(func() error {
			typ, _ := market.ParseOptionType(p.OptionType)
			q, err := s.broker.OptionQuote(gctx, p.Ticker, p.Expiry, p.Strike.InexactFloat64(), typ.Right())
			if err != nil {
				atomic.AddInt32(&bad, 1)
				s.log.Debug("Quote unavailable", zap.String("ticker", p.Ticker), zap.Error(err))
				return nil
			}
			if err := s.store.UpdateCurrentPremium(p.ID, decimal.NewFromFloat(q.Price()), s.now()); err != nil {
				return err
			}
			atomic.AddInt32(&ok, 1)
			return nil
		})
	}
	err = g.Wait()
	return int(ok), int(bad), err
}

// ExpirationResult summarises one DetectExpirations pass.
type ExpirationResult struct {
	Expired  int `json:"expired"`
	Assigned int `json:"assigned"`
	// Pending counts expired positions left OPEN because no stock price was available.
	Pending int `json:"pending"`
	Errors  int `json:"errors"`
}

// DetectExpirations settles OPEN positions whose expiry has passed. An option that
// finished in the money is assigned, otherwise it expires worthless. Positions whose
// underlying cannot be priced stay OPEN until the next run, and a failed settlement is
// counted without stopping the pass.
func (s *Service) DetectExpirations(ctx context.Context) (*ExpirationResult, error) {
	open, err := s.store.ListOptionPositions(models.PositionOpen)
	if err != nil {
		return nil, err
	}
	now := s.now()
	res := &ExpirationResult{}

	for i := range open {
		p := &open[i]
		if market.DaysBetween(now, p.Expiry) >= 0 {
			continue
		}

		price, ok := s.underlyingPrice(ctx, p)
		if !ok {
			res.Pending++
			s.log.Warn("⚠️ Cannot settle expired position without a stock price",
				zap.Uint("id", p.ID), zap.String("ticker", p.Ticker))
			continue
		}

		strike := p.Strike.InexactFloat64()
		itm := price < strike
		if p.OptionType == string(market.Call) {
			itm = price > strike
		}

		if itm {
			if _, _, err := s.assign(p); err != nil {
				res.Errors++
				s.log.Warn("⚠️ Assignment not recorded", zap.Uint("id", p.ID), zap.Error(err))
				continue
			}
			res.Assigned++
			continue
		}
		if err := Expire(p, now); err != nil {
			res.Errors++
			continue
		}
		if err := s.store.SaveOptionPosition(p); err != nil {
			res.Errors++
			s.log.Warn("⚠️ Expiration not recorded", zap.Uint("id", p.ID), zap.Error(err))
			continue
		}
		res.Expired++
	}

	if res.Expired+res.Assigned+res.Errors > 0 {
		s.log.Info("⏰ Expired positions settled",
			zap.Int("expired", res.Expired),
			zap.Int("assigned", res.Assigned),
			zap.Int("errors", res.Errors))
	}
	return res, nil
}

func (s *Service) underlyingPrice(ctx context.Context, p *models.OptionPosition) (float64, bool) {
	if s.broker == nil {
		return 0, false
	}
	q, err := s.broker.StockQuote(ctx, p.Ticker)
	if err != nil || q.Price() <= 0 {
		return 0, false
	}
	return q.Price(), true
}
