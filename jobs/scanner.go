package jobs

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	models "wheel-screener/database/models_pkg"
	"wheel-screener/database/stocks"
	"wheel-screener/notifications"
	"wheel-screener/signals"
)

// EventSignal is published for every newly stored signal.
const EventSignal = "signal"

// ErrUnknownStock is returned by a CandidateSource for tickers never refreshed.
var ErrUnknownStock = errors.New("stock not refreshed yet")

// CandidateSource loads the stored screening input of a ticker.
type CandidateSource interface {
	WatchlistTickers() ([]string, error)
	Candidate(ticker string, now time.Time) (stockID uint, c *signals.Candidate, err error)
	OptionID(stockID uint, expiry time.Time, strike float64, optionType string) *uint
}

// SignalStore persists generated signals.
type SignalStore interface {
	SaveSignals(rows []*models.Signal) error
	HasOpenSignal(ticker, optionType string, strike float64, expiry time.Time) (bool, error)
	ExpireSignals(asOf time.Time) (int64, error)
}

// HoldingSource lists the share positions eligible for covered calls.
type HoldingSource interface {
	ListStockPositions(activeOnly bool) ([]models.StockPosition, error)
}

// ConfigSource returns the saved user thresholds, or nil when none were saved.
type ConfigSource interface {
	GetUserConfig() (*models.UserConfig, error)
}

// ScanResult summarises one signal scan.
type ScanResult struct {
	Scanned    int            `json:"scanned"`
	Generated  int            `json:"generated"`
	Duplicates int            `json:"duplicates"`
	Expired    int64          `json:"expired"`
	Errors     int            `json:"errors"`
	Rejections map[string]int `json:"rejections,omitempty"`
}

// Scanner generates cash-secured put signals for the watchlist and covered call signals
// for the shares held.
type Scanner struct {
	candidates CandidateSource
	signals    SignalStore
	holdings   HoldingSource
	config     ConfigSource
	defaults   signals.Config
	publisher  notifications.Publisher
	log        *zap.Logger
	now        func() time.Time
}

// NewScanner creates a scanner. config and publisher may be nil.
func NewScanner(candidates CandidateSource, store SignalStore, holdings HoldingSource, config ConfigSource, defaults signals.Config, publisher notifications.Publisher, log *zap.Logger) *Scanner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scanner{
		candidates: candidates,
		signals:    store,
		holdings:   holdings,
		config:     config,
		defaults:   defaults,
		publisher:  publisher,
		log:        log,
		now:        time.Now,
	}
}

// Config returns the thresholds a scan would use right now.
func (s *Scanner) Config() signals.Config {
	if s.config == nil {
		return s.defaults
	}
	uc, err := s.config.GetUserConfig()
	if err != nil || uc == nil {
		if err != nil {
			s.log.Warn("⚠️ Using default screener config", zap.Error(err))
		}
		return s.defaults
	}
	return uc.ScreenerConfig()
}

// Scan expires stale signals, then generates and stores new ones. A contract that already
// has an OPEN signal is not signalled again.
func (s *Scanner) Scan(ctx context.Context) (*ScanResult, error) {
	now := s.now()
	res := &ScanResult{Rejections: make(map[string]int)}

	expired, err := s.signals.ExpireSignals(now)
	if err != nil {
		return nil, err
	}
	res.Expired = expired

	gen := signals.NewGenerator(s.Config())

	tickers, err := s.candidates.WatchlistTickers()
	if err != nil {
		return nil, err
	}
	holdings, err := s.activeHoldings()
	if err != nil {
		return nil, err
	}
	tickers = mergeTickers(tickers, holdings)

	var rows []*models.Signal
	for _, ticker := range tickers {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		stockID, c, err := s.candidates.Candidate(ticker, now)
		if err != nil {
			if !errors.Is(err, ErrUnknownStock) {
				res.Errors++
				s.log.Warn("⚠️ Candidate unavailable", zap.String("ticker", ticker), zap.Error(err))
			}
			continue
		}
		res.Scanned++

		var generated []signals.Signal
		if ok, reason := signals.Screen(*c, gen.Config()); ok {
			generated = append(generated, gen.GeneratePuts(*c, now)...)
		} else {
			res.Rejections[reason]++
		}
		if h, held := holdings[ticker]; held {
			generated = append(generated, gen.GenerateCalls(*c, holding(h, c.Fundamentals.Price), now)...)
		}

		for _, sig := range generated {
			dup, err := s.signals.HasOpenSignal(sig.Ticker, string(sig.Option.Type), sig.Option.Strike, sig.Option.Expiry)
			if err != nil {
				res.Errors++
				continue
			}
			if dup {
				res.Duplicates++
				continue
			}
			optionID := s.candidates.OptionID(stockID, sig.Option.Expiry, sig.Option.Strike, string(sig.Option.Type))
			row, err := models.NewSignal(stockID, optionID, sig)
			if err != nil {
				res.Errors++
				continue
			}
			s.log.Debug("Signal generated",
				zap.String("ticker", sig.Ticker),
				zap.String("type", string(sig.Option.Type)),
				zap.Float64("strike", sig.Option.Strike),
				zap.Strings("reasons", sig.Reasons.Messages()))
			rows = append(rows, row)
		}
	}

	if err := s.signals.SaveSignals(rows); err != nil {
		return res, err
	}
	res.Generated = len(rows)
	if s.publisher != nil {
		for _, row := range rows {
			s.publisher.Publish(EventSignal, row)
		}
	}

	s.log.Info("📡 Signal scan complete",
		zap.Int("scanned", res.Scanned),
		zap.Int("generated", res.Generated),
		zap.Int("duplicates", res.Duplicates),
		zap.Int64("expired", res.Expired),
		zap.Int("errors", res.Errors))
	return res, nil
}

func (s *Scanner) activeHoldings() (map[string]models.StockPosition, error) {
	out := make(map[string]models.StockPosition)
	if s.holdings == nil {
		return out, nil
	}
	positions, err := s.holdings.ListStockPositions(true)
	if err != nil {
		return nil, err
	}
	for _, p := range positions {
		if p.Quantity >= 100 {
			out[p.Ticker] = p
		}
	}
	return out, nil
}

func mergeTickers(watchlist []string, holdings map[string]models.StockPosition) []string {
	seen := make(map[string]bool, len(watchlist))
	out := make([]string, 0, len(watchlist)+len(holdings))
	for _, t := range watchlist {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for t := range holdings {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func holding(p models.StockPosition, price float64) signals.Holding {
	basis := p.CostBasis.InexactFloat64()
	h := signals.Holding{Ticker: p.Ticker, Shares: p.Quantity, CostBasis: basis}
	if basis > 0 && price > 0 {
		pct := (price - basis) / basis * 100
		h.UnrealizedPLPct = &pct
	}
	return h
}

// StoreCandidates builds candidates from what the last refresh stored.
type StoreCandidates struct {
	repo *stocks.Repository
	log  *zap.Logger
}

// NewStoreCandidates wraps the stocks repository.
func NewStoreCandidates(repo *stocks.Repository, log *zap.Logger) *StoreCandidates {
	if log == nil {
		log = zap.NewNop()
	}
	return &StoreCandidates{repo: repo, log: log}
}

// WatchlistTickers returns the watchlist.
func (sc *StoreCandidates) WatchlistTickers() ([]string, error) {
	return sc.repo.WatchlistTickers()
}

// Candidate loads fundamentals, indicators and unexpired contracts of ticker. A stock
// whose indicator record cannot be decoded is returned without a snapshot.
func (sc *StoreCandidates) Candidate(ticker string, now time.Time) (uint, *signals.Candidate, error) {
	stock, err := sc.repo.GetStock(ticker)
	if err != nil {
		return 0, nil, err
	}
	if stock == nil {
		return 0, nil, ErrUnknownStock
	}

	c := &signals.Candidate{Fundamentals: stock.Fundamentals()}

	rec, err := sc.repo.GetIndicators(stock.ID)
	if err != nil {
		return 0, nil, err
	}
	if rec != nil {
		snap, err := rec.Snapshot()
		if err != nil {
			sc.log.Warn("⚠️ Indicator record unreadable", zap.String("ticker", ticker), zap.Error(err))
		} else {
			c.Snapshot = snap
		}
	}

	rows, err := sc.repo.GetOptions(stock.ID, "", now)
	if err != nil {
		return 0, nil, err
	}
	c.Chain = models.Quotes(rows)
	return stock.ID, c, nil
}

// OptionID returns the stored contract id, or nil when the contract is not stored.
func (sc *StoreCandidates) OptionID(stockID uint, expiry time.Time, strike float64, optionType string) *uint {
	row, err := sc.repo.FindOption(stockID, expiry, strike, optionType)
	if err != nil || row == nil {
		return nil
	}
	return &row.ID
}
