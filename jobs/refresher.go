// Package jobs holds the background work of the screener: bulk market data refreshes
// and signal scans.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"wheel-screener/cache"
	"wheel-screener/database/stocks"
	"wheel-screener/indicators"
	"wheel-screener/market"
	"wheel-screener/notifications"
	"wheel-screener/providers"
	"wheel-screener/scoring"
)

// ErrRefreshRunning is returned when a bulk refresh is requested while another one runs.
var ErrRefreshRunning = errors.New("refresh already running")

// RefreshMode selects how much a refresh fetches.
type RefreshMode string

const (
	// RefreshFull fetches fundamentals, history and the option chain, then scores the stock.
	RefreshFull RefreshMode = "full"
	// RefreshQuick only recomputes indicators from fresh history.
	RefreshQuick RefreshMode = "quick"
)

// EventRefreshProgress is published after every ticker of a bulk refresh.
const EventRefreshProgress = "refresh_progress"

const progressKey = "refresh:progress"

// MarketData is what the refresher needs from the data provider.
type MarketData interface {
	History(ctx context.Context, ticker string) ([]market.PriceBar, error)
	Fundamentals(ctx context.Context, ticker string) (*market.Fundamentals, error)
	OptionChain(ctx context.Context, ticker string) (*providers.Chain, error)
}

// RefreshStore persists one ticker refresh atomically.
type RefreshStore interface {
	SaveRefresh(in stocks.Refresh) (*stocks.RefreshOutcome, error)
}

// RefreshProgress is the live state of the current or last bulk refresh.
type RefreshProgress struct {
	Running    bool              `json:"running"`
	Mode       RefreshMode       `json:"mode"`
	Ticker     string            `json:"ticker,omitempty"`
	Done       int64             `json:"done"`
	Total      int               `json:"total"`
	Failed     int               `json:"failed"`
	Failures   map[string]string `json:"failures,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
}

// Refresher updates fundamentals, indicators, option chains and wheel scores for many
// tickers with a bounded worker pool.
type Refresher struct {
	data      MarketData
	store     RefreshStore
	redis     *cache.RedisClient
	publisher notifications.Publisher
	workers   int
	log       *zap.Logger
	now       func() time.Time

	running atomic.Bool
	mu      sync.Mutex
	last    *RefreshProgress
}

// NewRefresher creates a refresher running at most workers tickers at once.
// redis and publisher may be nil.
func NewRefresher(data MarketData, store RefreshStore, redis *cache.RedisClient, publisher notifications.Publisher, workers int, log *zap.Logger) *Refresher {
	if workers < 1 {
		workers = 5
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Refresher{
		data:      data,
		store:     store,
		redis:     redis,
		publisher: publisher,
		workers:   workers,
		log:       log,
		now:       time.Now,
	}
}

// RefreshAll refreshes every ticker. A failing ticker is recorded in the returned
// progress and does not stop the others; its previously stored data stays untouched.
func (r *Refresher) RefreshAll(ctx context.Context, tickers []string, mode RefreshMode) (*RefreshProgress, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrRefreshRunning
	}
	defer r.running.Store(false)

	progress := &RefreshProgress{
		Running:   true,
		Mode:      mode,
		Total:     len(tickers),
		Failures:  make(map[string]string),
		StartedAt: r.now(),
	}
	r.setLast(progress)
	r.log.Info("🔄 Refresh started", zap.String("mode", string(mode)), zap.Int("tickers", len(tickers)))

	var done atomic.Int64
	var failMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for _, ticker := range tickers {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			err := r.RefreshTicker(gctx, ticker, mode)
			n := done.Add(1)

			failMu.Lock()
			if err != nil {
				progress.Failures[ticker] = err.Error()
			}
			snap := *progress
			snap.Done = n
			snap.Ticker = ticker
			snap.Failed = len(progress.Failures)
			snap.Failures = nil
			failMu.Unlock()

			if err != nil {
				r.log.Warn("⚠️ Ticker refresh failed", zap.String("ticker", ticker), zap.Error(err))
			}
			r.report(ctx, &snap)
			return nil
		})
	}
	waitErr := g.Wait()

	finished := r.now()
	progress.Running = false
	progress.Done = done.Load()
	progress.Failed = len(progress.Failures)
	progress.FinishedAt = &finished
	r.setLast(progress)
	r.report(ctx, progress)

	r.log.Info("✅ Refresh finished",
		zap.String("mode", string(mode)),
		zap.Int64("done", progress.Done),
		zap.Int("failed", progress.Failed),
		zap.Duration("took", finished.Sub(progress.StartedAt)))

	if waitErr != nil {
		return progress, waitErr
	}
	return progress, ctx.Err()
}

// RefreshTicker refreshes a single ticker. Each part degrades on its own: missing
// fundamentals, a short history or an empty chain leave that part out of the update.
// It fails only when nothing at all could be fetched or the save fails.
func (r *Refresher) RefreshTicker(ctx context.Context, ticker string, mode RefreshMode) error {
	now := r.now()
	in := stocks.Refresh{Ticker: ticker, At: now}
	var errs []error

	if mode == RefreshFull {
		f, err := r.data.Fundamentals(ctx, ticker)
		if err != nil {
			errs = append(errs, fmt.Errorf("fundamentals: %w", err))
		} else {
			in.Fundamentals = f
		}
	}

	bars, err := r.data.History(ctx, ticker)
	if err != nil {
		errs = append(errs, fmt.Errorf("history: %w", err))
	} else {
		snap, err := indicators.Calculate(ticker, bars, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("indicators: %w", err))
		} else {
			in.Snapshot = snap
		}
	}

	if mode == RefreshFull {
		chain, err := r.data.OptionChain(ctx, ticker)
		if err != nil {
			errs = append(errs, fmt.Errorf("option chain: %w", err))
		} else {
			in.Chain = chain.Quotes
			if in.Fundamentals != nil && in.Fundamentals.Price <= 0 {
				in.Fundamentals.Price = chain.UnderlyingPrice
			}
		}
	}

	if in.Fundamentals == nil && in.Snapshot == nil && len(in.Chain) == 0 {
		return fmt.Errorf("%s: no data: %w", ticker, errors.Join(errs...))
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if mode == RefreshFull {
		f := market.Fundamentals{Ticker: ticker}
		if in.Fundamentals != nil {
			f = *in.Fundamentals
		}
		if f.Price <= 0 && in.Snapshot != nil {
			f.Price = in.Snapshot.Price
		}
		ws := scoring.CalculateWheelScore(f, in.Snapshot, scoring.SummarizePuts(in.Chain))
		in.Score = &ws
	}

	out, err := r.store.SaveRefresh(in)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		r.log.Debug("Partial refresh", zap.String("ticker", ticker), zap.Error(errors.Join(errs...)))
	}
	if out.ScoreStored {
		r.log.Debug("Wheel score stored", zap.String("ticker", ticker), zap.String("trend", out.ScoreTrend))
	}
	return nil
}

func (r *Refresher) report(ctx context.Context, p *RefreshProgress) {
	if r.publisher != nil {
		r.publisher.Publish(EventRefreshProgress, p)
	}
	if r.redis == nil {
		return
	}
	if err := r.redis.Set(ctx, progressKey, p, 24*time.Hour); err != nil {
		r.log.Debug("Progress not cached", zap.Error(err))
		return
	}
	// other instances follow the run on the progress channel
	if err := r.redis.Publish(ctx, progressKey, p); err != nil {
		r.log.Debug("Progress not published", zap.Error(err))
	}
}

func (r *Refresher) setLast(p *RefreshProgress) {
	cp := *p
	if p.Failures != nil {
		cp.Failures = make(map[string]string, len(p.Failures))
		for k, v := range p.Failures {
			cp.Failures[k] = v
		}
	}
	r.mu.Lock()
	r.last = &cp
	r.mu.Unlock()
}

// Progress returns the state of the current or last refresh, or nil if none ran yet.
func (r *Refresher) Progress() *RefreshProgress {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return nil
	}
	cp := *r.last
	return &cp
}

// Running reports whether a bulk refresh is in progress.
func (r *Refresher) Running() bool {
	return r.running.Load()
}

// FailedTickers lists the tickers that failed in the last refresh, sorted.
func (p *RefreshProgress) FailedTickers() []string {
	out := make([]string, 0, len(p.Failures))
	for t := range p.Failures {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
