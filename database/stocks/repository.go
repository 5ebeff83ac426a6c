package stocks

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	models "wheel-screener/database/models_pkg"
	"wheel-screener/indicators"
	"wheel-screener/market"
	"wheel-screener/scoring"
)

// Repository handles stocks, watchlist, indicator snapshots, option chains and wheel scores
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new stocks repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Refresh is everything one ticker refresh produced. Nil parts are left untouched.
type Refresh struct {
	Ticker       string
	Fundamentals *market.Fundamentals
	Snapshot     *indicators.Snapshot
	Chain        []market.OptionQuote
	Score        *scoring.WheelScore
	At           time.Time
}

// RefreshOutcome reports what SaveRefresh stored.
type RefreshOutcome struct {
	StockID      uint
	ScoreStored  bool
	ScoreTrend   string
	OptionsSaved int
}

// SaveRefresh persists one ticker refresh in a single transaction so a failed refresh
// leaves the previous state unchanged. The wheel score is skipped when one already
// exists for the same calendar day.
func (r *Repository) SaveRefresh(in Refresh) (*RefreshOutcome, error) {
	ticker := normalize(in.Ticker)
	out := &RefreshOutcome{}

	err := r.db.Transaction(func(tx *gorm.DB) error {
		stock, err := getOrCreate(tx, ticker)
		if err != nil {
			return err
		}
		out.StockID = stock.ID

		if in.Fundamentals != nil {
			stock.ApplyFundamentals(*in.Fundamentals, in.At)
		} else if in.Snapshot != nil && in.Snapshot.Price > 0 {
			stock.LastPrice = in.Snapshot.Price
		}
		if err := tx.Save(stock).Error; err != nil {
			return fmt.Errorf("save stock: %w", err)
		}

		if in.Snapshot != nil {
			rec, err := models.NewIndicatorRecord(stock.ID, in.Snapshot)
			if err != nil {
				return err
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "stock_id"}},
				UpdateAll: true,
			}).Create(rec).Error; err != nil {
				return fmt.Errorf("save indicators: %w", err)
			}
		}

		if len(in.Chain) > 0 {
			rows := make([]models.OptionContract, len(in.Chain))
			for i, q := range in.Chain {
				q.Ticker = ticker
				q.Expiry = models.DateOf(q.Expiry)
				rows[i] = models.NewOptionContract(stock.ID, q)
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "stock_id"}, {Name: "expiry"}, {Name: "strike"}, {Name: "option_type"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"bid", "ask", "last", "volume", "open_interest",
					"implied_volatility", "delta", "gamma", "theta", "vega", "updated_at",
				}),
			}).CreateInBatches(rows, 200).Error; err != nil {
				return fmt.Errorf("save options: %w", err)
			}
			out.OptionsSaved = len(rows)

			if err := tx.Where("stock_id = ? AND expiry < ?", stock.ID, models.DateOf(in.At)).
				Delete(&models.OptionContract{}).Error; err != nil {
				return fmt.Errorf("prune expired options: %w", err)
			}
		}

		if in.Score != nil {
			stored, trend, err := saveWheelScore(tx, stock.ID, ticker, *in.Score, in.At)
			if err != nil {
				return err
			}
			out.ScoreStored, out.ScoreTrend = stored, trend
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("SaveRefresh %s: %w", ticker, err)
	}
	return out, nil
}

func saveWheelScore(tx *gorm.DB, stockID uint, ticker string, ws scoring.WheelScore, at time.Time) (bool, string, error) {
	day := models.DateOf(at)

	var count int64
	if err := tx.Model(&models.WheelScoreRecord{}).
		Where("stock_id = ? AND score_date = ?", stockID, day).
		Count(&count).Error; err != nil {
		return false, "", fmt.Errorf("check wheel score: %w", err)
	}
	if count > 0 {
		return false, "", nil
	}

	rec := models.NewWheelScoreRecord(stockID, ticker, ws, at)

	var prev models.WheelScoreRecord
	err := tx.Where("stock_id = ? AND score_date < ?", stockID, day).
		Order("score_date DESC").First(&prev).Error
	switch {
	case err == nil:
		rec.Trend = scoring.ScoreTrend(ws.Total, prev.TotalScore)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return false, "", fmt.Errorf("load previous wheel score: %w", err)
	}

	if err := tx.Create(&rec).Error; err != nil {
		return false, "", fmt.Errorf("save wheel score: %w", err)
	}
	return true, rec.Trend, nil
}

func getOrCreate(tx *gorm.DB, ticker string) (*models.Stock, error) {
	var stock models.Stock
	if err := tx.Where(models.Stock{Ticker: ticker}).FirstOrCreate(&stock).Error; err != nil {
		return nil, fmt.Errorf("get or create stock: %w", err)
	}
	return &stock, nil
}

func normalize(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// GetStock retrieves a stock by ticker
func (r *Repository) GetStock(ticker string) (*models.Stock, error) {
	var stock models.Stock
	err := r.db.Where("ticker = ?", normalize(ticker)).First(&stock).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetStock: %w", err)
	}
	return &stock, nil
}

// ListStocks returns all stocks ordered by ticker
func (r *Repository) ListStocks() ([]models.Stock, error) {
	var stocks []models.Stock
	if err := r.db.Order("ticker ASC").Find(&stocks).Error; err != nil {
		return nil, fmt.Errorf("ListStocks: %w", err)
	}
	return stocks, nil
}

// ListWatchlist returns the watchlist ordered by ticker
func (r *Repository) ListWatchlist() ([]models.Watchlist, error) {
	var items []models.Watchlist
	if err := r.db.Order("ticker ASC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("ListWatchlist: %w", err)
	}
	return items, nil
}

// WatchlistTickers returns only the tickers of the watchlist
func (r *Repository) WatchlistTickers() ([]string, error) {
	var tickers []string
	if err := r.db.Model(&models.Watchlist{}).Order("ticker ASC").Pluck("ticker", &tickers).Error; err != nil {
		return nil, fmt.Errorf("WatchlistTickers: %w", err)
	}
	return tickers, nil
}

// AddToWatchlist adds a ticker, keeping the existing entry if present
func (r *Repository) AddToWatchlist(ticker, notes string) (*models.Watchlist, error) {
	item := models.Watchlist{Ticker: normalize(ticker)}
	if err := r.db.Where(models.Watchlist{Ticker: item.Ticker}).
		Attrs(models.Watchlist{Notes: notes}).
		FirstOrCreate(&item).Error; err != nil {
		return nil, fmt.Errorf("AddToWatchlist: %w", err)
	}
	return &item, nil
}

// RemoveFromWatchlist deletes a ticker. Returns false when it was not listed.
func (r *Repository) RemoveFromWatchlist(ticker string) (bool, error) {
	res := r.db.Where("ticker = ?", normalize(ticker)).Delete(&models.Watchlist{})
	if res.Error != nil {
		return false, fmt.Errorf("RemoveFromWatchlist: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// GetIndicators retrieves the indicator snapshot of a stock
func (r *Repository) GetIndicators(stockID uint) (*models.IndicatorRecord, error) {
	var rec models.IndicatorRecord
	err := r.db.Where("stock_id = ?", stockID).First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetIndicators: %w", err)
	}
	return &rec, nil
}

// GetOptions returns unexpired contracts of a stock, optionally filtered by type.
// Ordered by expiry then strike.
func (r *Repository) GetOptions(stockID uint, optionType string, asOf time.Time) ([]models.OptionContract, error) {
	var rows []models.OptionContract
	query := r.db.Where("stock_id = ? AND expiry >= ?", stockID, models.DateOf(asOf))
	if optionType != "" {
		query = query.Where("option_type = ?", optionType)
	}
	if err := query.Order("expiry ASC, strike ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("GetOptions: %w", err)
	}
	return rows, nil
}

// FindOption looks up a single contract
func (r *Repository) FindOption(stockID uint, expiry time.Time, strike float64, optionType string) (*models.OptionContract, error) {
	var row models.OptionContract
	err := r.db.Where("stock_id = ? AND expiry = ? AND strike = ? AND option_type = ?",
		stockID, models.DateOf(expiry), strike, optionType).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindOption: %w", err)
	}
	return &row, nil
}

// LatestWheelScore returns the most recent wheel score of a stock
func (r *Repository) LatestWheelScore(stockID uint) (*models.WheelScoreRecord, error) {
	var rec models.WheelScoreRecord
	err := r.db.Where("stock_id = ?", stockID).Order("score_date DESC").First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LatestWheelScore: %w", err)
	}
	return &rec, nil
}

// WheelScoreHistory returns up to limit scores of a stock, newest first
func (r *Repository) WheelScoreHistory(stockID uint, limit int) ([]models.WheelScoreRecord, error) {
	var recs []models.WheelScoreRecord
	query := r.db.Where("stock_id = ?", stockID).Order("score_date DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("WheelScoreHistory: %w", err)
	}
	return recs, nil
}

// TopWheelScores returns the latest score of every stock, best first
func (r *Repository) TopWheelScores(minGrade string, limit int) ([]models.WheelScoreRecord, error) {
	var recs []models.WheelScoreRecord
	err := r.db.Raw(`
		SELECT DISTINCT ON (stock_id) *
		FROM wheel_scores
		ORDER BY stock_id, score_date DESC
	`).Scan(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("TopWheelScores: %w", err)
	}

	if minGrade != "" {
		filtered := recs[:0]
		for _, rec := range recs {
			if rec.Grade <= strings.ToUpper(minGrade) {
				filtered = append(filtered, rec)
			}
		}
		recs = filtered
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].TotalScore != recs[j].TotalScore {
			return recs[i].TotalScore > recs[j].TotalScore
		}
		return recs[i].Ticker < recs[j].Ticker
	})
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// Freshness counts stocks by the age of their last update.
type Freshness struct {
	Total  int64 `json:"total"`
	Recent int64 `json:"recent"`
	Stale  int64 `json:"stale"`
}

// DataFreshness counts stocks updated within recent and older than stale, relative to now
func (r *Repository) DataFreshness(now time.Time, recent, stale time.Duration) (*Freshness, error) {
	var f Freshness
	if err := r.db.Model(&models.Stock{}).Count(&f.Total).Error; err != nil {
		return nil, fmt.Errorf("DataFreshness: %w", err)
	}
	if err := r.db.Model(&models.Stock{}).Where("updated_at >= ?", now.Add(-recent)).Count(&f.Recent).Error; err != nil {
		return nil, fmt.Errorf("DataFreshness: %w", err)
	}
	if err := r.db.Model(&models.Stock{}).Where("updated_at < ?", now.Add(-stale)).Count(&f.Stale).Error; err != nil {
		return nil, fmt.Errorf("DataFreshness: %w", err)
	}
	return &f, nil
}
