package signals

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	models "wheel-screener/database/models_pkg"
)

// Repository handles database operations for wheel signals
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new signals repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Filter narrows ListSignals. Zero values are ignored.
type Filter struct {
	Ticker     string
	SignalType string
	Status     string
	MinQuality int
	Since      time.Time
	Limit      int
}

// SaveSignals persists a batch of signals in one transaction
func (r *Repository) SaveSignals(signals []*models.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	if err := r.db.Transaction(func(tx *gorm.DB) error {
		for _, s := range signals {
			if err := tx.Create(s).Error; err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("SaveSignals: %w", err)
	}
	return nil
}

// Save updates a signal. The grade is recomputed by the model hook.
func (r *Repository) Save(signal *models.Signal) error {
	if err := r.db.Save(signal).Error; err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	return nil
}

// ListSignals retrieves signals with filters, best quality first
func (r *Repository) ListSignals(f Filter) ([]models.Signal, error) {
	var signals []models.Signal
	query := r.db.Order("generated_at DESC, quality_score DESC")

	if f.Ticker != "" {
		query = query.Where("ticker = ?", f.Ticker)
	}
	if f.SignalType != "" {
		query = query.Where("signal_type = ?", f.SignalType)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.MinQuality > 0 {
		query = query.Where("quality_score >= ?", f.MinQuality)
	}
	if !f.Since.IsZero() {
		query = query.Where("generated_at >= ?", f.Since)
	}
	if f.Limit > 0 {
		query = query.Limit(f.Limit)
	}

	if err := query.Find(&signals).Error; err != nil {
		return nil, fmt.Errorf("ListSignals: %w", err)
	}
	return signals, nil
}

// GetSignalByID retrieves a specific signal by ID
func (r *Repository) GetSignalByID(id uint) (*models.Signal, error) {
	var signal models.Signal
	err := r.db.First(&signal, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetSignalByID: %w", err)
	}
	return &signal, nil
}

// HasOpenSignal reports whether an OPEN signal already exists for the contract
func (r *Repository) HasOpenSignal(ticker, optionType string, strike float64, expiry time.Time) (bool, error) {
	var count int64
	err := r.db.Model(&models.Signal{}).
		Where("ticker = ? AND option_type = ? AND strike = ? AND expiry = ? AND status = ?",
			ticker, optionType, strike, models.DateOf(expiry), models.SignalOpen).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("HasOpenSignal: %w", err)
	}
	return count > 0, nil
}

// ExpireSignals moves OPEN signals whose option expired before asOf to EXPIRED
func (r *Repository) ExpireSignals(asOf time.Time) (int64, error) {
	res := r.db.Model(&models.Signal{}).
		Where("status = ? AND expiry < ?", models.SignalOpen, models.DateOf(asOf)).
		UpdateColumn("status", models.SignalExpired)
	if res.Error != nil {
		return 0, fmt.Errorf("ExpireSignals: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// CountByStatus returns the number of signals per status
func (r *Repository) CountByStatus() (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	if err := r.db.Model(&models.Signal{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("CountByStatus: %w", err)
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}
