package positions

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	models "wheel-screener/database/models_pkg"
)

// Repository handles option positions, stock positions and orders
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new positions repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateOptionPosition inserts a new option position
func (r *Repository) CreateOptionPosition(p *models.OptionPosition) error {
	if err := r.db.Create(p).Error; err != nil {
		return fmt.Errorf("CreateOptionPosition: %w", err)
	}
	return nil
}

// SaveOptionPosition updates an option position
func (r *Repository) SaveOptionPosition(p *models.OptionPosition) error {
	if err := r.db.Save(p).Error; err != nil {
		return fmt.Errorf("SaveOptionPosition: %w", err)
	}
	return nil
}

// GetOptionPosition retrieves an option position by ID
func (r *Repository) GetOptionPosition(id uint) (*models.OptionPosition, error) {
	var p models.OptionPosition
	err := r.db.First(&p, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetOptionPosition: %w", err)
	}
	return &p, nil
}

// ListOptionPositions returns option positions filtered by status (empty for all), soonest expiry first
func (r *Repository) ListOptionPositions(status string) ([]models.OptionPosition, error) {
	var out []models.OptionPosition
	query := r.db.Order("expiry ASC, ticker ASC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("ListOptionPositions: %w", err)
	}
	return out, nil
}

// FindOpenOptionPosition looks up an OPEN position on the same contract
func (r *Repository) FindOpenOptionPosition(ticker, optionType string, strike decimal.Decimal, expiry time.Time) (*models.OptionPosition, error) {
	var p models.OptionPosition
	err := r.db.Where("ticker = ? AND option_type = ? AND strike = ? AND expiry = ? AND status = ?",
		ticker, optionType, strike, models.DateOf(expiry), models.PositionOpen).First(&p).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindOpenOptionPosition: %w", err)
	}
	return &p, nil
}

// UpdateCurrentPremium stores a fresh mark without touching other columns
func (r *Repository) UpdateCurrentPremium(id uint, premium decimal.Decimal, at time.Time) error {
	err := r.db.Model(&models.OptionPosition{}).Where("id = ?", id).Updates(map[string]interface{}{
		"current_premium": premium,
		"quoted_at":       at,
	}).Error
	if err != nil {
		return fmt.Errorf("UpdateCurrentPremium: %w", err)
	}
	return nil
}

// CreateStockPosition inserts a share position
func (r *Repository) CreateStockPosition(p *models.StockPosition) error {
	if err := r.db.Create(p).Error; err != nil {
		return fmt.Errorf("CreateStockPosition: %w", err)
	}
	return nil
}

// SaveStockPosition updates a share position
func (r *Repository) SaveStockPosition(p *models.StockPosition) error {
	if err := r.db.Save(p).Error; err != nil {
		return fmt.Errorf("SaveStockPosition: %w", err)
	}
	return nil
}

// ListStockPositions returns share positions, active only when activeOnly is set
func (r *Repository) ListStockPositions(activeOnly bool) ([]models.StockPosition, error) {
	var out []models.StockPosition
	query := r.db.Order("ticker ASC")
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	if err := query.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("ListStockPositions: %w", err)
	}
	return out, nil
}

// FindActiveStockPosition returns the active share position of a ticker
func (r *Repository) FindActiveStockPosition(ticker string) (*models.StockPosition, error) {
	var p models.StockPosition
	err := r.db.Where("ticker = ? AND is_active = ?", ticker, true).First(&p).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindActiveStockPosition: %w", err)
	}
	return &p, nil
}

// AssignPosition marks an option position ASSIGNED and books the resulting shares in
// one transaction.
func (r *Repository) AssignPosition(p *models.OptionPosition, shares *models.StockPosition) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(p).Error; err != nil {
			return err
		}
		if shares != nil {
			return tx.Save(shares).Error
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("AssignPosition: %w", err)
	}
	return nil
}

// CreateOrder persists an order record
func (r *Repository) CreateOrder(o *models.Order) error {
	if err := r.db.Create(o).Error; err != nil {
		return fmt.Errorf("CreateOrder: %w", err)
	}
	return nil
}

// SaveOrder updates an order record
func (r *Repository) SaveOrder(o *models.Order) error {
	if err := r.db.Save(o).Error; err != nil {
		return fmt.Errorf("SaveOrder: %w", err)
	}
	return nil
}

// GetOrderByGatewayID retrieves an order by the broker order id
func (r *Repository) GetOrderByGatewayID(gatewayID string) (*models.Order, error) {
	var o models.Order
	err := r.db.Where("gateway_order_id = ?", gatewayID).First(&o).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetOrderByGatewayID: %w", err)
	}
	return &o, nil
}

// ListOrders returns the most recent orders
func (r *Repository) ListOrders(limit int) ([]models.Order, error) {
	var out []models.Order
	query := r.db.Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("ListOrders: %w", err)
	}
	return out, nil
}
