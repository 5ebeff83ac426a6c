package alerts

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	models "wheel-screener/database/models_pkg"
)

// Repository handles alerts, alert webhooks and the user config
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new alerts repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateAlert inserts a new alert
func (r *Repository) CreateAlert(a *models.Alert) error {
	if err := r.db.Create(a).Error; err != nil {
		return fmt.Errorf("CreateAlert: %w", err)
	}
	return nil
}

// leaveActive applies updates only while the alert is still ACTIVE and reports whether
// this call changed the row
func (r *Repository) leaveActive(op string, id uint, updates map[string]interface{}) (bool, error) {
	res := r.db.Model(&models.Alert{}).
		Where("id = ? AND status = ?", id, models.AlertActive).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("%s: %w", op, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// TriggerAlert moves an ACTIVE alert to TRIGGERED
func (r *Repository) TriggerAlert(id uint, at time.Time) (bool, error) {
	return r.leaveActive("TriggerAlert", id, map[string]interface{}{
		"status":          models.AlertTriggered,
		"triggered_at":    at,
		"last_checked_at": at,
	})
}

// ExpireAlert moves an ACTIVE alert to EXPIRED
func (r *Repository) ExpireAlert(id uint) (bool, error) {
	return r.leaveActive("ExpireAlert", id, map[string]interface{}{"status": models.AlertExpired})
}

// DismissAlert moves an ACTIVE alert to DISMISSED
func (r *Repository) DismissAlert(id uint) (bool, error) {
	return r.leaveActive("DismissAlert", id, map[string]interface{}{"status": models.AlertDismissed})
}

// MarkAlertChecked stamps the last evaluation time of an ACTIVE alert
func (r *Repository) MarkAlertChecked(id uint, at time.Time) error {
	err := r.db.Model(&models.Alert{}).
		Where("id = ? AND status = ?", id, models.AlertActive).
		Update("last_checked_at", at).Error
	if err != nil {
		return fmt.Errorf("MarkAlertChecked: %w", err)
	}
	return nil
}

// GetAlert retrieves an alert by ID
func (r *Repository) GetAlert(id uint) (*models.Alert, error) {
	var a models.Alert
	err := r.db.First(&a, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetAlert: %w", err)
	}
	return &a, nil
}

// ListAlerts returns alerts filtered by status (empty for all), newest first
func (r *Repository) ListAlerts(status string, limit int) ([]models.Alert, error) {
	var out []models.Alert
	query := r.db.Order("created_at DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("ListAlerts: %w", err)
	}
	return out, nil
}

// ListActiveAlerts returns every ACTIVE alert
func (r *Repository) ListActiveAlerts() ([]models.Alert, error) {
	return r.ListAlerts(models.AlertActive, 0)
}

// HasActiveAlert reports whether an ACTIVE alert of the given type exists for a position
func (r *Repository) HasActiveAlert(positionID uint, alertType string) (bool, error) {
	var count int64
	err := r.db.Model(&models.Alert{}).
		Where("position_id = ? AND alert_type = ? AND status = ?", positionID, alertType, models.AlertActive).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("HasActiveAlert: %w", err)
	}
	return count > 0, nil
}

// GetActiveWebhooks retrieves all active alert webhooks
func (r *Repository) GetActiveWebhooks() ([]models.AlertWebhook, error) {
	var hooks []models.AlertWebhook
	if err := r.db.Where("is_active = ?", true).Find(&hooks).Error; err != nil {
		return nil, fmt.Errorf("GetActiveWebhooks: %w", err)
	}
	return hooks, nil
}

// ListWebhooks retrieves every webhook, active or not
func (r *Repository) ListWebhooks() ([]models.AlertWebhook, error) {
	var hooks []models.AlertWebhook
	if err := r.db.Order("id ASC").Find(&hooks).Error; err != nil {
		return nil, fmt.Errorf("ListWebhooks: %w", err)
	}
	return hooks, nil
}

// GetWebhook retrieves a webhook by ID
func (r *Repository) GetWebhook(id int) (*models.AlertWebhook, error) {
	var h models.AlertWebhook
	err := r.db.First(&h, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetWebhook: %w", err)
	}
	return &h, nil
}

// DeleteWebhook removes a webhook, reporting whether it existed
func (r *Repository) DeleteWebhook(id int) (bool, error) {
	res := r.db.Delete(&models.AlertWebhook{}, id)
	if res.Error != nil {
		return false, fmt.Errorf("DeleteWebhook: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// SaveWebhook creates or updates a webhook
func (r *Repository) SaveWebhook(h *models.AlertWebhook) error {
	if err := r.db.Save(h).Error; err != nil {
		return fmt.Errorf("SaveWebhook: %w", err)
	}
	return nil
}

// GetUserConfig returns the single user config row, nil when none was saved
func (r *Repository) GetUserConfig() (*models.UserConfig, error) {
	var cfg models.UserConfig
	err := r.db.Order("id ASC").First(&cfg).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetUserConfig: %w", err)
	}
	return &cfg, nil
}

// SaveUserConfig creates or updates the user config row
func (r *Repository) SaveUserConfig(cfg *models.UserConfig) error {
	if cfg.ID == 0 {
		existing, err := r.GetUserConfig()
		if err != nil {
			return err
		}
		if existing != nil {
			cfg.ID = existing.ID
		}
	}
	if err := r.db.Save(cfg).Error; err != nil {
		return fmt.Errorf("SaveUserConfig: %w", err)
	}
	return nil
}
