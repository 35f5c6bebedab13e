package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/nusapay/qrisgate/app/models"
)

// alertRepository implements the AlertRepository interface
type alertRepository struct {
	db *gorm.DB
}

// NewAlertRepository creates a new alert repository instance
func NewAlertRepository(db *gorm.DB) AlertRepository {
	return &alertRepository{db: db}
}

func (r *alertRepository) Create(alert *models.Alert) error {
	return r.db.Create(alert).Error
}

func (r *alertRepository) ListOpen(limit int) ([]models.Alert, error) {
	var alerts []models.Alert
	err := r.db.Where("resolved_at IS NULL").Order("created_at DESC").Limit(limit).Find(&alerts).Error
	return alerts, err
}

func (r *alertRepository) Resolve(id string) error {
	now := time.Now()
	return r.db.Model(&models.Alert{}).Where("id = ?", id).Update("resolved_at", &now).Error
}
