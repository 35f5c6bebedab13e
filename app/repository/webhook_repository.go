package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/nusapay/qrisgate/app/models"
)

// webhookRepository implements the WebhookRepository interface
type webhookRepository struct {
	db *gorm.DB
}

// NewWebhookRepository creates a new webhook repository instance
func NewWebhookRepository(db *gorm.DB) WebhookRepository {
	return &webhookRepository{db: db}
}

func (r *webhookRepository) Enqueue(delivery *models.WebhookDelivery) error {
	return r.db.Create(delivery).Error
}

// ClaimDue selects up to batch queued deliveries whose retry time has come,
// oldest first. Claiming happens inside a transaction by bumping next_retry_at
// so that overlapping workers do not pick the same rows.
func (r *webhookRepository) ClaimDue(now time.Time, batch int) ([]models.WebhookDelivery, error) {
	var claimed []models.WebhookDelivery
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var due []models.WebhookDelivery
		if err := tx.Where("status = ? AND next_retry_at <= ?", models.DELIVERY_STATUS_QUEUED, now).
			Order("next_retry_at ASC").Limit(batch).Find(&due).Error; err != nil {
			return err
		}
		for i := range due {
			res := tx.Model(&models.WebhookDelivery{}).
				Where("id = ? AND status = ? AND next_retry_at = ?", due[i].ID, models.DELIVERY_STATUS_QUEUED, due[i].NextRetryAt).
				Update("next_retry_at", now.Add(5*time.Minute))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 {
				claimed = append(claimed, due[i])
			}
		}
		return nil
	})
	return claimed, err
}

func (r *webhookRepository) Update(delivery *models.WebhookDelivery) error {
	return r.db.Save(delivery).Error
}

func (r *webhookRepository) GetByID(id string) (*models.WebhookDelivery, error) {
	var delivery models.WebhookDelivery
	err := r.db.Where("id = ?", id).First(&delivery).Error
	if err != nil {
		return nil, err
	}
	return &delivery, nil
}

func (r *webhookRepository) ListByMerchant(merchantID string, offset, limit int) ([]models.WebhookDelivery, error) {
	var deliveries []models.WebhookDelivery
	err := r.db.Where("merchant_id = ?", merchantID).
		Order("created_at DESC").Offset(offset).Limit(limit).Find(&deliveries).Error
	return deliveries, err
}
