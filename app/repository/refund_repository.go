package repository

import (
	"gorm.io/gorm"

	"github.com/nusapay/qrisgate/app/models"
)

// refundRepository implements the RefundRepository interface
type refundRepository struct {
	db *gorm.DB
}

// NewRefundRepository creates a new refund repository instance
func NewRefundRepository(db *gorm.DB) RefundRepository {
	return &refundRepository{db: db}
}

func (r *refundRepository) Create(refund *models.Refund) error {
	return r.db.Create(refund).Error
}

func (r *refundRepository) GetByID(id string) (*models.Refund, error) {
	var refund models.Refund
	err := r.db.Where("id = ?", id).First(&refund).Error
	if err != nil {
		return nil, err
	}
	return &refund, nil
}

func (r *refundRepository) ListByInvoice(invoiceID string) ([]models.Refund, error) {
	var refunds []models.Refund
	err := r.db.Where("invoice_id = ?", invoiceID).Order("created_at ASC").Find(&refunds).Error
	return refunds, err
}

func (r *refundRepository) Update(refund *models.Refund) error {
	return r.db.Save(refund).Error
}
