package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/nusapay/qrisgate/app/models"
)

// nonceRepository implements the NonceRepository interface
type nonceRepository struct {
	db *gorm.DB
}

// NewNonceRepository creates a new nonce repository instance
func NewNonceRepository(db *gorm.DB) NonceRepository {
	return &nonceRepository{db: db}
}

// MarkUsed records the nonce. The composite unique index turns a concurrent
// duplicate into a constraint violation, which callers treat as replay.
func (r *nonceRepository) MarkUsed(merchantID, nonce string, expiresAt time.Time) error {
	return r.db.Create(&models.UsedNonce{
		MerchantID: merchantID,
		Nonce:      nonce,
		ExpiresAt:  expiresAt,
	}).Error
}

func (r *nonceRepository) IsUsed(merchantID, nonce string, now time.Time) (bool, error) {
	var count int64
	err := r.db.Model(&models.UsedNonce{}).
		Where("merchant_id = ? AND nonce = ? AND expires_at > ?", merchantID, nonce, now).
		Count(&count).Error
	return count > 0, err
}

func (r *nonceRepository) DeleteExpired(now time.Time) (int64, error) {
	res := r.db.Where("expires_at <= ?", now).Delete(&models.UsedNonce{})
	return res.RowsAffected, res.Error
}
