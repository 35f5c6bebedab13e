package models

import (
	"time"
)

// UsedNonce records an accepted request nonce for replay protection. The
// composite unique index makes nonce acceptance linearizable per merchant.
// Rows outlive the signing window by a margin and are swept by the scheduler.
type UsedNonce struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	MerchantID string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_merchant_nonce" json:"merchant_id"`
	Nonce      string    `gorm:"type:varchar(128);not null;uniqueIndex:idx_merchant_nonce" json:"nonce"`
	ExpiresAt  time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}
