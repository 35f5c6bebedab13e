package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	REFUND_STATUS_REQUESTED = "requested"
	REFUND_STATUS_PROCESSED = "processed"
	REFUND_STATUS_REJECTED  = "rejected"
)

// Refund tracks a merchant-requested reversal of a paid invoice. Processing
// is an operator action; the invoice flips to refunded only once the refund
// reaches state processed.
type Refund struct {
	ID          string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	InvoiceID   string     `gorm:"type:varchar(36);index;not null" json:"invoice_id"`
	MerchantID  string     `gorm:"type:varchar(36);index;not null" json:"merchant_id"`
	Amount      int64      `gorm:"not null" json:"amount"`
	Reason      string     `gorm:"type:varchar(500);default:null" json:"reason"`
	Status      string     `gorm:"type:varchar(12);default:'requested'" json:"status"`
	ProcessedAt *time.Time `gorm:"type:timestamp;default:null" json:"processed_at"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (r *Refund) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
