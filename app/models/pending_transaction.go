package models

import (
	"time"
)

// PendingTransaction is the in-flight claim of a unique suffix for an
// upstream principal. Rows are deleted on payment, expiry or cancel; the
// composite unique index is what serializes concurrent suffix allocation.
type PendingTransaction struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	InvoiceID    string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"invoice_id"`
	MerchantID   string    `gorm:"type:varchar(36);index;not null" json:"merchant_id"`
	Principal    string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_principal_suffix" json:"principal"`
	UniqueSuffix int       `gorm:"not null;uniqueIndex:idx_principal_suffix" json:"unique_suffix"`
	FinalAmount  int64     `gorm:"not null" json:"final_amount"`
	ExpiresAt    time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Expired reports whether the claim has outlived its TTL.
func (pt *PendingTransaction) Expired(now time.Time) bool {
	return now.After(pt.ExpiresAt)
}
