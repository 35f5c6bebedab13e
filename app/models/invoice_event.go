package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	EVENT_PAYMENT_CREATED  = "payment.created"
	EVENT_PAYMENT_PAID     = "payment.paid"
	EVENT_PAYMENT_EXPIRED  = "payment.expired"
	EVENT_REFUND_REQUESTED = "refund.requested"
	EVENT_REFUND_PROCESSED = "refund.processed"
)

// InvoiceEvent is the append-only audit log of an invoice. Rows are never
// updated; ordering within one invoice follows transition order.
type InvoiceEvent struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	InvoiceID string    `gorm:"type:varchar(36);index;not null" json:"invoice_id"`
	EventType string    `gorm:"type:varchar(40);not null" json:"event_type"`
	Payload   string    `gorm:"type:text" json:"payload"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (e *InvoiceEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
