package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DELIVERY_STATUS_QUEUED    = "queued"
	DELIVERY_STATUS_DELIVERED = "delivered"
	DELIVERY_STATUS_FAILED    = "failed"

	DELIVERY_REASON_DISABLED       = "WebhookDisabled"
	DELIVERY_REASON_NO_CREDENTIALS = "MissingCredentials"
)

// WebhookDelivery is one outbound notification attempt series. A delivered
// row is terminal; a failed row means attempts were exhausted or delivery was
// impossible (disabled target, missing secret).
type WebhookDelivery struct {
	ID              string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	MerchantID      string     `gorm:"type:varchar(36);index;not null" json:"merchant_id"`
	Env             string     `gorm:"type:varchar(12);default:'production'" json:"env"`
	InvoiceID       *string    `gorm:"type:varchar(36);index;default:null" json:"invoice_id"`
	EventType       string     `gorm:"type:varchar(40);not null" json:"event_type"`
	Payload         string     `gorm:"type:text;not null" json:"payload"`
	Status          string     `gorm:"type:varchar(12);default:'queued';index:idx_delivery_due" json:"status"`
	AttemptCount    int        `gorm:"default:0" json:"attempt_count"`
	NextRetryAt     time.Time  `gorm:"not null;index:idx_delivery_due" json:"next_retry_at"`
	LastHTTPStatus  *int       `gorm:"default:null" json:"last_http_status"`
	LastError       string     `gorm:"type:varchar(500);default:null" json:"last_error"`
	ResponseSnippet string     `gorm:"type:varchar(500);default:null" json:"response_snippet"`
	DeliveredAt     *time.Time `gorm:"type:timestamp;default:null" json:"delivered_at"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (d *WebhookDelivery) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}
