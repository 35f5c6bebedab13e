package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ALERT_TYPE_WEBHOOK_FAILED = "WebhookFailed"
	ALERT_TYPE_UPSTREAM_DOWN  = "UpstreamUnavailable"
)

// Alert is an operational event raised by the background workers, e.g. a
// webhook that exhausted its retries.
type Alert struct {
	ID         string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	MerchantID *string    `gorm:"type:varchar(36);index;default:null" json:"merchant_id"`
	Type       string     `gorm:"type:varchar(40);not null;index" json:"type"`
	Message    string     `gorm:"type:varchar(1000);not null" json:"message"`
	ResolvedAt *time.Time `gorm:"type:timestamp;default:null" json:"resolved_at"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (a *Alert) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
