package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	INVOICE_STATUS_CREATED  = "created"
	INVOICE_STATUS_PENDING  = "pending"
	INVOICE_STATUS_PAID     = "paid"
	INVOICE_STATUS_EXPIRED  = "expired"
	INVOICE_STATUS_REFUNDED = "refunded"
)

type Invoice struct {
	ID           string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	MerchantID   string     `gorm:"type:varchar(36);index;not null" json:"merchant_id"`
	Env          string     `gorm:"type:varchar(12);default:'production'" json:"env" validate:"oneof=production sandbox"`
	Principal    string     `gorm:"type:varchar(100);index;not null" json:"principal" validate:"required,max=100"`
	ReferenceID  *string    `gorm:"type:varchar(100);index;default:null" json:"reference_id"`
	BaseAmount   int64      `gorm:"not null" json:"base_amount" validate:"gt=0"`
	UniqueSuffix int        `gorm:"not null" json:"unique_suffix" validate:"min=1,max=999"`
	FinalAmount  int64      `gorm:"not null" json:"final_amount"`
	Status       string     `gorm:"type:varchar(12);default:'pending';index" json:"status" validate:"oneof=created pending paid expired refunded"`
	QrisString   string     `gorm:"type:text" json:"qris_string"`
	Metadata     string     `gorm:"type:text;default:null" json:"metadata,omitempty"`
	ExpiresAt    time.Time  `gorm:"not null;index" json:"expires_at"`
	PaidAt       *time.Time `gorm:"type:timestamp;default:null" json:"paid_at"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Events []InvoiceEvent `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE" json:"-"`
}

func (i *Invoice) Validate() error {
	v := validator.New()

	return v.Struct(i)
}

func (i *Invoice) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}

// IsTerminal reports whether the invoice has left pending for a final payment
// outcome (paid, expired or refunded). A paid invoice can still move to
// refunded through refund processing.
func (i *Invoice) IsTerminal() bool {
	switch i.Status {
	case INVOICE_STATUS_PAID, INVOICE_STATUS_EXPIRED, INVOICE_STATUS_REFUNDED:
		return true
	}
	return false
}
