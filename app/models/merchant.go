package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	MERCHANT_STATUS_UNVERIFIED = "unverified"
	MERCHANT_STATUS_SUBMITTED  = "submitted"
	MERCHANT_STATUS_ACTIVE     = "active"
	MERCHANT_STATUS_REJECTED   = "rejected"
	MERCHANT_STATUS_SUSPENDED  = "suspended"

	ENV_PRODUCTION = "production"
	ENV_SANDBOX    = "sandbox"
)

type Merchant struct {
	ID                  string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name                string         `gorm:"type:varchar(150)" json:"name" validate:"required,min=3,max=150"`
	Email               string         `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,min=5,max=200"`
	Phone               string         `gorm:"type:varchar(32);default:null" json:"phone" validate:"max=32"`
	Status              string         `gorm:"type:varchar(20);default:'unverified';index" json:"status" validate:"oneof=unverified submitted active rejected suspended"`
	WebhookURL          string         `gorm:"type:varchar(500);default:null" json:"webhook_url" validate:"omitempty,url,max=500"`
	WebhookEnabled      bool           `gorm:"default:false" json:"webhook_enabled"`
	SandboxWebhookURL   string         `gorm:"type:varchar(500);default:null" json:"sandbox_webhook_url" validate:"omitempty,url,max=500"`
	SandboxWebhookOn    bool           `gorm:"default:false" json:"sandbox_webhook_enabled"`
	FeeBps              int            `gorm:"default:70" json:"fee_bps" validate:"min=0,max=10000"`
	FeeFixed            int64          `gorm:"default:0" json:"fee_fixed" validate:"min=0"`
	IPWhitelistEnabled  bool           `gorm:"default:false" json:"ip_whitelist_enabled"`
	IPWhitelist         string         `gorm:"type:text;default:null" json:"-"`
	InvoicesCreated     int64          `gorm:"default:0" json:"invoices_created"`
	InvoicesPaid        int64          `gorm:"default:0" json:"invoices_paid"`
	CreatedAt           time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`
}

func (m *Merchant) Validate() error {
	v := validator.New()

	return v.Struct(m)
}

// BeforeCreate assigns a UUID and canonicalizes the email.
func (m *Merchant) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.Email = strings.ToLower(strings.TrimSpace(m.Email))
	return nil
}

// IsActive reports whether the merchant may invoke gateway endpoints.
func (m *Merchant) IsActive() bool {
	return m.Status == MERCHANT_STATUS_ACTIVE
}

// WebhookTarget returns the webhook URL and enabled flag for an environment.
func (m *Merchant) WebhookTarget(env string) (string, bool) {
	if env == ENV_SANDBOX {
		return m.SandboxWebhookURL, m.SandboxWebhookOn
	}
	return m.WebhookURL, m.WebhookEnabled
}

// IPWhitelistEntries splits the stored allow-list into its entries. Entries
// are single addresses or CIDR blocks, comma separated.
func (m *Merchant) IPWhitelistEntries() []string {
	if strings.TrimSpace(m.IPWhitelist) == "" {
		return nil
	}
	parts := strings.Split(m.IPWhitelist, ",")
	entries := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			entries = append(entries, p)
		}
	}
	return entries
}

func CreateMerchant(name, email string) (*Merchant, error) {
	m := &Merchant{
		Name:   name,
		Email:  strings.ToLower(strings.TrimSpace(email)),
		Status: MERCHANT_STATUS_UNVERIFIED,
		FeeBps: 70,
	}

	err := m.Validate()
	if err != nil {
		return nil, err
	}

	return m, nil
}
