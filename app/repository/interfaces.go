package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/nusapay/qrisgate/app/models"
)

// MerchantRepository defines the interface for merchant-related database operations
type MerchantRepository interface {
	Create(merchant *models.Merchant) error
	GetByID(id string) (*models.Merchant, error)
	GetByEmail(email string) (*models.Merchant, error)
	Update(merchant *models.Merchant) error
	UpdateStatus(id, status string) error
	Delete(id string) error
	List(offset, limit int) ([]models.Merchant, error)
	Count() (int64, error)
}

// CredentialsRepository defines the interface for credential storage. Lookup
// by hash resolves against both environments in one query.
type CredentialsRepository interface {
	Create(creds *models.MerchantCredentials) error
	GetByMerchantID(merchantID string) (*models.MerchantCredentials, error)
	GetByAPIKeyHash(hash string) (*models.MerchantCredentials, string, error)
	Update(creds *models.MerchantCredentials) error
}

// InvoiceRepository defines the interface for invoice and pending-transaction
// operations. Transitions that must be atomic with their event append run
// inside Transaction.
type InvoiceRepository interface {
	Create(invoice *models.Invoice) error
	GetByID(id string) (*models.Invoice, error)
	ListByMerchant(merchantID string, offset, limit int) ([]models.Invoice, error)
	CountByMerchant(merchantID string) (int64, error)
	UpdateStatusIf(id, expected, next string, paidAt *time.Time) (bool, error)
	AppendEvent(event *models.InvoiceEvent) error
	ListEvents(invoiceID string, limit int) ([]models.InvoiceEvent, error)

	CreatePending(pt *models.PendingTransaction) error
	GetPendingByInvoiceID(invoiceID string) (*models.PendingTransaction, error)
	ClaimedSuffixes(principal string) ([]int, error)
	DeletePending(invoiceID string) error
	DeleteExpiredPending(principal string, now time.Time) error
	ListExpiredPendingInvoices(now time.Time, limit int) ([]models.Invoice, error)
	SweepExpiredPending(now time.Time) (int64, error)

	Transaction(fn func(tx *gorm.DB) error) error
}

// NonceRepository defines the interface for replay protection.
type NonceRepository interface {
	MarkUsed(merchantID, nonce string, expiresAt time.Time) error
	IsUsed(merchantID, nonce string, now time.Time) (bool, error)
	DeleteExpired(now time.Time) (int64, error)
}

// WebhookRepository defines the interface for outbound delivery rows.
type WebhookRepository interface {
	Enqueue(delivery *models.WebhookDelivery) error
	ClaimDue(now time.Time, batch int) ([]models.WebhookDelivery, error)
	Update(delivery *models.WebhookDelivery) error
	GetByID(id string) (*models.WebhookDelivery, error)
	ListByMerchant(merchantID string, offset, limit int) ([]models.WebhookDelivery, error)
}

// RefundRepository defines the interface for refund rows.
type RefundRepository interface {
	Create(refund *models.Refund) error
	GetByID(id string) (*models.Refund, error)
	ListByInvoice(invoiceID string) ([]models.Refund, error)
	Update(refund *models.Refund) error
}

// AlertRepository defines the interface for operational alerts.
type AlertRepository interface {
	Create(alert *models.Alert) error
	ListOpen(limit int) ([]models.Alert, error)
	Resolve(id string) error
}

// Repositories bundles every repository implementation over one DB handle.
type Repositories struct {
	Merchant    MerchantRepository
	Credentials CredentialsRepository
	Invoice     InvoiceRepository
	Nonce       NonceRepository
	Webhook     WebhookRepository
	Refund      RefundRepository
	Alert       AlertRepository
}

// NewRepositories creates all repository instances sharing a DB handle.
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Merchant:    NewMerchantRepository(db),
		Credentials: NewCredentialsRepository(db),
		Invoice:     NewInvoiceRepository(db),
		Nonce:       NewNonceRepository(db),
		Webhook:     NewWebhookRepository(db),
		Refund:      NewRefundRepository(db),
		Alert:       NewAlertRepository(db),
	}
}
