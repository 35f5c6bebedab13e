package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/nusapay/qrisgate/app/models"
)

// invoiceRepository implements the InvoiceRepository interface
type invoiceRepository struct {
	db *gorm.DB
}

// NewInvoiceRepository creates a new invoice repository instance
func NewInvoiceRepository(db *gorm.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

func (r *invoiceRepository) Create(invoice *models.Invoice) error {
	return r.db.Create(invoice).Error
}

func (r *invoiceRepository) GetByID(id string) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.db.Where("id = ?", id).First(&invoice).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *invoiceRepository) ListByMerchant(merchantID string, offset, limit int) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.db.Where("merchant_id = ?", merchantID).
		Order("created_at DESC").Offset(offset).Limit(limit).Find(&invoices).Error
	return invoices, err
}

func (r *invoiceRepository) CountByMerchant(merchantID string) (int64, error) {
	var count int64
	err := r.db.Model(&models.Invoice{}).Where("merchant_id = ?", merchantID).Count(&count).Error
	return count, err
}

// UpdateStatusIf performs a guarded transition: the update only applies while
// the row still carries the expected status. A false return means another
// writer won the race and the caller must re-read.
func (r *invoiceRepository) UpdateStatusIf(id, expected, next string, paidAt *time.Time) (bool, error) {
	updates := map[string]interface{}{"status": next}
	if paidAt != nil {
		updates["paid_at"] = paidAt
	}
	res := r.db.Model(&models.Invoice{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *invoiceRepository) AppendEvent(event *models.InvoiceEvent) error {
	return r.db.Create(event).Error
}

func (r *invoiceRepository) ListEvents(invoiceID string, limit int) ([]models.InvoiceEvent, error) {
	var events []models.InvoiceEvent
	err := r.db.Where("invoice_id = ?", invoiceID).
		Order("created_at ASC").Limit(limit).Find(&events).Error
	return events, err
}

func (r *invoiceRepository) CreatePending(pt *models.PendingTransaction) error {
	return r.db.Create(pt).Error
}

func (r *invoiceRepository) GetPendingByInvoiceID(invoiceID string) (*models.PendingTransaction, error) {
	var pt models.PendingTransaction
	err := r.db.Where("invoice_id = ?", invoiceID).First(&pt).Error
	if err != nil {
		return nil, err
	}
	return &pt, nil
}

// ClaimedSuffixes returns all suffixes currently held for a principal,
// ascending.
func (r *invoiceRepository) ClaimedSuffixes(principal string) ([]int, error) {
	var suffixes []int
	err := r.db.Model(&models.PendingTransaction{}).
		Where("principal = ?", principal).
		Order("unique_suffix ASC").
		Pluck("unique_suffix", &suffixes).Error
	return suffixes, err
}

func (r *invoiceRepository) DeletePending(invoiceID string) error {
	return r.db.Where("invoice_id = ?", invoiceID).Delete(&models.PendingTransaction{}).Error
}

// DeleteExpiredPending clears stale claims for one principal so its suffixes
// become reusable before a new allocation scan.
func (r *invoiceRepository) DeleteExpiredPending(principal string, now time.Time) error {
	return r.db.Where("principal = ? AND expires_at <= ?", principal, now).
		Delete(&models.PendingTransaction{}).Error
}

// ListExpiredPendingInvoices returns pending invoices whose TTL elapsed, for
// the scheduler expiry scan.
func (r *invoiceRepository) ListExpiredPendingInvoices(now time.Time, limit int) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.db.Where("status = ? AND expires_at <= ?", models.INVOICE_STATUS_PENDING, now).
		Order("expires_at ASC").Limit(limit).Find(&invoices).Error
	return invoices, err
}

// SweepExpiredPending removes every stale pending claim regardless of
// principal.
func (r *invoiceRepository) SweepExpiredPending(now time.Time) (int64, error) {
	res := r.db.Where("expires_at <= ?", now).Delete(&models.PendingTransaction{})
	return res.RowsAffected, res.Error
}

// Transaction runs fn inside one database transaction.
func (r *invoiceRepository) Transaction(fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(fn)
}
