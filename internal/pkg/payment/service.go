package payment

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/nusapay/qrisgate/app/models"
	"github.com/nusapay/qrisgate/app/repository"
	"github.com/nusapay/qrisgate/internal/pkg/env"
	"github.com/nusapay/qrisgate/internal/pkg/qris"
	"github.com/nusapay/qrisgate/internal/pkg/upstream"
)

// Suffix allocation scans the low range first so amounts stay close to the
// base; the high range is overflow.
const (
	suffixLowMax  = 500
	suffixHighMax = 999

	maxAllocRetries = 3
	expireBatchSize = 200
)

var (
	ErrNotFound          = errors.New("payment: invoice not found")
	ErrForbidden         = errors.New("payment: invoice belongs to another merchant")
	ErrInvalidAmount     = errors.New("payment: amount must be a positive integer")
	ErrInvalidQris       = errors.New("payment: invalid static QRIS source")
	ErrNoSuffixAvailable = errors.New("payment: no unique suffix available")
	ErrContention        = errors.New("payment: suffix allocation contention")
	ErrConflict          = errors.New("payment: conflicting state transition")
	ErrNotRefundable     = errors.New("payment: invoice is not refundable")
)

// Service implements the invoice lifecycle: creation with unique-suffix
// allocation, upstream-verified payment detection, expiry and refunds.
type Service struct {
	repos   *repository.Repositories
	fetcher upstream.Fetcher
	paid    PaidCache

	invoiceTTL time.Duration
	paidTTL    time.Duration
}

// NewService wires the invoice service. TTLs come from the environment.
func NewService(repos *repository.Repositories, fetcher upstream.Fetcher, paid PaidCache) *Service {
	return &Service{
		repos:      repos,
		fetcher:    fetcher,
		paid:       paid,
		invoiceTTL: env.GetEnvDuration("INVOICE_TTL", 600*time.Second),
		paidTTL:    env.GetEnvDuration("PAID_CACHE_TTL", 3600*time.Second),
	}
}

// CreateInvoiceInput carries the caller-supplied invoice parameters.
type CreateInvoiceInput struct {
	Principal   string
	BaseAmount  int64
	QrisStatic  string
	ReferenceID *string
	Metadata    string
}

// CreateInvoiceResult is returned to the caller on success.
type CreateInvoiceResult struct {
	Invoice      *models.Invoice
	UniqueSuffix int
	FinalAmount  int64
	QrisString   string
	ExpiresAt    time.Time
}

// CheckResult reports the invoice status after a check call.
type CheckResult struct {
	Status    string
	PaidAt    *time.Time
	ExpiresIn int64
}

// CreateInvoice allocates a unique suffix for the principal, derives the
// dynamic QRIS payload and persists the pending invoice atomically with its
// claim and first event. Losing a suffix race retries the scan a bounded
// number of times.
func (s *Service) CreateInvoice(merchant *models.Merchant, merchantEnv string, in CreateInvoiceInput) (*CreateInvoiceResult, error) {
	if in.BaseAmount <= 0 {
		return nil, ErrInvalidAmount
	}
	if strings.TrimSpace(in.Principal) == "" {
		return nil, ErrInvalidAmount
	}
	if err := qris.Validate(in.QrisStatic); err != nil {
		return nil, ErrInvalidQris
	}

	now := time.Now()
	if err := s.repos.Invoice.DeleteExpiredPending(in.Principal, now); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxAllocRetries; attempt++ {
		suffix, err := s.allocateSuffix(in.Principal)
		if err != nil {
			return nil, err
		}

		finalAmount := in.BaseAmount + int64(suffix)
		qrisString, err := qris.InjectAmount(in.QrisStatic, finalAmount)
		if err != nil {
			return nil, ErrInvalidQris
		}

		expiresAt := now.Add(s.invoiceTTL)
		invoice := &models.Invoice{
			MerchantID:   merchant.ID,
			Env:          merchantEnv,
			Principal:    in.Principal,
			ReferenceID:  in.ReferenceID,
			BaseAmount:   in.BaseAmount,
			UniqueSuffix: suffix,
			FinalAmount:  finalAmount,
			Status:       models.INVOICE_STATUS_PENDING,
			QrisString:   qrisString,
			Metadata:     in.Metadata,
			ExpiresAt:    expiresAt,
		}

		err = s.repos.Invoice.Transaction(func(tx *gorm.DB) error {
			txRepos := repository.NewRepositories(tx)
			if err := txRepos.Invoice.Create(invoice); err != nil {
				return err
			}
			if err := txRepos.Invoice.CreatePending(&models.PendingTransaction{
				InvoiceID:    invoice.ID,
				MerchantID:   merchant.ID,
				Principal:    in.Principal,
				UniqueSuffix: suffix,
				FinalAmount:  finalAmount,
				ExpiresAt:    expiresAt,
			}); err != nil {
				return err
			}
			if err := txRepos.Invoice.AppendEvent(s.event(invoice, models.EVENT_PAYMENT_CREATED)); err != nil {
				return err
			}
			return s.enqueueWebhook(txRepos, merchant, merchantEnv, invoice, models.EVENT_PAYMENT_CREATED)
		})
		if err == nil {
			return &CreateInvoiceResult{
				Invoice:      invoice,
				UniqueSuffix: suffix,
				FinalAmount:  finalAmount,
				QrisString:   qrisString,
				ExpiresAt:    expiresAt,
			}, nil
		}
		if !isDuplicateKey(err) {
			return nil, err
		}
		// Lost the suffix race; rescan.
		invoice.ID = ""
	}
	return nil, ErrContention
}

// allocateSuffix returns the smallest unclaimed suffix for the principal,
// preferring [1, 500] and overflowing into [501, 999].
func (s *Service) allocateSuffix(principal string) (int, error) {
	claimed, err := s.repos.Invoice.ClaimedSuffixes(principal)
	if err != nil {
		return 0, err
	}
	taken := make(map[int]bool, len(claimed))
	for _, v := range claimed {
		taken[v] = true
	}
	for i := 1; i <= suffixLowMax; i++ {
		if !taken[i] {
			return i, nil
		}
	}
	for i := suffixLowMax + 1; i <= suffixHighMax; i++ {
		if !taken[i] {
			return i, nil
		}
	}
	return 0, ErrNoSuffixAvailable
}

// GetInvoice loads an invoice owned by merchant.
func (s *Service) GetInvoice(merchant *models.Merchant, invoiceID string) (*models.Invoice, error) {
	invoice, err := s.repos.Invoice.GetByID(invoiceID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if invoice.MerchantID != merchant.ID {
		return nil, ErrForbidden
	}
	return invoice, nil
}

// ListInvoices pages through the merchant's invoices.
func (s *Service) ListInvoices(merchant *models.Merchant, offset, limit int) ([]models.Invoice, int64, error) {
	invoices, err := s.repos.Invoice.ListByMerchant(merchant.ID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repos.Invoice.CountByMerchant(merchant.ID)
	if err != nil {
		return nil, 0, err
	}
	return invoices, total, nil
}

// ListEvents tails the invoice's audit log.
func (s *Service) ListEvents(merchant *models.Merchant, invoiceID string, limit int) ([]models.InvoiceEvent, error) {
	if _, err := s.GetInvoice(merchant, invoiceID); err != nil {
		return nil, err
	}
	return s.repos.Invoice.ListEvents(invoiceID, limit)
}

// Check resolves the current status of an invoice, polling the upstream
// mutation feed when the invoice is still pending. The paid cache
// short-circuits repeated checks after a payment was witnessed.
func (s *Service) Check(ctx context.Context, merchant *models.Merchant, invoiceID, principalToken string) (*CheckResult, error) {
	invoice, err := s.GetInvoice(merchant, invoiceID)
	if err != nil {
		return nil, err
	}

	if record, ok := s.paid.Lookup(invoice.ID); ok {
		if invoice.Status == models.INVOICE_STATUS_PENDING {
			if err := s.markPaid(merchant, invoice, record.PaidAt); err != nil {
				return nil, err
			}
		}
		return &CheckResult{Status: models.INVOICE_STATUS_PAID, PaidAt: &record.PaidAt}, nil
	}

	if invoice.IsTerminal() {
		return &CheckResult{Status: invoice.Status, PaidAt: invoice.PaidAt}, nil
	}

	now := time.Now()
	pending, err := s.repos.Invoice.GetPendingByInvoiceID(invoice.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Claim already gone without a terminal invoice: another writer is
		// mid-transition; report the stored status.
		return &CheckResult{Status: invoice.Status}, nil
	}
	if err != nil {
		return nil, err
	}

	if pending.Expired(now) {
		if err := s.expireInvoice(merchant, invoice); err != nil {
			return nil, err
		}
		return &CheckResult{Status: models.INVOICE_STATUS_EXPIRED}, nil
	}

	credits, err := s.fetcher.FetchCredits(ctx, invoice.Principal, principalToken)
	if err != nil {
		return nil, err
	}
	for _, credit := range credits {
		if credit.Status == upstream.StatusIn && credit.Amount == invoice.FinalAmount {
			paidAt := time.Now()
			if err := s.markPaid(merchant, invoice, paidAt); err != nil {
				return nil, err
			}
			if err := s.paid.Put(PaidRecord{InvoiceID: invoice.ID, Amount: invoice.FinalAmount, PaidAt: paidAt}, s.paidTTL); err != nil {
				log.Warnf("payment: paid cache write failed for invoice %s: %v", invoice.ID, err)
			}
			return &CheckResult{Status: models.INVOICE_STATUS_PAID, PaidAt: &paidAt}, nil
		}
	}

	return &CheckResult{
		Status:    models.INVOICE_STATUS_PENDING,
		ExpiresIn: int64(time.Until(pending.ExpiresAt).Seconds()),
	}, nil
}

// markPaid performs the pending → paid transition atomically with its event
// append and webhook enqueue.
func (s *Service) markPaid(merchant *models.Merchant, invoice *models.Invoice, paidAt time.Time) error {
	return s.repos.Invoice.Transaction(func(tx *gorm.DB) error {
		txRepos := repository.NewRepositories(tx)
		ok, err := txRepos.Invoice.UpdateStatusIf(invoice.ID, models.INVOICE_STATUS_PENDING, models.INVOICE_STATUS_PAID, &paidAt)
		if err != nil {
			return err
		}
		if !ok {
			return ErrConflict
		}
		if err := txRepos.Invoice.DeletePending(invoice.ID); err != nil {
			return err
		}
		invoice.Status = models.INVOICE_STATUS_PAID
		invoice.PaidAt = &paidAt
		if err := txRepos.Invoice.AppendEvent(s.event(invoice, models.EVENT_PAYMENT_PAID)); err != nil {
			return err
		}
		return s.enqueueWebhook(txRepos, merchant, invoice.Env, invoice, models.EVENT_PAYMENT_PAID)
	})
}

// expireInvoice performs the pending → expired transition.
func (s *Service) expireInvoice(merchant *models.Merchant, invoice *models.Invoice) error {
	return s.repos.Invoice.Transaction(func(tx *gorm.DB) error {
		txRepos := repository.NewRepositories(tx)
		ok, err := txRepos.Invoice.UpdateStatusIf(invoice.ID, models.INVOICE_STATUS_PENDING, models.INVOICE_STATUS_EXPIRED, nil)
		if err != nil {
			return err
		}
		if !ok {
			return ErrConflict
		}
		if err := txRepos.Invoice.DeletePending(invoice.ID); err != nil {
			return err
		}
		invoice.Status = models.INVOICE_STATUS_EXPIRED
		if err := txRepos.Invoice.AppendEvent(s.event(invoice, models.EVENT_PAYMENT_EXPIRED)); err != nil {
			return err
		}
		return s.enqueueWebhook(txRepos, merchant, invoice.Env, invoice, models.EVENT_PAYMENT_EXPIRED)
	})
}

// ExpireDue transitions pending invoices past their TTL. Called from the
// scheduler tick; a Conflict on one invoice means a concurrent check already
// moved it, which is fine.
func (s *Service) ExpireDue(now time.Time) (int, error) {
	invoices, err := s.repos.Invoice.ListExpiredPendingInvoices(now, expireBatchSize)
	if err != nil {
		return 0, err
	}
	expired := 0
	for i := range invoices {
		merchant, err := s.repos.Merchant.GetByID(invoices[i].MerchantID)
		if err != nil {
			log.Errorf("payment: expiry scan could not load merchant %s: %v", invoices[i].MerchantID, err)
			continue
		}
		if err := s.expireInvoice(merchant, &invoices[i]); err != nil {
			if errors.Is(err, ErrConflict) {
				continue
			}
			return expired, err
		}
		expired++
	}
	return expired, nil
}

// RequestRefund opens a refund for a paid invoice. Amount defaults to the
// invoice's final amount.
func (s *Service) RequestRefund(merchant *models.Merchant, invoiceID string, amount int64, reason string) (*models.Refund, error) {
	invoice, err := s.GetInvoice(merchant, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status != models.INVOICE_STATUS_PAID {
		return nil, ErrNotRefundable
	}
	if amount == 0 {
		amount = invoice.FinalAmount
	}
	if amount < 0 || amount > invoice.FinalAmount {
		return nil, ErrInvalidAmount
	}

	refund := &models.Refund{
		InvoiceID:  invoice.ID,
		MerchantID: merchant.ID,
		Amount:     amount,
		Reason:     reason,
		Status:     models.REFUND_STATUS_REQUESTED,
	}
	err = s.repos.Invoice.Transaction(func(tx *gorm.DB) error {
		txRepos := repository.NewRepositories(tx)
		if err := txRepos.Refund.Create(refund); err != nil {
			return err
		}
		return txRepos.Invoice.AppendEvent(s.event(invoice, models.EVENT_REFUND_REQUESTED))
	})
	if err != nil {
		return nil, err
	}
	return refund, nil
}

// ProcessRefund marks a requested refund processed and flips the invoice to
// refunded. Operator-side operation.
func (s *Service) ProcessRefund(refundID string) error {
	refund, err := s.repos.Refund.GetByID(refundID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if refund.Status != models.REFUND_STATUS_REQUESTED {
		return ErrConflict
	}
	invoice, err := s.repos.Invoice.GetByID(refund.InvoiceID)
	if err != nil {
		return err
	}
	merchant, err := s.repos.Merchant.GetByID(refund.MerchantID)
	if err != nil {
		return err
	}

	now := time.Now()
	err = s.repos.Invoice.Transaction(func(tx *gorm.DB) error {
		txRepos := repository.NewRepositories(tx)
		ok, err := txRepos.Invoice.UpdateStatusIf(invoice.ID, models.INVOICE_STATUS_PAID, models.INVOICE_STATUS_REFUNDED, nil)
		if err != nil {
			return err
		}
		if !ok {
			return ErrConflict
		}
		refund.Status = models.REFUND_STATUS_PROCESSED
		refund.ProcessedAt = &now
		if err := txRepos.Refund.Update(refund); err != nil {
			return err
		}
		invoice.Status = models.INVOICE_STATUS_REFUNDED
		if err := txRepos.Invoice.AppendEvent(s.event(invoice, models.EVENT_REFUND_PROCESSED)); err != nil {
			return err
		}
		return s.enqueueWebhook(txRepos, merchant, invoice.Env, invoice, models.EVENT_REFUND_PROCESSED)
	})
	if err != nil {
		return err
	}

	// A stale paid record would make the next check report paid again.
	if err := s.paid.Forget(invoice.ID); err != nil {
		log.Warnf("payment: paid cache delete failed for invoice %s: %v", invoice.ID, err)
	}
	return nil
}

func (s *Service) event(invoice *models.Invoice, eventType string) *models.InvoiceEvent {
	payload, _ := json.Marshal(map[string]interface{}{
		"invoice_id":   invoice.ID,
		"status":       invoice.Status,
		"final_amount": invoice.FinalAmount,
	})
	return &models.InvoiceEvent{
		InvoiceID: invoice.ID,
		EventType: eventType,
		Payload:   string(payload),
	}
}

// enqueueWebhook queues a delivery when the merchant has an enabled target
// for the environment. Runs inside the caller's transaction.
func (s *Service) enqueueWebhook(txRepos *repository.Repositories, merchant *models.Merchant, merchantEnv string, invoice *models.Invoice, eventType string) error {
	_, enabled := merchant.WebhookTarget(merchantEnv)
	if !enabled {
		return nil
	}
	payload := map[string]interface{}{
		"event_type":    eventType,
		"invoice_id":    invoice.ID,
		"base_amount":   invoice.BaseAmount,
		"final_amount":  invoice.FinalAmount,
		"unique_suffix": invoice.UniqueSuffix,
		"status":        invoice.Status,
		"expires_at":    invoice.ExpiresAt,
	}
	if invoice.ReferenceID != nil {
		payload["reference_id"] = *invoice.ReferenceID
	}
	if invoice.PaidAt != nil {
		payload["paid_at"] = *invoice.PaidAt
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	invoiceID := invoice.ID
	return txRepos.Webhook.Enqueue(&models.WebhookDelivery{
		MerchantID:  merchant.ID,
		Env:         merchantEnv,
		InvoiceID:   &invoiceID,
		EventType:   eventType,
		Payload:     string(raw),
		Status:      models.DELIVERY_STATUS_QUEUED,
		NextRetryAt: time.Now(),
	})
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") || strings.Contains(msg, "Duplicate entry")
}
