package controllers

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/nusapay/qrisgate/app/models"
	"github.com/nusapay/qrisgate/internal/pkg/httpx"
	"github.com/nusapay/qrisgate/internal/pkg/merchantcontext"
	"github.com/nusapay/qrisgate/internal/pkg/metrics/counter"
	"github.com/nusapay/qrisgate/internal/pkg/payment"
	"github.com/nusapay/qrisgate/internal/pkg/upstream"
)

const (
	maxListLimit   = 200
	maxEventsLimit = 100
)

var paymentService *payment.Service

// InitializeInvoiceController wires the payment service used by the invoice
// handlers.
func InitializeInvoiceController(service *payment.Service) {
	paymentService = service
}

type createInvoiceRequest struct {
	Username    string          `json:"username"`
	Token       string          `json:"token"`
	Amount      int64           `json:"amount"`
	QrisStatic  string          `json:"qris_static"`
	ReferenceID *string         `json:"reference_id"`
	Metadata    json.RawMessage `json:"metadata"`
}

type checkInvoiceRequest struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

type refundRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

// HandleCreateInvoice creates a pending invoice with a fresh unique suffix.
func HandleCreateInvoice(c *fiber.Ctx) error {
	mc, ok := merchantcontext.FromContext(c)
	if !ok {
		return httpx.Fail(c, fiber.StatusUnauthorized, httpx.CodeMissingApiKey, "authentication required")
	}

	var req createInvoiceRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.Fail(c, fiber.StatusBadRequest, httpx.CodeMissingParams, "request body is not valid JSON")
	}
	if strings.TrimSpace(req.Username) == "" || strings.TrimSpace(req.QrisStatic) == "" {
		return httpx.Fail(c, fiber.StatusBadRequest, httpx.CodeMissingParams, "username and qris_static are required")
	}
	if req.Amount <= 0 {
		return httpx.Fail(c, fiber.StatusBadRequest, httpx.CodeInvalidAmount, "amount must be a positive integer")
	}

	result, err := paymentService.CreateInvoice(mc.Merchant, mc.Env, payment.CreateInvoiceInput{
		Principal:   req.Username,
		BaseAmount:  req.Amount,
		QrisStatic:  req.QrisStatic,
		ReferenceID: req.ReferenceID,
		Metadata:    string(req.Metadata),
	})
	if err != nil {
		return failPayment(c, err)
	}

	counter.Increment(counter.InvoicesCreated, mc.Merchant.ID)

	return httpx.Created(c, fiber.Map{
		"id":            result.Invoice.ID,
		"status":        result.Invoice.Status,
		"qris_string":   result.QrisString,
		"base_amount":   result.Invoice.BaseAmount,
		"final_amount":  result.FinalAmount,
		"unique_suffix": result.UniqueSuffix,
		"expires_at":    result.ExpiresAt,
		"reference_id":  result.Invoice.ReferenceID,
	})
}

// HandleListInvoices pages the merchant's invoices.
func HandleListInvoices(c *fiber.Ctx) error {
	mc, ok := merchantcontext.FromContext(c)
	if !ok {
		return httpx.Fail(c, fiber.StatusUnauthorized, httpx.CodeMissingApiKey, "authentication required")
	}

	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	invoices, total, err := paymentService.ListInvoices(mc.Merchant, offset, limit)
	if err != nil {
		log.Errorf("invoice list failed for merchant %s: %v", mc.Merchant.ID, err)
		return httpx.Fail(c, fiber.StatusInternalServerError, httpx.CodeInternal, "could not list invoices")
	}

	return httpx.OK(c, fiber.Map{
		"invoices": invoices,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

// HandleGetInvoice fetches one invoice owned by the caller.
func HandleGetInvoice(c *fiber.Ctx) error {
	mc, ok := merchantcontext.FromContext(c)
	if !ok {
		return httpx.Fail(c, fiber.StatusUnauthorized, httpx.CodeMissingApiKey, "authentication required")
	}

	invoice, err := paymentService.GetInvoice(mc.Merchant, c.Params("id"))
	if err != nil {
		return failPayment(c, err)
	}
	return httpx.OK(c, invoice)
}

// HandleCheckInvoice polls upstream for a matching credit and reports the
// resulting status.
func HandleCheckInvoice(c *fiber.Ctx) error {
	mc, ok := merchantcontext.FromContext(c)
	if !ok {
		return httpx.Fail(c, fiber.StatusUnauthorized, httpx.CodeMissingApiKey, "authentication required")
	}

	var req checkInvoiceRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.Fail(c, fiber.StatusBadRequest, httpx.CodeMissingParams, "request body is not valid JSON")
	}

	result, err := paymentService.Check(c.Context(), mc.Merchant, c.Params("id"), req.Token)
	if err != nil {
		return failPayment(c, err)
	}

	if result.Status == models.INVOICE_STATUS_PAID {
		counter.Increment(counter.InvoicesPaid, mc.Merchant.ID)
	}

	data := fiber.Map{"id": c.Params("id"), "status": result.Status}
	if result.PaidAt != nil {
		data["paid_at"] = result.PaidAt
	}
	if result.Status == models.INVOICE_STATUS_PENDING {
		data["expires_in"] = result.ExpiresIn
	}
	return httpx.OK(c, data)
}

// HandleListInvoiceEvents tails the audit log of one invoice.
func HandleListInvoiceEvents(c *fiber.Ctx) error {
	mc, ok := merchantcontext.FromContext(c)
	if !ok {
		return httpx.Fail(c, fiber.StatusUnauthorized, httpx.CodeMissingApiKey, "authentication required")
	}

	limit := c.QueryInt("limit", maxEventsLimit)
	if limit <= 0 || limit > maxEventsLimit {
		limit = maxEventsLimit
	}

	events, err := paymentService.ListEvents(mc.Merchant, c.Params("id"), limit)
	if err != nil {
		return failPayment(c, err)
	}
	return httpx.OK(c, fiber.Map{"events": events})
}

// HandleRequestRefund opens a refund for a paid invoice.
func HandleRequestRefund(c *fiber.Ctx) error {
	mc, ok := merchantcontext.FromContext(c)
	if !ok {
		return httpx.Fail(c, fiber.StatusUnauthorized, httpx.CodeMissingApiKey, "authentication required")
	}

	var req refundRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.Fail(c, fiber.StatusBadRequest, httpx.CodeMissingParams, "request body is not valid JSON")
	}

	refund, err := paymentService.RequestRefund(mc.Merchant, c.Params("id"), req.Amount, req.Reason)
	if err != nil {
		return failPayment(c, err)
	}
	return httpx.Created(c, refund)
}

// HandleHealth is the authenticated liveness endpoint.
func HandleHealth(c *fiber.Ctx) error {
	return httpx.OK(c, fiber.Map{"status": "ok"})
}

// failPayment translates service errors into the response envelope.
func failPayment(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, payment.ErrNotFound):
		return httpx.Fail(c, fiber.StatusNotFound, httpx.CodeNotFound, "invoice not found")
	case errors.Is(err, payment.ErrForbidden):
		return httpx.Fail(c, fiber.StatusForbidden, httpx.CodeForbidden, "invoice belongs to another merchant")
	case errors.Is(err, payment.ErrInvalidAmount):
		return httpx.Fail(c, fiber.StatusBadRequest, httpx.CodeInvalidAmount, "amount must be a positive integer")
	case errors.Is(err, payment.ErrInvalidQris):
		return httpx.Fail(c, fiber.StatusBadRequest, httpx.CodeInvalidQris, "static QRIS payload failed validation")
	case errors.Is(err, payment.ErrNoSuffixAvailable):
		return httpx.Fail(c, fiber.StatusConflict, httpx.CodeNoSuffixAvailable, "no unique suffix available for this principal")
	case errors.Is(err, payment.ErrContention):
		return httpx.Fail(c, fiber.StatusConflict, httpx.CodeContention, "concurrent allocation contention, retry")
	case errors.Is(err, payment.ErrConflict):
		return httpx.Fail(c, fiber.StatusConflict, httpx.CodeConflict, "conflicting state transition")
	case errors.Is(err, payment.ErrNotRefundable):
		return httpx.Fail(c, fiber.StatusConflict, httpx.CodeConflict, "invoice is not refundable")
	case errors.Is(err, upstream.ErrUnavailable):
		return httpx.Fail(c, fiber.StatusBadGateway, httpx.CodeUpstreamUnavailable, "upstream mutation service unavailable, retry later")
	default:
		log.Errorf("payment operation failed: %v", err)
		return httpx.Fail(c, fiber.StatusInternalServerError, httpx.CodeInternal, "unexpected failure")
	}
}
