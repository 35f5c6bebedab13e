package controllers

import (
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/nusapay/qrisgate/app/models"
	"github.com/nusapay/qrisgate/app/repository"
	"github.com/nusapay/qrisgate/internal/pkg/env"
	"github.com/nusapay/qrisgate/internal/pkg/httpx"
)

var adminRepos *repository.Repositories

// InitializeAdminController wires the repositories used by the operator
// endpoints.
func InitializeAdminController(repos *repository.Repositories) {
	adminRepos = repos
}

// AdminAuthMiddleware guards the operator surface with a static bearer token.
func AdminAuthMiddleware() fiber.Handler {
	token := env.GetEnv("ADMIN_TOKEN", "")
	return func(c *fiber.Ctx) error {
		if token == "" {
			return httpx.Fail(c, fiber.StatusForbidden, httpx.CodeForbidden, "admin surface is disabled")
		}
		presented := strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			return httpx.Fail(c, fiber.StatusForbidden, httpx.CodeForbidden, "invalid admin token")
		}
		return c.Next()
	}
}

type createMerchantRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// HandleCreateMerchant registers a new merchant in state unverified.
func HandleCreateMerchant(c *fiber.Ctx) error {
	var req createMerchantRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.Fail(c, fiber.StatusBadRequest, httpx.CodeMissingParams, "request body is not valid JSON")
	}

	merchant, err := models.CreateMerchant(req.Name, req.Email)
	if err != nil {
		return httpx.FailWithDetails(c, fiber.StatusBadRequest, httpx.CodeMissingParams, "merchant validation failed", err.Error())
	}
	merchant.Phone = req.Phone

	if err := adminRepos.Merchant.Create(merchant); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") || strings.Contains(err.Error(), "Duplicate entry") {
			return httpx.Fail(c, fiber.StatusConflict, httpx.CodeConflict, "email is already registered")
		}
		log.Errorf("merchant create failed: %v", err)
		return httpx.Fail(c, fiber.StatusInternalServerError, httpx.CodeInternal, "could not create merchant")
	}
	return httpx.Created(c, merchant)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// HandleUpdateMerchantStatus transitions a merchant between onboarding
// states.
func HandleUpdateMerchantStatus(c *fiber.Ctx) error {
	var req updateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.Fail(c, fiber.StatusBadRequest, httpx.CodeMissingParams, "request body is not valid JSON")
	}
	switch req.Status {
	case models.MERCHANT_STATUS_UNVERIFIED, models.MERCHANT_STATUS_SUBMITTED,
		models.MERCHANT_STATUS_ACTIVE, models.MERCHANT_STATUS_REJECTED, models.MERCHANT_STATUS_SUSPENDED:
	default:
		return httpx.Fail(c, fiber.StatusBadRequest, httpx.CodeMissingParams, "unknown merchant status")
	}

	merchant, err := adminRepos.Merchant.GetByID(c.Params("id"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return httpx.Fail(c, fiber.StatusNotFound, httpx.CodeNotFound, "merchant not found")
	}
	if err != nil {
		return httpx.Fail(c, fiber.StatusInternalServerError, httpx.CodeInternal, "merchant lookup failed")
	}

	if err := adminRepos.Merchant.UpdateStatus(merchant.ID, req.Status); err != nil {
		log.Errorf("merchant status update failed: %v", err)
		return httpx.Fail(c, fiber.StatusInternalServerError, httpx.CodeInternal, "could not update merchant")
	}
	merchant.Status = req.Status
	return httpx.OK(c, merchant)
}

type webhookConfigRequest struct {
	Env     string `json:"env"`
	URL     string `json:"url"`
	Enabled bool   `json:"enabled"`
}

// HandleConfigureWebhook sets a merchant's webhook target for one env.
func HandleConfigureWebhook(c *fiber.Ctx) error {
	var req webhookConfigRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.Fail(c, fiber.StatusBadRequest, httpx.CodeMissingParams, "request body is not valid JSON")
	}
	if req.Enabled && !strings.HasPrefix(req.URL, "https://") && !strings.HasPrefix(req.URL, "http://") {
		return httpx.Fail(c, fiber.StatusBadRequest, httpx.CodeInvalidUrl, "webhook URL must be http(s)")
	}

	merchant, err := adminRepos.Merchant.GetByID(c.Params("id"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return httpx.Fail(c, fiber.StatusNotFound, httpx.CodeNotFound, "merchant not found")
	}
	if err != nil {
		return httpx.Fail(c, fiber.StatusInternalServerError, httpx.CodeInternal, "merchant lookup failed")
	}

	if req.Env == models.ENV_SANDBOX {
		merchant.SandboxWebhookURL = req.URL
		merchant.SandboxWebhookOn = req.Enabled
	} else {
		merchant.WebhookURL = req.URL
		merchant.WebhookEnabled = req.Enabled
	}
	if err := adminRepos.Merchant.Update(merchant); err != nil {
		log.Errorf("webhook config update failed: %v", err)
		return httpx.Fail(c, fiber.StatusInternalServerError, httpx.CodeInternal, "could not update merchant")
	}
	return httpx.OK(c, merchant)
}

type mintKeysRequest struct {
	Env string `json:"env"`
}

// HandleMintKeys issues or rotates the credential set for one environment.
// The raw secrets appear exactly once, in this response.
func HandleMintKeys(c *fiber.Ctx) error {
	var req mintKeysRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.Fail(c, fiber.StatusBadRequest, httpx.CodeMissingParams, "request body is not valid JSON")
	}
	if req.Env != models.ENV_PRODUCTION && req.Env != models.ENV_SANDBOX {
		return httpx.Fail(c, fiber.StatusBadRequest, httpx.CodeMissingParams, "env must be production or sandbox")
	}

	merchant, err := adminRepos.Merchant.GetByID(c.Params("id"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return httpx.Fail(c, fiber.StatusNotFound, httpx.CodeNotFound, "merchant not found")
	}
	if err != nil {
		return httpx.Fail(c, fiber.StatusInternalServerError, httpx.CodeInternal, "merchant lookup failed")
	}

	creds, err := adminRepos.Credentials.GetByMerchantID(merchant.ID)
	created := false
	if errors.Is(err, gorm.ErrRecordNotFound) {
		creds = &models.MerchantCredentials{MerchantID: merchant.ID}
		created = true
	} else if err != nil {
		return httpx.Fail(c, fiber.StatusInternalServerError, httpx.CodeInternal, "credentials lookup failed")
	}

	minted, err := creds.Mint(req.Env)
	if err != nil {
		log.Errorf("key mint failed for merchant %s: %v", merchant.ID, err)
		return httpx.Fail(c, fiber.StatusInternalServerError, httpx.CodeInternal, "key generation failed")
	}

	if created {
		err = adminRepos.Credentials.Create(creds)
	} else {
		err = adminRepos.Credentials.Update(creds)
	}
	if err != nil {
		log.Errorf("credentials persist failed for merchant %s: %v", merchant.ID, err)
		return httpx.Fail(c, fiber.StatusInternalServerError, httpx.CodeInternal, "could not persist credentials")
	}

	return httpx.Created(c, fiber.Map{
		"env":            req.Env,
		"api_key":        minted.APIKey,
		"api_secret":     minted.APISecret,
		"webhook_secret": minted.WebhookSecret,
	})
}

// HandleProcessRefund finalizes a requested refund.
func HandleProcessRefund(c *fiber.Ctx) error {
	err := paymentService.ProcessRefund(c.Params("refund_id"))
	if err != nil {
		return failPayment(c, err)
	}
	return httpx.OK(c, fiber.Map{"status": models.REFUND_STATUS_PROCESSED})
}

// HandleListAlerts lists unresolved operational alerts.
func HandleListAlerts(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	alerts, err := adminRepos.Alert.ListOpen(limit)
	if err != nil {
		log.Errorf("alert list failed: %v", err)
		return httpx.Fail(c, fiber.StatusInternalServerError, httpx.CodeInternal, "could not list alerts")
	}
	return httpx.OK(c, fiber.Map{"alerts": alerts})
}

// HandleResolveAlert marks an alert handled.
func HandleResolveAlert(c *fiber.Ctx) error {
	if err := adminRepos.Alert.Resolve(c.Params("id")); err != nil {
		log.Errorf("alert resolve failed: %v", err)
		return httpx.Fail(c, fiber.StatusInternalServerError, httpx.CodeInternal, "could not resolve alert")
	}
	return httpx.OK(c, fiber.Map{"resolved": true})
}

// HandleListDeliveries shows a merchant's webhook delivery history.
func HandleListDeliveries(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}
	deliveries, err := adminRepos.Webhook.ListByMerchant(c.Params("id"), offset, limit)
	if err != nil {
		log.Errorf("delivery list failed: %v", err)
		return httpx.Fail(c, fiber.StatusInternalServerError, httpx.CodeInternal, "could not list deliveries")
	}
	return httpx.OK(c, fiber.Map{"deliveries": deliveries})
}
