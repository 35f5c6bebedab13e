package merchantcontext

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nusapay/qrisgate/app/models"
)

const (
	KeyContext    = "MERCHANT_CONTEXT"
	KeyMerchantID = "MERCHANT_ID"
	KeyEnv        = "MERCHANT_ENV"
)

// Context carries the authenticated merchant identity for one request. It is
// populated by the gateway auth middleware and dropped when the request ends.
type Context struct {
	Merchant *models.Merchant
	Env      string
}

// Store binds the merchant context to the request.
func Store(c *fiber.Ctx, merchant *models.Merchant, env string) {
	c.Locals(KeyContext, Context{Merchant: merchant, Env: env})
	c.Locals(KeyMerchantID, merchant.ID)
	c.Locals(KeyEnv, env)
}

// FromContext returns the merchant context of an authenticated request.
func FromContext(c *fiber.Ctx) (Context, bool) {
	mc, ok := c.Locals(KeyContext).(Context)
	return mc, ok
}

// MerchantID returns the authenticated merchant id, or "" on unauthenticated
// requests.
func MerchantID(c *fiber.Ctx) string {
	id, _ := c.Locals(KeyMerchantID).(string)
	return id
}
