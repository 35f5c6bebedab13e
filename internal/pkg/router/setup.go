package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nusapay/qrisgate/internal/pkg/payment"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// InstallRouter registers the gateway surface first so that the invoice
// controllers are wired before the admin routes reference the refund
// processor.
func InstallRouter(app *fiber.App, service *payment.Service) {
	setup(app, NewGatewayRouter(service), NewAdminRouter())
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
