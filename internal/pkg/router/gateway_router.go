package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nusapay/qrisgate/app/controllers"
	"github.com/nusapay/qrisgate/internal/pkg/middleware"
	"github.com/nusapay/qrisgate/internal/pkg/payment"
)

type GatewayRouter struct {
	service *payment.Service
}

func (h GatewayRouter) InstallRouter(app *fiber.App) {
	controllers.InitializeInvoiceController(h.service)

	// Rate limiting runs after authentication so a throttled caller still
	// gets the precise auth error first.
	v1 := app.Group("/v1", middleware.GatewayAuthMiddleware(), middleware.RateLimitMiddleware())

	v1.Get("/health", controllers.HandleHealth)
	v1.Post("/invoices", controllers.HandleCreateInvoice)
	v1.Get("/invoices", controllers.HandleListInvoices)
	v1.Get("/invoices/:id", controllers.HandleGetInvoice)
	v1.Post("/invoices/:id/check", controllers.HandleCheckInvoice)
	v1.Get("/invoices/:id/events", controllers.HandleListInvoiceEvents)
	v1.Post("/invoices/:id/refunds", controllers.HandleRequestRefund)
}

func NewGatewayRouter(service *payment.Service) *GatewayRouter {
	return &GatewayRouter{service: service}
}
