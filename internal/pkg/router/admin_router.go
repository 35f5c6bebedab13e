package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nusapay/qrisgate/app/controllers"
	"github.com/nusapay/qrisgate/app/repository"
)

type AdminRouter struct {
}

func (h AdminRouter) InstallRouter(app *fiber.App) {
	controllers.InitializeAdminController(repository.GetGlobalRepositories())

	admin := app.Group("/admin/v1", controllers.AdminAuthMiddleware())

	admin.Post("/merchants", controllers.HandleCreateMerchant)
	admin.Patch("/merchants/:id/status", controllers.HandleUpdateMerchantStatus)
	admin.Put("/merchants/:id/webhook", controllers.HandleConfigureWebhook)
	admin.Post("/merchants/:id/keys", controllers.HandleMintKeys)
	admin.Get("/merchants/:id/deliveries", controllers.HandleListDeliveries)

	admin.Post("/refunds/:refund_id/process", controllers.HandleProcessRefund)

	admin.Get("/alerts", controllers.HandleListAlerts)
	admin.Post("/alerts/:id/resolve", controllers.HandleResolveAlert)
}

func NewAdminRouter() *AdminRouter {
	return &AdminRouter{}
}
