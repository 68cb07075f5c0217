package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Capstone-2-FMSuggestion-System/backend/controller"
	"github.com/Capstone-2-FMSuggestion-System/backend/middleware"
)

func Register(
	app *fiber.App,
	auth fiber.Handler,
	cc *controller.CheckoutController,
	oc *controller.OrderController,
	pc *controller.PaymentController,
) {
	api := app.Group("/api")

	// Webhook is authenticated by its HMAC signature, not a user token.
	api.Post("/payment/webhook", pc.Webhook)

	api.Post("/checkout", auth, cc.Create)

	orders := api.Group("/orders")
	orders.Get("/", auth, oc.List)
	orders.Get("/:id/payment", auth, pc.Status)
	orders.Put("/:id/cancel", auth, oc.Cancel)

	// Admin
	api.Get("/payments", auth, middleware.RoleRequired("admin"), pc.ListAll)
}
