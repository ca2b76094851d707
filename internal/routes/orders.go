package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/waleedelsefy/imv-whatsapp-api/internal/orders"
)

// RegisterOrderRoutes wires order creation, status changes and subscription renewals.
func RegisterOrderRoutes(r fiber.Router, h *orders.Handler, guards []fiber.Handler) {
	r.Post("/create-order", chain(guards, h.Create)...)
	r.Post("/orders/:orderId/status", chain(guards, h.UpdateStatus)...)
	r.Post("/subscriptions/:subscriptionId/payments", chain(guards, h.SubscriptionPayment)...)
}
