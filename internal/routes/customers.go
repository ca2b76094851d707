package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/waleedelsefy/imv-whatsapp-api/internal/customer"
)

// RegisterCustomerRoutes wires customer lookup and registration.
func RegisterCustomerRoutes(r fiber.Router, h *customer.Handler, guards []fiber.Handler) {
	r.Post("/check-customer", h.Check)
	r.Post("/create-customer", chain(guards, h.Create)...)
}
