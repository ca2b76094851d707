package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/waleedelsefy/imv-whatsapp-api/internal/wallet"
)

// RegisterWalletRoutes wires wallet-related endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler, guards []fiber.Handler) {
	r.Post("/check-wallet", h.Check)
	r.Post("/wallet-history", h.History)
	r.Post("/update-wallet", chain(guards, h.Update)...)
	r.Post("/topup-wallet", chain(guards, h.TopUp)...)
	r.Post("/hold-balance", chain(guards, h.Hold)...)
	r.Post("/release-balance", chain(guards, h.Release)...)
	r.Post("/deduct-pending", chain(guards, h.DeductPending)...)
}
