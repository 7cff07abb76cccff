package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/giftcard/internal/payments"
)

// RegisterPaymentRoutes wires balance, spend and refund endpoints.
func RegisterPaymentRoutes(r fiber.Router, h *payments.Handler) {
	r.Get("/owners/:ownerId/balance", h.Balance)
	r.Post("/payments/spend", h.Spend)
	r.Get("/contracts/:contractId", h.Contract)
	r.Post("/contracts/:contractId/refund", h.Refund)
	r.Get("/cards/:cardId/consumptions", h.CardHistory)
}
