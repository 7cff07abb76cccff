package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/giftcard/internal/card"
)

// RegisterCardRoutes wires card issuance and lookup endpoints.
func RegisterCardRoutes(r fiber.Router, h *card.Handler) {
	r.Post("/cards", h.Issue)
	r.Get("/cards/:cardId", h.Get)
	r.Post("/cards/:cardId/bind", h.Bind)
	r.Get("/owners/:ownerId/cards", h.ListByOwner)
}
