package card

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/giftcard/internal/money"
)

// Handler exposes card HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a card HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type issueRequest struct {
	ParValue   decimal.Decimal `json:"par_value"`
	ExpireTime *time.Time      `json:"expire_time"`
	OwnerID    string          `json:"owner_id"`
}

type bindRequest struct {
	Code    string `json:"code"`
	OwnerID string `json:"owner_id"`
}

type cardResponse struct {
	ID         string     `json:"id"`
	OwnerID    string     `json:"owner_id,omitempty"`
	ParValue   string     `json:"par_value"`
	Balance    *string    `json:"balance"`
	Status     Status     `json:"status"`
	ExpireTime *time.Time `json:"expire_time,omitempty"`
	BindTime   *time.Time `json:"bind_time,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func toResponse(c Card) cardResponse {
	resp := cardResponse{
		ID:         c.ID,
		OwnerID:    c.OwnerID,
		ParValue:   money.String(c.ParValue),
		Status:     c.Status,
		ExpireTime: c.ExpireTime,
		BindTime:   c.BindTime,
		CreatedAt:  c.CreatedAt,
	}
	if c.Balance.Valid {
		b := money.String(c.Balance.Decimal)
		resp.Balance = &b
	}
	return resp
}

// Issue creates a card and returns its one-time redemption code.
func (h *Handler) Issue(c *fiber.Ctx) error {
	var req issueRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	issued, err := h.service.Issue(c.UserContext(), IssueInput{
		ParValue:   req.ParValue,
		ExpireTime: req.ExpireTime,
		OwnerID:    req.OwnerID,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidParValue) || errors.Is(err, ErrInvalidExpiry) {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	// The plaintext code is shown once and must not be kept by any cache.
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"card": toResponse(issued.Card),
		"code": issued.Code,
	})
}

// Bind attaches a card to an owner.
func (h *Handler) Bind(c *fiber.Ctx) error {
	var req bindRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	bound, err := h.service.Bind(c.UserContext(), c.Params("cardId"), req.Code, req.OwnerID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return fiber.NewError(http.StatusNotFound, err.Error())
		case errors.Is(err, ErrInvalidCode):
			return fiber.NewError(http.StatusForbidden, err.Error())
		case errors.Is(err, ErrAlreadyBound):
			return fiber.NewError(http.StatusConflict, err.Error())
		case errors.Is(err, ErrOwnerRequired):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.Status(http.StatusOK).JSON(toResponse(bound))
}

// Get returns a single card.
func (h *Handler) Get(c *fiber.Ctx) error {
	found, err := h.service.Get(c.UserContext(), c.Params("cardId"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(toResponse(found))
}

// ListByOwner returns the owner's cards.
func (h *Handler) ListByOwner(c *fiber.Ctx) error {
	cards, err := h.service.ListByOwner(c.UserContext(), c.Params("ownerId"))
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]cardResponse, 0, len(cards))
	for _, found := range cards {
		out = append(out, toResponse(found))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"cards": out})
}
