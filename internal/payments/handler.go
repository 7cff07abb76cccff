package payments

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/giftcard/internal/allocation"
	"github.com/congo-pay/giftcard/internal/card"
	"github.com/congo-pay/giftcard/internal/contract"
	"github.com/congo-pay/giftcard/internal/money"
)

// OperatorHeader carries the id of the cashier or system acting on a card.
const OperatorHeader = "X-Operator-ID"

// Handler exposes payment endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type spendRequest struct {
	OwnerID string          `json:"owner_id"`
	Amount  decimal.Decimal `json:"amount"`
	OrderID string          `json:"order_id"`
}

type refundRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

type consumptionResponse struct {
	ID               string    `json:"id"`
	CardID           string    `json:"card_id"`
	Title            string    `json:"title"`
	OrderID          string    `json:"order_id,omitempty"`
	Amount           string    `json:"amount"`
	RefundableAmount string    `json:"refundable_amount"`
	CreatedAt        time.Time `json:"created_at"`
	CreatedBy        string    `json:"created_by,omitempty"`
	CreatedIP        string    `json:"created_ip,omitempty"`
}

type contractResponse struct {
	ID               string                `json:"id"`
	Code             string                `json:"code"`
	OwnerID          string                `json:"owner_id"`
	CostAmount       string                `json:"cost_amount"`
	RefundableAmount string                `json:"refundable_amount"`
	RefundTime       *time.Time            `json:"refund_time,omitempty"`
	CreatedAt        time.Time             `json:"created_at"`
	Consumptions     []consumptionResponse `json:"consumptions"`
}

func toConsumptionResponse(line contract.Consumption) consumptionResponse {
	return consumptionResponse{
		ID:               line.ID,
		CardID:           line.CardID,
		Title:            line.Title,
		OrderID:          line.OrderID,
		Amount:           money.String(line.Amount),
		RefundableAmount: money.String(line.RefundableAmount),
		CreatedAt:        line.CreatedAt,
		CreatedBy:        line.CreatedBy,
		CreatedIP:        line.CreatedIP,
	}
}

func toContractResponse(k contract.Contract) contractResponse {
	resp := contractResponse{
		ID:               k.ID,
		Code:             k.Code,
		OwnerID:          k.OwnerID,
		CostAmount:       money.String(k.CostAmount),
		RefundableAmount: money.String(k.RefundableAmount()),
		RefundTime:       k.RefundTime,
		CreatedAt:        k.CreatedAt,
		Consumptions:     make([]consumptionResponse, 0, len(k.Consumptions)),
	}
	for _, line := range k.Consumptions {
		resp.Consumptions = append(resp.Consumptions, toConsumptionResponse(line))
	}
	return resp
}

// Balance answers whether an owner's cards cover ?amount=.
func (h *Handler) Balance(c *fiber.Ctx) error {
	amount := decimal.Zero
	if raw := c.Query("amount"); raw != "" {
		parsed, err := money.Parse(raw)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid amount")
		}
		amount = parsed
	}

	res, err := h.service.Balance(c.UserContext(), c.Params("ownerId"), amount)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{
		"sufficient": res.Sufficient,
		"available":  money.String(res.Available),
	})
}

// Spend charges an owner's cards for an order.
func (h *Handler) Spend(c *fiber.Ctx) error {
	var req spendRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	k, err := h.service.Spend(withActor(c), SpendInput{
		OwnerID: req.OwnerID,
		Amount:  req.Amount,
		OrderID: req.OrderID,
	})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(toContractResponse(k))
}

// Refund returns part or all of a contract to its cards.
func (h *Handler) Refund(c *fiber.Ctx) error {
	var req refundRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}

	back, err := h.service.Refund(withActor(c), c.Params("contractId"), req.Amount)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{"refunded": money.String(back)})
}

// Contract returns a contract with its consumption lines.
func (h *Handler) Contract(c *fiber.Ctx) error {
	k, err := h.service.Contract(c.UserContext(), c.Params("contractId"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(toContractResponse(k))
}

// CardHistory lists the consumption lines recorded against a card.
func (h *Handler) CardHistory(c *fiber.Ctx) error {
	lines, err := h.service.CardHistory(c.UserContext(), c.Params("cardId"))
	if err != nil {
		return mapError(err)
	}
	out := make([]consumptionResponse, 0, len(lines))
	for _, line := range lines {
		out = append(out, toConsumptionResponse(line))
	}
	return c.JSON(fiber.Map{"consumptions": out})
}

func withActor(c *fiber.Ctx) context.Context {
	return allocation.WithActor(c.UserContext(), allocation.Actor{
		ID: c.Get(OperatorHeader),
		IP: c.IP(),
	})
}

func mapError(err error) error {
	switch {
	case errors.Is(err, allocation.ErrInsufficientBalance):
		return fiber.NewError(http.StatusPaymentRequired, "insufficient card balance")
	case errors.Is(err, allocation.ErrInvalidAmount):
		return fiber.NewError(http.StatusBadRequest, "amount must be non-zero")
	case errors.Is(err, ErrOwnerRequired):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, allocation.ErrConcurrencyConflict):
		return fiber.NewError(http.StatusConflict, "concurrent update, retry")
	case errors.Is(err, contract.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "contract not found")
	case errors.Is(err, card.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "card not found")
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
