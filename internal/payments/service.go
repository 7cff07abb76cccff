package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/giftcard/internal/allocation"
	"github.com/congo-pay/giftcard/internal/contract"
	"github.com/congo-pay/giftcard/internal/metrics"
	"github.com/congo-pay/giftcard/internal/money"
	"github.com/congo-pay/giftcard/internal/notification"
)

// ErrOwnerRequired rejects requests that do not name a card owner.
var ErrOwnerRequired = errors.New("owner id is required")

// Service is the checkout-facing surface over the allocation engine.
type Service struct {
	engine   *allocation.Engine
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService constructs a payment service. notifier may be nil.
func NewService(engine *allocation.Engine, notifier notification.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{engine: engine, notifier: notifier, logger: logger}
}

// BalanceResult answers a balance probe.
type BalanceResult struct {
	Sufficient bool
	Available  decimal.Decimal
}

// Balance reports the owner's spendable total and whether it covers amount.
func (s *Service) Balance(ctx context.Context, ownerID string, amount decimal.Decimal) (BalanceResult, error) {
	if strings.TrimSpace(ownerID) == "" {
		return BalanceResult{}, ErrOwnerRequired
	}
	available, err := s.engine.AvailableBalance(ctx, ownerID)
	if err != nil {
		return BalanceResult{}, err
	}
	return BalanceResult{
		Sufficient: available.GreaterThanOrEqual(money.Abs(amount)),
		Available:  available,
	}, nil
}

// SpendInput captures a card payment request.
type SpendInput struct {
	OwnerID string
	Amount  decimal.Decimal
	OrderID string
}

// Spend charges the owner's cards for an order.
func (s *Service) Spend(ctx context.Context, input SpendInput) (contract.Contract, error) {
	if strings.TrimSpace(input.OwnerID) == "" {
		return contract.Contract{}, ErrOwnerRequired
	}

	k, err := s.engine.CostPay(ctx, input.OwnerID, input.Amount, input.OrderID)
	if err != nil {
		metrics.RecordSpend(outcome(err), decimal.Zero)
		return contract.Contract{}, err
	}
	metrics.RecordSpend(metrics.OutcomeOK, k.CostAmount)

	s.notify(ctx, notification.Message{
		Kind:        notification.KindCardSpend,
		Destination: k.OwnerID,
		Body:        fmt.Sprintf("%s charged to %d card(s) for order %s", money.String(k.CostAmount), len(k.Consumptions), k.Code),
	})
	return k, nil
}

// Refund returns up to amount of the contract to its cards. A nil amount
// refunds whatever is still refundable.
func (s *Service) Refund(ctx context.Context, contractID string, amount *decimal.Decimal) (decimal.Decimal, error) {
	back, err := s.engine.ReturnBack(ctx, contractID, amount)
	if err != nil {
		metrics.RecordRefund(outcome(err), decimal.Zero)
		return decimal.Zero, err
	}
	metrics.RecordRefund(metrics.OutcomeOK, back)

	if back.IsPositive() {
		k, err := s.engine.Contract(ctx, contractID)
		if err != nil {
			s.logger.Warn("load refunded contract", slog.String("contract_id", contractID), slog.Any("error", err))
			return back, nil
		}
		s.notify(ctx, notification.Message{
			Kind:        notification.KindCardRefund,
			Destination: k.OwnerID,
			Body:        fmt.Sprintf("%s refunded to your cards for order %s", money.String(back), k.Code),
		})
	}
	return back, nil
}

// Contract returns a contract with its consumption lines.
func (s *Service) Contract(ctx context.Context, id string) (contract.Contract, error) {
	return s.engine.Contract(ctx, id)
}

// CardHistory lists the spend and refund lines recorded against a card.
func (s *Service) CardHistory(ctx context.Context, cardID string) ([]contract.Consumption, error) {
	return s.engine.CardHistory(ctx, cardID)
}

func (s *Service) notify(ctx context.Context, msg notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("notification failed", slog.String("kind", msg.Kind), slog.Any("error", err))
	}
}

func outcome(err error) string {
	switch {
	case errors.Is(err, allocation.ErrInsufficientBalance):
		return metrics.OutcomeInsufficient
	case errors.Is(err, allocation.ErrInvalidAmount):
		return metrics.OutcomeInvalid
	case errors.Is(err, allocation.ErrConcurrencyConflict):
		return metrics.OutcomeConflict
	default:
		return metrics.OutcomeError
	}
}
