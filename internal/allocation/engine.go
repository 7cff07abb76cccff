package allocation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/giftcard/internal/card"
	"github.com/congo-pay/giftcard/internal/clock"
	"github.com/congo-pay/giftcard/internal/contract"
	"github.com/congo-pay/giftcard/internal/ledger"
	"github.com/congo-pay/giftcard/internal/lock"
	"github.com/congo-pay/giftcard/internal/money"
)

const refundLockPrefix = "contract-refund:"

// Engine draws payments from an owner's cards and reverses them.
//
// CostPay takes no owner-level lock: two concurrent spends for the same owner
// may both pass the balance check. The card version check turns the loser
// into ErrConcurrencyConflict rather than a lost update. ReturnBack is
// serialized per contract through the Locker.
type Engine struct {
	store  ledger.Store
	locker lock.Locker
	clock  clock.Clock
	logger *slog.Logger
}

// New builds an allocation engine.
func New(store ledger.Store, locker lock.Locker, clk clock.Clock, logger *slog.Logger) *Engine {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, locker: locker, clock: clk, logger: logger}
}

// HasEnoughBalance reports whether the owner's spendable cards cover amount.
// The sign of amount is ignored. The answer is a point-in-time read.
func (e *Engine) HasEnoughBalance(ctx context.Context, ownerID string, amount decimal.Decimal) (bool, error) {
	available, err := e.store.SumSpendableBalance(ctx, ownerID)
	if err != nil {
		return false, err
	}
	return available.GreaterThanOrEqual(money.Abs(amount)), nil
}

// AvailableBalance returns the sum of the owner's spendable card balances.
func (e *Engine) AvailableBalance(ctx context.Context, ownerID string) (decimal.Decimal, error) {
	return e.store.SumSpendableBalance(ctx, ownerID)
}

// CostPay charges amount to the owner's cards, soonest-expiring first, and
// records one consumption per card touched under a new contract for orderID.
func (e *Engine) CostPay(ctx context.Context, ownerID string, amount decimal.Decimal, orderID string) (contract.Contract, error) {
	cost := money.Abs(amount)
	if !cost.IsPositive() {
		return contract.Contract{}, ErrInvalidAmount
	}
	actor := ActorFrom(ctx)

	var result contract.Contract
	err := e.store.WithinTx(ctx, func(tx ledger.Tx) error {
		available, err := tx.SumSpendableBalance(ctx, ownerID)
		if err != nil {
			return err
		}
		if available.LessThan(cost) {
			return fmt.Errorf("%w: need %s, have %s", ErrInsufficientBalance, money.String(cost), money.String(available))
		}

		now := e.clock.Now()
		k := contract.Contract{
			ID:         uuid.NewString(),
			Code:       orderID,
			OwnerID:    ownerID,
			CostAmount: cost,
			CreatedAt:  now,
		}
		if err := tx.CreateContract(ctx, k); err != nil {
			return fmt.Errorf("create contract: %w", err)
		}

		cards, err := tx.ListSpendableCards(ctx, ownerID)
		if err != nil {
			return err
		}
		card.SortForSpend(cards)

		remaining := cost
		for _, c := range cards {
			if !remaining.IsPositive() {
				break
			}
			deduct := money.Min(remaining, c.Available())
			if !deduct.IsPositive() {
				continue
			}

			c.SetBalance(c.Available().Sub(deduct))
			c.UpdatedAt = now
			c.Refresh(now)
			if err := tx.UpdateCard(ctx, c); err != nil {
				return fmt.Errorf("update card %s: %w", c.ID, err)
			}
			remaining = remaining.Sub(deduct)

			line := contract.Consumption{
				ID:               uuid.NewString(),
				CardID:           c.ID,
				ContractID:       k.ID,
				Title:            spendTitle(orderID),
				OrderID:          orderID,
				Amount:           deduct.Neg(),
				RefundableAmount: deduct,
				CreatedAt:        now,
				CreatedBy:        actor.ID,
				CreatedIP:        actor.IP,
			}
			if err := tx.CreateConsumption(ctx, line); err != nil {
				return fmt.Errorf("create consumption: %w", err)
			}
			k.Consumptions = append(k.Consumptions, line)
		}

		if remaining.IsPositive() {
			return fmt.Errorf("%w: %s left unallocated", ErrInsufficientBalance, money.String(remaining))
		}
		result = k
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInsufficientBalance):
			e.logger.Info("cost pay rejected", slog.String("owner_id", ownerID), slog.String("order_id", orderID), slog.Any("error", err))
		case errors.Is(err, ledger.ErrVersionConflict):
			e.logger.Warn("cost pay lost card update race", slog.String("owner_id", ownerID), slog.String("order_id", orderID))
			return contract.Contract{}, fmt.Errorf("%w: %w", ErrConcurrencyConflict, err)
		}
		return contract.Contract{}, err
	}

	e.logger.Info("cost pay completed",
		slog.String("owner_id", ownerID),
		slog.String("order_id", orderID),
		slog.String("contract_id", result.ID),
		slog.String("amount", money.String(cost)),
		slog.Int("cards", len(result.Consumptions)),
	)
	return result, nil
}

// ReturnBack refunds up to amount from the contract back onto the cards it
// was drawn from and returns the sum actually credited. A nil amount refunds
// the full contract cost. The refund time is stamped on every call, even when
// nothing is left to refund.
func (e *Engine) ReturnBack(ctx context.Context, contractID string, amount *decimal.Decimal) (decimal.Decimal, error) {
	unlock, err := e.locker.Lock(ctx, refundLockPrefix+contractID)
	if err != nil {
		if errors.Is(err, lock.ErrNotObtained) {
			e.logger.Warn("refund lock busy", slog.String("contract_id", contractID))
			return decimal.Zero, fmt.Errorf("%w: %w", ErrConcurrencyConflict, err)
		}
		return decimal.Zero, err
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			e.logger.Warn("release refund lock", slog.String("contract_id", contractID), slog.Any("error", err))
		}
	}()

	actor := ActorFrom(ctx)
	var realBack decimal.Decimal
	err = e.store.WithinTx(ctx, func(tx ledger.Tx) error {
		realBack = decimal.Zero

		k, err := tx.GetContract(ctx, contractID)
		if err != nil {
			return err
		}
		now := e.clock.Now()

		requested := k.CostAmount
		if amount != nil {
			requested = money.Normalize(*amount)
		}

		lines := k.Refundable()
		refundable := make([]decimal.Decimal, len(lines))
		for i, line := range lines {
			refundable[i] = line.RefundableAmount
		}
		actual := money.Min(requested, money.Sum(refundable...))
		if len(lines) == 0 || !actual.IsPositive() {
			return markRefunded(ctx, tx, k, now)
		}

		shares := Split(actual, refundable)
		for i, line := range lines {
			v := shares[i]
			if !v.IsPositive() {
				continue
			}

			line.RefundableAmount = line.RefundableAmount.Sub(v)
			if err := tx.UpdateConsumption(ctx, line); err != nil {
				return fmt.Errorf("update consumption %s: %w", line.ID, err)
			}

			c, err := tx.GetCard(ctx, line.CardID)
			if err != nil {
				return err
			}
			c.SetBalance(c.Available().Add(v))
			c.UpdatedAt = now
			c.Refresh(now)
			if err := tx.UpdateCard(ctx, c); err != nil {
				return fmt.Errorf("update card %s: %w", c.ID, err)
			}

			refundLog := contract.Consumption{
				ID:               uuid.NewString(),
				CardID:           line.CardID,
				ContractID:       k.ID,
				Title:            line.Title + contract.RefundMarker,
				OrderID:          line.OrderID,
				Amount:           v,
				RefundableAmount: decimal.Zero,
				CreatedAt:        now,
				CreatedBy:        actor.ID,
				CreatedIP:        actor.IP,
			}
			if err := tx.CreateConsumption(ctx, refundLog); err != nil {
				return fmt.Errorf("create refund log: %w", err)
			}
			realBack = realBack.Add(v)
		}

		return markRefunded(ctx, tx, k, now)
	})
	if err != nil {
		if errors.Is(err, ledger.ErrVersionConflict) {
			return decimal.Zero, fmt.Errorf("%w: %w", ErrConcurrencyConflict, err)
		}
		return decimal.Zero, err
	}

	e.logger.Info("refund completed",
		slog.String("contract_id", contractID),
		slog.String("refunded", money.String(realBack)),
	)
	return realBack, nil
}

// Contract loads a contract with its consumptions.
func (e *Engine) Contract(ctx context.Context, id string) (contract.Contract, error) {
	return e.store.GetContract(ctx, id)
}

// CardHistory lists the consumption lines recorded against a card.
func (e *Engine) CardHistory(ctx context.Context, cardID string) ([]contract.Consumption, error) {
	if _, err := e.store.GetCard(ctx, cardID); err != nil {
		return nil, err
	}
	return e.store.ListConsumptionsByCard(ctx, cardID)
}

func markRefunded(ctx context.Context, tx ledger.Tx, k contract.Contract, now time.Time) error {
	k.RefundTime = &now
	if err := tx.UpdateContract(ctx, k); err != nil {
		return fmt.Errorf("stamp refund time: %w", err)
	}
	return nil
}

func spendTitle(orderID string) string {
	if orderID == "" {
		return "card payment"
	}
	return "order " + orderID
}
