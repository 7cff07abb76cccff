package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/giftcard/internal/card"
	"github.com/congo-pay/giftcard/internal/contract"
)

// ErrVersionConflict indicates a card changed between read and write. The
// caller lost the race and may retry the whole operation.
var ErrVersionConflict = errors.New("card version conflict")

// Reader exposes the finders the allocation engine consumes.
type Reader interface {
	GetCard(ctx context.Context, id string) (card.Card, error)
	ListCardsByOwner(ctx context.Context, ownerID string) ([]card.Card, error)
	// ListSpendableCards returns the owner's valid cards with a positive
	// balance ordered by expiry ascending, then id ascending.
	ListSpendableCards(ctx context.Context, ownerID string) ([]card.Card, error)
	// SumSpendableBalance sums the balances ListSpendableCards would return.
	SumSpendableBalance(ctx context.Context, ownerID string) (decimal.Decimal, error)
	// GetContract loads a contract with its consumptions in creation order.
	GetContract(ctx context.Context, id string) (contract.Contract, error)
	// ListConsumptionsByCard returns every line drawn against or credited to
	// the card, oldest first.
	ListConsumptionsByCard(ctx context.Context, cardID string) ([]contract.Consumption, error)
}

// Tx is a unit of work. Every write made through a Tx commits or rolls back
// together.
type Tx interface {
	Reader
	CreateCard(ctx context.Context, c card.Card) error
	// UpdateCard persists owner, balance, status and bind time. It fails with
	// ErrVersionConflict unless c.Version matches the stored version.
	UpdateCard(ctx context.Context, c card.Card) error
	CreateContract(ctx context.Context, c contract.Contract) error
	// UpdateContract persists the refund time.
	UpdateContract(ctx context.Context, c contract.Contract) error
	CreateConsumption(ctx context.Context, line contract.Consumption) error
	// UpdateConsumption persists the refundable amount.
	UpdateConsumption(ctx context.Context, line contract.Consumption) error
}

// Sweeper holds the bulk status maintenance queries used by the expiry job.
type Sweeper interface {
	// ExpireDue marks up to limit valid cards whose expire time is at or
	// before now as expired.
	ExpireDue(ctx context.Context, now time.Time, limit int) (int64, error)
	// MarkEmpty marks up to limit valid cards without balance as empty.
	MarkEmpty(ctx context.Context, now time.Time, limit int) (int64, error)
}

// Store is implemented by persistence backends (e.g. Postgres).
type Store interface {
	Reader
	Sweeper
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

type cardRepository struct {
	store Store
}

// Cards adapts a Store to the card service repository.
func Cards(store Store) card.Repository {
	return cardRepository{store: store}
}

func (r cardRepository) Create(ctx context.Context, c card.Card) error {
	return r.store.WithinTx(ctx, func(tx Tx) error {
		return tx.CreateCard(ctx, c)
	})
}

func (r cardRepository) Get(ctx context.Context, id string) (card.Card, error) {
	return r.store.GetCard(ctx, id)
}

func (r cardRepository) ListByOwner(ctx context.Context, ownerID string) ([]card.Card, error) {
	return r.store.ListCardsByOwner(ctx, ownerID)
}

func (r cardRepository) Update(ctx context.Context, c card.Card) error {
	return r.store.WithinTx(ctx, func(tx Tx) error {
		return tx.UpdateCard(ctx, c)
	})
}
