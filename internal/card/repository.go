package card

import "context"

// Repository persists cards for the issuance service.
type Repository interface {
	Create(ctx context.Context, card Card) error
	Get(ctx context.Context, id string) (Card, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Card, error)
	Update(ctx context.Context, card Card) error
}
