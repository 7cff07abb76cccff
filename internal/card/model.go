package card

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a card.
type Status string

const (
	StatusInit    Status = "init"
	StatusValid   Status = "valid"
	StatusExpired Status = "expired"
	StatusEmpty   Status = "empty"
)

var (
	// ErrNotFound is returned when no card matches the requested identifier.
	ErrNotFound = errors.New("card not found")
	// ErrInvalidParValue rejects issuance of cards without a positive face value.
	ErrInvalidParValue = errors.New("par value must be positive")
	// ErrInvalidExpiry rejects issuance of cards that are already expired.
	ErrInvalidExpiry = errors.New("expire time must be in the future")
	// ErrInvalidCode indicates the redemption code does not match the card.
	ErrInvalidCode = errors.New("invalid redemption code")
	// ErrAlreadyBound indicates the card already belongs to an owner.
	ErrAlreadyBound = errors.New("card already bound")
	// ErrOwnerRequired rejects a bind without an owner.
	ErrOwnerRequired = errors.New("owner id is required")
)

// Card is a single prepaid balance unit.
type Card struct {
	ID         string
	OwnerID    string
	ParValue   decimal.Decimal
	Balance    decimal.NullDecimal
	Status     Status
	ExpireTime *time.Time
	BindTime   *time.Time
	CodeHash   []byte
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Available returns the balance, treating an unset balance as zero.
func (c Card) Available() decimal.Decimal {
	if !c.Balance.Valid {
		return decimal.Zero
	}
	return c.Balance.Decimal
}

// SetBalance stores a new balance value.
func (c *Card) SetBalance(d decimal.Decimal) {
	c.Balance = decimal.NewNullDecimal(d)
}

// Spendable reports whether the card can fund a payment.
func (c Card) Spendable() bool {
	return c.Status == StatusValid && c.Available().IsPositive()
}

// Bound reports whether the card has an owner.
func (c Card) Bound() bool {
	return c.OwnerID != ""
}
