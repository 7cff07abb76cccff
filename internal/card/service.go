package card

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/giftcard/internal/clock"
	"github.com/congo-pay/giftcard/internal/money"
)

const codeDigits = 16

// Service issues cards and binds them to owners.
type Service struct {
	repo  Repository
	clock clock.Clock
}

// NewService builds a card service.
func NewService(repo Repository, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{repo: repo, clock: clk}
}

// IssueInput captures data required to issue a card.
type IssueInput struct {
	ParValue   decimal.Decimal
	ExpireTime *time.Time
	// OwnerID binds the card immediately when set.
	OwnerID string
}

// Issued carries the new card and its plaintext redemption code. The code is
// not stored and cannot be recovered later.
type Issued struct {
	Card Card
	Code string
}

// Issue creates a card whose balance equals its par value.
func (s *Service) Issue(ctx context.Context, input IssueInput) (Issued, error) {
	par := money.Normalize(input.ParValue)
	if !par.IsPositive() {
		return Issued{}, ErrInvalidParValue
	}
	now := s.clock.Now()
	if input.ExpireTime != nil && !input.ExpireTime.After(now) {
		return Issued{}, ErrInvalidExpiry
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Issued{}, fmt.Errorf("generate card id: %w", err)
	}
	code, err := newCode()
	if err != nil {
		return Issued{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return Issued{}, fmt.Errorf("hash redemption code: %w", err)
	}

	c := Card{
		ID:        id.String(),
		ParValue:  par,
		Balance:   decimal.NewNullDecimal(par),
		Status:    StatusInit,
		CodeHash:  hash,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if input.ExpireTime != nil {
		exp := input.ExpireTime.UTC()
		c.ExpireTime = &exp
	}
	if input.OwnerID != "" {
		c.OwnerID = input.OwnerID
		c.BindTime = &now
		c.Refresh(now)
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return Issued{}, err
	}
	return Issued{Card: c, Code: code}, nil
}

// Bind attaches an unbound card to an owner after checking its redemption code.
func (s *Service) Bind(ctx context.Context, cardID, code, ownerID string) (Card, error) {
	if strings.TrimSpace(ownerID) == "" {
		return Card{}, ErrOwnerRequired
	}
	c, err := s.repo.Get(ctx, cardID)
	if err != nil {
		return Card{}, err
	}
	if c.Bound() {
		return Card{}, ErrAlreadyBound
	}
	if err := bcrypt.CompareHashAndPassword(c.CodeHash, []byte(normalizeCode(code))); err != nil {
		return Card{}, ErrInvalidCode
	}

	now := s.clock.Now()
	c.OwnerID = ownerID
	c.BindTime = &now
	c.UpdatedAt = now
	c.Refresh(now)

	if err := s.repo.Update(ctx, c); err != nil {
		return Card{}, err
	}
	c.Version++
	return c, nil
}

// Get returns a card by id.
func (s *Service) Get(ctx context.Context, id string) (Card, error) {
	return s.repo.Get(ctx, id)
}

// ListByOwner returns every card bound to the owner regardless of status.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]Card, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

func newCode() (string, error) {
	var b strings.Builder
	ten := big.NewInt(10)
	for i := 0; i < codeDigits; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("generate redemption code: %w", err)
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

func normalizeCode(code string) string {
	return strings.ReplaceAll(strings.TrimSpace(code), " ", "")
}
