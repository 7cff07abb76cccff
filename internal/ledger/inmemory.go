package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/giftcard/internal/card"
	"github.com/congo-pay/giftcard/internal/contract"
)

type memoryState struct {
	cards        map[string]card.Card
	contracts    map[string]contract.Contract
	consumptions map[string]contract.Consumption
	// lineOrder keeps consumption ids in insertion order.
	lineOrder []string
}

func newMemoryState() *memoryState {
	return &memoryState{
		cards:        make(map[string]card.Card),
		contracts:    make(map[string]contract.Contract),
		consumptions: make(map[string]contract.Consumption),
	}
}

func (s *memoryState) clone() *memoryState {
	out := &memoryState{
		cards:        make(map[string]card.Card, len(s.cards)),
		contracts:    make(map[string]contract.Contract, len(s.contracts)),
		consumptions: make(map[string]contract.Consumption, len(s.consumptions)),
		lineOrder:    append([]string(nil), s.lineOrder...),
	}
	for k, v := range s.cards {
		out.cards[k] = v
	}
	for k, v := range s.contracts {
		out.contracts[k] = v
	}
	for k, v := range s.consumptions {
		out.consumptions[k] = v
	}
	return out
}

type inMemoryStore struct {
	mu    sync.RWMutex
	state *memoryState
}

// NewInMemory creates a concurrency-safe in-memory store useful for unit tests
// and local development. Each WithinTx runs against a private copy that
// replaces the shared state only when fn succeeds.
func NewInMemory() Store {
	return &inMemoryStore{state: newMemoryState()}
}

func (s *inMemoryStore) WithinTx(_ context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&memoryTx{state: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *inMemoryStore) GetCard(_ context.Context, id string) (card.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.getCard(id)
}

func (s *inMemoryStore) ListCardsByOwner(_ context.Context, ownerID string) ([]card.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.cardsByOwner(ownerID), nil
}

func (s *inMemoryStore) ListSpendableCards(_ context.Context, ownerID string) ([]card.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.spendable(ownerID), nil
}

func (s *inMemoryStore) SumSpendableBalance(_ context.Context, ownerID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.spendableSum(ownerID), nil
}

func (s *inMemoryStore) GetContract(_ context.Context, id string) (contract.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.getContract(id)
}

func (s *inMemoryStore) ListConsumptionsByCard(_ context.Context, cardID string) ([]contract.Consumption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.cardLines(cardID), nil
}

func (s *inMemoryStore) ExpireDue(_ context.Context, now time.Time, limit int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.sweep(limit, now, card.StatusExpired, func(c card.Card) bool {
		return c.ExpireTime != nil && !c.ExpireTime.After(now)
	}), nil
}

func (s *inMemoryStore) MarkEmpty(_ context.Context, now time.Time, limit int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.sweep(limit, now, card.StatusEmpty, func(c card.Card) bool {
		return !c.Available().IsPositive()
	}), nil
}

type memoryTx struct {
	state *memoryState
}

func (t *memoryTx) GetCard(_ context.Context, id string) (card.Card, error) {
	return t.state.getCard(id)
}

func (t *memoryTx) ListCardsByOwner(_ context.Context, ownerID string) ([]card.Card, error) {
	return t.state.cardsByOwner(ownerID), nil
}

func (t *memoryTx) ListSpendableCards(_ context.Context, ownerID string) ([]card.Card, error) {
	return t.state.spendable(ownerID), nil
}

func (t *memoryTx) SumSpendableBalance(_ context.Context, ownerID string) (decimal.Decimal, error) {
	return t.state.spendableSum(ownerID), nil
}

func (t *memoryTx) GetContract(_ context.Context, id string) (contract.Contract, error) {
	return t.state.getContract(id)
}

func (t *memoryTx) ListConsumptionsByCard(_ context.Context, cardID string) ([]contract.Consumption, error) {
	return t.state.cardLines(cardID), nil
}

func (t *memoryTx) CreateCard(_ context.Context, c card.Card) error {
	if _, exists := t.state.cards[c.ID]; exists {
		return errors.New("card exists")
	}
	c.Version = 0
	t.state.cards[c.ID] = c
	return nil
}

func (t *memoryTx) UpdateCard(_ context.Context, c card.Card) error {
	stored, ok := t.state.cards[c.ID]
	if !ok {
		return card.ErrNotFound
	}
	if stored.Version != c.Version {
		return ErrVersionConflict
	}
	stored.OwnerID = c.OwnerID
	stored.Balance = c.Balance
	stored.Status = c.Status
	stored.BindTime = c.BindTime
	stored.UpdatedAt = c.UpdatedAt
	stored.Version++
	t.state.cards[c.ID] = stored
	return nil
}

func (t *memoryTx) CreateContract(_ context.Context, c contract.Contract) error {
	if _, exists := t.state.contracts[c.ID]; exists {
		return errors.New("contract exists")
	}
	c.Consumptions = nil
	t.state.contracts[c.ID] = c
	return nil
}

func (t *memoryTx) UpdateContract(_ context.Context, c contract.Contract) error {
	stored, ok := t.state.contracts[c.ID]
	if !ok {
		return contract.ErrNotFound
	}
	stored.RefundTime = c.RefundTime
	t.state.contracts[c.ID] = stored
	return nil
}

func (t *memoryTx) CreateConsumption(_ context.Context, line contract.Consumption) error {
	if _, exists := t.state.consumptions[line.ID]; exists {
		return errors.New("consumption exists")
	}
	if _, ok := t.state.cards[line.CardID]; !ok {
		return card.ErrNotFound
	}
	if _, ok := t.state.contracts[line.ContractID]; !ok {
		return contract.ErrNotFound
	}
	t.state.consumptions[line.ID] = line
	t.state.lineOrder = append(t.state.lineOrder, line.ID)
	return nil
}

func (t *memoryTx) UpdateConsumption(_ context.Context, line contract.Consumption) error {
	stored, ok := t.state.consumptions[line.ID]
	if !ok {
		return errors.New("consumption not found")
	}
	stored.RefundableAmount = line.RefundableAmount
	t.state.consumptions[line.ID] = stored
	return nil
}

func (s *memoryState) getCard(id string) (card.Card, error) {
	c, ok := s.cards[id]
	if !ok {
		return card.Card{}, card.ErrNotFound
	}
	return c, nil
}

func (s *memoryState) cardsByOwner(ownerID string) []card.Card {
	var out []card.Card
	for _, c := range s.cards {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memoryState) spendable(ownerID string) []card.Card {
	var out []card.Card
	for _, c := range s.cards {
		if c.OwnerID == ownerID && c.Spendable() {
			out = append(out, c)
		}
	}
	card.SortForSpend(out)
	return out
}

func (s *memoryState) spendableSum(ownerID string) decimal.Decimal {
	total := decimal.Zero
	for _, c := range s.spendable(ownerID) {
		total = total.Add(c.Available())
	}
	return total
}

func (s *memoryState) getContract(id string) (contract.Contract, error) {
	c, ok := s.contracts[id]
	if !ok {
		return contract.Contract{}, contract.ErrNotFound
	}
	c.Consumptions = nil
	for _, lineID := range s.lineOrder {
		if line := s.consumptions[lineID]; line.ContractID == id {
			c.Consumptions = append(c.Consumptions, line)
		}
	}
	return c, nil
}

func (s *memoryState) cardLines(cardID string) []contract.Consumption {
	var out []contract.Consumption
	for _, lineID := range s.lineOrder {
		if line := s.consumptions[lineID]; line.CardID == cardID {
			out = append(out, line)
		}
	}
	return out
}

func (s *memoryState) sweep(limit int, now time.Time, to card.Status, match func(card.Card) bool) int64 {
	ids := make([]string, 0, len(s.cards))
	for id, c := range s.cards {
		if c.Status == card.StatusValid && match(c) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	for _, id := range ids {
		c := s.cards[id]
		c.Status = to
		c.UpdatedAt = now
		c.Version++
		s.cards[id] = c
	}
	return int64(len(ids))
}
