package ledger

import "github.com/congo-pay/giftcard/internal/card"

// SeedCard is a test helper that stores a card as-is when using the in-memory store.
func SeedCard(s Store, c card.Card) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.state.cards[c.ID] = c
	}
}
