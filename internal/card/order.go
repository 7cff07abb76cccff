package card

import (
	"sort"
	"strings"
)

// SpendsBefore is the FIFO rule for draining cards: soonest expiry first,
// cards without expiry last, ties broken by id. Card ids are UUIDv7 so
// ascending id matches issuance order.
func SpendsBefore(a, b Card) bool {
	switch {
	case a.ExpireTime == nil && b.ExpireTime != nil:
		return false
	case a.ExpireTime != nil && b.ExpireTime == nil:
		return true
	case a.ExpireTime != nil && b.ExpireTime != nil && !a.ExpireTime.Equal(*b.ExpireTime):
		return a.ExpireTime.Before(*b.ExpireTime)
	}
	return strings.Compare(a.ID, b.ID) < 0
}

// SortForSpend orders cards in place by SpendsBefore.
func SortForSpend(cards []Card) {
	sort.SliceStable(cards, func(i, j int) bool {
		return SpendsBefore(cards[i], cards[j])
	})
}
