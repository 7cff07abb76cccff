package allocation

import (
	"github.com/shopspring/decimal"

	"github.com/congo-pay/giftcard/internal/money"
)

// Split distributes amount over lines proportionally to each line's
// refundable balance. A single line takes the whole amount. Otherwise every
// share is rounded to cents on its own and capped at its line, so the shares
// may add up to slightly less or more than amount.
func Split(amount decimal.Decimal, refundable []decimal.Decimal) []decimal.Decimal {
	shares := make([]decimal.Decimal, len(refundable))
	if len(refundable) == 0 || !amount.IsPositive() {
		return shares
	}
	if len(refundable) == 1 {
		shares[0] = money.Min(amount, refundable[0])
		return shares
	}

	total := money.Sum(refundable...)
	if !total.IsPositive() {
		return shares
	}
	for i, r := range refundable {
		share := money.Normalize(amount.Mul(r).Div(total))
		shares[i] = money.Min(share, r)
	}
	return shares
}
