package contract

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when no contract matches the requested identifier.
var ErrNotFound = errors.New("contract not found")

// RefundMarker is appended to the title of refund log lines.
const RefundMarker = " [refund]"

// Consumption is an audit line against one card. A spend line carries a
// negative Amount and a RefundableAmount that shrinks as refunds consume it.
// A refund log carries a positive Amount and is never refundable.
type Consumption struct {
	ID               string
	CardID           string
	ContractID       string
	Title            string
	OrderID          string
	Amount           decimal.Decimal
	RefundableAmount decimal.Decimal
	CreatedAt        time.Time
	CreatedBy        string
	CreatedIP        string
}

// IsRefundLog reports whether the line records a refund rather than a spend.
func (c Consumption) IsRefundLog() bool {
	return c.Amount.IsPositive()
}

// Refundable reports whether part of the spend can still be returned.
func (c Consumption) Refundable() bool {
	return c.RefundableAmount.IsPositive()
}

// Contract groups the consumptions of one order.
type Contract struct {
	ID           string
	Code         string
	OwnerID      string
	CostAmount   decimal.Decimal
	RefundTime   *time.Time // last refund attempt, restamped on every ReturnBack
	CreatedAt    time.Time
	Consumptions []Consumption
}

// RefundableAmount sums what is still refundable across the contract.
func (c Contract) RefundableAmount() decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.Consumptions {
		total = total.Add(line.RefundableAmount)
	}
	return total
}

// Refunded reports whether a refund has been attempted on the contract.
func (c Contract) Refunded() bool {
	return c.RefundTime != nil
}

// Refundable returns the spend lines that still hold a refundable amount.
func (c Contract) Refundable() []Consumption {
	var out []Consumption
	for _, line := range c.Consumptions {
		if line.Refundable() {
			out = append(out, line)
		}
	}
	return out
}
