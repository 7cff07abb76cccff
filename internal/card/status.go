package card

import "time"

// Evaluate derives the lifecycle status from balance and expiry.
// A nil expire time never expires; an unset balance counts as zero.
func Evaluate(c Card, now time.Time) Status {
	if c.ExpireTime != nil && now.After(*c.ExpireTime) {
		return StatusExpired
	}
	if c.Available().IsPositive() {
		return StatusValid
	}
	return StatusEmpty
}

// Refresh recomputes the status and writes it back onto the card.
// It must run after every balance change.
func (c *Card) Refresh(now time.Time) Status {
	c.Status = Evaluate(*c, now)
	return c.Status
}
