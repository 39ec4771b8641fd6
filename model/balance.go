package model

import (
	"time"
)

// UserBalance is the points portion of a user record. Points and TotalPoints
// are historical mirrors of the same balance; ApplyCredit heals any drift
// between them by taking the higher of the two before crediting.
type UserBalance struct {
	ID            int64                  `json:"-"`
	UserID        string                 `json:"user_id"`
	Points        int64                  `json:"points"`
	TotalPoints   int64                  `json:"total_points"`
	TotalEarnings int64                  `json:"total_earnings"`
	CreatedAt     time.Time              `json:"created_at"`
	MetaData      map[string]interface{} `json:"meta_data,omitempty"`
}

// ApplyCredit adds payout on top of the higher of the two balance mirrors and
// keeps both mirrors in sync. TotalEarnings only ever grows.
func (b *UserBalance) ApplyCredit(payout int64) {
	base := b.Points
	if b.TotalPoints > base {
		base = b.TotalPoints
	}
	newBalance := base + payout
	b.Points = newBalance
	b.TotalPoints = newBalance
	b.TotalEarnings += payout
}

// ApplyReversal debits the originally credited payout, clamped so the balance
// never goes negative. Over-reversal is absorbed, not propagated. Returns the
// amount actually debited.
func (b *UserBalance) ApplyReversal(storedPayout int64) int64 {
	debited := storedPayout
	newBalance := b.Points - storedPayout
	if newBalance < 0 {
		debited = b.Points
		newBalance = 0
	}
	b.Points = newBalance
	b.TotalPoints = newBalance
	return debited
}
