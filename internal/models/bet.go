package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	BetSideThis = "this"
	BetSideThat = "that"

	BetStatusPending   = "pending"
	BetStatusWon       = "won"
	BetStatusLost      = "lost"
	BetStatusCancelled = "cancelled"
)

// Bet is the central ledger entity. A bet stores the wallet that funded it
// (credit_source, write-once) so every later payout or refund returns to the
// same wallet. Status makes exactly one terminal transition out of pending;
// rows are never deleted.
type Bet struct {
	ID       string `gorm:"primaryKey;type:uuid"`
	UserID   string `gorm:"type:uuid;not null;index;uniqueIndex:uq_bets_user_idem"`
	MarketID string `gorm:"type:varchar(100);not null;index"`

	Side         string          `gorm:"type:varchar(10);not null"`
	Amount       decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	CreditSource string          `gorm:"type:varchar(10);not null"`

	SharesReceived  decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	PriceAtBet      decimal.Decimal `gorm:"type:numeric(20,10);not null"`
	PotentialPayout decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	Status       string          `gorm:"type:varchar(20);not null;default:'pending';index"`
	ActualPayout decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	SettledAt    *time.Time      `gorm:"type:timestamptz"`

	// Unique per user; NULL for bets placed without a key.
	IdempotencyKey *string `gorm:"type:varchar(100);uniqueIndex:uq_bets_user_idem"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Bet) TableName() string {
	return "bets"
}

// Settled reports whether the bet has left pending.
func (b *Bet) Settled() bool {
	return b != nil && b.Status != BetStatusPending
}
