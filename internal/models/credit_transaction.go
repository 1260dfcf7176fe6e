package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TxTypeBetPlaced    = "bet_placed"
	TxTypeBetWon       = "bet_won"
	TxTypeBetRefunded  = "bet_refunded"
	TxTypePositionSold = "position_sold"
	TxTypeCreditGrant  = "credit_grant"
)

// CreditTransaction is the append-only audit row written for every balance
// change. Amount is signed (negative for deductions); BalanceAfter is the
// account's combined available balance after the change, so the running sum
// of a user's rows always reproduces the current balance.
type CreditTransaction struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	UserID string `gorm:"type:uuid;not null;index"`

	Amount          decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	TransactionType string          `gorm:"type:varchar(30);not null;index"`
	CreditSource    string          `gorm:"type:varchar(10);not null"`

	// ReferenceID points at the bet that caused the change, empty for
	// administrative grants. No foreign key is declared; audit rows outlive
	// any schema reshuffling.
	ReferenceID string `gorm:"type:varchar(64);index"`

	BalanceAfter decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (CreditTransaction) TableName() string {
	return "credit_transactions"
}
