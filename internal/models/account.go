package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	CreditSourceFree      = "free"
	CreditSourcePurchased = "purchased"
)

// Account holds a user's two credit wallets plus derived aggregates.
// Balances are mutated only through the ledger services; free_credits and
// purchased_credits never go below zero, and available_credits always
// equals their sum.
type Account struct {
	ID     string `gorm:"primaryKey;type:uuid"`
	UserID string `gorm:"type:uuid;not null;uniqueIndex"`

	FreeCredits      decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	PurchasedCredits decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	AvailableCredits decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`

	// Use explicit column names because default GORM naming turns "PnL" into "pn_l".
	OverallPnL  decimal.Decimal `gorm:"column:overall_pnl;type:numeric(30,10);not null;default:0"`
	TotalVolume decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	BiggestWin  decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Account) TableName() string {
	return "accounts"
}

// WalletBalance returns the balance of the given wallet.
func (a *Account) WalletBalance(source string) decimal.Decimal {
	if a == nil {
		return decimal.Zero
	}
	if source == CreditSourcePurchased {
		return a.PurchasedCredits
	}
	return a.FreeCredits
}
