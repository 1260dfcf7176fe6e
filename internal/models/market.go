package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	MarketStatusOpen     = "open"
	MarketStatusClosed   = "closed"
	MarketStatusResolved = "resolved"

	ResolutionThis    = "this"
	ResolutionThat    = "that"
	ResolutionInvalid = "invalid"
)

// Market lives in the market store, which shares no transaction or foreign
// key with the ledger store. The bet lifecycle only reads status/expiry/
// resolution and bumps the aggregate volume counters; everything else about
// a market is owned by ingestion.
type Market struct {
	ID       string `gorm:"primaryKey;type:varchar(100)"`
	Question string `gorm:"type:text;not null"`

	// Oracle token ids, one per side of the binary question.
	ThisTokenID string `gorm:"type:varchar(100);not null"`
	ThatTokenID string `gorm:"type:varchar(100);not null"`

	Status     string `gorm:"type:varchar(20);not null;default:'open';index"`
	Resolution string `gorm:"type:varchar(10);not null;default:''"`

	ExpiresAt  time.Time  `gorm:"type:timestamptz;not null;index"`
	ResolvedAt *time.Time `gorm:"type:timestamptz"`

	TotalVolume decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	ThisVolume  decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	ThatVolume  decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	BetCount    int64           `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime;index"`
}

func (Market) TableName() string {
	return "markets"
}

// TokenFor returns the oracle token id for the given bet side.
func (m *Market) TokenFor(side string) string {
	if m == nil {
		return ""
	}
	if side == BetSideThat {
		return m.ThatTokenID
	}
	return m.ThisTokenID
}

// Expired reports whether the market's expiry has passed at the given time.
func (m *Market) Expired(now time.Time) bool {
	return m != nil && !m.ExpiresAt.IsZero() && !m.ExpiresAt.After(now)
}
