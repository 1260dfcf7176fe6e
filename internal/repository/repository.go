package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"betledger/internal/models"
)

// LedgerRepository owns every wallet, bet, and audit mutation. Methods that
// take a tx run inside a transaction opened by InTx; passing a nil tx runs
// them on the base connection.
type LedgerRepository interface {
	// InTx runs fn in one read-committed transaction bounded by the
	// configured timeout. fn's error rolls the transaction back.
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	CreateAccount(ctx context.Context, item *models.Account) error
	GetAccountByUserID(ctx context.Context, tx *gorm.DB, userID string) (*models.Account, error)

	// DeductWallet decrements the given wallet, available_credits, and
	// total_volume in a single conditional update whose predicate requires
	// the wallet to cover amount. Returns false when no row qualified.
	DeductWallet(ctx context.Context, tx *gorm.DB, userID, source string, amount decimal.Decimal) (bool, error)

	// CreditWallet increments the given wallet and available_credits.
	CreditWallet(ctx context.Context, tx *gorm.DB, userID, source string, amount decimal.Decimal) error

	// ApplyAccountPnL adds delta to overall_pnl and raises biggest_win to
	// winCandidate when that is a new high.
	ApplyAccountPnL(ctx context.Context, tx *gorm.DB, userID string, delta, winCandidate decimal.Decimal) error

	CreateBet(ctx context.Context, tx *gorm.DB, item *models.Bet) error
	GetBetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Bet, error)
	GetBetByIdempotencyKey(ctx context.Context, tx *gorm.DB, userID, key string) (*models.Bet, error)
	ListBets(ctx context.Context, params ListBetsParams) ([]models.Bet, error)
	CountBets(ctx context.Context, params ListBetsParams) (int64, error)

	// SettleBet performs the terminal pending -> status transition. The
	// update is conditional on the row still being pending; false means
	// another path settled the bet first.
	SettleBet(ctx context.Context, tx *gorm.DB, betID, status string, actualPayout decimal.Decimal, settledAt time.Time) (bool, error)

	// ListPendingMarketIDs returns the distinct market ids that still have
	// pending bets, oldest first.
	ListPendingMarketIDs(ctx context.Context, limit int) ([]string, error)

	CreateCreditTransaction(ctx context.Context, tx *gorm.DB, item *models.CreditTransaction) error
	ListCreditTransactions(ctx context.Context, params ListCreditTransactionsParams) ([]models.CreditTransaction, error)

	// SumCreditTransactions returns the signed sum of a user's audit rows,
	// which must always equal the account's available balance.
	SumCreditTransactions(ctx context.Context, userID string) (decimal.Decimal, error)

	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error
	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
}

// MarketRepository reads market state and writes the few fields the bet
// lifecycle owns: resolution stamping and aggregate volume counters. It
// never touches the ledger store.
type MarketRepository interface {
	GetMarketByID(ctx context.Context, id string) (*models.Market, error)
	UpsertMarket(ctx context.Context, item *models.Market) error
	ListMarkets(ctx context.Context, params ListMarketsParams) ([]models.Market, error)

	// MarkResolved stamps status/resolution once. The update is conditional
	// on the market not already being resolved; false means it was.
	MarkResolved(ctx context.Context, id, resolution string, resolvedAt time.Time) (bool, error)

	// AddMarketVolume bumps the aggregate counters after a placement.
	// Best-effort from the caller's perspective.
	AddMarketVolume(ctx context.Context, id, side string, amount decimal.Decimal) error
}

type ListBetsParams struct {
	Limit    int
	Offset   int
	UserID   *string
	MarketID *string
	Status   *string
	OrderBy  string
	Asc      *bool
}

type ListCreditTransactionsParams struct {
	Limit       int
	Offset      int
	UserID      *string
	Type        *string
	ReferenceID *string
	Since       *time.Time
	OrderBy     string
	Asc         *bool
}

type ListMarketsParams struct {
	Limit        int
	Offset       int
	Status       *string
	ExpiresUntil *time.Time
	OrderBy      string
	Asc          *bool
}
