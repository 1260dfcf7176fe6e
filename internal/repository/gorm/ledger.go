package gormrepository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"betledger/internal/models"
	"betledger/internal/repository"
)

// LedgerStore is the gorm implementation of repository.LedgerRepository
// against the ledger database.
type LedgerStore struct {
	db        *gorm.DB
	txTimeout time.Duration
}

func NewLedger(db *gorm.DB, txTimeout time.Duration) *LedgerStore {
	if txTimeout <= 0 {
		txTimeout = 10 * time.Second
	}
	return &LedgerStore{db: db, txTimeout: txTimeout}
}

// conn returns the transaction handle when one is in flight, otherwise the
// base connection.
func (s *LedgerStore) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

func (s *LedgerStore) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()
	return s.db.WithContext(ctx).Transaction(fn, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
}

// --- accounts ---------------------------------------------------------------

func (s *LedgerStore) CreateAccount(ctx context.Context, item *models.Account) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *LedgerStore) GetAccountByUserID(ctx context.Context, tx *gorm.DB, userID string) (*models.Account, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, nil
	}
	var item models.Account
	err := s.conn(tx).WithContext(ctx).Model(&models.Account{}).Where("user_id = ?", userID).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *LedgerStore) DeductWallet(ctx context.Context, tx *gorm.DB, userID, source string, amount decimal.Decimal) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	column := walletColumn(source)
	res := s.conn(tx).WithContext(ctx).Model(&models.Account{}).
		Where("user_id = ?", userID).
		Where(column+" >= ?", amount).
		Updates(map[string]any{
			column:              gorm.Expr(column+" - ?", amount),
			"available_credits": gorm.Expr("available_credits - ?", amount),
			"total_volume":      gorm.Expr("total_volume + ?", amount),
			"updated_at":        time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *LedgerStore) CreditWallet(ctx context.Context, tx *gorm.DB, userID, source string, amount decimal.Decimal) error {
	if s == nil || s.db == nil {
		return nil
	}
	column := walletColumn(source)
	return s.conn(tx).WithContext(ctx).Model(&models.Account{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			column:              gorm.Expr(column+" + ?", amount),
			"available_credits": gorm.Expr("available_credits + ?", amount),
			"updated_at":        time.Now().UTC(),
		}).Error
}

func (s *LedgerStore) ApplyAccountPnL(ctx context.Context, tx *gorm.DB, userID string, delta, winCandidate decimal.Decimal) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.conn(tx).WithContext(ctx).Model(&models.Account{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"overall_pnl": gorm.Expr("overall_pnl + ?", delta),
			"biggest_win": gorm.Expr("GREATEST(biggest_win, ?)", winCandidate),
			"updated_at":  time.Now().UTC(),
		}).Error
}

// --- bets -------------------------------------------------------------------

func (s *LedgerStore) CreateBet(ctx context.Context, tx *gorm.DB, item *models.Bet) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.conn(tx).WithContext(ctx).Create(item).Error
}

func (s *LedgerStore) GetBetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Bet, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	var item models.Bet
	err := s.conn(tx).WithContext(ctx).Model(&models.Bet{}).Where("id = ?", id).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *LedgerStore) GetBetByIdempotencyKey(ctx context.Context, tx *gorm.DB, userID, key string) (*models.Bet, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	key = strings.TrimSpace(key)
	if userID == "" || key == "" {
		return nil, nil
	}
	var item models.Bet
	err := s.conn(tx).WithContext(ctx).Model(&models.Bet{}).
		Where("user_id = ?", userID).
		Where("idempotency_key = ?", key).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *LedgerStore) ListBets(ctx context.Context, params repository.ListBetsParams) ([]models.Bet, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyBetFilters(s.db.WithContext(ctx).Model(&models.Bet{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Bet
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *LedgerStore) CountBets(ctx context.Context, params repository.ListBetsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var count int64
	if err := applyBetFilters(s.db.WithContext(ctx).Model(&models.Bet{}), params).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func applyBetFilters(query *gorm.DB, params repository.ListBetsParams) *gorm.DB {
	if params.UserID != nil && strings.TrimSpace(*params.UserID) != "" {
		query = query.Where("user_id = ?", strings.TrimSpace(*params.UserID))
	}
	if params.MarketID != nil && strings.TrimSpace(*params.MarketID) != "" {
		query = query.Where("market_id = ?", strings.TrimSpace(*params.MarketID))
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	return query
}

func (s *LedgerStore) SettleBet(ctx context.Context, tx *gorm.DB, betID, status string, actualPayout decimal.Decimal, settledAt time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	if settledAt.IsZero() {
		settledAt = time.Now().UTC()
	}
	res := s.conn(tx).WithContext(ctx).Model(&models.Bet{}).
		Where("id = ?", betID).
		Where("status = ?", models.BetStatusPending).
		Updates(map[string]any{
			"status":        status,
			"actual_payout": actualPayout,
			"settled_at":    &settledAt,
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *LedgerStore) ListPendingMarketIDs(ctx context.Context, limit int) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	limit = normalizeLimit(limit, 200)
	var ids []string
	err := s.db.WithContext(ctx).Model(&models.Bet{}).
		Where("status = ?", models.BetStatusPending).
		Group("market_id").
		Order("MIN(created_at) asc").
		Limit(limit).
		Pluck("market_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// --- credit transactions ----------------------------------------------------

func (s *LedgerStore) CreateCreditTransaction(ctx context.Context, tx *gorm.DB, item *models.CreditTransaction) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.conn(tx).WithContext(ctx).Create(item).Error
}

func (s *LedgerStore) ListCreditTransactions(ctx context.Context, params repository.ListCreditTransactionsParams) ([]models.CreditTransaction, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.CreditTransaction{})
	if params.UserID != nil && strings.TrimSpace(*params.UserID) != "" {
		query = query.Where("user_id = ?", strings.TrimSpace(*params.UserID))
	}
	if params.Type != nil && strings.TrimSpace(*params.Type) != "" {
		query = query.Where("transaction_type = ?", strings.TrimSpace(*params.Type))
	}
	if params.ReferenceID != nil && strings.TrimSpace(*params.ReferenceID) != "" {
		query = query.Where("reference_id = ?", strings.TrimSpace(*params.ReferenceID))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", *params.Since)
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.CreditTransaction
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *LedgerStore) SumCreditTransactions(ctx context.Context, userID string) (decimal.Decimal, error) {
	if s == nil || s.db == nil {
		return decimal.Zero, nil
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return decimal.Zero, nil
	}
	var out decimal.Decimal
	err := s.db.WithContext(ctx).
		Table("credit_transactions").
		Select("COALESCE(SUM(amount),0)").
		Where("user_id = ?", userID).
		Scan(&out).Error
	if err != nil {
		return decimal.Zero, err
	}
	return out, nil
}

// --- system settings --------------------------------------------------------

func (s *LedgerStore) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.Key) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"value",
			"description",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *LedgerStore) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	var item models.SystemSetting
	err := s.db.WithContext(ctx).Model(&models.SystemSetting{}).Where("key = ?", key).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

var _ repository.LedgerRepository = (*LedgerStore)(nil)
