package gormrepository

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"betledger/internal/models"
	"betledger/internal/repository"
)

// MarketStore is the gorm implementation of repository.MarketRepository
// against the market database. It holds its own connection because the two
// stores share no transaction.
type MarketStore struct {
	db *gorm.DB
}

func NewMarket(db *gorm.DB) *MarketStore {
	return &MarketStore{db: db}
}

func (s *MarketStore) GetMarketByID(ctx context.Context, id string) (*models.Market, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	var item models.Market
	err := s.db.WithContext(ctx).Model(&models.Market{}).Where("id = ?", id).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *MarketStore) UpsertMarket(ctx context.Context, item *models.Market) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.ID) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"question",
			"this_token_id",
			"that_token_id",
			"status",
			"expires_at",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *MarketStore) ListMarkets(ctx context.Context, params repository.ListMarketsParams) ([]models.Market, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Market{})
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.ExpiresUntil != nil && !params.ExpiresUntil.IsZero() {
		query = query.Where("expires_at <= ?", *params.ExpiresUntil)
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "expires_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Market
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *MarketStore) MarkResolved(ctx context.Context, id, resolution string, resolvedAt time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	if resolvedAt.IsZero() {
		resolvedAt = time.Now().UTC()
	}
	res := s.db.WithContext(ctx).Model(&models.Market{}).
		Where("id = ?", id).
		Where("status <> ?", models.MarketStatusResolved).
		Updates(map[string]any{
			"status":      models.MarketStatusResolved,
			"resolution":  resolution,
			"resolved_at": &resolvedAt,
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *MarketStore) AddMarketVolume(ctx context.Context, id, side string, amount decimal.Decimal) error {
	if s == nil || s.db == nil {
		return nil
	}
	updates := map[string]any{
		"total_volume": gorm.Expr("total_volume + ?", amount),
		"bet_count":    gorm.Expr("bet_count + 1"),
		"updated_at":   time.Now().UTC(),
	}
	if side == models.BetSideThat {
		updates["that_volume"] = gorm.Expr("that_volume + ?", amount)
	} else {
		updates["this_volume"] = gorm.Expr("this_volume + ?", amount)
	}
	return s.db.WithContext(ctx).Model(&models.Market{}).Where("id = ?", id).Updates(updates).Error
}

var _ repository.MarketRepository = (*MarketStore)(nil)
