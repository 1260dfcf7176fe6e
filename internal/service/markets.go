package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"betledger/internal/models"
	"betledger/internal/repository"
)

// MarketAdminService maintains the market catalog. Markets arrive from
// an upstream feed already carrying their oracle token ids; this service
// only validates and stores them.
type MarketAdminService struct {
	Markets repository.MarketRepository
}

func (s *MarketAdminService) UpsertMarket(ctx context.Context, market *models.Market) error {
	if s == nil || s.Markets == nil {
		return errors.New("market admin service not configured")
	}
	if market == nil {
		return errors.New("market is nil")
	}
	market.ID = strings.TrimSpace(market.ID)
	if market.ID == "" {
		return errors.New("market id is empty")
	}
	if strings.TrimSpace(market.ThisTokenID) == "" || strings.TrimSpace(market.ThatTokenID) == "" {
		return fmt.Errorf("market %s is missing oracle token ids", market.ID)
	}
	if market.ExpiresAt.IsZero() {
		return fmt.Errorf("market %s has no expiry", market.ID)
	}
	if market.Status == "" {
		market.Status = models.MarketStatusOpen
	}
	now := time.Now().UTC()
	if market.CreatedAt.IsZero() {
		market.CreatedAt = now
	}
	market.UpdatedAt = now
	return s.Markets.UpsertMarket(ctx, market)
}

func (s *MarketAdminService) GetMarket(ctx context.Context, marketID string) (*models.Market, error) {
	if s == nil || s.Markets == nil {
		return nil, errors.New("market admin service not configured")
	}
	market, err := s.Markets.GetMarketByID(ctx, strings.TrimSpace(marketID))
	if err != nil {
		return nil, err
	}
	if market == nil {
		return nil, ErrMarketNotFound
	}
	return market, nil
}

func (s *MarketAdminService) ListMarkets(ctx context.Context, params repository.ListMarketsParams) ([]models.Market, error) {
	if s == nil || s.Markets == nil {
		return nil, nil
	}
	return s.Markets.ListMarkets(ctx, params)
}
