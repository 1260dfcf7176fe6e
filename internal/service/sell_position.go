package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"betledger/internal/models"
	"betledger/internal/notify"
	"betledger/internal/oracle"
	"betledger/internal/repository"
)

// PositionExitService closes a pending bet early at the oracle's current
// price. Proceeds always return to the wallet that funded the bet.
type PositionExitService struct {
	Ledger   repository.LedgerRepository
	Markets  repository.MarketRepository
	Oracle   oracle.PriceSource
	Notifier notify.LeaderboardNotifier
	Flags    *SystemSettingsService
	Logger   *zap.Logger
}

type SellPositionResult struct {
	Bet             *models.Bet
	CreditsReceived decimal.Decimal
	Profit          decimal.Decimal
}

func (s *PositionExitService) SellPosition(ctx context.Context, userID, betID string) (*SellPositionResult, error) {
	if s == nil || s.Ledger == nil || s.Markets == nil || s.Oracle == nil {
		return nil, errors.New("position exit service not configured")
	}
	userID = strings.TrimSpace(userID)
	betID = strings.TrimSpace(betID)
	now := time.Now().UTC()

	bet, err := s.Ledger.GetBetByID(ctx, nil, betID)
	if err != nil {
		return nil, fmt.Errorf("load bet %s: %w", betID, err)
	}
	if bet == nil {
		return nil, ErrBetNotFound
	}
	if bet.UserID != userID {
		return nil, ErrBetNotOwned
	}
	if bet.Status != models.BetStatusPending {
		return nil, ErrBetNotPending
	}

	market, err := s.Markets.GetMarketByID(ctx, bet.MarketID)
	if err != nil {
		return nil, fmt.Errorf("load market %s: %w", bet.MarketID, err)
	}
	if market == nil {
		return nil, ErrMarketNotFound
	}
	if market.Status != models.MarketStatusOpen {
		return nil, ErrMarketNotOpen
	}
	if market.Expired(now) {
		return nil, ErrMarketExpired
	}

	// Price outside the transaction to keep lock time short.
	price, err := s.Oracle.GetPrice(ctx, market.TokenFor(bet.Side))
	if err != nil {
		return nil, fmt.Errorf("price market %s side %s: %w", bet.MarketID, bet.Side, err)
	}
	if !priceInRange(price) {
		return nil, ErrInvalidPrice
	}
	creditsReceived := bet.SharesReceived.Mul(price)
	profit := creditsReceived.Sub(bet.Amount)

	var updated *models.Bet
	err = runWithRetry(ctx, s.Logger, "sell_position", func() error {
		updated = nil
		return s.Ledger.InTx(ctx, func(tx *gorm.DB) error {
			// The conditional transition re-validates pending state. A
			// settlement sweep that got there first makes this a conflict,
			// never a double payout.
			ok, err := s.Ledger.SettleBet(ctx, tx, bet.ID, models.BetStatusCancelled, creditsReceived, now)
			if err != nil {
				return err
			}
			if !ok {
				return ErrBetNotPending
			}
			if err := s.Ledger.CreditWallet(ctx, tx, userID, bet.CreditSource, creditsReceived); err != nil {
				return err
			}
			if err := s.Ledger.ApplyAccountPnL(ctx, tx, userID, profit, profit); err != nil {
				return err
			}
			account, err := s.Ledger.GetAccountByUserID(ctx, tx, userID)
			if err != nil {
				return err
			}
			if account == nil {
				return ErrAccountNotFound
			}
			if err := s.Ledger.CreateCreditTransaction(ctx, tx, &models.CreditTransaction{
				UserID:          userID,
				Amount:          creditsReceived,
				TransactionType: models.TxTypePositionSold,
				CreditSource:    bet.CreditSource,
				ReferenceID:     bet.ID,
				BalanceAfter:    account.AvailableCredits,
				CreatedAt:       now,
			}); err != nil {
				return err
			}
			sold := *bet
			sold.Status = models.BetStatusCancelled
			sold.ActualPayout = creditsReceived
			sold.SettledAt = &now
			sold.UpdatedAt = now
			updated = &sold
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	notifyLeaderboard(ctx, s.Ledger, s.Notifier, s.Flags, s.Logger, userID)

	return &SellPositionResult{Bet: updated, CreditsReceived: creditsReceived, Profit: profit}, nil
}
