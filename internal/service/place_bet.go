package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"betledger/internal/config"
	"betledger/internal/models"
	"betledger/internal/notify"
	"betledger/internal/oracle"
	"betledger/internal/repository"
	"betledger/internal/wallet"
)

// BetPlacementService prices and records new bets. All balance movements
// happen inside a single ledger transaction so a bet row never exists
// without its matching deduction and audit entry.
type BetPlacementService struct {
	Ledger   repository.LedgerRepository
	Markets  repository.MarketRepository
	Oracle   oracle.PriceSource
	Notifier notify.LeaderboardNotifier
	Flags    *SystemSettingsService
	Logger   *zap.Logger
	Config   config.BettingConfig
}

type PlaceBetParams struct {
	UserID   string
	MarketID string
	Side     string
	Amount   decimal.Decimal
	// IdempotencyKey is optional. When set, repeating the same request
	// returns the originally recorded bet instead of charging again.
	IdempotencyKey string
}

type PlaceBetResult struct {
	Bet *models.Bet
	// NewBalance is the funding wallet's balance after the deduction.
	NewBalance decimal.Decimal
	// Replayed is true when the idempotency key matched an earlier
	// placement and no new charge was made.
	Replayed bool
}

func (s *BetPlacementService) PlaceBet(ctx context.Context, params PlaceBetParams) (*PlaceBetResult, error) {
	if s == nil || s.Ledger == nil || s.Markets == nil || s.Oracle == nil {
		return nil, errors.New("bet placement service not configured")
	}
	userID := strings.TrimSpace(params.UserID)
	marketID := strings.TrimSpace(params.MarketID)
	side := strings.TrimSpace(params.Side)
	idemKey := strings.TrimSpace(params.IdempotencyKey)
	if !validSide(side) {
		return nil, ErrInvalidSide
	}
	now := time.Now().UTC()

	market, err := s.Markets.GetMarketByID(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("load market %s: %w", marketID, err)
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

	minBet := decimal.NewFromInt(s.Config.MinBet)
	if s.Config.MinBet <= 0 {
		minBet = decimal.NewFromInt(10)
	}
	maxBet := decimal.NewFromInt(s.Config.MaxBet)
	if s.Config.MaxBet <= 0 {
		maxBet = decimal.NewFromInt(10000)
	}
	if params.Amount.LessThan(minBet) || params.Amount.GreaterThan(maxBet) {
		return nil, &InvalidAmountError{Amount: params.Amount, Min: minBet, Max: maxBet}
	}

	// Price before touching the ledger. An unreachable oracle aborts the
	// placement with no wallet movement.
	price, err := s.Oracle.GetPrice(ctx, market.TokenFor(side))
	if err != nil {
		return nil, fmt.Errorf("price market %s side %s: %w", marketID, side, err)
	}
	if !priceInRange(price) {
		return nil, ErrInvalidPrice
	}
	shares := params.Amount.Div(price)

	// Fast path: a repeated idempotency key short-circuits before any
	// transaction is opened.
	if idemKey != "" {
		existing, err := s.Ledger.GetBetByIdempotencyKey(ctx, nil, userID, idemKey)
		if err != nil {
			return nil, fmt.Errorf("idempotency lookup: %w", err)
		}
		if existing != nil {
			return s.replayResult(ctx, existing)
		}
	}

	var (
		placed   *models.Bet
		replayed *models.Bet
		balance  decimal.Decimal
	)
	err = runWithRetry(ctx, s.Logger, "place_bet", func() error {
		placed, replayed = nil, nil
		return s.Ledger.InTx(ctx, func(tx *gorm.DB) error {
			// Re-check the key inside the transaction. A concurrent
			// duplicate that committed first is returned as a replay.
			if idemKey != "" {
				existing, err := s.Ledger.GetBetByIdempotencyKey(ctx, tx, userID, idemKey)
				if err != nil {
					return err
				}
				if existing != nil {
					replayed = existing
					return nil
				}
			}

			account, err := s.Ledger.GetAccountByUserID(ctx, tx, userID)
			if err != nil {
				return err
			}
			if account == nil {
				return ErrAccountNotFound
			}
			source, err := wallet.Select(account, market, params.Amount, now)
			if err != nil {
				return err
			}

			ok, err := s.Ledger.DeductWallet(ctx, tx, userID, source, params.Amount)
			if err != nil {
				return err
			}
			if !ok {
				// The conditional update lost a race. Re-read so the
				// error reports the balance that actually remains.
				fresh, err := s.Ledger.GetAccountByUserID(ctx, tx, userID)
				if err != nil {
					return err
				}
				available := decimal.Zero
				if fresh != nil {
					available = fresh.WalletBalance(source)
				}
				return &wallet.InsufficientCreditsError{
					Source:    source,
					Required:  params.Amount,
					Available: available,
				}
			}
			updated, err := s.Ledger.GetAccountByUserID(ctx, tx, userID)
			if err != nil {
				return err
			}
			if updated == nil {
				return ErrAccountNotFound
			}

			bet := &models.Bet{
				ID:              uuid.NewString(),
				UserID:          userID,
				MarketID:        marketID,
				Side:            side,
				Amount:          params.Amount,
				CreditSource:    source,
				SharesReceived:  shares,
				PriceAtBet:      price,
				PotentialPayout: shares,
				Status:          models.BetStatusPending,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if idemKey != "" {
				bet.IdempotencyKey = &idemKey
			}
			if err := s.Ledger.CreateBet(ctx, tx, bet); err != nil {
				return err
			}
			if err := s.Ledger.CreateCreditTransaction(ctx, tx, &models.CreditTransaction{
				UserID:          userID,
				Amount:          params.Amount.Neg(),
				TransactionType: models.TxTypeBetPlaced,
				CreditSource:    source,
				ReferenceID:     bet.ID,
				BalanceAfter:    updated.AvailableCredits,
				CreatedAt:       now,
			}); err != nil {
				return err
			}
			placed = bet
			balance = updated.WalletBalance(source)
			return nil
		})
	})
	if err != nil {
		// Two racing requests with the same key: the loser hits the
		// unique index, then reads back the winner's bet.
		if idemKey != "" && isUniqueViolation(err) {
			existing, lookupErr := s.Ledger.GetBetByIdempotencyKey(ctx, nil, userID, idemKey)
			if lookupErr == nil && existing != nil {
				return s.replayResult(ctx, existing)
			}
		}
		return nil, err
	}
	if replayed != nil {
		return s.replayResult(ctx, replayed)
	}

	// Market stats and leaderboard updates are best-effort. The bet is
	// already committed; failures here are logged, never surfaced.
	if err := s.Markets.AddMarketVolume(ctx, marketID, side, params.Amount); err != nil {
		s.logWarn("market volume update failed", err, zap.String("market_id", marketID))
	}
	notifyLeaderboard(ctx, s.Ledger, s.Notifier, s.Flags, s.Logger, userID)

	return &PlaceBetResult{Bet: placed, NewBalance: balance}, nil
}

func (s *BetPlacementService) replayResult(ctx context.Context, bet *models.Bet) (*PlaceBetResult, error) {
	balance := decimal.Zero
	account, err := s.Ledger.GetAccountByUserID(ctx, nil, bet.UserID)
	if err != nil {
		return nil, fmt.Errorf("load account for replay: %w", err)
	}
	if account != nil {
		balance = account.WalletBalance(bet.CreditSource)
	}
	return &PlaceBetResult{Bet: bet, NewBalance: balance, Replayed: true}, nil
}

func (s *BetPlacementService) logWarn(msg string, err error, fields ...zap.Field) {
	if s == nil || s.Logger == nil {
		return
	}
	s.Logger.Warn(msg, append(fields, zap.Error(err))...)
}

// notifyLeaderboard pushes the user's fresh PnL and volume to the
// leaderboard. Shared by placement, exits and settlement; always
// best-effort.
func notifyLeaderboard(ctx context.Context, ledger repository.LedgerRepository, notifier notify.LeaderboardNotifier, flags *SystemSettingsService, logger *zap.Logger, userID string) {
	if notifier == nil || ledger == nil {
		return
	}
	if flags != nil && !flags.IsEnabled(ctx, FeatureLeaderboardNotify, true) {
		return
	}
	account, err := ledger.GetAccountByUserID(ctx, nil, userID)
	if err != nil || account == nil {
		if err != nil && logger != nil {
			logger.Warn("leaderboard account lookup failed", zap.String("user_id", userID), zap.Error(err))
		}
		return
	}
	if err := notifier.Notify(ctx, userID, account.OverallPnL, account.TotalVolume); err != nil && logger != nil {
		logger.Warn("leaderboard notify failed", zap.String("user_id", userID), zap.Error(err))
	}
}
