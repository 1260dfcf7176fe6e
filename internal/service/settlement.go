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

	"betledger/internal/config"
	"betledger/internal/models"
	"betledger/internal/notify"
	"betledger/internal/repository"
)

// SettlementService pays out, fails or refunds every pending bet on a
// resolved market. The market is stamped resolved in the market store
// first, then each bet settles in its own ledger transaction. The two
// stores share no transaction, so a market marked resolved with bets
// still pending is a normal intermediate state; the background sweep
// finishes it.
type SettlementService struct {
	Ledger   repository.LedgerRepository
	Markets  repository.MarketRepository
	Notifier notify.LeaderboardNotifier
	Flags    *SystemSettingsService
	Logger   *zap.Logger
	Config   config.SettlementConfig
}

// SettlementResult counts bets transitioned in one run. Resolved is the
// total moved out of pending; bets another operation settled first are
// skipped and not counted.
type SettlementResult struct {
	Resolved  int
	Won       int
	Lost      int
	Cancelled int
	Errors    int
}

func (s *SettlementService) ResolveMarket(ctx context.Context, marketID, resolution string) (*SettlementResult, error) {
	if s == nil || s.Ledger == nil || s.Markets == nil {
		return nil, errors.New("settlement service not configured")
	}
	marketID = strings.TrimSpace(marketID)
	resolution = strings.TrimSpace(resolution)
	if !validResolution(resolution) {
		return nil, ErrInvalidResolution
	}
	now := time.Now().UTC()

	market, err := s.Markets.GetMarketByID(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("load market %s: %w", marketID, err)
	}
	if market == nil {
		return nil, ErrMarketNotFound
	}

	stamped, err := s.Markets.MarkResolved(ctx, marketID, resolution, now)
	if err != nil {
		return nil, fmt.Errorf("mark market %s resolved: %w", marketID, err)
	}
	if !stamped {
		// Already resolved. Re-running the same outcome is how a crashed
		// run finishes its bets; a different outcome is a conflict.
		fresh, err := s.Markets.GetMarketByID(ctx, marketID)
		if err != nil {
			return nil, fmt.Errorf("reload market %s: %w", marketID, err)
		}
		if fresh == nil || fresh.Resolution != resolution {
			return nil, ErrMarketAlreadyResolved
		}
	}

	pending, err := s.collectPendingBets(ctx, marketID)
	if err != nil {
		return nil, err
	}

	result := &SettlementResult{}
	affected := map[string]struct{}{}
	for i := range pending {
		bet := &pending[i]
		status, err := s.settleOne(ctx, bet, resolution, now)
		if err != nil {
			result.Errors++
			s.logWarn("bet settlement failed", err,
				zap.String("market_id", marketID),
				zap.String("bet_id", bet.ID))
			continue
		}
		switch status {
		case models.BetStatusWon:
			result.Won++
			affected[bet.UserID] = struct{}{}
		case models.BetStatusLost:
			result.Lost++
			affected[bet.UserID] = struct{}{}
		case models.BetStatusCancelled:
			result.Cancelled++
		}
	}
	result.Resolved = result.Won + result.Lost + result.Cancelled

	for userID := range affected {
		notifyLeaderboard(ctx, s.Ledger, s.Notifier, s.Flags, s.Logger, userID)
	}

	if s.Logger != nil {
		s.Logger.Info("market settled",
			zap.String("market_id", marketID),
			zap.String("resolution", resolution),
			zap.Int("resolved", result.Resolved),
			zap.Int("won", result.Won),
			zap.Int("lost", result.Lost),
			zap.Int("cancelled", result.Cancelled),
			zap.Int("errors", result.Errors))
	}
	return result, nil
}

// collectPendingBets pages through the market's pending bets before any
// of them is touched, so the paging predicate stays stable.
func (s *SettlementService) collectPendingBets(ctx context.Context, marketID string) ([]models.Bet, error) {
	batch := 200
	pendingStatus := models.BetStatusPending
	var out []models.Bet
	offset := 0
	for {
		page, err := s.Ledger.ListBets(ctx, repository.ListBetsParams{
			Limit:    batch,
			Offset:   offset,
			MarketID: strPtr(marketID),
			Status:   &pendingStatus,
			OrderBy:  "created_at",
			Asc:      boolPtr(true),
		})
		if err != nil {
			return nil, fmt.Errorf("list pending bets for market %s: %w", marketID, err)
		}
		out = append(out, page...)
		if len(page) < batch {
			return out, nil
		}
		offset += batch
	}
}

// settleOne applies the terminal transition for a single bet in its own
// transaction. Returns the status the bet moved to, or "" if another
// operation settled it first. Not retried; the sweep revisits survivors.
func (s *SettlementService) settleOne(ctx context.Context, bet *models.Bet, resolution string, now time.Time) (string, error) {
	var (
		status       string
		payout       decimal.Decimal
		pnlDelta     decimal.Decimal
		winCandidate decimal.Decimal
		txType       string
	)
	switch {
	case resolution == models.ResolutionInvalid:
		status = models.BetStatusCancelled
		payout = bet.Amount
		txType = models.TxTypeBetRefunded
	case bet.Side == resolution:
		status = models.BetStatusWon
		payout = bet.SharesReceived
		pnlDelta = bet.SharesReceived.Sub(bet.Amount)
		winCandidate = pnlDelta
		txType = models.TxTypeBetWon
	default:
		status = models.BetStatusLost
		pnlDelta = bet.Amount.Neg()
	}

	settled := false
	err := s.Ledger.InTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.Ledger.SettleBet(ctx, tx, bet.ID, status, payout, now)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		settled = true
		if payout.GreaterThan(decimal.Zero) {
			if err := s.Ledger.CreditWallet(ctx, tx, bet.UserID, bet.CreditSource, payout); err != nil {
				return err
			}
		}
		if !pnlDelta.IsZero() {
			if err := s.Ledger.ApplyAccountPnL(ctx, tx, bet.UserID, pnlDelta, winCandidate); err != nil {
				return err
			}
		}
		if txType != "" {
			account, err := s.Ledger.GetAccountByUserID(ctx, tx, bet.UserID)
			if err != nil {
				return err
			}
			if account == nil {
				return ErrAccountNotFound
			}
			if err := s.Ledger.CreateCreditTransaction(ctx, tx, &models.CreditTransaction{
				UserID:          bet.UserID,
				Amount:          payout,
				TransactionType: txType,
				CreditSource:    bet.CreditSource,
				ReferenceID:     bet.ID,
				BalanceAfter:    account.AvailableCredits,
				CreatedAt:       now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if !settled {
		return "", nil
	}
	return status, nil
}

// Run drives the background sweep that finishes partially settled
// markets. Blocks until ctx is done.
func (s *SettlementService) Run(ctx context.Context) error {
	if s == nil || s.Ledger == nil || s.Markets == nil {
		return nil
	}
	interval := s.Config.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	// Run once on start.
	_ = s.sweepIfEnabled(ctx)

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			_ = s.sweepIfEnabled(ctx)
		}
	}
}

func (s *SettlementService) sweepIfEnabled(ctx context.Context) error {
	if s != nil && s.Flags != nil && !s.Flags.IsEnabled(ctx, FeatureSettlementSweep, true) {
		return nil
	}
	return s.SweepOnce(ctx)
}

// SweepOnce finds markets that still carry pending bets and re-runs
// settlement for the ones already resolved in the market store. Markets
// that are still open are left alone.
func (s *SettlementService) SweepOnce(ctx context.Context) error {
	if s == nil || s.Ledger == nil || s.Markets == nil {
		return nil
	}
	batch := s.Config.SweepBatchSize
	if batch <= 0 || batch > 1000 {
		batch = 50
	}
	marketIDs, err := s.Ledger.ListPendingMarketIDs(ctx, batch)
	if err != nil {
		s.logWarn("sweep list pending markets failed", err)
		return err
	}
	for _, marketID := range marketIDs {
		market, err := s.Markets.GetMarketByID(ctx, marketID)
		if err != nil {
			s.logWarn("sweep market lookup failed", err, zap.String("market_id", marketID))
			continue
		}
		if market == nil {
			s.logWarn("pending bets reference unknown market", nil, zap.String("market_id", marketID))
			continue
		}
		if market.Status != models.MarketStatusResolved {
			continue
		}
		if strings.TrimSpace(market.Resolution) == "" {
			s.logWarn("resolved market has no resolution", nil, zap.String("market_id", marketID))
			continue
		}
		if _, err := s.ResolveMarket(ctx, marketID, market.Resolution); err != nil {
			s.logWarn("sweep settlement failed", err, zap.String("market_id", marketID))
		}
	}
	return nil
}

func (s *SettlementService) logWarn(msg string, err error, fields ...zap.Field) {
	if s == nil || s.Logger == nil {
		return
	}
	s.Logger.Warn(msg, append(fields, zap.Error(err))...)
}

func boolPtr(v bool) *bool { return &v }

func strPtr(s string) *string {
	return &s
}
