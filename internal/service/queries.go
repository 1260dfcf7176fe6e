package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"betledger/internal/models"
	"betledger/internal/repository"
	"betledger/internal/wallet"
)

// LedgerQueryService serves reads for an API layer. Everything is scoped
// to the requesting user; there is no cross-user surface here.
type LedgerQueryService struct {
	Ledger  repository.LedgerRepository
	Markets repository.MarketRepository
}

// ListUserBets returns one page of the user's bets plus the unpaged
// total. Filters other than the user id are taken from params.
func (s *LedgerQueryService) ListUserBets(ctx context.Context, userID string, params repository.ListBetsParams) ([]models.Bet, int64, error) {
	if s == nil || s.Ledger == nil {
		return nil, 0, nil
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, 0, nil
	}
	params.UserID = &userID
	items, err := s.Ledger.ListBets(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.Ledger.CountBets(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *LedgerQueryService) GetUserBet(ctx context.Context, userID, betID string) (*models.Bet, error) {
	if s == nil || s.Ledger == nil {
		return nil, errors.New("query service not configured")
	}
	bet, err := s.Ledger.GetBetByID(ctx, nil, strings.TrimSpace(betID))
	if err != nil {
		return nil, err
	}
	if bet == nil {
		return nil, ErrBetNotFound
	}
	if bet.UserID != strings.TrimSpace(userID) {
		return nil, ErrBetNotOwned
	}
	return bet, nil
}

func (s *LedgerQueryService) GetAccount(ctx context.Context, userID string) (*models.Account, error) {
	if s == nil || s.Ledger == nil {
		return nil, errors.New("query service not configured")
	}
	account, err := s.Ledger.GetAccountByUserID(ctx, nil, strings.TrimSpace(userID))
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}
	return account, nil
}

func (s *LedgerQueryService) ListTransactions(ctx context.Context, userID string, params repository.ListCreditTransactionsParams) ([]models.CreditTransaction, error) {
	if s == nil || s.Ledger == nil {
		return nil, nil
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, nil
	}
	params.UserID = &userID
	return s.Ledger.ListCreditTransactions(ctx, params)
}

// PreviewFunding reports which wallet would fund a bet of the given size
// right now, without placing anything. Returns the same insufficient
// credits error a real placement would.
func (s *LedgerQueryService) PreviewFunding(ctx context.Context, userID, marketID string, amount decimal.Decimal) (string, error) {
	if s == nil || s.Ledger == nil || s.Markets == nil {
		return "", errors.New("query service not configured")
	}
	account, err := s.GetAccount(ctx, userID)
	if err != nil {
		return "", err
	}
	market, err := s.Markets.GetMarketByID(ctx, strings.TrimSpace(marketID))
	if err != nil {
		return "", fmt.Errorf("load market %s: %w", marketID, err)
	}
	if market == nil {
		return "", ErrMarketNotFound
	}
	return wallet.Select(account, market, amount, time.Now().UTC())
}

// ReconciliationResult compares an account's stored balances against the
// running sum of its audit rows.
type ReconciliationResult struct {
	FreeCredits      decimal.Decimal
	PurchasedCredits decimal.Decimal
	Available        decimal.Decimal
	LedgerSum        decimal.Decimal
	Consistent       bool
}

// ReconcileAccount checks the conservation invariant for one account:
// the wallets must add up to the available balance, and the signed sum
// of all CreditTransactions must reproduce it.
func (s *LedgerQueryService) ReconcileAccount(ctx context.Context, userID string) (*ReconciliationResult, error) {
	account, err := s.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	sum, err := s.Ledger.SumCreditTransactions(ctx, account.UserID)
	if err != nil {
		return nil, fmt.Errorf("sum credit transactions: %w", err)
	}
	combined := account.FreeCredits.Add(account.PurchasedCredits)
	return &ReconciliationResult{
		FreeCredits:      account.FreeCredits,
		PurchasedCredits: account.PurchasedCredits,
		Available:        account.AvailableCredits,
		LedgerSum:        sum,
		Consistent:       combined.Equal(account.AvailableCredits) && sum.Equal(account.AvailableCredits),
	}, nil
}
