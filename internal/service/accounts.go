package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"betledger/internal/models"
	"betledger/internal/repository"
)

// AccountService provisions accounts and applies administrative credit
// grants. Accounts start empty; every credit that ever enters a wallet
// arrives through a CreditTransaction, so the audit trail reproduces the
// balance from zero.
type AccountService struct {
	Ledger repository.LedgerRepository
}

// EnsureAccount returns the user's account, creating an empty one on
// first sight.
func (s *AccountService) EnsureAccount(ctx context.Context, userID string) (*models.Account, error) {
	if s == nil || s.Ledger == nil {
		return nil, errors.New("account service not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrAccountNotFound
	}
	existing, err := s.Ledger.GetAccountByUserID(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if existing != nil {
		return existing, nil
	}
	now := time.Now().UTC()
	account := &models.Account{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Ledger.CreateAccount(ctx, account); err != nil {
		// A concurrent first request may have created it already.
		if isUniqueViolation(err) {
			return s.Ledger.GetAccountByUserID(ctx, nil, userID)
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	return account, nil
}

// GrantCredits adds credits to one of the user's wallets and records the
// grant. Used for signup bonuses and purchased top-ups.
func (s *AccountService) GrantCredits(ctx context.Context, userID, source string, amount decimal.Decimal) (*models.Account, error) {
	if s == nil || s.Ledger == nil {
		return nil, errors.New("account service not configured")
	}
	if source != models.CreditSourceFree && source != models.CreditSourcePurchased {
		return nil, fmt.Errorf("unknown credit source %q", source)
	}
	if !amount.GreaterThan(decimal.Zero) {
		return nil, fmt.Errorf("grant amount must be positive, got %s", amount)
	}
	account, err := s.EnsureAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	var updated *models.Account
	err = s.Ledger.InTx(ctx, func(tx *gorm.DB) error {
		if err := s.Ledger.CreditWallet(ctx, tx, account.UserID, source, amount); err != nil {
			return err
		}
		fresh, err := s.Ledger.GetAccountByUserID(ctx, tx, account.UserID)
		if err != nil {
			return err
		}
		if fresh == nil {
			return ErrAccountNotFound
		}
		if err := s.Ledger.CreateCreditTransaction(ctx, tx, &models.CreditTransaction{
			UserID:          account.UserID,
			Amount:          amount,
			TransactionType: models.TxTypeCreditGrant,
			CreditSource:    source,
			BalanceAfter:    fresh.AvailableCredits,
			CreatedAt:       now,
		}); err != nil {
			return err
		}
		updated = fresh
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
