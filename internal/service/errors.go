package service

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"betledger/internal/models"
)

// Validation and state-conflict errors are surfaced verbatim and never
// retried. ErrTryAgain is the only failure placed in front of exhausted
// transient retries.
var (
	ErrAccountNotFound       = errors.New("account not found")
	ErrMarketNotFound        = errors.New("market not found")
	ErrMarketNotOpen         = errors.New("market is not open for betting")
	ErrMarketExpired         = errors.New("market has expired")
	ErrMarketAlreadyResolved = errors.New("market already resolved with a different outcome")
	ErrBetNotFound           = errors.New("bet not found")
	ErrBetNotOwned           = errors.New("bet does not belong to user")
	ErrBetNotPending         = errors.New("bet is no longer pending")
	ErrInvalidSide           = errors.New("side must be \"this\" or \"that\"")
	ErrInvalidPrice          = errors.New("oracle price outside (0,1)")
	ErrInvalidResolution     = errors.New("resolution must be \"this\", \"that\" or \"invalid\"")
	ErrTryAgain              = errors.New("temporarily unavailable, please try again")
)

// InvalidAmountError reports a stake outside the allowed range.
type InvalidAmountError struct {
	Amount decimal.Decimal
	Min    decimal.Decimal
	Max    decimal.Decimal
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("bet amount %s outside allowed range [%s, %s]", e.Amount, e.Min, e.Max)
}

// IsConflict reports whether the error is a state conflict: a valid
// request that lost against the current state of the market or bet.
// API layers map these to 409-style responses.
func IsConflict(err error) bool {
	return errors.Is(err, ErrMarketNotOpen) ||
		errors.Is(err, ErrMarketExpired) ||
		errors.Is(err, ErrMarketAlreadyResolved) ||
		errors.Is(err, ErrBetNotPending)
}

// priceInRange reports whether an oracle probability is strictly inside
// (0,1). Anything else is unusable for pricing.
func priceInRange(price decimal.Decimal) bool {
	return price.GreaterThan(decimal.Zero) && price.LessThan(decimal.NewFromInt(1))
}

func validSide(side string) bool {
	return side == models.BetSideThis || side == models.BetSideThat
}

func validResolution(resolution string) bool {
	return resolution == models.ResolutionThis ||
		resolution == models.ResolutionThat ||
		resolution == models.ResolutionInvalid
}
