package wallet

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"betledger/internal/models"
)

// EndingSoonHorizon is the window before expiry in which bets must be funded
// by purchased credits.
const EndingSoonHorizon = 72 * time.Hour

// InsufficientCreditsError reports that the wallet the routing rule picked
// cannot cover the stake. There is no fallback to the other wallet.
type InsufficientCreditsError struct {
	Source    string
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient %s credits: required %s, available %s",
		e.Source, e.Required.Ceil(), e.Available.Ceil())
}

// EndingSoon reports whether the market expires within the horizon, in the
// future, as seen at now.
func EndingSoon(market *models.Market, now time.Time) bool {
	if market == nil || market.ExpiresAt.IsZero() {
		return false
	}
	return market.ExpiresAt.After(now) && market.ExpiresAt.Sub(now) <= EndingSoonHorizon
}

// Select is the single source of truth for wallet routing: markets ending
// soon are funded by purchased credits only, everything else by free credits
// only. It has no side effects; both the placement path and display code
// call it.
func Select(account *models.Account, market *models.Market, amount decimal.Decimal, now time.Time) (string, error) {
	source := models.CreditSourceFree
	if EndingSoon(market, now) {
		source = models.CreditSourcePurchased
	}
	available := account.WalletBalance(source)
	if available.LessThan(amount) {
		return "", &InsufficientCreditsError{
			Source:    source,
			Required:  amount,
			Available: available,
		}
	}
	return source, nil
}
