package wallet

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"betledger/internal/models"
)

func testAccount(free, purchased int64) *models.Account {
	return &models.Account{
		UserID:           "u1",
		FreeCredits:      decimal.NewFromInt(free),
		PurchasedCredits: decimal.NewFromInt(purchased),
		AvailableCredits: decimal.NewFromInt(free + purchased),
	}
}

func marketExpiring(in time.Duration, now time.Time) *models.Market {
	return &models.Market{
		ID:        "m1",
		Status:    models.MarketStatusOpen,
		ExpiresAt: now.Add(in),
	}
}

func TestSelect_FarExpiry_UsesFree(t *testing.T) {
	now := time.Now().UTC()
	source, err := Select(testAccount(1000, 0), marketExpiring(30*24*time.Hour, now), decimal.NewFromInt(100), now)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if source != models.CreditSourceFree {
		t.Fatalf("source=%q want free", source)
	}
}

func TestSelect_EndingSoon_UsesPurchased(t *testing.T) {
	now := time.Now().UTC()
	source, err := Select(testAccount(1000, 500), marketExpiring(24*time.Hour, now), decimal.NewFromInt(100), now)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if source != models.CreditSourcePurchased {
		t.Fatalf("source=%q want purchased", source)
	}
}

func TestSelect_EndingSoon_NoFallbackToFree(t *testing.T) {
	// Plenty of free credits, but the ending-soon rule must not touch them.
	now := time.Now().UTC()
	_, err := Select(testAccount(1000, 50), marketExpiring(24*time.Hour, now), decimal.NewFromInt(100), now)
	var ice *InsufficientCreditsError
	if !errors.As(err, &ice) {
		t.Fatalf("err=%v want InsufficientCreditsError", err)
	}
	if ice.Source != models.CreditSourcePurchased {
		t.Fatalf("source=%q want purchased", ice.Source)
	}
	if ice.Available.Cmp(decimal.NewFromInt(50)) != 0 {
		t.Fatalf("available=%s want=50", ice.Available.String())
	}
}

func TestSelect_FarExpiry_NoFallbackToPurchased(t *testing.T) {
	now := time.Now().UTC()
	_, err := Select(testAccount(20, 10000), marketExpiring(30*24*time.Hour, now), decimal.NewFromInt(100), now)
	var ice *InsufficientCreditsError
	if !errors.As(err, &ice) {
		t.Fatalf("err=%v want InsufficientCreditsError", err)
	}
	if ice.Source != models.CreditSourceFree {
		t.Fatalf("source=%q want free", ice.Source)
	}
}

func TestEndingSoon_Boundaries(t *testing.T) {
	now := time.Now().UTC()
	if EndingSoon(marketExpiring(EndingSoonHorizon+time.Minute, now), now) {
		t.Fatalf("just past horizon should not be ending soon")
	}
	if !EndingSoon(marketExpiring(EndingSoonHorizon, now), now) {
		t.Fatalf("exactly at horizon should be ending soon")
	}
	// Already-expired markets are not "ending soon"; expiry checks happen
	// before routing.
	if EndingSoon(marketExpiring(-time.Hour, now), now) {
		t.Fatalf("expired market should not be ending soon")
	}
}

func TestInsufficientCreditsError_RoundsUp(t *testing.T) {
	err := &InsufficientCreditsError{
		Source:    models.CreditSourcePurchased,
		Required:  decimal.RequireFromString("100.2"),
		Available: decimal.RequireFromString("50.7"),
	}
	want := "insufficient purchased credits: required 101, available 51"
	if err.Error() != want {
		t.Fatalf("msg=%q want=%q", err.Error(), want)
	}
}
