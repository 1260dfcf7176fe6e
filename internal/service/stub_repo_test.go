package service

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"betledger/internal/models"
	"betledger/internal/repository"
)

// stubLedger is a test-only in-memory implementation of
// repository.LedgerRepository. InTx snapshots state before fn and
// restores it when fn fails, so rollback behavior in tests matches the
// real store. Failure knobs let tests script transient errors and
// concurrency races.
type stubLedger struct {
	accounts map[string]*models.Account // by user id
	bets     map[string]*models.Bet     // by bet id
	betIDs   []string                   // creation order
	txs      []models.CreditTransaction
	settings map[string]*models.SystemSetting

	txCount int

	// failTimes > 0 fails the next transactions with failWith before fn runs.
	failTimes int
	failWith  error
	// onTx runs at the start of a transaction, after the failTimes check.
	onTx func(l *stubLedger) error
	// hideIdemLookups > 0 makes idempotency lookups miss, simulating a
	// concurrent insert that is not visible yet.
	hideIdemLookups int
	// failSettle fails SettleBet for specific bet ids.
	failSettle map[string]error
}

func newStubLedger() *stubLedger {
	return &stubLedger{
		accounts: map[string]*models.Account{},
		bets:     map[string]*models.Bet{},
		settings: map[string]*models.SystemSetting{},
	}
}

type ledgerSnapshot struct {
	accounts map[string]*models.Account
	bets     map[string]*models.Bet
	betIDs   []string
	txs      []models.CreditTransaction
}

func (l *stubLedger) snapshot() ledgerSnapshot {
	accounts := make(map[string]*models.Account, len(l.accounts))
	for k, v := range l.accounts {
		cp := *v
		accounts[k] = &cp
	}
	bets := make(map[string]*models.Bet, len(l.bets))
	for k, v := range l.bets {
		cp := *v
		bets[k] = &cp
	}
	return ledgerSnapshot{
		accounts: accounts,
		bets:     bets,
		betIDs:   append([]string(nil), l.betIDs...),
		txs:      append([]models.CreditTransaction(nil), l.txs...),
	}
}

func (l *stubLedger) restore(s ledgerSnapshot) {
	l.accounts = s.accounts
	l.bets = s.bets
	l.betIDs = s.betIDs
	l.txs = s.txs
}

func (l *stubLedger) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	l.txCount++
	if l.failTimes > 0 {
		l.failTimes--
		return l.failWith
	}
	if l.onTx != nil {
		if err := l.onTx(l); err != nil {
			return err
		}
	}
	snap := l.snapshot()
	if err := fn(nil); err != nil {
		l.restore(snap)
		return err
	}
	return nil
}

func (l *stubLedger) CreateAccount(ctx context.Context, item *models.Account) error {
	if _, ok := l.accounts[item.UserID]; ok {
		return &pgconn.PgError{Code: "23505"}
	}
	cp := *item
	l.accounts[item.UserID] = &cp
	return nil
}

func (l *stubLedger) GetAccountByUserID(ctx context.Context, tx *gorm.DB, userID string) (*models.Account, error) {
	a, ok := l.accounts[userID]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (l *stubLedger) DeductWallet(ctx context.Context, tx *gorm.DB, userID, source string, amount decimal.Decimal) (bool, error) {
	a, ok := l.accounts[userID]
	if !ok {
		return false, nil
	}
	if a.WalletBalance(source).LessThan(amount) {
		return false, nil
	}
	if source == models.CreditSourcePurchased {
		a.PurchasedCredits = a.PurchasedCredits.Sub(amount)
	} else {
		a.FreeCredits = a.FreeCredits.Sub(amount)
	}
	a.AvailableCredits = a.AvailableCredits.Sub(amount)
	a.TotalVolume = a.TotalVolume.Add(amount)
	a.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (l *stubLedger) CreditWallet(ctx context.Context, tx *gorm.DB, userID, source string, amount decimal.Decimal) error {
	a, ok := l.accounts[userID]
	if !ok {
		return nil
	}
	if source == models.CreditSourcePurchased {
		a.PurchasedCredits = a.PurchasedCredits.Add(amount)
	} else {
		a.FreeCredits = a.FreeCredits.Add(amount)
	}
	a.AvailableCredits = a.AvailableCredits.Add(amount)
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (l *stubLedger) ApplyAccountPnL(ctx context.Context, tx *gorm.DB, userID string, delta, winCandidate decimal.Decimal) error {
	a, ok := l.accounts[userID]
	if !ok {
		return nil
	}
	a.OverallPnL = a.OverallPnL.Add(delta)
	if winCandidate.GreaterThan(a.BiggestWin) {
		a.BiggestWin = winCandidate
	}
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (l *stubLedger) CreateBet(ctx context.Context, tx *gorm.DB, item *models.Bet) error {
	if _, ok := l.bets[item.ID]; ok {
		return &pgconn.PgError{Code: "23505"}
	}
	if item.IdempotencyKey != nil {
		for _, id := range l.betIDs {
			b := l.bets[id]
			if b.UserID == item.UserID && b.IdempotencyKey != nil && *b.IdempotencyKey == *item.IdempotencyKey {
				return &pgconn.PgError{Code: "23505"}
			}
		}
	}
	cp := *item
	l.bets[item.ID] = &cp
	l.betIDs = append(l.betIDs, item.ID)
	return nil
}

func (l *stubLedger) GetBetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Bet, error) {
	b, ok := l.bets[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (l *stubLedger) GetBetByIdempotencyKey(ctx context.Context, tx *gorm.DB, userID, key string) (*models.Bet, error) {
	if l.hideIdemLookups > 0 {
		l.hideIdemLookups--
		return nil, nil
	}
	for _, id := range l.betIDs {
		b := l.bets[id]
		if b.UserID == userID && b.IdempotencyKey != nil && *b.IdempotencyKey == key {
			cp := *b
			return &cp, nil
		}
	}
	return nil, nil
}

func (l *stubLedger) matchBets(params repository.ListBetsParams) []models.Bet {
	var out []models.Bet
	for _, id := range l.betIDs {
		b := l.bets[id]
		if params.UserID != nil && *params.UserID != "" && b.UserID != *params.UserID {
			continue
		}
		if params.MarketID != nil && *params.MarketID != "" && b.MarketID != *params.MarketID {
			continue
		}
		if params.Status != nil && *params.Status != "" && b.Status != *params.Status {
			continue
		}
		out = append(out, *b)
	}
	return out
}

func (l *stubLedger) ListBets(ctx context.Context, params repository.ListBetsParams) ([]models.Bet, error) {
	matched := l.matchBets(params)
	limit := params.Limit
	if limit <= 0 {
		limit = 200
	}
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (l *stubLedger) CountBets(ctx context.Context, params repository.ListBetsParams) (int64, error) {
	return int64(len(l.matchBets(params))), nil
}

func (l *stubLedger) SettleBet(ctx context.Context, tx *gorm.DB, betID, status string, actualPayout decimal.Decimal, settledAt time.Time) (bool, error) {
	if err, ok := l.failSettle[betID]; ok {
		return false, err
	}
	b, ok := l.bets[betID]
	if !ok || b.Status != models.BetStatusPending {
		return false, nil
	}
	b.Status = status
	b.ActualPayout = actualPayout
	at := settledAt
	b.SettledAt = &at
	b.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (l *stubLedger) ListPendingMarketIDs(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 200
	}
	seen := map[string]struct{}{}
	var out []string
	for _, id := range l.betIDs {
		b := l.bets[id]
		if b.Status != models.BetStatusPending {
			continue
		}
		if _, ok := seen[b.MarketID]; ok {
			continue
		}
		seen[b.MarketID] = struct{}{}
		out = append(out, b.MarketID)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (l *stubLedger) CreateCreditTransaction(ctx context.Context, tx *gorm.DB, item *models.CreditTransaction) error {
	cp := *item
	cp.ID = uint64(len(l.txs) + 1)
	l.txs = append(l.txs, cp)
	return nil
}

func (l *stubLedger) ListCreditTransactions(ctx context.Context, params repository.ListCreditTransactionsParams) ([]models.CreditTransaction, error) {
	var out []models.CreditTransaction
	for _, tx := range l.txs {
		if params.UserID != nil && *params.UserID != "" && tx.UserID != *params.UserID {
			continue
		}
		if params.Type != nil && *params.Type != "" && tx.TransactionType != *params.Type {
			continue
		}
		if params.ReferenceID != nil && *params.ReferenceID != "" && tx.ReferenceID != *params.ReferenceID {
			continue
		}
		out = append(out, tx)
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 200
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *stubLedger) SumCreditTransactions(ctx context.Context, userID string) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, tx := range l.txs {
		if tx.UserID == userID {
			sum = sum.Add(tx.Amount)
		}
	}
	return sum, nil
}

func (l *stubLedger) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	cp := *item
	l.settings[item.Key] = &cp
	return nil
}

func (l *stubLedger) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	s, ok := l.settings[key]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

var _ repository.LedgerRepository = (*stubLedger)(nil)

// stubMarkets is a test-only in-memory repository.MarketRepository.
type stubMarkets struct {
	markets    map[string]*models.Market
	volumeAdds []volumeAdd
	failVolume error
}

type volumeAdd struct {
	marketID string
	side     string
	amount   decimal.Decimal
}

func newStubMarkets(items ...*models.Market) *stubMarkets {
	m := &stubMarkets{markets: map[string]*models.Market{}}
	for _, item := range items {
		cp := *item
		m.markets[item.ID] = &cp
	}
	return m
}

func (m *stubMarkets) GetMarketByID(ctx context.Context, id string) (*models.Market, error) {
	mkt, ok := m.markets[id]
	if !ok {
		return nil, nil
	}
	cp := *mkt
	return &cp, nil
}

func (m *stubMarkets) UpsertMarket(ctx context.Context, item *models.Market) error {
	cp := *item
	m.markets[item.ID] = &cp
	return nil
}

func (m *stubMarkets) ListMarkets(ctx context.Context, params repository.ListMarketsParams) ([]models.Market, error) {
	var out []models.Market
	for _, mkt := range m.markets {
		if params.Status != nil && *params.Status != "" && mkt.Status != *params.Status {
			continue
		}
		out = append(out, *mkt)
	}
	return out, nil
}

func (m *stubMarkets) MarkResolved(ctx context.Context, id, resolution string, resolvedAt time.Time) (bool, error) {
	mkt, ok := m.markets[id]
	if !ok {
		return false, nil
	}
	if mkt.Status == models.MarketStatusResolved {
		return false, nil
	}
	mkt.Status = models.MarketStatusResolved
	mkt.Resolution = resolution
	at := resolvedAt
	mkt.ResolvedAt = &at
	mkt.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *stubMarkets) AddMarketVolume(ctx context.Context, id, side string, amount decimal.Decimal) error {
	if m.failVolume != nil {
		return m.failVolume
	}
	m.volumeAdds = append(m.volumeAdds, volumeAdd{marketID: id, side: side, amount: amount})
	if mkt, ok := m.markets[id]; ok {
		mkt.TotalVolume = mkt.TotalVolume.Add(amount)
		if side == models.BetSideThis {
			mkt.ThisVolume = mkt.ThisVolume.Add(amount)
		} else {
			mkt.ThatVolume = mkt.ThatVolume.Add(amount)
		}
		mkt.BetCount++
	}
	return nil
}

var _ repository.MarketRepository = (*stubMarkets)(nil)

// stubOracle returns a fixed price or a fixed error.
type stubOracle struct {
	price     decimal.Decimal
	err       error
	calls     int
	lastToken string
}

func (o *stubOracle) GetPrice(ctx context.Context, tokenID string) (decimal.Decimal, error) {
	o.calls++
	o.lastToken = tokenID
	if o.err != nil {
		return decimal.Zero, o.err
	}
	return o.price, nil
}

type notifyRecord struct {
	userID string
	pnl    decimal.Decimal
	volume decimal.Decimal
}

type recordingNotifier struct {
	records  []notifyRecord
	failWith error
}

func (n *recordingNotifier) Notify(ctx context.Context, userID string, overallPnL, totalVolume decimal.Decimal) error {
	n.records = append(n.records, notifyRecord{userID: userID, pnl: overallPnL, volume: totalVolume})
	return n.failWith
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// seedAccount creates an account whose wallets were funded through
// recorded grants, so the audit sum matches the balance from the start.
func seedAccount(l *stubLedger, userID string, free, purchased decimal.Decimal) *models.Account {
	now := time.Now().UTC()
	account := &models.Account{
		ID:               "acct-" + userID,
		UserID:           userID,
		FreeCredits:      free,
		PurchasedCredits: purchased,
		AvailableCredits: free.Add(purchased),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	l.accounts[userID] = account
	running := decimal.Zero
	if free.GreaterThan(decimal.Zero) {
		running = running.Add(free)
		l.txs = append(l.txs, models.CreditTransaction{
			ID:              uint64(len(l.txs) + 1),
			UserID:          userID,
			Amount:          free,
			TransactionType: models.TxTypeCreditGrant,
			CreditSource:    models.CreditSourceFree,
			BalanceAfter:    running,
			CreatedAt:       now,
		})
	}
	if purchased.GreaterThan(decimal.Zero) {
		running = running.Add(purchased)
		l.txs = append(l.txs, models.CreditTransaction{
			ID:              uint64(len(l.txs) + 1),
			UserID:          userID,
			Amount:          purchased,
			TransactionType: models.TxTypeCreditGrant,
			CreditSource:    models.CreditSourcePurchased,
			BalanceAfter:    running,
			CreatedAt:       now,
		})
	}
	return account
}

// seedPlacedBet records a pending bet along with the deduction a real
// placement would have written, keeping the account books consistent.
func seedPlacedBet(l *stubLedger, betID, userID, marketID, side, source string, amount, price decimal.Decimal) *models.Bet {
	now := time.Now().UTC()
	a := l.accounts[userID]
	if source == models.CreditSourcePurchased {
		a.PurchasedCredits = a.PurchasedCredits.Sub(amount)
	} else {
		a.FreeCredits = a.FreeCredits.Sub(amount)
	}
	a.AvailableCredits = a.AvailableCredits.Sub(amount)
	a.TotalVolume = a.TotalVolume.Add(amount)
	shares := amount.Div(price)
	bet := &models.Bet{
		ID:              betID,
		UserID:          userID,
		MarketID:        marketID,
		Side:            side,
		Amount:          amount,
		CreditSource:    source,
		SharesReceived:  shares,
		PriceAtBet:      price,
		PotentialPayout: shares,
		Status:          models.BetStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	l.bets[betID] = bet
	l.betIDs = append(l.betIDs, betID)
	l.txs = append(l.txs, models.CreditTransaction{
		ID:              uint64(len(l.txs) + 1),
		UserID:          userID,
		Amount:          amount.Neg(),
		TransactionType: models.TxTypeBetPlaced,
		CreditSource:    source,
		ReferenceID:     betID,
		BalanceAfter:    a.AvailableCredits,
		CreatedAt:       now,
	})
	return bet
}

func openMarket(id string, expiresAt time.Time) *models.Market {
	now := time.Now().UTC()
	return &models.Market{
		ID:          id,
		Question:    "test market " + id,
		ThisTokenID: id + "-this",
		ThatTokenID: id + "-that",
		Status:      models.MarketStatusOpen,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
