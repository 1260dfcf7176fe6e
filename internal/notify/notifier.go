package notify

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LeaderboardNotifier receives a user's updated PnL and volume after a
// placement, exit, or settlement. Callers treat it as fire-and-forget; an
// error here never rolls back ledger state.
type LeaderboardNotifier interface {
	Notify(ctx context.Context, userID string, overallPnL, totalVolume decimal.Decimal) error
}

// LogNotifier records deltas to the log only. It stands in wherever the real
// leaderboard cache is not wired.
type LogNotifier struct {
	Logger *zap.Logger
}

func (n *LogNotifier) Notify(_ context.Context, userID string, overallPnL, totalVolume decimal.Decimal) error {
	if n == nil || n.Logger == nil {
		return nil
	}
	n.Logger.Debug("leaderboard delta",
		zap.String("user_id", userID),
		zap.String("overall_pnl", overallPnL.String()),
		zap.String("total_volume", totalVolume.String()),
	)
	return nil
}

// Async wraps a notifier so Notify returns immediately and runs the inner
// call on its own goroutine with a bounded timeout. Failures are logged,
// never returned.
type Async struct {
	Inner   LeaderboardNotifier
	Logger  *zap.Logger
	Timeout time.Duration
}

func (a *Async) Notify(_ context.Context, userID string, overallPnL, totalVolume decimal.Decimal) error {
	if a == nil || a.Inner == nil {
		return nil
	}
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := a.Inner.Notify(ctx, userID, overallPnL, totalVolume); err != nil && a.Logger != nil {
			a.Logger.Warn("leaderboard notify failed", zap.String("user_id", userID), zap.Error(err))
		}
	}()
	return nil
}

var (
	_ LeaderboardNotifier = (*LogNotifier)(nil)
	_ LeaderboardNotifier = (*Async)(nil)
)
