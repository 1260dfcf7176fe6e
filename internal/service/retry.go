package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

const (
	maxTxRetries = 2
	retryBackoff = 100 * time.Millisecond
)

// Postgres SQLSTATE codes the ledger treats as transient.
const (
	sqlstateSerializationFailure = "40001"
	sqlstateDeadlockDetected     = "40P01"
	sqlstateLockNotAvailable     = "55P03"
	sqlstateUniqueViolation      = "23505"
)

// isTransient reports whether a transaction failure is worth retrying.
// Deadlocks, serialization failures, lock timeouts and statement
// timeouts qualify. Validation and business errors never do.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlstateSerializationFailure, sqlstateDeadlockDetected, sqlstateLockNotAvailable:
			return true
		}
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlstateUniqueViolation
}

// runWithRetry executes fn and retries it up to maxTxRetries times when
// the failure is transient. Retries back off linearly and respect ctx
// cancellation. Once attempts are exhausted the last error is wrapped in
// ErrTryAgain so callers surface a stable message.
func runWithRetry(ctx context.Context, logger *zap.Logger, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= maxTxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * retryBackoff):
			}
			if logger != nil {
				logger.Warn("retrying transaction",
					zap.String("op", op),
					zap.Int("attempt", attempt),
					zap.Error(err))
			}
		}
		err = fn()
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrTryAgain, err)
}
