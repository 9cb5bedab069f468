package postgresql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/database"
)

type txKey struct{}

const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// WithTransaction executes fn inside a database transaction. The ctx handed
// to fn carries the transaction; a nested call joins the outer one.
func WithTransaction(ctx context.Context, db *database.DB, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				slog.Error("Rollback failed during panic recovery", "error", rbErr)
			}
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback error: %v (original error: %w)", rbErr, err)
		}
		return mapError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return mapError(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// GetQuerier returns either the transaction carried by ctx or the pool.
func GetQuerier(ctx context.Context, db *database.DB) database.Querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return db.Pool
}

// Transactor runs units of work as serializable transactions and retries
// them on serialization failures and deadlocks.
type Transactor struct {
	db          *database.DB
	maxAttempts int
	backoff     time.Duration
}

func NewTransactor(db *database.DB, maxAttempts int) *Transactor {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Transactor{db: db, maxAttempts: maxAttempts, backoff: 50 * time.Millisecond}
}

func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return WithSerializableRetry(ctx, t.maxAttempts, t.backoff, func() error {
		return WithTransaction(ctx, t.db, fn)
	})
}

// WithSerializableRetry calls fn until it succeeds, fails with a
// non-retryable error, or maxAttempts is reached.
func WithSerializableRetry(ctx context.Context, maxAttempts int, backoff time.Duration, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn()
		if err == nil || !IsRetryable(err) {
			return err
		}
		if _, nested := ctx.Value(txKey{}).(pgx.Tx); nested {
			return err
		}
		slog.Warn("Retrying transaction", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * backoff):
		}
	}
	return workerday.ExternalTransient(fmt.Errorf("transaction kept conflicting after %d attempts: %w", maxAttempts, err))
}

func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected
	}
	return false
}

// mapError turns a unique violation into InvariantViolation. The unique
// index on worker days backs the one-row-per-slot rule at commit time.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		v := workerday.InvariantViolation("duplicate row for %s", pgErr.ConstraintName)
		v.Details = map[string]any{"constraint": pgErr.ConstraintName, "detail": pgErr.Detail}
		return v
	}
	return err
}
