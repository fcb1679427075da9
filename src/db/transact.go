package db

import (
	"context"
	"errors"
	"time"

	"github.com/AnhTuanDangJT/FinStep-sub000/src/logging"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jpillora/backoff"
)

// Beginner is anything that can open a transaction: a pool, a conn, or a tx.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// MaxTransactAttempts bounds how many times Transact re-runs a unit of work that
// lost a serialization race.
var MaxTransactAttempts = 5

// IsRetryable reports whether a failed transaction can safely be re-run from the start.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", // serialization_failure
			"40P01", // deadlock_detected
			"55P03": // lock_not_available
			return true
		}
	}
	return false
}

/*
Runs fn inside a transaction and commits it if fn returns nil. Any error from fn
rolls back everything fn did, and the error is returned as-is. If the database
aborts the transaction because of a serialization failure or deadlock, the whole
unit of work is retried with backoff.
*/
func Transact(ctx context.Context, conn Beginner, fn func(tx pgx.Tx) error) error {
	b := &backoff.Backoff{
		Min:    20 * time.Millisecond,
		Max:    1 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	for {
		err := transactOnce(ctx, conn, fn)
		if err == nil || !IsRetryable(err) || int(b.Attempt())+1 >= MaxTransactAttempts {
			return err
		}

		wait := b.Duration()
		logging.ExtractLogger(ctx).Debug().Err(err).Dur("wait", wait).Msg("retrying transaction")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func transactOnce(ctx context.Context, conn Beginner, fn func(tx pgx.Tx) error) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
