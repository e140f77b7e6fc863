package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Attempts is how many times Retry runs fn before giving up on SQLITE_BUSY.
const Attempts = 3

// IsBusy reports whether err indicates an SQLite BUSY condition.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, s := range []string{"SQLITE_BUSY", "database is locked", "database table is locked"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// Retry runs fn until it succeeds, fails with a non-busy error, or Attempts
// is reached. Waits grow linearly from 100ms and stop early on ctx.
func Retry(ctx context.Context, fn func() error) error {
	var err error
	for i := 1; i <= Attempts; i++ {
		if err = fn(); err == nil || !IsBusy(err) {
			return err
		}
		if i == Attempts {
			break
		}
		wait := time.NewTimer(time.Duration(i) * 100 * time.Millisecond)
		select {
		case <-ctx.Done():
			wait.Stop()
			return fmt.Errorf("dbopen: retry: %w", ctx.Err())
		case <-wait.C:
		}
	}
	return fmt.Errorf("dbopen: busy after %d attempts: %w", Attempts, err)
}

// Exec runs one statement under Retry. Chat turns are written from
// concurrent streams, so a short lock wait is expected under load.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := Retry(ctx, func() error {
		var err error
		res, err = db.ExecContext(ctx, query, args...)
		return err
	})
	return res, err
}

// InTx runs fn inside a transaction, committing when it returns nil. A busy
// begin or commit retries the whole transaction.
func InTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	return Retry(ctx, func() error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}
