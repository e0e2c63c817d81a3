package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const maxRetries = 3

// IsBusy reports whether err is an SQLite lock contention error. The
// driver surfaces these as SQLITE_BUSY or a "database [table] is locked"
// message depending on the code path.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// RunTx runs fn inside a transaction, retrying lock contention up to 3
// times with linear 100 ms backoff. The store uses it for multi-statement
// writes that must land atomically while a check cycle holds the database.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	for i := range maxRetries {
		err := runOnce(ctx, db, fn)
		if err == nil {
			return nil
		}
		if !IsBusy(err) || i == maxRetries-1 {
			return err
		}
		if err := sleepCtx(ctx, time.Duration(100*(i+1))*time.Millisecond); err != nil {
			return fmt.Errorf("dbopen: context cancelled during retry: %w", err)
		}
	}
	return fmt.Errorf("dbopen: RunTx: max retries exceeded")
}

func runOnce(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("dbopen: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("dbopen: commit: %w", err)
	}
	return nil
}

// Exec runs a single write statement, retrying lock contention the same
// way RunTx does. Every store write goes through here.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	for i := range maxRetries {
		result, err := db.ExecContext(ctx, query, args...)
		if err == nil {
			return result, nil
		}
		if !IsBusy(err) || i == maxRetries-1 {
			return nil, err
		}
		if err := sleepCtx(ctx, time.Duration(100*(i+1))*time.Millisecond); err != nil {
			return nil, fmt.Errorf("dbopen: context cancelled during retry: %w", err)
		}
	}
	return nil, fmt.Errorf("dbopen: Exec: max retries exceeded")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
