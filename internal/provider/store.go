package provider

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is stored in PRAGMA user_version. Bump it with schema.sql;
// older databases are rejected rather than migrated.
const schemaVersion = 1

// ErrSchemaMismatch indicates the usage database was written by another schema version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

const sqliteBusy = 5

// busyRetry absorbs lock contention between the daemon and a concurrent
// `vidpipe run` sharing the same database.
var busyRetry = RetryPolicy{
	MaxRetries: 4,
	BaseDelay:  10 * time.Millisecond,
	MaxDelay:   200 * time.Millisecond,
	Retryable:  isSQLiteBusy,
}

// SQLiteUsageStore is a UsageSink backed by a sqlite file.
type SQLiteUsageStore struct {
	db   *sql.DB
	path string
}

// OpenUsageStore opens or creates the usage database at path.
func OpenUsageStore(ctx context.Context, path string) (*SQLiteUsageStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create usage store directory: %w", err)
	}
	dsn := "file:" + path + "?" + url.Values{
		"_pragma": {"journal_mode(WAL)", "busy_timeout(5000)"},
	}.Encode()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open usage store %s: %w", path, err)
	}
	store := &SQLiteUsageStore{db: db, path: path}
	if err := store.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *SQLiteUsageStore) Path() string { return s.path }

func (s *SQLiteUsageStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append stores one usage record.
func (s *SQLiteUsageStore) Append(ctx context.Context, rec UsageRecord) error {
	err := s.exec(ctx, func(ctx context.Context) (sql.Result, error) {
		return s.db.ExecContext(ctx,
			`INSERT INTO usage_records (backend_id, tokens, recorded_at) VALUES (?, ?, ?)`,
			rec.BackendID, rec.Tokens, rec.At.UnixNano())
	}, nil)
	if err != nil {
		return fmt.Errorf("append usage for %s: %w", rec.BackendID, err)
	}
	return nil
}

// LoadSince returns records at or after since, oldest first.
func (s *SQLiteUsageStore) LoadSince(ctx context.Context, since time.Time) ([]UsageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT backend_id, tokens, recorded_at FROM usage_records WHERE recorded_at >= ? ORDER BY recorded_at, id`,
		since.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("query usage records: %w", err)
	}
	defer rows.Close()

	var records []UsageRecord
	for rows.Next() {
		var (
			rec   UsageRecord
			nanos int64
		)
		if err := rows.Scan(&rec.BackendID, &rec.Tokens, &nanos); err != nil {
			return nil, fmt.Errorf("scan usage record: %w", err)
		}
		rec.At = time.Unix(0, nanos)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Prune deletes records older than before and reports how many went.
func (s *SQLiteUsageStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	var removed int64
	err := s.exec(ctx, func(ctx context.Context) (sql.Result, error) {
		return s.db.ExecContext(ctx, `DELETE FROM usage_records WHERE recorded_at < ?`, before.UnixNano())
	}, &removed)
	if err != nil {
		return 0, fmt.Errorf("prune usage records: %w", err)
	}
	return removed, nil
}

// exec runs a write under busyRetry, storing the affected row count in
// affected when it is non-nil.
func (s *SQLiteUsageStore) exec(ctx context.Context, write func(context.Context) (sql.Result, error), affected *int64) error {
	err := busyRetry.Do(ctx, func(ctx context.Context) error {
		res, err := write(ctx)
		if err != nil || affected == nil {
			return err
		}
		*affected, err = res.RowsAffected()
		return err
	})
	var exhausted *RetryExhaustedError
	if errors.As(err, &exhausted) {
		return exhausted.Err
	}
	return err
}

func (s *SQLiteUsageStore) migrate(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	switch version {
	case schemaVersion:
		return nil
	case 0:
	default:
		return fmt.Errorf("%w: %s has version %d, expected %d (delete it to reset usage history)",
			ErrSchemaMismatch, s.path, version, schemaVersion)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

func isSQLiteBusy(err error) bool {
	var coded interface{ Code() int }
	if errors.As(err, &coded) {
		return coded.Code()&0xff == sqliteBusy
	}
	return err != nil && strings.Contains(err.Error(), "database is locked")
}
