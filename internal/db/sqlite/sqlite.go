// Package sqlite implements the persistence adapter over an embedded,
// file-locked SQLite database. Writes that hit the file lock are retried
// with bounded exponential backoff; the client/server adapter does not do
// this because that backend serializes writers itself.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/ebrangerieau/BandtrackPlus/internal/db"
)

const (
	retryBaseDelay   = 50 * time.Millisecond
	retryMaxAttempts = 5
)

type DB struct {
	sdb *sql.DB
}

// Open opens (creating if necessary) the database file with WAL journaling
// and foreign keys enabled.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=1000", url.PathEscape(path))
	sdb, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if err := sdb.Ping(); err != nil {
		sdb.Close()
		return nil, fmt.Errorf("%w: %v", db.ErrUnavailable, err)
	}
	return &DB{sdb: sdb}, nil
}

func (d *DB) Dialect() db.Dialect {
	return db.Dialect{
		AutoPrimaryKey: "INTEGER PRIMARY KEY AUTOINCREMENT",
		Blob:           "BLOB",
		Timestamp:      "DATETIME",
	}
}

func (d *DB) Close() error { return d.sdb.Close() }

func (d *DB) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := execRetry(ctx, d.sdb, query, args)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (d *DB) Insert(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := execRetry(ctx, d.sdb, query, args)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (d *DB) Query(ctx context.Context, query string, args ...any) (db.Rows, error) {
	q, err := db.Translate(query, db.Question, len(args))
	if err != nil {
		return nil, err
	}
	rows, err := d.sdb.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify(err)
	}
	return sqlRows{rows: rows}, nil
}

func (d *DB) QueryRow(ctx context.Context, query string, args ...any) db.Row {
	q, err := db.Translate(query, db.Question, len(args))
	if err != nil {
		return db.NewErrRow(err)
	}
	return sqlRow{row: d.sdb.QueryRowContext(ctx, q, args...)}
}

func (d *DB) Begin(ctx context.Context) (db.Tx, error) {
	tx, err := d.sdb.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(err)
	}
	return &Tx{tx: tx, ctx: ctx}, nil
}

func (d *DB) HasTable(ctx context.Context, table string) (bool, error) {
	var n int
	err := d.QueryRow(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *DB) HasColumn(ctx context.Context, table, column string) (bool, error) {
	var n int
	err := d.QueryRow(ctx, `SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type Tx struct {
	tx  *sql.Tx
	ctx context.Context
}

func (t *Tx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := execRetry(ctx, t.tx, query, args)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (t *Tx) Insert(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := execRetry(ctx, t.tx, query, args)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (t *Tx) Query(ctx context.Context, query string, args ...any) (db.Rows, error) {
	q, err := db.Translate(query, db.Question, len(args))
	if err != nil {
		return nil, err
	}
	rows, err := t.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify(err)
	}
	return sqlRows{rows: rows}, nil
}

func (t *Tx) QueryRow(ctx context.Context, query string, args ...any) db.Row {
	q, err := db.Translate(query, db.Question, len(args))
	if err != nil {
		return db.NewErrRow(err)
	}
	return sqlRow{row: t.tx.QueryRowContext(ctx, q, args...)}
}

func (t *Tx) Commit() error   { return classify(t.tx.Commit()) }
func (t *Tx) Rollback() error { return classify(t.tx.Rollback()) }

// execer covers *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// execRetry translates the statement, then executes it with up to
// retryMaxAttempts attempts. Only file-lock errors are retried; everything
// else surfaces immediately.
func execRetry(ctx context.Context, e execer, query string, args []any) (sql.Result, error) {
	q, err := db.Translate(query, db.Question, len(args))
	if err != nil {
		return nil, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = retryBaseDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0

	res, err := backoff.Retry(ctx, func() (sql.Result, error) {
		res, err := e.ExecContext(ctx, q, args...)
		if err != nil && !isLocked(err) {
			return nil, backoff.Permanent(err)
		}
		return res, err
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(retryMaxAttempts))
	if err != nil {
		return nil, classify(err)
	}
	return res, nil
}

func isLocked(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code == sqlite3.ErrBusy || serr.Code == sqlite3.ErrLocked
	}
	return false
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		switch serr.Code {
		case sqlite3.ErrConstraint:
			return fmt.Errorf("%w: %v", db.ErrConflict, err)
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return fmt.Errorf("%w: %v", db.ErrUnavailable, err)
		}
	}
	return err
}

type sqlRows struct {
	rows *sql.Rows
}

func (r sqlRows) Next() bool             { return r.rows.Next() }
func (r sqlRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r sqlRows) Err() error             { return classify(r.rows.Err()) }
func (r sqlRows) Close()                 { _ = r.rows.Close() }

type sqlRow struct {
	row *sql.Row
}

func (r sqlRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return db.ErrNoRows
	}
	return classify(err)
}
