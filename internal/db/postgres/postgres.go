// Package postgres implements the persistence adapter over a client/server
// PostgreSQL backend via pgx. Lock contention is not retried here; the
// server serializes writers on its own.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ebrangerieau/BandtrackPlus/internal/db"
)

type DB struct {
	pool *pgxpool.Pool
}

func Open(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", db.ErrUnavailable, err)
	}
	return &DB{pool: pool}, nil
}

func (d *DB) Dialect() db.Dialect {
	return db.Dialect{
		AutoPrimaryKey: "SERIAL PRIMARY KEY",
		Blob:           "BYTEA",
		Timestamp:      "TIMESTAMP",
	}
}

func (d *DB) Close() error {
	d.pool.Close()
	return nil
}

func (d *DB) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	q, err := db.Translate(query, db.Dollar, len(args))
	if err != nil {
		return 0, err
	}
	tag, err := d.pool.Exec(ctx, q, args...)
	if err != nil {
		return 0, classify(err)
	}
	return tag.RowsAffected(), nil
}

// Insert pins a single connection so reading lastval() observes the insert
// it just ran.
func (d *DB) Insert(ctx context.Context, query string, args ...any) (int64, error) {
	q, err := db.Translate(query, db.Dollar, len(args))
	if err != nil {
		return 0, err
	}
	conn, err := d.pool.Acquire(ctx)
	if err != nil {
		return 0, classify(err)
	}
	defer conn.Release()
	if _, err := conn.Exec(ctx, q, args...); err != nil {
		return 0, classify(err)
	}
	var id int64
	if err := conn.QueryRow(ctx, `SELECT lastval()`).Scan(&id); err != nil {
		return 0, classify(err)
	}
	return id, nil
}

func (d *DB) Query(ctx context.Context, query string, args ...any) (db.Rows, error) {
	q, err := db.Translate(query, db.Dollar, len(args))
	if err != nil {
		return nil, err
	}
	rows, err := d.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, classify(err)
	}
	return pgxRows{rows: rows}, nil
}

func (d *DB) QueryRow(ctx context.Context, query string, args ...any) db.Row {
	q, err := db.Translate(query, db.Dollar, len(args))
	if err != nil {
		return db.NewErrRow(err)
	}
	return pgxRow{row: d.pool.QueryRow(ctx, q, args...)}
}

func (d *DB) Begin(ctx context.Context) (db.Tx, error) {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, classify(err)
	}
	return &Tx{tx: tx, ctx: ctx}, nil
}

func (d *DB) HasTable(ctx context.Context, table string) (bool, error) {
	var n int
	err := d.QueryRow(ctx, `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = 'public' AND table_name = ?`, table).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *DB) HasColumn(ctx context.Context, table, column string) (bool, error) {
	var n int
	err := d.QueryRow(ctx, `SELECT COUNT(*) FROM information_schema.columns WHERE table_name = ? AND column_name = ?`, table, column).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type Tx struct {
	tx  pgx.Tx
	ctx context.Context
}

func (t *Tx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	q, err := db.Translate(query, db.Dollar, len(args))
	if err != nil {
		return 0, err
	}
	tag, err := t.tx.Exec(ctx, q, args...)
	if err != nil {
		return 0, classify(err)
	}
	return tag.RowsAffected(), nil
}

func (t *Tx) Insert(ctx context.Context, query string, args ...any) (int64, error) {
	q, err := db.Translate(query, db.Dollar, len(args))
	if err != nil {
		return 0, err
	}
	if _, err := t.tx.Exec(ctx, q, args...); err != nil {
		return 0, classify(err)
	}
	var id int64
	if err := t.tx.QueryRow(ctx, `SELECT lastval()`).Scan(&id); err != nil {
		return 0, classify(err)
	}
	return id, nil
}

func (t *Tx) Query(ctx context.Context, query string, args ...any) (db.Rows, error) {
	q, err := db.Translate(query, db.Dollar, len(args))
	if err != nil {
		return nil, err
	}
	rows, err := t.tx.Query(ctx, q, args...)
	if err != nil {
		return nil, classify(err)
	}
	return pgxRows{rows: rows}, nil
}

func (t *Tx) QueryRow(ctx context.Context, query string, args ...any) db.Row {
	q, err := db.Translate(query, db.Dollar, len(args))
	if err != nil {
		return db.NewErrRow(err)
	}
	return pgxRow{row: t.tx.QueryRow(ctx, q, args...)}
}

func (t *Tx) Commit() error   { return classify(t.tx.Commit(t.ctx)) }
func (t *Tx) Rollback() error { return classify(t.tx.Rollback(t.ctx)) }

func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return db.ErrNoRows
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505" || pgErr.Code == "23P01":
			return fmt.Errorf("%w: %v", db.ErrConflict, err)
		case pgErr.Code == "40001" || pgErr.Code == "40P01" || pgErr.Code == "57P01":
			return fmt.Errorf("%w: %v", db.ErrUnavailable, err)
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08":
			return fmt.Errorf("%w: %v", db.ErrUnavailable, err)
		}
	}
	return err
}

type pgxRows struct {
	rows pgx.Rows
}

func (r pgxRows) Next() bool             { return r.rows.Next() }
func (r pgxRows) Scan(dest ...any) error { return classify(r.rows.Scan(dest...)) }
func (r pgxRows) Err() error             { return classify(r.rows.Err()) }
func (r pgxRows) Close()                 { r.rows.Close() }

type pgxRow struct {
	row pgx.Row
}

func (r pgxRow) Scan(dest ...any) error { return classify(r.row.Scan(dest...)) }
