// Package db defines the statement-execution contract shared by the two
// storage backends. Callers write SQL with `?` positional placeholders and
// never branch on which backend is active; each adapter translates
// placeholders, classifies driver errors, and exposes generated row ids
// through the same accessor.
package db

import "context"

// Row is a single-row result. Errors surface from Scan, including ErrNoRows.
type Row interface {
	Scan(dest ...any) error
}

// Rows is a multi-row result. Callers must Close it and check Err after
// iteration.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Querier executes statements. Implemented by both adapters and by their
// transactions, so store code runs unchanged inside or outside a unit of
// work.
type Querier interface {
	// Exec runs a statement and returns the number of affected rows.
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	// Insert runs an INSERT and returns the generated row id.
	Insert(ctx context.Context, query string, args ...any) (int64, error)
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) Row
}

// Tx is a unit of work. Every Tx must end in Commit or Rollback; WithTx
// enforces that on all exit paths.
type Tx interface {
	Querier
	Commit() error
	Rollback() error
}

// Dialect carries the few DDL fragments that differ between backends. Only
// the migration engine consults it; runtime statements are dialect-free.
type Dialect struct {
	// AutoPrimaryKey is the full column type clause for an integer
	// auto-generated primary key.
	AutoPrimaryKey string
	// Blob is the type name for binary columns.
	Blob string
	// Timestamp is the type name for timestamp columns.
	Timestamp string
}

// Adapter is the uniform interface over the embedded and the client/server
// backend. Selected once at startup from configuration and injected
// everywhere.
type Adapter interface {
	Querier
	Begin(ctx context.Context) (Tx, error)
	// HasTable and HasColumn report schema state, for idempotent migrations.
	HasTable(ctx context.Context, table string) (bool, error)
	HasColumn(ctx context.Context, table, column string) (bool, error)
	Dialect() Dialect
	Close() error
}

// WithTx runs fn inside a unit of work. The transaction is rolled back when
// fn returns an error or panics, and committed otherwise.
func WithTx(ctx context.Context, a Adapter, fn func(tx Tx) error) error {
	tx, err := a.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
