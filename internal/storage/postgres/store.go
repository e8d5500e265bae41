// Package postgres implements the storage contracts on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/joao-fontenele/storefront/internal/storage"
)

// Postgres error codes that mean the transaction lost a race and can be retried.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db *sql.DB
}

var (
	_ storage.Store       = (*Store)(nil)
	_ storage.OrderReader = (*Store)(nil)
	_ storage.CartStore   = (*Store)(nil)
)

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithinTx runs fn inside a READ COMMITTED transaction. The guarded stock
// UPDATE re-checks its predicate after waiting on a row lock, which is what
// makes the conditional decrement safe at this isolation level.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", classify(err))
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(ctx, &tx{q: sqlTx}); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", classify(err))
	}
	return nil
}

func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
			return fmt.Errorf("%w: %s", storage.ErrConflict, pqErr.Message)
		}
	}
	return err
}
