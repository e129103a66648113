// Package postgres implements store.Store against the pgx pool. SQL lives
// inline next to the method that runs it; the schema is owned by the
// migration files under internal/migrate.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rajvveer/careOps/internal/core"
	"github.com/rajvveer/careOps/internal/crypto"
	"github.com/rajvveer/careOps/internal/db"
	"github.com/rajvveer/careOps/internal/store"
)

// querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx, so every
// repo method runs unchanged inside or outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the production persistence layer. Integration configs pass
// through box before they reach the table, so credentials are never stored
// in the clear.
type Store struct {
	pool *pgxpool.Pool // nil when this Store is a transaction view
	q    querier
	box  *crypto.AEAD
}

func New(d *db.DB, box *crypto.AEAD) *Store {
	pool := d.Pool()
	return &Store{pool: pool, q: pool, box: box}
}

var _ store.Store = (*Store)(nil)

// InTx begins a transaction and hands fn a Store bound to it. Nested calls
// join the open transaction.
func (s *Store) InTx(ctx context.Context, fn func(store.Store) error) error {
	if s.pool == nil {
		return fn(s)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(&Store{q: tx, box: s.box}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// scanner is satisfied by pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return core.NotFoundf(format, args...)
	}
	return err
}
