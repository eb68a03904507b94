// Package store is the relational mirror of ledger state: parties, escrows,
// and deposit records. The ledger remains the source of truth; every
// mutating access here is written as an upsert or a conditional update so
// the mirror converges instead of assuming consistency.
package store

import (
	"context"
	_ "embed"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

type Store struct{ DB *pgxpool.Pool }

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

// EnsureSchema creates the engine's tables if they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.DB.Exec(ctx, schema)
	return err
}
