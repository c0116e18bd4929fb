package mint

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	tokenmint "github.com/b402-foundation/tokenmint"
)

// pgErrUniqueViolation is PostgreSQL's unique_violation error code.
const pgErrUniqueViolation = "23505"

// Schema is the table backing the durable replay guard.
const Schema = `
CREATE TABLE IF NOT EXISTS payment_references (
	ref          TEXT PRIMARY KEY,
	status       TEXT NOT NULL,
	mint_tx_hash TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore is a durable replay guard. Unlike MemoryStore, its
// at-most-once guarantee survives process restarts and is shared across
// service instances pointing at the same database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to Postgres and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure payment_references schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Reserve inserts the reference as reserved. A unique violation means the
// reference is already reserved or committed and the mint is rejected.
func (s *PostgresStore) Reserve(ctx context.Context, ref string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO payment_references (ref, status) VALUES ($1, 'reserved')`, ref)
	if err != nil {
		if isDuplicateKeyError(err) {
			return &tokenmint.Error{
				Code:    tokenmint.ErrCodeReplayRejected,
				Message: fmt.Sprintf("payment reference %s has already been used for minting", ref),
			}
		}
		return fmt.Errorf("reserve payment reference: %w", err)
	}
	return nil
}

// Commit records the mint outcome for a reserved reference.
func (s *PostgresStore) Commit(ctx context.Context, ref string, mintTxHash string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE payment_references SET status = 'committed', mint_tx_hash = $2 WHERE ref = $1`,
		ref, mintTxHash)
	if err != nil {
		return fmt.Errorf("commit payment reference: %w", err)
	}
	return nil
}

// Release deletes the reservation unless it was committed.
func (s *PostgresStore) Release(ctx context.Context, ref string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM payment_references WHERE ref = $1 AND status = 'reserved'`, ref)
	if err != nil {
		return fmt.Errorf("release payment reference: %w", err)
	}
	return nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}
	return false
}

// Compile-time interface check.
var _ tokenmint.ReplayStore = (*PostgresStore)(nil)
