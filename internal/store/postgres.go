package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// writeLockKey is the advisory lock every write transaction takes first, so
// registry counters are never updated by two transactions at once.
const writeLockKey int64 = 0x636f615f72656769

const schemaSQL = `CREATE TABLE IF NOT EXISTS coa_records (
    id         TEXT PRIMARY KEY,
    body       BYTEA NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore persists records in a single PostgreSQL table.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgres constructs a Postgres-backed record store.
func NewPostgres(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the records table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create coa_records: %w", err)
	}
	return nil
}

// Update runs fn in a transaction holding the registry write lock.
func (s *PostgresStore) Update(ctx context.Context, fn func(kv KV) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, writeLockKey); err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}

	if err := fn(pgKV{ctx: ctx, tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// View runs fn in a read-only repeatable-read transaction.
func (s *PostgresStore) View(ctx context.Context, fn func(kv KV) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	return fn(pgKV{ctx: ctx, tx: tx, readOnly: true})
}

type pgKV struct {
	ctx      context.Context
	tx       pgx.Tx
	readOnly bool
}

func (k pgKV) Get(key string) ([]byte, bool, error) {
	var body []byte
	err := k.tx.QueryRow(k.ctx, `SELECT body FROM coa_records WHERE id = $1`, key).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return body, true, nil
}

func (k pgKV) Put(key string, value []byte) error {
	if k.readOnly {
		return fmt.Errorf("put %s: read-only transaction", key)
	}
	_, err := k.tx.Exec(k.ctx, `INSERT INTO coa_records (id, body, updated_at) VALUES ($1, $2, now())
        ON CONFLICT (id) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`, key, value)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (k pgKV) Delete(key string) error {
	if k.readOnly {
		return fmt.Errorf("delete %s: read-only transaction", key)
	}
	if _, err := k.tx.Exec(k.ctx, `DELETE FROM coa_records WHERE id = $1`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
