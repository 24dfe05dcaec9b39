package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/procura-app/procura/internal/platform/db"
)

// Postgres stores blobs in an app_state JSONB table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres ensures the table exists and returns the backend.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	if pool == nil {
		return nil, errors.New("snapshot/postgres: pool required")
	}
	_, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS app_state (
	key TEXT PRIMARY KEY,
	payload JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`)
	if err != nil {
		return nil, fmt.Errorf("snapshot/postgres: create table: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Load(ctx context.Context, key string) ([]byte, error) {
	var blob []byte
	err := p.pool.QueryRow(ctx, `SELECT payload FROM app_state WHERE key = $1`, key).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot/postgres: select: %w", err)
	}
	return blob, nil
}

// Save upserts the blob while holding a transaction-scoped advisory lock on the key.
func (p *Postgres) Save(ctx context.Context, key string, blob []byte) error {
	return db.WithTx(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return fmt.Errorf("snapshot/postgres: lock: %w", err)
		}
		_, err := tx.Exec(ctx, `INSERT INTO app_state (key, payload, updated_at) VALUES ($1, $2, NOW())
ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()`, key, string(blob))
		if err != nil {
			return fmt.Errorf("snapshot/postgres: upsert: %w", err)
		}
		return nil
	})
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM app_state WHERE key = $1`, key); err != nil {
		return fmt.Errorf("snapshot/postgres: delete: %w", err)
	}
	return nil
}
