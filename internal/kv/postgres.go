package kv

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE SCHEMA IF NOT EXISTS printdeck;
CREATE TABLE IF NOT EXISTS printdeck.kv (
	key        text PRIMARY KEY,
	value      bytea NOT NULL,
	expires_at timestamptz
);`

// Postgres is a Store backed by a single kv table. Expired rows are treated
// as absent and reaped lazily on read.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects, pings, and ensures the kv table exists.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, err
	}
	return &Postgres{pool: pool}, nil
}

func (s *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	var expiresAt *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT value, expires_at FROM printdeck.kv WHERE key = $1`, key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if expiresAt != nil && !expiresAt.After(time.Now()) {
		_, _ = s.pool.Exec(ctx, `DELETE FROM printdeck.kv WHERE key = $1`, key)
		return nil, ErrNotFound
	}
	return value, nil
}

func (s *Postgres) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO printdeck.kv(key, value, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, value, deadline(ttl))
	return err
}

func (s *Postgres) Delete(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM printdeck.kv WHERE key = $1`, key)
	return err
}

func (s *Postgres) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	// An expired row no longer owns the key, so the upsert may reclaim it.
	ct, err := s.pool.Exec(ctx, `
		INSERT INTO printdeck.kv(key, value, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
		WHERE printdeck.kv.expires_at IS NOT NULL AND printdeck.kv.expires_at <= now()`,
		key, value, deadline(ttl))
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// Update serializes read-modify-write on a key with an advisory lock.
func (s *Postgres) Update(ctx context.Context, key string, ttl time.Duration, fn func(old []byte) ([]byte, error)) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// A missing row gives FOR UPDATE nothing to lock, so two first writers
	// could both read nil and the later commit would win. The advisory lock
	// serializes on the key itself and is released at commit/rollback.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return err
	}

	var old []byte
	var expiresAt *time.Time
	err = tx.QueryRow(ctx, `
		SELECT value, expires_at FROM printdeck.kv WHERE key = $1`, key,
	).Scan(&old, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		old = nil
	} else if err != nil {
		return err
	} else if expiresAt != nil && !expiresAt.After(time.Now()) {
		old = nil
	}

	next, err := fn(old)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO printdeck.kv(key, value, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, next, deadline(ttl)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

func deadline(ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := time.Now().Add(ttl)
	return &t
}
