package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// Postgres stores the value in the kv_store table of a PostgreSQL database.
type Postgres struct {
	pool *pgxpool.Pool
	key  string
}

// NewPostgres connects to dsn and runs migrations.
func NewPostgres(ctx context.Context, dsn, key string) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("postgres backend requires a dsn")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	err = RunMigrations(db, "postgres")
	db.Close()
	if err != nil {
		pool.Close()
		return nil, err
	}

	if key == "" {
		key = DefaultKey
	}
	return &Postgres{pool: pool, key: key}, nil
}

func (p *Postgres) Load(ctx context.Context) ([]byte, error) {
	var data []byte
	err := p.pool.QueryRow(ctx, `SELECT value FROM kv_store WHERE key = $1`, p.key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", p.key, err)
	}
	return data, nil
}

func (p *Postgres) Save(ctx context.Context, data []byte) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO kv_store (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`, p.key, data)
	if err != nil {
		return fmt.Errorf("save %s: %w", p.key, err)
	}
	return nil
}

func (p *Postgres) Remove(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM kv_store WHERE key = $1`, p.key); err != nil {
		return fmt.Errorf("remove %s: %w", p.key, err)
	}
	return nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
