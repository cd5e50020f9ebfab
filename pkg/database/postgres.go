// Package database provides PostgreSQL connection pooling.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConfig sizes the connection pool. Zero values keep the pgxpool defaults.
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	// AfterConnect runs on each new connection, e.g. pgvector type registration.
	AfterConnect func(context.Context, *pgx.Conn) error
}

// ParseConfig parses databaseURL and applies cfg on top of it.
func ParseConfig(databaseURL string, cfg *PoolConfig) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	if cfg == nil {
		return poolCfg, nil
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	if cfg.MinConns > 0 {
		poolCfg.MinConns = min(cfg.MinConns, poolCfg.MaxConns)
	}

	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}

	if cfg.AfterConnect != nil {
		poolCfg.AfterConnect = cfg.AfterConnect
	}

	return poolCfg, nil
}

// NewPostgresPool creates a connection pool and pings the server once.
func NewPostgresPool(ctx context.Context, databaseURL string, cfg *PoolConfig) (*pgxpool.Pool, error) {
	poolCfg, err := ParseConfig(databaseURL, cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Successfully connected to PostgreSQL",
		"max_conns", poolCfg.MaxConns, "min_conns", poolCfg.MinConns)

	return pool, nil
}
