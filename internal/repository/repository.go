// Package repository is the Postgres store behind the gateway: account
// balances and billing state, the usage event log, and operator keys.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool defaults. Every metered request holds a connection for the balance
// check and again for the debit, so MaxConns bounds gateway concurrency on
// the database side.
const (
	DefaultMaxConns        int32 = 10
	DefaultMinConns        int32 = 2
	DefaultMaxConnLifetime       = 30 * time.Minute
)

// PoolConfig sizes the connection pool. Zero fields take the defaults.
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Repository provides database access methods.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a Repository and verifies the connection.
func New(ctx context.Context, databaseURL string, pc PoolConfig) (*Repository, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	applyPoolConfig(config, pc)

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Repository{pool: pool}, nil
}

func applyPoolConfig(config *pgxpool.Config, pc PoolConfig) {
	if pc.MaxConns <= 0 {
		pc.MaxConns = DefaultMaxConns
	}
	if pc.MinConns <= 0 {
		pc.MinConns = DefaultMinConns
	}
	pc.MinConns = min(pc.MinConns, pc.MaxConns)
	if pc.MaxConnLifetime <= 0 {
		pc.MaxConnLifetime = DefaultMaxConnLifetime
	}

	config.MaxConns = pc.MaxConns
	config.MinConns = pc.MinConns
	config.MaxConnLifetime = pc.MaxConnLifetime
}

// Ping checks database connectivity for readiness probes.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the connection pool.
func (r *Repository) Close() {
	r.pool.Close()
}

// Pool returns the underlying connection pool for test fixtures.
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}
