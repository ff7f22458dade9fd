// Package db provides the order store backends and their connection helpers.
package db

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	BackendJSON     = "json"
	BackendMySQL    = "mysql"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type StoreOptions struct {
	Backend     string
	DataDir     string
	MySQLDSN    string
	DatabaseURL string
	Logger      *slog.Logger
}

// NewOrderStore builds the backend named by opts.Backend. It is called once at startup.
func NewOrderStore(ctx context.Context, opts StoreOptions) (OrderStore, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}

	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case BackendJSON:
		return NewFileOrderStore(opts.DataDir, opts.Logger)
	case BackendMySQL:
		return OpenMySQL(ctx, opts.MySQLDSN)
	case BackendPostgres:
		pool, err := Connect(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, err
		}
		store := NewPostgresOrderStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return store, nil
	case BackendMemory:
		return NewMemoryOrderStore(), nil
	default:
		return nil, fmt.Errorf("unsupported order store backend: %q", opts.Backend)
	}
}

func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	config.ConnConfig.Tracer = newQueryTracer()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
