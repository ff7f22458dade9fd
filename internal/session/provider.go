package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

type Config struct {
	Provider              string
	RedisConnectionString string
	Logger                *slog.Logger
}

// NewStore returns the admin session backend. Redis lets sessions survive restarts and span replicas.
func NewStore(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(ctx, cfg.RedisConnectionString, cfg.Logger)
	default:
		return nil, fmt.Errorf("unsupported session store provider: %s", cfg.Provider)
	}
}
