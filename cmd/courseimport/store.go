package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/courseimport/internal/config"
	"github.com/JonMunkholm/courseimport/internal/store"
)

// openStore connects the configured driver. The returned func releases it.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (store.Store, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse database URL: %w", err)
		}
		poolConfig.MaxConns = int32(cfg.MaxConns)
		poolConfig.MinConns = int32(cfg.MinConns)
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping database: %w", err)
		}

		if u, err := url.Parse(cfg.DatabaseURL); err == nil {
			logger.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
		} else {
			logger.Info("connected to database")
		}
		return store.NewPostgres(pool), pool.Close, nil

	case config.DriverPostgREST:
		p, err := store.NewPostgREST(store.PostgRESTConfig{
			BaseURL:    cfg.SupabaseURL,
			APIKey:     cfg.SupabaseKey,
			Timeout:    cfg.HTTPTimeout,
			MaxRetries: cfg.MaxRetries,
			Logger:     logger,
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using postgrest store", "url", cfg.SupabaseURL)
		return p, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
