package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"

	"github.com/yourusername/user-service/internal/config"
	"github.com/yourusername/user-service/internal/storage"
	"github.com/yourusername/user-service/internal/users"
)

const (
	dbConnectRetries  = 30
	dbConnectInterval = 2 * time.Second
)

// setupStore は設定に応じてユーザーストアを構築し、終了時に呼ぶ関数と一緒に返します。
func setupStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (users.Store, func(), error) {
	var (
		store   users.Store
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL is not set; using in-memory store")
		store = storage.NewMemory()
	} else {
		pool, err := openPool(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, pool.Close)

		if cfg.MigrateOnStart {
			if err := storage.Migrate(ctx, pool, logger); err != nil {
				closeAll()
				return nil, nil, err
			}
		}
		store = storage.NewPostgres(pool)
	}

	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opt)
		closers = append(closers, func() { _ = rdb.Close() })

		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			// キャッシュは任意なので起動は続ける
			logger.Warn("redis is not reachable; cache reads will fall through", "error", err)
		}
		cancel()

		store = storage.NewCachedStore(store, rdb, cfg.CacheTTL(), logger)
	}

	return store, closeAll, nil
}

// openPool はデータベースが接続を受け付けるまで一定間隔で待ちます。
func openPool(ctx context.Context, url string, logger *slog.Logger) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	backoff := retry.WithMaxRetries(dbConnectRetries, retry.NewConstant(dbConnectInterval))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			logger.Info("waiting for database", "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}
