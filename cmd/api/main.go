// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/user-service/internal/api"
	"github.com/yourusername/user-service/internal/auth"
	"github.com/yourusername/user-service/internal/config"
	"github.com/yourusername/user-service/internal/logging"
	"github.com/yourusername/user-service/internal/metrics"
	"github.com/yourusername/user-service/internal/sanitize"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	logger := logging.New("user-service", logging.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ユーザーストアの構築（DATABASE_URL 未設定ならインメモリ）
	store, closeStore, err := setupStore(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to set up store: %v", err)
	}
	defer closeStore()

	m := metrics.New()
	authManager := auth.NewManager(cfg, store, nil, logger)
	authManager.Observe(m)
	router := api.NewRouter(api.Deps{
		Config:    cfg,
		Logger:    logger,
		Store:     store,
		Auth:      authManager,
		Sanitizer: sanitize.New(),
		Metrics:   m,
	})

	go pruneAttempts(ctx, authManager.Limiter(), logger)

	// サーバーの起動
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("starting API server", "addr", srv.Addr, "mode", cfg.GinMode, "delivery", cfg.SessionDelivery)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

// pruneAttempts は期限切れのログイン試行カウンターを定期的に削除します。
func pruneAttempts(ctx context.Context, limiter *auth.RateLimiter, logger *slog.Logger) {
	interval := limiter.Window()
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := limiter.Prune(); n > 0 {
				logger.Debug("pruned login attempt counters", "removed", n)
			}
		}
	}
}
