// Package main runs the conference HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/conference-central/backend/config"
	"github.com/conference-central/backend/internal/announcements"
	"github.com/conference-central/backend/internal/auth"
	"github.com/conference-central/backend/internal/notifications"
	"github.com/conference-central/backend/internal/server"
	"github.com/conference-central/backend/pkg/database"
	"github.com/conference-central/backend/pkg/queue"
	"github.com/conference-central/backend/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	st, err := database.Open(ctx, cfg, true, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer st.Close()

	deps := server.Deps{
		Store:          st,
		JWT:            auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours),
		Announcements:  announcements.NewMemoryCache(),
		AllowedOrigins: cfg.Server.CORSAllowedOrigins,
		Logger:         logger,
	}

	// Redis carries the shared announcement and the e-mail queue. Without it the
	// server refreshes its own in-process announcement and skips e-mails.
	refreshCtx, refreshCancel := context.WithCancel(context.Background())
	defer refreshCancel()
	if cfg.Redis.Enabled() {
		rdb, err := redis.NewClient(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		deps.Announcements = announcements.NewRedisCache(rdb.Client)
		deps.Notifier = notifications.NewEnqueuer(queue.NewQueue(rdb.Client, logger), logger)
	} else {
		logger.Warn("REDIS_ADDR not set; confirmation e-mails disabled")
		refresher := announcements.NewRefresher(st, deps.Announcements, logger)
		go refresher.Run(refreshCtx, cfg.Announcements.RefreshInterval)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      server.NewRouter(deps),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	refreshCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
