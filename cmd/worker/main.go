// Package main runs the background worker: confirmation e-mails and the
// nearly-sold-out announcement.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/conference-central/backend/config"
	"github.com/conference-central/backend/internal/announcements"
	"github.com/conference-central/backend/internal/notifications"
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
	if !cfg.Redis.Enabled() {
		logger.Fatal("worker requires REDIS_ADDR")
	}

	ctx := context.Background()
	st, err := database.Open(ctx, cfg, false, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer st.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var sender notifications.Sender = notifications.NewLogSender(logger)
	if cfg.Email.ResendAPIKey != "" {
		sender, err = notifications.NewResendSender(cfg.Email.ResendAPIKey, cfg.Email.From())
		if err != nil {
			logger.Fatal("email sender", zap.Error(err))
		}
	} else {
		logger.Warn("RESEND_API_KEY not set; e-mails are only logged")
	}

	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := notifications.NewProcessor(jobQueue, sender, logger)
	refresher := announcements.NewRefresher(st, announcements.NewRedisCache(rdb.Client), logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		processor.Run(workerCtx)
	}()
	go func() {
		defer wg.Done()
		refresher.Run(workerCtx, cfg.Announcements.RefreshInterval)
	}()
	logger.Info("worker started", zap.Duration("announcement_interval", cfg.Announcements.RefreshInterval))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	wg.Wait()
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
