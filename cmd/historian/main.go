// cmd/historian/main.go is an asynchronous historian service that pops game action
// records from a Redis queue and persists them to PostgreSQL.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/uno/internal/cache"
	"github.com/jason-s-yu/uno/internal/config"
	"github.com/jason-s-yu/uno/internal/database"
	"github.com/jason-s-yu/uno/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()

	logger := logrus.New()
	logger.SetLevel(cfg.Level())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.ConnectDB(ctx, cfg.ConnString())
	if err != nil {
		logger.Fatalf("database: %v", err)
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatalf("migrate: %v", err)
	}

	rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	hs := historian.NewService(rdb, database.NewStore(pool), historian.Options{
		Queue:      cfg.HistorianQueueName,
		BatchSize:  cfg.HistorianBatchSize,
		FlushDelay: time.Duration(cfg.HistorianFlushMS) * time.Millisecond,
	}, logger)
	hs.Run(ctx)
	logger.Info("Historian shutdown complete.")
}
