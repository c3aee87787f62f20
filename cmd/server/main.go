// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/uno/internal/auth"
	"github.com/jason-s-yu/uno/internal/cache"
	"github.com/jason-s-yu/uno/internal/config"
	"github.com/jason-s-yu/uno/internal/database"
	"github.com/jason-s-yu/uno/internal/game"
	"github.com/jason-s-yu/uno/internal/handlers"
	"github.com/jason-s-yu/uno/internal/store"
	"github.com/jason-s-yu/uno/internal/store/memory"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()

	logger := logrus.New()
	logger.SetLevel(cfg.Level())

	if err := initAuth(cfg); err != nil {
		logger.Fatalf("auth init: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("store init: %v", err)
	}
	defer st.Close()

	var actionLog game.ActionRecorder
	if cfg.RedisAddr != "" {
		rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			logger.Warnf("action log disabled: %v", err)
		} else {
			defer rdb.Close()
			actionLog = cache.NewPublisher(rdb, cfg.HistorianQueueName)
		}
	}

	api := handlers.NewAPIServer(game.NewGameStore(st, actionLog, logger), logger)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: api.Routes(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("shutdown: %v", err)
		}
	}()

	logger.Infof("Running on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("server exited: %v", err)
	}
}

func initAuth(cfg *config.Config) error {
	if cfg.PrivateKeyPath != "" && cfg.PublicKeyPath != "" {
		return auth.InitFromPath(cfg.PrivateKeyPath, cfg.PublicKeyPath, cfg.TokenExpireTime)
	}
	return auth.Init(cfg.TokenExpireTime)
}

func openStore(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (store.Store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("using in-memory store; games are lost on restart")
		return memory.New(), nil
	case config.StorePostgres:
		pool, err := database.ConnectDB(ctx, cfg.ConnString())
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Infof("Connected to database at %s:%d", cfg.PGHost, cfg.PGPort)
		return database.NewStore(pool), nil
	default:
		return nil, fmt.Errorf("unknown STORE %q", cfg.Store)
	}
}
