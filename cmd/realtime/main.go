package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hola-chat/config"
	"hola-chat/internal/auth"
	"hola-chat/internal/domain/message"
	"hola-chat/internal/domain/profile"
	"hola-chat/internal/realtime"
	"hola-chat/internal/redis"
	"hola-chat/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig()

	mode := logger.DevelopmentMode
	if cfg.AppMode == realtime.ReleaseMode {
		mode = logger.ProductionMode
	}
	l := logger.New(mode)
	logger.SetGlobalLogger(l)
	defer l.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	rdb, err := redis.Connect(connectCtx, redis.ConfigFrom(cfg))
	cancel()
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer rdb.Close()

	hub := realtime.NewHub()
	go hub.Run(ctx)

	bridge := realtime.NewRedisBridge(redis.NewSubscriber(rdb), hub, l)
	go func() {
		if err := bridge.Run(ctx, realtime.BridgePatterns); err != nil && !errors.Is(err, context.Canceled) {
			l.Error("redis bridge stopped", zap.Error(err))
			stop()
		}
	}()

	typing := redis.NewTypingStore(rdb, redis.NewPublisher(rdb), 0)
	handler := realtime.NewHandler(hub, realtime.NewChannelAuthorizer(message.TableName, profile.TableName), typing, l)

	srv := realtime.NewServer(cfg, l)
	srv.SetupRoutes(handler, auth.NewTokenService(cfg.JWTSecret, 0), map[string]realtime.HealthCheck{
		"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	})

	if err := srv.Start(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
