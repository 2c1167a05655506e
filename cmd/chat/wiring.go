package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hola-chat/config"
	"hola-chat/internal/auth"
	"hola-chat/internal/backend"
	"hola-chat/internal/chat"
	"hola-chat/internal/directory"
	"hola-chat/internal/redis"
	"hola-chat/internal/repository"
	"hola-chat/internal/storage"
	"hola-chat/pkg/database"
	hola_errors "hola-chat/pkg/errors"
	"hola-chat/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
)

// deps is everything a command needs, wired against the configured
// database, Redis, object storage and realtime gateway.
type deps struct {
	cfg       *config.Config
	pool      *pgxpool.Pool
	rdb       *goredis.Client
	rows      *repository.TableRepository
	backend   *backend.Client
	session   *chat.Session
	directory *directory.Service
}

func connect(ctx context.Context, cmd *cli.Command) (*deps, error) {
	cfg := config.LoadConfig()
	if v := cmd.String("token"); v != "" {
		cfg.AccessToken = v
	}
	if v := cmd.String("realtime-url"); v != "" {
		cfg.RealtimeURL = v
	}

	l := logger.Nop()
	if cmd.Bool("verbose") {
		l = logger.New(logger.DevelopmentMode)
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	d := &deps{cfg: cfg}
	var err error
	if d.pool, err = database.Connect(connectCtx, database.DSN(cfg)); err != nil {
		return nil, err
	}
	if d.rdb, err = redis.Connect(connectCtx, redis.ConfigFrom(cfg)); err != nil {
		d.Close()
		return nil, err
	}

	var files backend.FileStore
	if cfg.S3Bucket != "" && cfg.S3Region != "" {
		s3, err := storage.NewClient(connectCtx, storage.ConfigFrom(cfg))
		if err != nil {
			d.Close()
			return nil, err
		}
		files = s3
	}

	d.rows = repository.NewTableRepository(d.pool, redis.NewPublisher(d.rdb), l)
	d.backend = backend.NewClient(d.rows, files, auth.NewTokenService(cfg.JWTSecret, 0), backend.Options{
		AccessToken: cfg.AccessToken,
		RealtimeURL: cfg.RealtimeURL,
		Logger:      l,
	})
	d.session = chat.NewSession(d.backend, chat.Options{
		Sync:   cfg.Sync,
		Typing: redis.NewTypingStore(d.rdb, redis.NewPublisher(d.rdb), 0),
		Logger: l,
	})
	if d.directory, err = directory.NewService(d.backend, 0, l); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *deps) Close() {
	if d.session != nil {
		d.session.Close()
	}
	if d.directory != nil {
		d.directory.Close()
	}
	if d.rdb != nil {
		_ = d.rdb.Close()
	}
	if d.pool != nil {
		d.pool.Close()
	}
}

// describe turns engine errors into something a person can act on.
func describe(err error) error {
	switch {
	case errors.Is(err, hola_errors.ErrAuth):
		return fmt.Errorf("you must sign in first (set HOLA_ACCESS_TOKEN, see `hola token`)")
	case errors.Is(err, hola_errors.ErrNotFound):
		return fmt.Errorf("not found: %w", err)
	case errors.Is(err, hola_errors.ErrSubscription):
		return fmt.Errorf("live updates unavailable, retrying in the background")
	case errors.Is(err, hola_errors.ErrUploadInProgress):
		return fmt.Errorf("wait for the current upload to finish")
	case errors.Is(err, hola_errors.ErrUpload):
		return fmt.Errorf("attachment upload failed: %w", err)
	case errors.Is(err, hola_errors.ErrTransport):
		return fmt.Errorf("network problem: %w", err)
	default:
		return err
	}
}
