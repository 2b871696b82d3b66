// Package main は Web サーバーのエントリーポイントです。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/yourusername/secrets-board/internal/auth"
	"github.com/yourusername/secrets-board/internal/config"
	"github.com/yourusername/secrets-board/internal/httpserver"
	"github.com/yourusername/secrets-board/internal/logutil"
	"github.com/yourusername/secrets-board/internal/server"
	"github.com/yourusername/secrets-board/internal/storage"
	"github.com/yourusername/secrets-board/internal/users"
)

func main() {
	app := &cli.App{
		Name:   "api",
		Usage:  "Share your secrets anonymously",
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the web server (default)",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "Create or update the database schema and exit",
				Action: migrate,
			},
		},
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Error().Err(err).Msg("Application failed")
		os.Exit(1)
	}
}

// bootstrap は設定・ロガー・データベースを用意します。
func bootstrap() (*config.Config, zerolog.Logger, *users.Store, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logutil.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return nil, zerolog.Nop(), nil, nil, err
	}
	log.Logger = logger

	db, err := storage.Open(cfg.DatabasePath, logger)
	if err != nil {
		return nil, logger, nil, nil, err
	}
	if err := users.Migrate(db); err != nil {
		_ = storage.Close(db)
		return nil, logger, nil, nil, err
	}
	closeDB := func() {
		if err := storage.Close(db); err != nil {
			logger.Warn().Err(err).Msg("failed to close database")
		}
	}
	return cfg, logger, users.NewStore(db), closeDB, nil
}

func migrate(c *cli.Context) error {
	cfg, logger, _, closeDB, err := bootstrap()
	if err != nil {
		return err
	}
	defer closeDB()
	logger.Info().Str("database", cfg.DatabasePath).Msg("Database schema is up to date")
	return nil
}

func serve(c *cli.Context) error {
	cfg, logger, store, closeDB, err := bootstrap()
	if err != nil {
		return err
	}
	defer closeDB()

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	backfiller, stopJobs, err := setupBackfiller(cfg, store, logger)
	if err != nil {
		return err
	}
	defer stopJobs()

	attempts, closeAttempts, err := setupAttempts(cfg)
	if err != nil {
		return err
	}
	defer closeAttempts()

	authManager, err := auth.NewManager(cfg, auth.Deps{
		Store:      store,
		Backfiller: backfiller,
		Attempts:   attempts,
	})
	if err != nil {
		return err
	}

	router, err := server.NewRouter(server.Deps{
		Config: cfg,
		Auth:   authManager,
		Store:  store,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	ctx := logutil.WithLogger(c.Context, logger)
	logger.Info().
		Str("mode", cfg.GinMode).
		Bool("google", cfg.GoogleEnabled()).
		Bool("facebook", cfg.FacebookEnabled()).
		Msg("Starting web server")
	return httpserver.Serve(ctx, ":"+cfg.Port, router)
}
