package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/hds-conecte/conecte/internal/auth"
	"github.com/hds-conecte/conecte/internal/config"
	"github.com/hds-conecte/conecte/internal/database"
	"github.com/hds-conecte/conecte/internal/logger"
	"github.com/hds-conecte/conecte/internal/realtime"
	"github.com/hds-conecte/conecte/internal/seed"
	"github.com/hds-conecte/conecte/internal/server"
)

var version = "dev" // Will be set during build with -ldflags

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.GetLogger()

	db, err := database.Open(cfg.Database.URL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer database.Close(db)

	if cfg.Server.SeedFile != "" {
		f, err := seed.Load(cfg.Server.SeedFile)
		if err != nil {
			log.Fatal().Err(err).Str("file", cfg.Server.SeedFile).Msg("Failed to load seed file")
		}
		res, err := seed.Apply(db, f, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to apply seed")
		}
		log.Info().
			Int("events", res.Events).
			Int("challenges", res.Challenges).
			Int("teams", res.Teams).
			Int("videos", res.Videos).
			Msg("Seed applied")
	}

	// Asynq client for auth emails
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Address})
	defer asynqClient.Close()

	broker := realtime.NewRedisBroker(cfg.Redis.Address, log)
	defer broker.Close()

	opts := server.Options{
		DB:       db,
		Enqueuer: asynqClient,
		Broker:   broker,
		Version:  version,
	}
	if cfg.OAuth.Enabled() {
		opts.OAuth = auth.NewGoogleProvider(cfg.OAuth.GoogleClientID, cfg.OAuth.GoogleClientSecret, cfg.OAuth.RedirectURL)
	} else {
		log.Warn().Msg("Google sign-in disabled (GOOGLE_CLIENT_ID/GOOGLE_CLIENT_SECRET not set)")
	}

	srv, err := server.New(cfg, log, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", version).Msg("Starting HDS Conecte API...")

	// Blocks until a signal arrives
	if err := srv.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
