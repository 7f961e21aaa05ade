package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hds-conecte/conecte/internal/config"
	"github.com/hds-conecte/conecte/internal/database"
	"github.com/hds-conecte/conecte/internal/logger"
	"github.com/hds-conecte/conecte/internal/mailer"
	"github.com/hds-conecte/conecte/internal/realtime"
	"github.com/hds-conecte/conecte/internal/tasks"
	"github.com/hds-conecte/conecte/internal/workers"
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

	log.Info().Str("version", version).Msg("Starting HDS Conecte worker")

	db, err := database.Open(cfg.Database.URL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer database.Close(db)

	// Asynq client for the reminder sweeps
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Address})
	defer asynqClient.Close()

	broker := realtime.NewRedisBroker(cfg.Redis.Address, log)
	defer broker.Close()

	var sender mailer.Sender
	if cfg.Email.ResendAPIKey != "" {
		sender = mailer.NewResendSender(cfg.Email.ResendAPIKey, cfg.Email.From, log)
	} else {
		log.Warn().Msg("RESEND_API_KEY not set, emails are only logged")
		sender = mailer.NewLogSender(log)
	}

	asynqServer := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.Redis.Address},
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				tasks.QueueCritical: 6, // Auth emails
				tasks.QueueDefault:  3,
			},
			Logger: &asynqLogger{log: log},
		},
	)

	// Register task handlers
	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeSendPasswordReset, func(ctx context.Context, t *asynq.Task) error {
		return workers.HandleSendPasswordReset(ctx, t, sender, cfg.Server.SiteURL, log)
	})
	mux.HandleFunc(tasks.TypeSendSignupConfirmation, func(ctx context.Context, t *asynq.Task) error {
		return workers.HandleSendSignupConfirmation(ctx, t, sender, cfg.Server.SiteURL, log)
	})
	mux.HandleFunc(tasks.TypeEventReminder, func(ctx context.Context, t *asynq.Task) error {
		return workers.HandleEventReminder(ctx, t, db, broker, log)
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Msg("Starting Asynq worker server...")
		if err := asynqServer.Start(mux); err != nil {
			return fmt.Errorf("asynq worker server: %w", err)
		}
		<-gctx.Done()
		log.Info().Msg("Stopping Asynq worker - waiting for tasks to finish...")
		asynqServer.Shutdown()
		return nil
	})

	g.Go(func() error {
		return workers.StartReminderScheduler(gctx, asynqClient, db, cfg.Worker.ReminderSchedule, cfg.Worker.ReminderWindow, log)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Worker failed")
	}
	log.Info().Msg("Worker shutdown complete")
}

// asynqLogger is a wrapper to make zerolog compatible with Asynq's logger interface
type asynqLogger struct {
	log zerolog.Logger
}

func (l *asynqLogger) Debug(args ...interface{}) {
	l.log.Debug().Msg(fmt.Sprint(args...))
}

func (l *asynqLogger) Info(args ...interface{}) {
	l.log.Info().Msg(fmt.Sprint(args...))
}

func (l *asynqLogger) Warn(args ...interface{}) {
	l.log.Warn().Msg(fmt.Sprint(args...))
}

func (l *asynqLogger) Error(args ...interface{}) {
	l.log.Error().Msg(fmt.Sprint(args...))
}

func (l *asynqLogger) Fatal(args ...interface{}) {
	l.log.Fatal().Msg(fmt.Sprint(args...))
}
