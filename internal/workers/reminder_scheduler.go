package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/hds-conecte/conecte/internal/models"
	"github.com/hds-conecte/conecte/internal/tasks"
)

// StartReminderScheduler sweeps for upcoming events on a cron schedule until
// ctx is cancelled
func StartReminderScheduler(ctx context.Context, client tasks.Enqueuer, db *gorm.DB, schedule string, window time.Duration, logger zerolog.Logger) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		if _, err := EnqueueDueReminders(ctx, client, db, time.Now(), window, logger); err != nil {
			logger.Error().Err(err).Msg("Reminder sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("invalid reminder schedule %q: %w", schedule, err)
	}

	logger.Info().Str("schedule", schedule).Dur("window", window).Msg("Reminder scheduler started")
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info().Msg("Reminder scheduler stopped")
	return nil
}

// EnqueueDueReminders queues a reminder for every active event starting
// within window of now that has not been reminded yet
func EnqueueDueReminders(ctx context.Context, client tasks.Enqueuer, db *gorm.DB, now time.Time, window time.Duration, logger zerolog.Logger) (int, error) {
	var events []models.Event
	err := db.WithContext(ctx).
		Where("active = ? AND reminder_sent_at IS NULL AND start_date > ? AND start_date <= ?", true, now, now.Add(window)).
		Find(&events).Error
	if err != nil {
		return 0, fmt.Errorf("failed to query upcoming events: %w", err)
	}

	enqueued := 0
	for _, event := range events {
		task, err := tasks.NewEventReminderTask(event.ID)
		if err != nil {
			return enqueued, err
		}
		if _, err := client.EnqueueContext(ctx, task); err != nil {
			if errors.Is(err, asynq.ErrTaskIDConflict) {
				logger.Debug().Str("event_id", event.ID).Msg("Reminder already queued")
				continue
			}
			return enqueued, fmt.Errorf("failed to enqueue reminder: %w", err)
		}
		enqueued++
	}

	if enqueued > 0 {
		logger.Info().Int("count", enqueued).Msg("Event reminders enqueued")
	}
	return enqueued, nil
}
