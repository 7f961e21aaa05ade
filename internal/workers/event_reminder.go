package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/hds-conecte/conecte/internal/models"
	"github.com/hds-conecte/conecte/internal/realtime"
	"github.com/hds-conecte/conecte/internal/tasks"
)

// HandleEventReminder broadcasts an upcoming event, once
func HandleEventReminder(ctx context.Context, t *asynq.Task, db *gorm.DB, broker realtime.Broker, logger zerolog.Logger) error {
	payload, err := tasks.ParseReminderPayload(t)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	n, err := SendEventReminder(ctx, db, payload.EventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn().Str("event_id", payload.EventID).Msg("Event vanished before reminder")
			return nil
		}
		return err
	}
	if n == nil {
		logger.Debug().Str("event_id", payload.EventID).Msg("Event reminder already sent")
		return nil
	}

	if err := broker.Publish(ctx, *n); err != nil {
		// The row is stored; live delivery is best effort
		logger.Warn().Err(err).Str("notification_id", n.ID).Msg("Failed to publish reminder")
	}

	logger.Info().Str("event_id", payload.EventID).Str("notification_id", n.ID).Msg("Event reminder broadcast")
	return nil
}

// SendEventReminder inserts the event's broadcast reminder and stamps the
// event so later runs are no-ops. It returns nil when there is nothing to send.
func SendEventReminder(ctx context.Context, db *gorm.DB, eventID string) (*models.Notification, error) {
	var created *models.Notification

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var event models.Event
		if err := models.FindByID(tx, eventID, &event); err != nil {
			return err
		}
		if event.ReminderSentAt != nil || !event.Active {
			return nil
		}

		n := models.Notification{
			Title:   "Lembrete de Evento",
			Message: reminderMessage(event),
			Type:    models.NotificationEvent,
		}
		if err := tx.Create(&n).Error; err != nil {
			return fmt.Errorf("failed to create notification: %w", err)
		}
		created = &n

		now := time.Now()
		return tx.Model(&event).Update("reminder_sent_at", &now).Error
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func reminderMessage(e models.Event) string {
	when := e.StartDate.Format("02/01/2006 às 15:04")
	if e.Location != nil && *e.Location != "" {
		return fmt.Sprintf("%s acontecerá em %s no local %s.", e.Title, when, *e.Location)
	}
	return fmt.Sprintf("%s acontecerá em %s.", e.Title, when)
}
