package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// Task type constants
const (
	// Auth emails
	TypeSendPasswordReset      = "email:password_reset"
	TypeSendSignupConfirmation = "email:confirm_signup"

	// Notifications
	TypeEventReminder = "notifications:event_reminder"
)

// Queue names
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
)

// Enqueuer is the part of asynq.Client used by producers
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EmailPayload is the payload for auth email tasks
type EmailPayload struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	Token  string `json:"token"`
}

// ReminderPayload is the payload for event reminder tasks
type ReminderPayload struct {
	EventID string `json:"event_id"`
}

// NewSendPasswordResetTask creates a task to email a password reset link
func NewSendPasswordResetTask(p EmailPayload) (*asynq.Task, error) {
	return newTask(TypeSendPasswordReset, p, asynq.Queue(QueueCritical), asynq.MaxRetry(5))
}

// NewSendSignupConfirmationTask creates a task to email a confirmation link
func NewSendSignupConfirmationTask(p EmailPayload) (*asynq.Task, error) {
	return newTask(TypeSendSignupConfirmation, p, asynq.Queue(QueueCritical), asynq.MaxRetry(5))
}

// NewEventReminderTask creates a task that notifies an event's registrants.
// The task ID is derived from the event so a sweep never queues it twice.
func NewEventReminderTask(eventID string) (*asynq.Task, error) {
	return newTask(TypeEventReminder, ReminderPayload{EventID: eventID},
		asynq.Queue(QueueDefault), asynq.TaskID("reminder:"+eventID))
}

func newTask(typename string, payload any, opts ...asynq.Option) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(typename, data, opts...), nil
}

// ParseEmailPayload parses an auth email task payload
func ParseEmailPayload(task *asynq.Task) (EmailPayload, error) {
	var payload EmailPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return payload, nil
}

// ParseReminderPayload parses an event reminder task payload
func ParseReminderPayload(task *asynq.Task) (ReminderPayload, error) {
	var payload ReminderPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return payload, nil
}
