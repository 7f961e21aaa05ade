package workers

import (
	"context"
	"fmt"
	"net/url"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/hds-conecte/conecte/internal/mailer"
	"github.com/hds-conecte/conecte/internal/tasks"
)

// HandleSendPasswordReset emails the reset link for a password recovery request
func HandleSendPasswordReset(ctx context.Context, t *asynq.Task, sender mailer.Sender, siteURL string, logger zerolog.Logger) error {
	payload, err := tasks.ParseEmailPayload(t)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	link := tokenLink(siteURL, "/reset-password", payload.Token)
	msg, err := mailer.PasswordReset(payload.Email, payload.Name, link)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	if _, err := sender.Send(ctx, msg); err != nil {
		logger.Error().Err(err).Str("user_id", payload.UserID).Msg("Failed to send password reset email")
		return err
	}

	logger.Info().Str("user_id", payload.UserID).Msg("Password reset email sent")
	return nil
}

// HandleSendSignupConfirmation emails the confirmation link for a new account
func HandleSendSignupConfirmation(ctx context.Context, t *asynq.Task, sender mailer.Sender, siteURL string, logger zerolog.Logger) error {
	payload, err := tasks.ParseEmailPayload(t)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	link := tokenLink(siteURL, "/confirm", payload.Token)
	msg, err := mailer.SignupConfirmation(payload.Email, payload.Name, link)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	if _, err := sender.Send(ctx, msg); err != nil {
		logger.Error().Err(err).Str("user_id", payload.UserID).Msg("Failed to send confirmation email")
		return err
	}

	logger.Info().Str("user_id", payload.UserID).Msg("Confirmation email sent")
	return nil
}

func tokenLink(siteURL, path, token string) string {
	return siteURL + path + "?token=" + url.QueryEscape(token)
}
