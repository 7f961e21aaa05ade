package tasks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmailTaskPayload(t *testing.T) {
	task, err := NewSendPasswordResetTask(EmailPayload{UserID: "u1", Email: "ana@hds.org", Token: "tok"})
	require.NoError(t, err)
	assert.Equal(t, TypeSendPasswordReset, task.Type())

	p, err := ParseEmailPayload(task)
	require.NoError(t, err)
	assert.Equal(t, "ana@hds.org", p.Email)
	assert.Equal(t, "tok", p.Token)
}

func TestReminderTaskPayload(t *testing.T) {
	task, err := NewEventReminderTask("ev1")
	require.NoError(t, err)
	assert.Equal(t, TypeEventReminder, task.Type())

	p, err := ParseReminderPayload(task)
	require.NoError(t, err)
	assert.Equal(t, "ev1", p.EventID)
}
