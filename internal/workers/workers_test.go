package workers

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hds-conecte/conecte/internal/database"
	"github.com/hds-conecte/conecte/internal/mailer"
	"github.com/hds-conecte/conecte/internal/models"
	"github.com/hds-conecte/conecte/internal/realtime"
	"github.com/hds-conecte/conecte/internal/tasks"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "worker.sqlite"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

type recordingSender struct {
	mu   sync.Mutex
	sent []mailer.Message
}

func (s *recordingSender) Send(ctx context.Context, msg mailer.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return "msg-1", nil
}

type recordingEnqueuer struct {
	tasks []*asynq.Task
	seen  map[string]bool
}

func (e *recordingEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if e.seen == nil {
		e.seen = map[string]bool{}
	}
	key := task.Type() + string(task.Payload())
	if e.seen[key] {
		return nil, asynq.ErrTaskIDConflict
	}
	e.seen[key] = true
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func TestHandleSendPasswordReset(t *testing.T) {
	sender := &recordingSender{}
	task, err := tasks.NewSendPasswordResetTask(tasks.EmailPayload{UserID: "u1", Email: "ana@hds.org", Name: "Ana", Token: "a b"})
	require.NoError(t, err)

	err = HandleSendPasswordReset(context.Background(), task, sender, "https://hds.example", zerolog.Nop())
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, []string{"ana@hds.org"}, sender.sent[0].To)
	assert.Contains(t, sender.sent[0].HTML, "https://hds.example/reset-password?token=a+b")
}

func TestHandleSendSignupConfirmationBadPayloadSkipsRetry(t *testing.T) {
	task := asynq.NewTask(tasks.TypeSendSignupConfirmation, []byte("{not json"))
	err := HandleSendSignupConfirmation(context.Background(), task, &recordingSender{}, "https://hds.example", zerolog.Nop())
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func seedEvent(t *testing.T, db *gorm.DB, start time.Time) models.Event {
	t.Helper()
	loc := "Salão principal"
	event := models.Event{
		Title:     "Encontro de Jovens",
		Location:  &loc,
		StartDate: start,
		EndDate:   start.Add(2 * time.Hour),
		Active:    true,
	}
	require.NoError(t, db.Create(&event).Error)
	return event
}

func TestSendEventReminderBroadcastsOnce(t *testing.T) {
	db := newTestDB(t)
	event := seedEvent(t, db, time.Now().Add(3*time.Hour))

	created, err := SendEventReminder(context.Background(), db, event.ID)
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.True(t, created.IsBroadcast())
	assert.Equal(t, models.NotificationEvent, created.Type)
	assert.Contains(t, created.Message, "Salão principal")

	again, err := SendEventReminder(context.Background(), db, event.ID)
	require.NoError(t, err)
	assert.Nil(t, again)

	var count int64
	require.NoError(t, db.Model(&models.Notification{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSendEventReminderSkipsInactive(t *testing.T) {
	db := newTestDB(t)
	event := seedEvent(t, db, time.Now().Add(3*time.Hour))
	require.NoError(t, db.Model(&event).Update("active", false).Error)

	created, err := SendEventReminder(context.Background(), db, event.ID)
	require.NoError(t, err)
	assert.Nil(t, created)
}

func TestHandleEventReminderPublishes(t *testing.T) {
	db := newTestDB(t)
	event := seedEvent(t, db, time.Now().Add(time.Hour))

	broker := realtime.NewMemoryBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed, stop, err := broker.Subscribe(ctx, "ana")
	require.NoError(t, err)
	defer stop()

	task, err := tasks.NewEventReminderTask(event.ID)
	require.NoError(t, err)
	require.NoError(t, HandleEventReminder(ctx, task, db, broker, zerolog.Nop()))

	select {
	case n := <-feed:
		assert.Equal(t, models.NotificationEvent, n.Type)
	case <-time.After(time.Second):
		t.Fatal("reminder was not published")
	}
}

func TestHandleEventReminderMissingEvent(t *testing.T) {
	db := newTestDB(t)
	task, err := tasks.NewEventReminderTask("does-not-exist")
	require.NoError(t, err)
	assert.NoError(t, HandleEventReminder(context.Background(), task, db, realtime.NewMemoryBroker(), zerolog.Nop()))
}

func TestEnqueueDueReminders(t *testing.T) {
	db := newTestDB(t)
	now := time.Now()

	soon := seedEvent(t, db, now.Add(2*time.Hour))
	seedEvent(t, db, now.Add(72*time.Hour)) // outside the window
	seedEvent(t, db, now.Add(-time.Hour))   // already started

	inactive := seedEvent(t, db, now.Add(time.Hour))
	require.NoError(t, db.Model(&inactive).Update("active", false).Error)

	q := &recordingEnqueuer{}
	n, err := EnqueueDueReminders(context.Background(), q, db, now, 24*time.Hour, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	p, err := tasks.ParseReminderPayload(q.tasks[0])
	require.NoError(t, err)
	assert.Equal(t, soon.ID, p.EventID)

	// A second sweep hits the task ID conflict and is not counted
	n, err = EnqueueDueReminders(context.Background(), q, db, now, 24*time.Hour, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestStartReminderSchedulerRejectsBadSchedule(t *testing.T) {
	err := StartReminderScheduler(context.Background(), &recordingEnqueuer{}, newTestDB(t), "not a cron", time.Hour, zerolog.Nop())
	assert.Error(t, err)
}
