package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hds-conecte/conecte/internal/auth"
	"github.com/hds-conecte/conecte/internal/config"
	"github.com/hds-conecte/conecte/internal/database"
	"github.com/hds-conecte/conecte/internal/models"
	"github.com/hds-conecte/conecte/internal/realtime"
	"github.com/hds-conecte/conecte/internal/roles"
	"github.com/hds-conecte/conecte/internal/tasks"
)

const testPassword = "s3nha-forte"

type recordingEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
}

func (e *recordingEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{ID: "task", Type: task.Type()}, nil
}

func (e *recordingEnqueuer) last(t *testing.T, typename string) tasks.EmailPayload {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.tasks) - 1; i >= 0; i-- {
		if e.tasks[i].Type() == typename {
			p, err := tasks.ParseEmailPayload(e.tasks[i])
			require.NoError(t, err)
			return p
		}
	}
	t.Fatalf("no %s task enqueued", typename)
	return tasks.EmailPayload{}
}

func (e *recordingEnqueuer) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tasks)
}

type fakeOAuth struct {
	user *auth.OAuthUser
}

func (f *fakeOAuth) AuthURL(state string) string {
	return "https://accounts.example/o/oauth2/auth?state=" + state
}

func (f *fakeOAuth) Identify(ctx context.Context, code string) (*auth.OAuthUser, error) {
	return f.user, nil
}

type testEnv struct {
	srv    *Server
	db     *gorm.DB
	cfg    *config.Config
	queue  *recordingEnqueuer
	broker *realtime.MemoryBroker
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:           "0",
			SiteURL:        "https://hds.example",
			AllowedOrigins: []string{"http://localhost:5173"},
			UploadDir:      t.TempDir(),
		},
		Auth: config.AuthConfig{
			AccessTokenTTL:     time.Hour,
			RefreshTokenTTL:    30 * 24 * time.Hour,
			ResetTokenTTL:      time.Hour,
			MinPasswordLength:  6,
			BootstrapDevAdmins: []string{"Dev@HDS.example"},
		},
	}
}

func newTestEnv(t *testing.T, opts ...func(*config.Config, *Options)) *testEnv {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), "test.sqlite"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })

	cfg := testConfig(t)
	env := &testEnv{
		db:     db,
		cfg:    cfg,
		queue:  &recordingEnqueuer{},
		broker: realtime.NewMemoryBroker(),
	}
	options := Options{DB: db, Enqueuer: env.queue, Broker: env.broker, Version: "test"}
	for _, opt := range opts {
		opt(cfg, &options)
	}

	env.srv, err = New(cfg, zerolog.Nop(), options)
	require.NoError(t, err)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// signup creates a confirmed account and returns its session
func (e *testEnv) signup(t *testing.T, email, name string) *SessionResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/auth/signup", "", SignupRequest{Email: email, Password: testPassword, Name: name})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[SignupResponse](t, rec)
	require.NotNil(t, resp.Session)
	return resp.Session
}

// staff signs up an account and stores the given role on it
func (e *testEnv) staff(t *testing.T, email string, role roles.Role) *SessionResponse {
	t.Helper()
	session := e.signup(t, email, "Equipe")
	require.NoError(t, e.db.Model(&models.User{}).Where("id = ?", session.User.ID).Update("role", role).Error)
	return session
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "online", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestNewPersistsJWTSecret(t *testing.T) {
	env := newTestEnv(t)
	session := env.signup(t, "ana@hds.example", "Ana")

	// A second server over the same database accepts tokens from the first
	again, err := New(env.cfg, zerolog.Nop(), Options{DB: env.db, Enqueuer: env.queue, Broker: env.broker})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/user", nil)
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	rec := httptest.NewRecorder()
	again.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var count int64
	env.db.Model(&models.Config{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(testConfig(t), zerolog.Nop(), Options{})
	assert.Error(t, err)
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/events", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	// Without origins the API still serves non-browser clients
	noOrigins := newTestEnv(t, func(cfg *config.Config, _ *Options) {
		cfg.Server.AllowedOrigins = nil
	})
	rec = noOrigins.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestJWTAuthMiddleware(t *testing.T) {
	env := newTestEnv(t)
	session := env.signup(t, "ana@hds.example", "Ana")

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"valid token", "Bearer " + session.AccessToken, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/auth/user", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			env.srv.Handler().ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	t.Run("query token", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/auth/user?access_token="+session.AccessToken, "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("deleted user", func(t *testing.T) {
		require.NoError(t, env.db.Where("id = ?", session.User.ID).Delete(&models.User{}).Error)
		rec := env.do(t, http.MethodGet, "/api/auth/user", session.AccessToken, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRequireRole(t *testing.T) {
	env := newTestEnv(t)
	member := env.signup(t, "ana@hds.example", "Ana")
	admin := env.staff(t, "admin@hds.example", roles.Admin)

	rec := env.do(t, http.MethodGet, "/api/users", member.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/users", admin.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Only dev-admins assign roles
	rec = env.do(t, http.MethodPatch, "/api/users/"+member.User.ID+"/role", admin.AccessToken, UpdateRoleRequest{Role: "admin"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
