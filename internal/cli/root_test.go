package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hds-conecte/conecte/internal/auth"
	"github.com/hds-conecte/conecte/internal/backend"
	"github.com/hds-conecte/conecte/internal/cli/commands"
	"github.com/hds-conecte/conecte/internal/config"
	"github.com/hds-conecte/conecte/internal/database"
	"github.com/hds-conecte/conecte/internal/guard"
	"github.com/hds-conecte/conecte/internal/realtime"
	"github.com/hds-conecte/conecte/internal/server"
	"github.com/hds-conecte/conecte/internal/session"
)

const (
	devEmail = "dev@hds.example"
	password = "s3nha-forte"
)

type nopEnqueuer struct{}

func (nopEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	return &asynq.TaskInfo{ID: "task", Type: task.Type()}, nil
}

// harness runs CLI invocations against a real API, keeping the session
// between runs the way the keychain would
type harness struct {
	api     *httptest.Server
	google  *fakeGoogle
	tokens  *backend.MemoryTokenStore
	persist string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	db, err := database.Open(filepath.Join(t.TempDir(), "api.sqlite"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })

	cfg := &config.Config{
		Server: config.ServerConfig{
			SiteURL:        "https://hds.example",
			AllowedOrigins: []string{"http://localhost:5173"},
			UploadDir:      t.TempDir(),
		},
		Auth: config.AuthConfig{
			AccessTokenTTL:     time.Hour,
			RefreshTokenTTL:    24 * time.Hour,
			ResetTokenTTL:      time.Hour,
			MinPasswordLength:  6,
			BootstrapDevAdmins: []string{devEmail},
		},
	}
	google := &fakeGoogle{}
	srv, err := server.New(cfg, zerolog.Nop(), server.Options{
		DB:       db,
		Enqueuer: nopEnqueuer{},
		Broker:   realtime.NewMemoryBroker(),
		OAuth:    google,
		Version:  "test",
	})
	require.NoError(t, err)

	api := httptest.NewServer(srv.Handler())
	t.Cleanup(api.Close)
	google.callback = api.URL + "/api/auth/oauth/google/callback"

	return &harness{
		api:     api,
		google:  google,
		tokens:  backend.NewMemoryTokenStore(),
		persist: filepath.Join(t.TempDir(), "hds-conecte-auth.json"),
	}
}

// fakeGoogle consents immediately: its consent URL is the API callback
type fakeGoogle struct {
	callback string
}

func (g *fakeGoogle) AuthURL(state string) string {
	return g.callback + "?code=ok&state=" + url.QueryEscape(state)
}

func (g *fakeGoogle) Identify(ctx context.Context, code string) (*auth.OAuthUser, error) {
	return &auth.OAuthUser{Email: "joao@gmail.example", EmailVerified: true, Name: "João"}, nil
}

type output struct {
	out, err string
}

func (h *harness) run(t *testing.T, args ...string) (output, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	env := &commands.Env{
		Out: &out,
		Err: &errOut,
		In:  strings.NewReader(""),
		// The browser follows the consent redirect back to the CLI listener
		OpenBrowser: func(u string) error {
			go func() {
				resp, err := http.Get(u)
				if err == nil {
					resp.Body.Close()
				}
			}()
			return nil
		},
	}

	root := NewRoot(env, func(env *commands.Env, log zerolog.Logger) (*commands.App, error) {
		client := backend.New(env.ServerURL, backend.WithTokenStore(h.tokens))
		store := session.New(client,
			session.WithPersister(session.FilePersister{Path: h.persist}),
			session.WithNotifier(env.Notifier()),
		)
		return &commands.App{Client: client, Store: store}, nil
	})

	err := root.Run(context.Background(), append([]string{"--server", h.api.URL, "--log-level", "disabled"}, args...))
	if err != nil {
		report(env, err)
	}
	return output{out: out.String(), err: errOut.String()}, err
}

func (h *harness) signup(t *testing.T, email, name string) {
	t.Helper()
	o, err := h.run(t, "signup", "--name", name, "--email", email, "--password", password)
	require.NoError(t, err, o.err)
	require.Contains(t, o.out, "Account created successfully!")
}

func TestSignupLoginLogout(t *testing.T) {
	h := newHarness(t)
	h.signup(t, "maria@hds.example", "Maria")

	o, err := h.run(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, o.out, "Maria (maria@hds.example)")
	assert.Contains(t, o.out, "Role: user")

	o, err = h.run(t, "logout")
	require.NoError(t, err)
	assert.Contains(t, o.out, "✓ Logged out successfully")

	o, err = h.run(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, o.out, "Not signed in.")

	o, err = h.run(t, "login", "--email", "maria@hds.example", "--password", "wrong")
	assert.True(t, commands.IsSilent(err))
	assert.Contains(t, o.err, "✗ Invalid login credentials")
	assert.NotContains(t, o.err, "Error:")

	o, err = h.run(t, "login", "--email", "maria@hds.example", "--password", password)
	require.NoError(t, err)
	assert.Contains(t, o.out, "✓ Login successful!")
}

func TestLoginRequiresPasswordWhenNotInteractive(t *testing.T) {
	h := newHarness(t)
	t.Setenv("CONECTE_PASSWORD", "")

	_, err := h.run(t, "login", "--email", "maria@hds.example")
	assert.ErrorContains(t, err, "password is required in non-interactive mode")
}

func TestGuardedPagesRedirect(t *testing.T) {
	h := newHarness(t)

	o, err := h.run(t, "teams")
	var redirect *commands.RedirectError
	require.ErrorAs(t, err, &redirect)
	assert.Equal(t, guard.PathLogin, redirect.To)
	assert.Contains(t, o.err, "Sign in first: conecte login")

	h.signup(t, "maria@hds.example", "Maria")

	// Guest pages send signed-in users home
	o, err = h.run(t, "login")
	require.ErrorAs(t, err, &redirect)
	assert.Equal(t, guard.PathHome, redirect.To)
	assert.Contains(t, o.err, "Already signed in")

	// Staff pages send members home
	for _, args := range [][]string{{"admin"}, {"team-management"}, {"dev-admin"}, {"events", "create", "--title", "x", "--start", "2030-11-01 19:00", "--end", "2030-11-01 21:00"}} {
		o, err = h.run(t, args...)
		require.ErrorAs(t, err, &redirect, args)
		assert.Equal(t, guard.PathHome, redirect.To)
		assert.Contains(t, o.err, "Your role cannot open this page")
	}

	o, err = h.run(t, "teams")
	require.NoError(t, err)
	assert.Contains(t, o.out, "No teams yet.")
}

func TestOpenUnknownPath(t *testing.T) {
	h := newHarness(t)
	h.signup(t, "maria@hds.example", "Maria")

	o, err := h.run(t, "open", "/nowhere")
	assert.ErrorIs(t, err, commands.ErrNotFound)
	assert.Contains(t, o.out, "Oops! Page not found")

	o, err = h.run(t, "open", "/profile/")
	require.NoError(t, err)
	assert.Contains(t, o.out, "Email:  maria@hds.example")
}

func TestHomeNavigationFollowsRole(t *testing.T) {
	h := newHarness(t)
	h.signup(t, "maria@hds.example", "Maria")

	o, err := h.run(t, "home")
	require.NoError(t, err)
	assert.Contains(t, o.out, "Olá, Maria!")
	assert.Contains(t, o.out, "conecte teams")
	assert.NotContains(t, o.out, "conecte admin")
	assert.NotContains(t, o.out, "conecte login")
	assert.Contains(t, o.out, "Desenvolvido por ValenSoft Desenvolvimento")

	_, err = h.run(t, "logout")
	require.NoError(t, err)
	h.signup(t, devEmail, "Dev")

	o, err = h.run(t, "home")
	require.NoError(t, err)
	assert.Contains(t, o.out, "conecte admin")
	assert.Contains(t, o.out, "conecte dev-admin")
}

func TestDevAdminCompanyInfo(t *testing.T) {
	h := newHarness(t)
	h.signup(t, devEmail, "Dev")

	o, err := h.run(t, "dev-admin", "company", "--name", "HDS Digital")
	require.NoError(t, err)
	assert.Contains(t, o.out, "✓ Company information updated successfully")

	o, err = h.run(t, "home")
	require.NoError(t, err)
	assert.Contains(t, o.out, "Desenvolvido por HDS Digital")

	_, err = h.run(t, "dev-admin", "company")
	assert.ErrorContains(t, err, "nothing to update")
}

func TestEventRegistrationFlow(t *testing.T) {
	h := newHarness(t)
	h.signup(t, devEmail, "Dev")

	o, err := h.run(t, "events", "create", "--title", "Culto de Jovens",
		"--start", "2030-11-01 19:00", "--end", "2030-11-01 21:00", "--location", "Sede")
	require.NoError(t, err, o.err)
	assert.Contains(t, o.out, "✓ Event created: Culto de Jovens")

	_, err = h.run(t, "events", "create", "--title", "Bad", "--start", "tomorrow", "--end", "2030-11-01 21:00")
	assert.ErrorContains(t, err, "invalid --start")

	_, err = h.run(t, "logout")
	require.NoError(t, err)
	h.signup(t, "maria@hds.example", "Maria")

	o, err = h.run(t, "events")
	require.NoError(t, err)
	assert.Contains(t, o.out, "Culto de Jovens")
	assert.Contains(t, o.out, "Sede")

	// The only event is picked without a prompt
	o, err = h.run(t, "events", "register")
	require.NoError(t, err, o.err)
	assert.Contains(t, o.out, "✓ Registered (pending)")

	o, err = h.run(t, "events", "mine")
	require.NoError(t, err)
	assert.Contains(t, o.out, "Culto de Jovens")
	assert.Contains(t, o.out, "pending")

	o, err = h.run(t, "events", "cancel")
	require.NoError(t, err)
	assert.Contains(t, o.out, "✓ Registration cancelled")
}

func TestTeamsAndChallenges(t *testing.T) {
	h := newHarness(t)
	h.signup(t, devEmail, "Dev")

	o, err := h.run(t, "team-management", "create", "--name", "Leões", "--color", "#FFC107")
	require.NoError(t, err, o.err)
	assert.Contains(t, o.out, "✓ Team created: Leões")

	o, err = h.run(t, "challenge", "create", "--title", "Versículo do dia", "--points", "20")
	require.NoError(t, err, o.err)
	assert.Contains(t, o.out, "✓ Challenge created")

	_, err = h.run(t, "logout")
	require.NoError(t, err)
	h.signup(t, "maria@hds.example", "Maria")

	o, err = h.run(t, "teams", "join")
	require.NoError(t, err, o.err)
	assert.Contains(t, o.out, "✓ Request sent (pending)")

	o, err = h.run(t, "teams", "mine")
	require.NoError(t, err)
	assert.Contains(t, o.out, "Leões")

	o, err = h.run(t, "challenge")
	require.NoError(t, err)
	assert.Contains(t, o.out, "Versículo do dia")

	o, err = h.run(t, "challenge", "submit-personal", "--evidence", "Jo 3:16")
	require.NoError(t, err, o.err)
	assert.Contains(t, o.out, "✓ Submitted for review (pending)")

	o, err = h.run(t, "challenge", "progress")
	require.NoError(t, err)
	assert.Contains(t, o.out, "Jo 3:16")
}

func TestNotificationsPage(t *testing.T) {
	h := newHarness(t)
	h.signup(t, devEmail, "Dev")

	o, err := h.run(t, "notifications", "send", "--title", "Bem-vindos", "--message", "Culto domingo")
	require.NoError(t, err, o.err)
	assert.Contains(t, o.out, "✓ Sent to everyone")

	o, err = h.run(t, "notifications", "--unread")
	require.NoError(t, err)
	assert.Contains(t, o.out, "Bem-vindos")

	o, err = h.run(t, "notifications", "read-all")
	require.NoError(t, err)
	assert.Contains(t, o.out, "✓ 1 marked as read")

	o, err = h.run(t, "notifications", "--unread")
	require.NoError(t, err)
	assert.Contains(t, o.out, "No notifications.")

	o, err = h.run(t, "notifications", "clear")
	require.NoError(t, err)
	assert.Contains(t, o.out, "✓ 1 deleted")

	// Someone joining after the broadcast still sees it, unread
	_, err = h.run(t, "logout")
	require.NoError(t, err)
	h.signup(t, "maria@hds.example", "Maria")

	o, err = h.run(t, "notifications", "--unread")
	require.NoError(t, err)
	assert.Contains(t, o.out, "Bem-vindos")
}

func TestVersionSkipsSession(t *testing.T) {
	h := newHarness(t)

	o, err := h.run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, o.out, "conecte version dev")
	assert.Contains(t, o.out, "version test (online)")
}

func TestConfigSetServer(t *testing.T) {
	h := newHarness(t)

	o, err := h.run(t, "config", "set-server", "api.hds.example")
	require.NoError(t, err)
	assert.Contains(t, o.out, "✓ Server set to https://api.hds.example")
}

func TestGoogleLogin(t *testing.T) {
	h := newHarness(t)

	o, err := h.run(t, "login", "--google")
	require.NoError(t, err, o.err)
	assert.Contains(t, o.out, "Continue in your browser")
	assert.Contains(t, o.out, "✓ Login successful!")
	assert.Contains(t, o.out, "João (joao@gmail.example)")

	o, err = h.run(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, o.out, "joao@gmail.example")
}

func TestDevAdminStatusAndRoles(t *testing.T) {
	h := newHarness(t)
	h.signup(t, "maria@hds.example", "Maria")
	_, err := h.run(t, "logout")
	require.NoError(t, err)
	h.signup(t, devEmail, "Dev")

	o, err := h.run(t, "dev-admin", "status")
	require.NoError(t, err, o.err)
	assert.Contains(t, o.out, "Server version: test")
	assert.Contains(t, o.out, "users")

	o, err = h.run(t, "admin", "--search", "maria")
	require.NoError(t, err)
	assert.Contains(t, o.out, "maria@hds.example")
	var fields []string
	for _, line := range strings.Split(o.out, "\n") {
		if strings.Contains(line, "maria@hds.example") {
			fields = strings.Fields(line)
		}
	}
	require.NotEmpty(t, fields)

	o, err = h.run(t, "dev-admin", "set-role", fields[0], "admin")
	require.NoError(t, err, o.err)
	assert.Contains(t, o.out, "✓ maria@hds.example is now admin")

	_, err = h.run(t, "dev-admin", "set-role", fields[0], "root")
	assert.ErrorContains(t, err, `unknown role "root"`)
}
