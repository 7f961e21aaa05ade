package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hds-conecte/conecte/internal/backend"
	"github.com/hds-conecte/conecte/internal/guard"
	"github.com/hds-conecte/conecte/internal/models"
	"github.com/hds-conecte/conecte/internal/roles"
)

// Error strings returned in Result.Error by the local checks
const (
	ErrTextNotAuthenticated = "not authenticated"
	ErrTextUnauthorized     = "unauthorized"
)

// Backend is what the store needs from the API client
type Backend interface {
	SignInWithPassword(ctx context.Context, email, password string) (*backend.Session, error)
	SignUp(ctx context.Context, email, password, name string) (*backend.SignUpResult, error)
	SignOut(ctx context.Context) error
	GetSession(ctx context.Context) (*backend.Session, error)
	GetUser(ctx context.Context) (*backend.User, error)
	GetProfile(ctx context.Context) (*models.Profile, error)
	UpdateProfile(ctx context.Context, update backend.ProfileUpdate) (*models.Profile, error)
	ResetPasswordForEmail(ctx context.Context, email string) error
	OAuthURL(ctx context.Context, redirectTo string) (string, error)
	OnAuthStateChange(fn func(backend.AuthChange)) func()
}

// Result is what every store operation returns. Operations never panic and
// never hand a Go error to the caller.
type Result struct {
	Success     bool
	Error       string
	RedirectURL string
}

// CompanyInfoUpdate carries the fields to change; nil fields are kept
type CompanyInfoUpdate struct {
	Name        *string
	Logo        *string
	ContactLink *string
}

// Store is the single source of truth for authentication state
type Store struct {
	backend   Backend
	notifier  Notifier
	persister Persister
	logger    zerolog.Logger

	mu        sync.Mutex
	state     State
	subs      map[int]func(State)
	nextSub   int
	lastSaved []byte
}

// Option configures a Store
type Option func(*Store)

func WithNotifier(n Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.logger = l.With().Str("component", "session").Logger() }
}

// New creates a store in the signed-out state
func New(b Backend, opts ...Option) *Store {
	s := &Store{
		backend:  b,
		notifier: NopNotifier{},
		logger:   zerolog.Nop(),
		state:    State{CompanyInfo: DefaultCompanyInfo},
		subs:     make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the current state
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe calls fn with every new state and returns a func that stops it
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) dispatch(a action) {
	s.mu.Lock()
	s.state = reduce(s.state, a)
	snap := s.state
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.persistLocked(snap)
	s.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// persistLocked writes the snapshot when its persisted part changed
func (s *Store) persistLocked(snap State) {
	if s.persister == nil {
		return
	}
	p := persistedFrom(snap)
	data, err := json.Marshal(p)
	if err != nil || bytes.Equal(data, s.lastSaved) {
		return
	}
	if err := s.persister.Save(p); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to persist session snapshot")
		return
	}
	s.lastSaved = data
}

// Load restores the persisted snapshot; tokens are not part of it
func (s *Store) Load() {
	if s.persister == nil {
		return
	}
	p, err := s.persister.Load()
	if err != nil {
		s.logger.Warn().Err(err).Msg("Ignoring unreadable session snapshot")
		return
	}
	if p != nil {
		s.dispatch(restored{snap: *p})
	}
}

// begin marks an operation in flight; the returned func always ends it
func (s *Store) begin() func() {
	s.dispatch(loadingStarted{})
	return func() { s.dispatch(loadingFinished{}) }
}

// fail reports err to the user and builds the failed Result. Backend
// rejections show their own message; anything else is logged and shown as
// fallback.
func (s *Store) fail(op string, err error, fallback string) Result {
	msg := fallback
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError && apiErr.Message != "" {
		msg = apiErr.Message
		s.logger.Info().Str("op", op).Int("status", apiErr.Status).Msg(apiErr.Message)
	} else {
		s.logger.Error().Err(err).Str("op", op).Msg("Session operation failed")
	}
	s.notifier.Notify(Notice{Level: LevelError, Message: msg})
	return Result{Error: msg}
}

func (s *Store) succeed(msg string) Result {
	s.notifier.Notify(Notice{Level: LevelSuccess, Message: msg})
	return Result{Success: true}
}

// fetchProfile returns nil when the profile cannot be loaded; the account
// is still usable without it
func (s *Store) fetchProfile(ctx context.Context) *models.Profile {
	p, err := s.backend.GetProfile(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load profile")
		return nil
	}
	return p
}

// SignInWithEmail signs in with a password
func (s *Store) SignInWithEmail(ctx context.Context, email, password string) Result {
	defer s.begin()()

	session, err := s.backend.SignInWithPassword(ctx, email, password)
	if err != nil {
		return s.fail("sign_in", err, "Failed to login. Please try again.")
	}

	profile := s.fetchProfile(ctx)
	s.dispatch(signedIn{session: session, user: session.User, profile: profile})
	return s.succeed("Login successful!")
}

// SignInWithGoogle returns the consent URL to open. The session arrives
// later through the backend's auth events.
func (s *Store) SignInWithGoogle(ctx context.Context, redirectTo string) Result {
	defer s.begin()()

	target, err := s.backend.OAuthURL(ctx, redirectTo)
	if err != nil {
		return s.fail("sign_in_google", err, "Failed to start Google sign-in. Please try again.")
	}

	s.notifier.Notify(Notice{Level: LevelInfo, Message: "Continue in your browser to sign in with Google"})
	return Result{Success: true, RedirectURL: target}
}

// Signup creates an account. Without an immediate session the account waits
// for email confirmation and the store stays signed out.
func (s *Store) Signup(ctx context.Context, email, password, name string) Result {
	defer s.begin()()

	result, err := s.backend.SignUp(ctx, email, password, name)
	if err != nil {
		return s.fail("signup", err, "Failed to create account. Please try again.")
	}

	if result.Session == nil {
		s.dispatch(awaitingConfirmation{email: email})
		return s.succeed("Account created! Check your email to confirm it before signing in.")
	}

	profile := s.fetchProfile(ctx)
	s.dispatch(signedIn{session: result.Session, user: result.User, profile: profile})
	return s.succeed("Account created successfully!")
}

// RecoverPassword asks the backend to email a reset link
func (s *Store) RecoverPassword(ctx context.Context, email string) Result {
	defer s.begin()()

	if err := s.backend.ResetPasswordForEmail(ctx, email); err != nil {
		return s.fail("recover_password", err, "Failed to send recovery email. Please try again.")
	}
	return s.succeed("Recovery email sent. Please check your inbox.")
}

// Logout clears local state, then signs out on the backend
func (s *Store) Logout(ctx context.Context) Result {
	defer s.begin()()

	s.dispatch(signedOut{})

	if err := s.backend.SignOut(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Backend sign-out failed after local sign-out")
	}

	s.notifier.Notify(Notice{Level: LevelSuccess, Message: "Logged out successfully"})
	return Result{Success: true, RedirectURL: guard.PathLogin}
}

// UpdateProfile saves profile fields for the signed-in user
func (s *Store) UpdateProfile(ctx context.Context, update backend.ProfileUpdate) Result {
	if s.Snapshot().User == nil {
		s.notifier.Notify(Notice{Level: LevelError, Message: "User not authenticated"})
		return Result{Error: ErrTextNotAuthenticated}
	}

	defer s.begin()()

	profile, err := s.backend.UpdateProfile(ctx, update)
	if err != nil {
		return s.fail("update_profile", err, "Failed to update profile. Please try again.")
	}

	s.dispatch(profileUpdated{profile: profile})
	return s.succeed("Profile updated successfully")
}

// UpdateCompanyInfo changes the locally kept company details; dev-admin only
func (s *Store) UpdateCompanyInfo(update CompanyInfoUpdate) Result {
	defer s.begin()()

	snap := s.Snapshot()
	if snap.Role() != roles.DevAdmin {
		s.notifier.Notify(Notice{Level: LevelError, Message: "Unauthorized access"})
		return Result{Error: ErrTextUnauthorized}
	}

	info := snap.CompanyInfo
	if update.Name != nil {
		info.Name = *update.Name
	}
	if update.Logo != nil {
		info.Logo = *update.Logo
	}
	if update.ContactLink != nil {
		info.ContactLink = *update.ContactLink
	}

	s.dispatch(companyInfoUpdated{info: info})
	return s.succeed("Company information updated successfully")
}

// RefreshSession re-reads the backend session, the account and the profile.
// No session leaves the store signed out without an error. Nothing is
// applied once ctx is done, or when a sign-in or logout ran meanwhile.
func (s *Store) RefreshSession(ctx context.Context) Result {
	defer s.begin()()
	epoch := s.Snapshot().epoch

	session, err := s.backend.GetSession(ctx)
	if err != nil {
		return s.refreshFailed(ctx, err)
	}
	if session == nil {
		if ctx.Err() == nil {
			s.dispatch(signedOut{})
		}
		return Result{Success: true}
	}

	user, err := s.backend.GetUser(ctx)
	switch {
	case backend.IsStatus(err, http.StatusUnauthorized), errors.Is(err, backend.ErrNotAuthenticated):
		if ctx.Err() == nil {
			s.dispatch(signedOut{})
		}
		return Result{Success: true}
	case err != nil:
		if ctx.Err() != nil {
			return Result{Error: ctx.Err().Error()}
		}
		s.logger.Warn().Err(err).Msg("Failed to reload account, using session copy")
		user = session.User
	}

	profile := s.fetchProfile(ctx)
	if ctx.Err() != nil {
		return Result{Error: ctx.Err().Error()}
	}

	s.dispatch(refreshed{signedIn: signedIn{session: session, user: user, profile: profile}, epoch: epoch})
	return Result{Success: true}
}

func (s *Store) refreshFailed(ctx context.Context, err error) Result {
	if ctx.Err() != nil {
		return Result{Error: ctx.Err().Error()}
	}
	s.logger.Error().Err(err).Msg("Failed to refresh session")
	return Result{Error: "Failed to refresh session"}
}

// clear drops the session locally, used for backend sign-out events
func (s *Store) clear() {
	s.dispatch(signedOut{})
}
