package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/hds-conecte/conecte/internal/backend"
	"github.com/hds-conecte/conecte/internal/models"
	"github.com/hds-conecte/conecte/internal/roles"
)

type account struct {
	password string
	user     backend.User
	profile  models.Profile
}

// fakeBackend is an in-memory stand-in for the API client
type fakeBackend struct {
	mu                  sync.Mutex
	accounts            map[string]*account
	session             *backend.Session
	requireConfirmation bool
	signInErr           error
	signOutErr          error
	calls               map[string]int
	listeners           map[int]func(backend.AuthChange)
	nextListener        int

	// blockGetSession makes GetSession wait for ctx; entered is signalled first
	blockGetSession bool
	entered         chan struct{}

	// during runs inside SignInWithPassword, while the store is mid-operation
	during func()
	// onGetProfile runs once at the start of the next GetProfile
	onGetProfile func()
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		accounts:  make(map[string]*account),
		calls:     make(map[string]int),
		listeners: make(map[int]func(backend.AuthChange)),
		entered:   make(chan struct{}, 1),
	}
}

func (f *fakeBackend) addAccount(email, password, name string, role roles.Role) *account {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := "u-" + email
	a := &account{
		password: password,
		user:     backend.User{ID: id, Email: email, Name: name, Role: role, Provider: models.ProviderEmail},
		profile:  models.Profile{ID: id, Name: name},
	}
	f.accounts[email] = a
	return a
}

func (f *fakeBackend) setRole(email string, role roles.Role) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[email].user.Role = role
}

func (f *fakeBackend) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeBackend) listenerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

func (f *fakeBackend) track(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeBackend) emit(event backend.AuthEvent) {
	f.mu.Lock()
	s := f.session
	fns := make([]func(backend.AuthChange), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(backend.AuthChange{Event: event, Session: s})
	}
}

// signIn installs a session for email without going through the store
func (f *fakeBackend) signIn(email string) *backend.Session {
	f.mu.Lock()
	a := f.accounts[email]
	u := a.user
	f.session = &backend.Session{
		AccessToken:  "access-" + email,
		RefreshToken: "refresh-" + email,
		TokenType:    "bearer",
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
		User:         &u,
	}
	s := f.session
	f.mu.Unlock()
	return s
}

func (f *fakeBackend) current() *account {
	if f.session == nil {
		return nil
	}
	return f.accounts[f.session.User.Email]
}

func (f *fakeBackend) SignInWithPassword(ctx context.Context, email, password string) (*backend.Session, error) {
	f.track("SignInWithPassword")
	if f.during != nil {
		f.during()
	}
	if f.signInErr != nil {
		return nil, f.signInErr
	}

	f.mu.Lock()
	a, ok := f.accounts[email]
	f.mu.Unlock()
	if !ok || a.password != password {
		return nil, &backend.APIError{Status: http.StatusUnauthorized, Message: "Invalid login credentials"}
	}

	s := f.signIn(email)
	f.emit(backend.EventSignedIn)
	return s, nil
}

func (f *fakeBackend) SignUp(ctx context.Context, email, password, name string) (*backend.SignUpResult, error) {
	f.track("SignUp")
	if len(password) < 6 {
		return nil, &backend.APIError{Status: http.StatusBadRequest, Message: "Password should be at least 6 characters"}
	}

	f.mu.Lock()
	_, exists := f.accounts[email]
	f.mu.Unlock()
	if exists {
		return nil, &backend.APIError{Status: http.StatusConflict, Message: "User already registered"}
	}

	a := f.addAccount(email, password, name, roles.User)
	u := a.user
	if f.requireConfirmation {
		return &backend.SignUpResult{User: &u}, nil
	}

	s := f.signIn(email)
	f.emit(backend.EventSignedIn)
	return &backend.SignUpResult{User: &u, Session: s}, nil
}

func (f *fakeBackend) SignOut(ctx context.Context) error {
	f.track("SignOut")
	f.mu.Lock()
	had := f.session != nil
	f.session = nil
	f.mu.Unlock()
	if had {
		f.emit(backend.EventSignedOut)
	}
	return f.signOutErr
}

func (f *fakeBackend) GetSession(ctx context.Context) (*backend.Session, error) {
	f.track("GetSession")
	if f.blockGetSession {
		select {
		case f.entered <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session, nil
}

func (f *fakeBackend) GetUser(ctx context.Context) (*backend.User, error) {
	f.track("GetUser")
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.current()
	if a == nil {
		return nil, backend.ErrNotAuthenticated
	}
	u := a.user
	return &u, nil
}

func (f *fakeBackend) GetProfile(ctx context.Context) (*models.Profile, error) {
	f.track("GetProfile")
	f.mu.Lock()
	hook := f.onGetProfile
	f.onGetProfile = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.current()
	if a == nil {
		return nil, backend.ErrNotAuthenticated
	}
	p := a.profile
	return &p, nil
}

func (f *fakeBackend) UpdateProfile(ctx context.Context, update backend.ProfileUpdate) (*models.Profile, error) {
	f.track("UpdateProfile")
	f.mu.Lock()
	a := f.current()
	if a == nil {
		f.mu.Unlock()
		return nil, backend.ErrNotAuthenticated
	}
	if update.Name != nil {
		a.profile.Name = *update.Name
		a.user.Name = *update.Name
	}
	if update.Church != nil {
		a.profile.Church = update.Church
	}
	if update.PhotoURL != nil {
		a.profile.PhotoURL = update.PhotoURL
	}
	p := a.profile
	f.mu.Unlock()

	if update.Name != nil {
		f.emit(backend.EventUserUpdated)
	}
	return &p, nil
}

func (f *fakeBackend) ResetPasswordForEmail(ctx context.Context, email string) error {
	f.track("ResetPasswordForEmail")
	if email == "" {
		return errors.New("connection refused")
	}
	return nil
}

func (f *fakeBackend) OAuthURL(ctx context.Context, redirectTo string) (string, error) {
	f.track("OAuthURL")
	return "https://accounts.google.example/o/oauth2/auth?redirect=" + redirectTo, nil
}

func (f *fakeBackend) OnAuthStateChange(fn func(backend.AuthChange)) func() {
	f.mu.Lock()
	id := f.nextListener
	f.nextListener++
	f.listeners[id] = fn
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}
}

// noticeLog records notices
type noticeLog struct {
	mu      sync.Mutex
	notices []Notice
}

func (l *noticeLog) Notify(n Notice) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notices = append(l.notices, n)
}

func (l *noticeLog) last() Notice {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.notices) == 0 {
		return Notice{}
	}
	return l.notices[len(l.notices)-1]
}
