package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hds-conecte/conecte/internal/roles"
)

// Sessions are refreshed once they are this close to expiring
const refreshMargin = time.Minute

// AuthEvent names a change of the client's session
type AuthEvent string

const (
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
	EventUserUpdated    AuthEvent = "USER_UPDATED"
)

// AuthChange is delivered to OnAuthStateChange listeners
type AuthChange struct {
	Event   AuthEvent
	Session *Session // nil for EventSignedOut
}

// User is the account record returned by the auth endpoints
type User struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	Name             string     `json:"name"`
	Role             roles.Role `json:"role"`
	Provider         string     `json:"provider"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Session is an issued token pair. Values handed out by the client are
// never mutated afterwards.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"` // Unix seconds
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`
}

// Expiry returns when the access token stops being accepted
func (s *Session) Expiry() time.Time {
	return time.Unix(s.ExpiresAt, 0)
}

// SignUpResult is the answer to SignUp. Session is nil when the account must
// confirm its email before signing in.
type SignUpResult struct {
	User    *User    `json:"user"`
	Session *Session `json:"session"`
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// OnAuthStateChange registers fn for session changes and returns a func that
// removes it. Listeners run synchronously on the goroutine causing the change
// and must not block.
func (c *Client) OnAuthStateChange(fn func(AuthChange)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Client) emit(event AuthEvent, s *Session) {
	c.mu.Lock()
	fns := make([]func(AuthChange), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(AuthChange{Event: event, Session: s})
	}
}

// current returns the cached session, loading it from the store on first use
func (c *Client) current() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		s, err := c.tokens.Load()
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to load stored session")
		}
		c.session = s
		c.loaded = true
	}
	return c.session
}

// setSession replaces the session, persists it and notifies listeners
func (c *Client) setSession(s *Session, event AuthEvent) {
	c.mu.Lock()
	c.session = s
	c.loaded = true
	c.mu.Unlock()

	var err error
	if s == nil {
		err = c.tokens.Clear()
	} else {
		err = c.tokens.Save(s)
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("event", string(event)).Msg("Failed to persist session")
	}

	c.emit(event, s)
}

// GetSession returns the current session, refreshing it when it is about to
// expire. It returns nil without error when nobody is signed in or the
// refresh token was rejected.
func (c *Client) GetSession(ctx context.Context) (*Session, error) {
	s := c.current()
	if s == nil {
		return nil, nil
	}
	if c.now().Add(refreshMargin).Before(s.Expiry()) {
		return s, nil
	}

	s, err := c.refresh(ctx, false)
	if errors.Is(err, ErrNotAuthenticated) {
		return nil, nil
	}
	return s, err
}

// RefreshSession exchanges the refresh token for a new session
func (c *Client) RefreshSession(ctx context.Context) (*Session, error) {
	return c.refresh(ctx, true)
}

func (c *Client) refresh(ctx context.Context, force bool) (*Session, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	// Another caller may have refreshed while we waited
	s := c.current()
	if s == nil {
		return nil, ErrNotAuthenticated
	}
	if !force && c.now().Add(refreshMargin).Before(s.Expiry()) {
		return s, nil
	}

	var next Session
	err := c.send(ctx, request{
		method: http.MethodPost,
		path:   "/api/auth/token",
		query:  url.Values{"grant_type": {"refresh_token"}},
		body:   map[string]string{"refresh_token": s.RefreshToken},
	}, &next)
	if err != nil {
		if IsStatus(err, http.StatusUnauthorized) || IsStatus(err, http.StatusBadRequest) {
			c.logger.Info().Err(err).Msg("Refresh token rejected, signing out")
			c.setSession(nil, EventSignedOut)
			return nil, ErrNotAuthenticated
		}
		if !force && c.now().Before(s.Expiry()) {
			c.logger.Warn().Err(err).Msg("Failed to refresh session, keeping current token")
			return s, nil
		}
		return nil, fmt.Errorf("failed to refresh session: %w", err)
	}

	c.setSession(&next, EventTokenRefreshed)
	return &next, nil
}

// SignInWithPassword authenticates with email and password
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	var s Session
	err := c.send(ctx, request{
		method: http.MethodPost,
		path:   "/api/auth/token",
		query:  url.Values{"grant_type": {"password"}},
		body:   credentials{Email: email, Password: password},
	}, &s)
	if err != nil {
		return nil, err
	}

	c.setSession(&s, EventSignedIn)
	return &s, nil
}

// SignUp creates an account. When the server issues a session right away the
// client is signed in.
func (c *Client) SignUp(ctx context.Context, email, password, name string) (*SignUpResult, error) {
	var result SignUpResult
	err := c.send(ctx, request{
		method: http.MethodPost,
		path:   "/api/auth/signup",
		body:   credentials{Email: email, Password: password, Name: name},
	}, &result)
	if err != nil {
		return nil, err
	}

	if result.Session != nil {
		c.setSession(result.Session, EventSignedIn)
	}
	return &result, nil
}

// SignOut drops the local session and revokes it on the server. The local
// session is gone even when the server call fails.
func (c *Client) SignOut(ctx context.Context) error {
	s, err := c.GetSession(ctx)
	if err != nil {
		// Fall back to whatever is cached; it may still be accepted
		s = c.current()
	}
	if s == nil {
		return nil
	}

	c.setSession(nil, EventSignedOut)

	err = c.send(ctx, request{
		method: http.MethodPost,
		path:   "/api/auth/logout",
		token:  s.AccessToken,
	}, nil)
	if err != nil && !IsStatus(err, http.StatusUnauthorized) {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// GetUser fetches the signed-in account and updates the cached session copy
func (c *Client) GetUser(ctx context.Context) (*User, error) {
	var u User
	if err := c.authed(ctx, request{method: http.MethodGet, path: "/api/auth/user"}, &u); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.session != nil {
		next := *c.session
		next.User = &u
		c.session = &next
		if err := c.tokens.Save(&next); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to persist session")
		}
	}
	c.mu.Unlock()

	return &u, nil
}

// ResetPasswordForEmail asks the server to email a reset link
func (c *Client) ResetPasswordForEmail(ctx context.Context, email string) error {
	return c.send(ctx, request{
		method: http.MethodPost,
		path:   "/api/auth/recover",
		body:   map[string]string{"email": email},
	}, nil)
}

// ResetPassword sets a new password using an emailed reset token
func (c *Client) ResetPassword(ctx context.Context, token, password string) error {
	return c.send(ctx, request{
		method: http.MethodPost,
		path:   "/api/auth/reset",
		body:   map[string]string{"token": token, "password": password},
	}, nil)
}

// ConfirmEmail redeems a signup confirmation token and signs in
func (c *Client) ConfirmEmail(ctx context.Context, token string) (*Session, error) {
	var s Session
	err := c.send(ctx, request{
		method: http.MethodPost,
		path:   "/api/auth/confirm",
		body:   map[string]string{"token": token},
	}, &s)
	if err != nil {
		return nil, err
	}

	c.setSession(&s, EventSignedIn)
	return &s, nil
}

// OAuthURL returns the Google consent URL. After consent the server redirects
// to redirectTo with the session in the query string (see SessionFromQuery).
func (c *Client) OAuthURL(ctx context.Context, redirectTo string) (string, error) {
	q := url.Values{}
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := c.send(ctx, request{method: http.MethodGet, path: "/api/auth/oauth/google", query: q}, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

// SetSession adopts a session obtained out of band (OAuth redirect). The
// access token is checked against the server before it is stored.
func (c *Client) SetSession(ctx context.Context, s *Session) (*Session, error) {
	if s == nil || s.AccessToken == "" || s.RefreshToken == "" {
		return nil, errors.New("session is missing tokens")
	}

	var u User
	if err := c.send(ctx, request{method: http.MethodGet, path: "/api/auth/user", token: s.AccessToken}, &u); err != nil {
		return nil, err
	}

	next := *s
	next.User = &u
	c.setSession(&next, EventSignedIn)
	return &next, nil
}

// SessionFromQuery reads a session from OAuth redirect parameters
func SessionFromQuery(q url.Values) (*Session, error) {
	s := &Session{
		AccessToken:  q.Get("access_token"),
		RefreshToken: q.Get("refresh_token"),
		TokenType:    q.Get("token_type"),
	}
	if s.AccessToken == "" || s.RefreshToken == "" {
		return nil, errors.New("redirect carries no session")
	}

	var err error
	if raw := q.Get("expires_in"); raw != "" {
		if s.ExpiresIn, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return nil, fmt.Errorf("invalid expires_in: %w", err)
		}
	}
	if raw := q.Get("expires_at"); raw != "" {
		if s.ExpiresAt, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return nil, fmt.Errorf("invalid expires_at: %w", err)
		}
	}
	return s, nil
}
