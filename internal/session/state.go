// Package session holds the client-side authentication state.
//
// State changes only through actions applied by reduce; subscribers get
// snapshots after every change. The Initializer keeps the store in sync with
// the backend's auth events.
package session

import (
	"strings"

	"github.com/hds-conecte/conecte/internal/backend"
	"github.com/hds-conecte/conecte/internal/guard"
	"github.com/hds-conecte/conecte/internal/models"
	"github.com/hds-conecte/conecte/internal/roles"
)

// User is the account as the pages display it
type User struct {
	ID       string     `json:"id"`
	Email    string     `json:"email"`
	Name     string     `json:"name"`
	PhotoURL *string    `json:"photoURL,omitempty"`
	Role     roles.Role `json:"role"`
}

// CompanyInfo is the locally kept branding shown in the footer
type CompanyInfo struct {
	Name        string `json:"name"`
	Logo        string `json:"logo"`
	ContactLink string `json:"contactLink"`
}

// DefaultCompanyInfo is used until a dev-admin changes it
var DefaultCompanyInfo = CompanyInfo{
	Name:        "ValenSoft Desenvolvimento",
	Logo:        "/placeholder.svg",
	ContactLink: "https://valensoft.com",
}

// State is an immutable snapshot of the store
type State struct {
	User        *User
	BackendUser *backend.User
	Session     *backend.Session
	Profile     *models.Profile

	IsAuthenticated bool
	IsLoading       bool

	CompanyInfo CompanyInfo

	// PendingConfirmation is the email of a signup waiting for confirmation
	PendingConfirmation string

	// LastEmail is the most recent signed-in email, kept across sign-outs
	LastEmail string

	inflight int
	// epoch advances on every direct sign-in and sign-out
	epoch int
}

// Guard returns the part of the state route guards look at
func (s State) Guard() guard.State {
	gs := guard.State{IsLoading: s.IsLoading, IsAuthenticated: s.IsAuthenticated}
	if s.User != nil {
		gs.Role = s.User.Role
	}
	return gs
}

// Role returns the signed-in role, or empty when signed out
func (s State) Role() roles.Role {
	if s.User == nil {
		return ""
	}
	return s.User.Role
}

// deriveUser builds the display user from the account and its profile
func deriveUser(u *backend.User, p *models.Profile) *User {
	if u == nil {
		return nil
	}

	out := &User{
		ID:    u.ID,
		Email: u.Email,
		Name:  u.Name,
		Role:  roles.OrDefault(u.Role),
	}
	if p != nil {
		if p.Name != "" {
			out.Name = p.Name
		}
		out.PhotoURL = p.PhotoURL
	}
	if out.Name == "" {
		out.Name, _, _ = strings.Cut(u.Email, "@")
	}
	return out
}
