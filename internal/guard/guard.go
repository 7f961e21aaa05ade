// Package guard decides whether a page may render for the current session.
//
// Decisions are pure functions of a session snapshot; they never fetch or
// cache anything and are re-evaluated whenever the store changes.
package guard

import (
	"github.com/hds-conecte/conecte/internal/roles"
)

// Action is what the caller should do with the page
type Action int

const (
	Render Action = iota
	Placeholder
	Redirect
	NotFound
)

func (a Action) String() string {
	switch a {
	case Render:
		return "render"
	case Placeholder:
		return "placeholder"
	case Redirect:
		return "redirect"
	case NotFound:
		return "not-found"
	default:
		return "unknown"
	}
}

// Decision is the outcome of a guard
type Decision struct {
	Action Action
	To     string // Redirect target, set only for Redirect
}

// State is the part of the session a guard looks at
type State struct {
	IsLoading       bool
	IsAuthenticated bool
	Role            roles.Role
}

func render() Decision            { return Decision{Action: Render} }
func redirect(to string) Decision { return Decision{Action: Redirect, To: to} }
func placeholder() Decision       { return Decision{Action: Placeholder} }

// RequireAuth renders only for a signed-in session
func RequireAuth(s State) Decision {
	if s.IsLoading {
		return placeholder()
	}
	if !s.IsAuthenticated {
		return redirect(PathLogin)
	}
	return render()
}

// RequireGuest renders only when nobody is signed in
func RequireGuest(s State) Decision {
	if s.IsAuthenticated {
		return redirect(PathHome)
	}
	return render()
}

// RequireRole renders only for a signed-in session holding one of allowed
func RequireRole(s State, allowed ...roles.Role) Decision {
	if d := RequireAuth(s); d.Action != Render {
		return d
	}
	if !RoleAllowed(s.Role, allowed...) {
		return redirect(PathHome)
	}
	return render()
}

// RoleAllowed is the role check shared with the API middleware
func RoleAllowed(r roles.Role, allowed ...roles.Role) bool {
	return roles.In(r, allowed...)
}
