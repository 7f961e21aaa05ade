package auth

import "github.com/hds-conecte/conecte/internal/roles"

// SessionData represents the authenticated session context for a request
type SessionData struct {
	UserID   string     `json:"user_id"`
	Email    string     `json:"email"`
	Role     roles.Role `json:"role"`
	Provider string     `json:"provider"` // "email", "google"
}
