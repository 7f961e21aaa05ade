// Package roles defines the account roles shared by the API and the client.
package roles

import "fmt"

// Role is the privilege level stored on an account
type Role string

const (
	User     Role = "user"
	Admin    Role = "admin"
	DevAdmin Role = "dev-admin"
)

// All lists every known role, lowest privilege first
var All = []Role{User, Admin, DevAdmin}

// Staff are the roles that may use the administration pages
var Staff = []Role{Admin, DevAdmin}

// Parse validates a role string
func Parse(s string) (Role, error) {
	for _, r := range All {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// OrDefault returns r, or User when r is empty or unknown
func OrDefault(r Role) Role {
	if _, err := Parse(string(r)); err != nil {
		return User
	}
	return r
}

// In reports whether r is one of allowed
func In(r Role, allowed ...Role) bool {
	for _, a := range allowed {
		if r == a {
			return true
		}
	}
	return false
}
