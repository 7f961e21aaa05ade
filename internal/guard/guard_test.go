package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hds-conecte/conecte/internal/roles"
)

var (
	loading   = State{IsLoading: true}
	anonymous = State{}
	member    = State{IsAuthenticated: true, Role: roles.User}
	admin     = State{IsAuthenticated: true, Role: roles.Admin}
	devAdmin  = State{IsAuthenticated: true, Role: roles.DevAdmin}
)

func TestRequireAuth(t *testing.T) {
	assert.Equal(t, Decision{Action: Placeholder}, RequireAuth(loading))
	assert.Equal(t, Decision{Action: Redirect, To: PathLogin}, RequireAuth(anonymous))
	assert.Equal(t, Decision{Action: Render}, RequireAuth(member))
}

func TestRequireGuest(t *testing.T) {
	assert.Equal(t, Decision{Action: Render}, RequireGuest(anonymous))
	assert.Equal(t, Decision{Action: Render}, RequireGuest(loading))
	assert.Equal(t, Decision{Action: Redirect, To: PathHome}, RequireGuest(member))
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name    string
		state   State
		allowed []roles.Role
		want    Decision
	}{
		{"loading shows placeholder", loading, roles.Staff, Decision{Action: Placeholder}},
		{"anonymous goes to login", anonymous, roles.Staff, Decision{Action: Redirect, To: PathLogin}},
		{"member bounced home", member, roles.Staff, Decision{Action: Redirect, To: PathHome}},
		{"admin allowed", admin, roles.Staff, Decision{Action: Render}},
		{"admin not dev-admin", admin, []roles.Role{roles.DevAdmin}, Decision{Action: Redirect, To: PathHome}},
		{"dev-admin allowed", devAdmin, []roles.Role{roles.DevAdmin}, Decision{Action: Render}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RequireRole(tt.state, tt.allowed...))
		})
	}
}

func TestResolve(t *testing.T) {
	assert.Equal(t, Render, Resolve("/admin", admin).Action)
	assert.Equal(t, Render, Resolve("/team-management/", devAdmin).Action)
	assert.Equal(t, Redirect, Resolve("/dev-admin", admin).Action)
	assert.Equal(t, Redirect, Resolve("/login", member).Action)
	assert.Equal(t, Render, Resolve("/signup", anonymous).Action)
	assert.Equal(t, NotFound, Resolve("/nowhere", member).Action)
}

func TestNavigation(t *testing.T) {
	paths := func(rs []Route) []string {
		var out []string
		for _, r := range rs {
			out = append(out, r.Path)
		}
		return out
	}

	assert.Empty(t, Navigation(anonymous))
	assert.NotContains(t, paths(Navigation(member)), PathAdmin)
	assert.Contains(t, paths(Navigation(admin)), PathAdmin)
	assert.NotContains(t, paths(Navigation(admin)), PathDevAdmin)
	assert.Contains(t, paths(Navigation(devAdmin)), PathDevAdmin)
	assert.NotContains(t, paths(Navigation(devAdmin)), PathLogin)
}
