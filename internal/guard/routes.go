package guard

import (
	"strings"

	"github.com/hds-conecte/conecte/internal/roles"
)

// Route paths
const (
	PathHome            = "/"
	PathLogin           = "/login"
	PathSignup          = "/signup"
	PathRecoverPassword = "/recover-password"
	PathProfile         = "/profile"
	PathRegistration    = "/registration"
	PathChallenge       = "/challenge"
	PathVideos          = "/videos"
	PathNotifications   = "/notifications"
	PathTeams           = "/teams"
	PathTeamManagement  = "/team-management"
	PathAdmin           = "/admin"
	PathDevAdmin        = "/dev-admin"
)

// Policy selects which guard protects a route
type Policy int

const (
	Authenticated Policy = iota
	Guest
	RoleRequired
)

// Route is one entry of the fixed route table
type Route struct {
	Path   string
	Title  string
	Policy Policy
	Roles  []roles.Role // Only for RoleRequired
}

// Routes is the application route table
var Routes = []Route{
	{Path: PathHome, Title: "Início", Policy: Authenticated},
	{Path: PathLogin, Title: "Entrar", Policy: Guest},
	{Path: PathSignup, Title: "Cadastrar", Policy: Guest},
	{Path: PathRecoverPassword, Title: "Recuperar senha", Policy: Guest},
	{Path: PathProfile, Title: "Meu Perfil", Policy: Authenticated},
	{Path: PathRegistration, Title: "Cadastro", Policy: Authenticated},
	{Path: PathChallenge, Title: "Gincana", Policy: Authenticated},
	{Path: PathVideos, Title: "Vídeos", Policy: Authenticated},
	{Path: PathNotifications, Title: "Notificações", Policy: Authenticated},
	{Path: PathTeams, Title: "Equipes", Policy: Authenticated},
	{Path: PathTeamManagement, Title: "Gerenciar Equipes", Policy: RoleRequired, Roles: roles.Staff},
	{Path: PathAdmin, Title: "Admin", Policy: RoleRequired, Roles: roles.Staff},
	{Path: PathDevAdmin, Title: "Dev Admin", Policy: RoleRequired, Roles: []roles.Role{roles.DevAdmin}},
}

// Lookup finds the route for a path; trailing slashes are ignored
func Lookup(path string) (Route, bool) {
	if path != PathHome {
		path = strings.TrimSuffix(path, "/")
	}
	for _, r := range Routes {
		if r.Path == path {
			return r, true
		}
	}
	return Route{}, false
}

// Check applies the route's policy
func (r Route) Check(s State) Decision {
	switch r.Policy {
	case Guest:
		return RequireGuest(s)
	case RoleRequired:
		return RequireRole(s, r.Roles...)
	default:
		return RequireAuth(s)
	}
}

// Resolve returns the decision for navigating to path
func Resolve(path string, s State) Decision {
	r, ok := Lookup(path)
	if !ok {
		return Decision{Action: NotFound}
	}
	return r.Check(s)
}

// Navigation lists the routes a session may see in menus
func Navigation(s State) []Route {
	var out []Route
	for _, r := range Routes {
		if r.Policy == Guest {
			continue
		}
		if r.Check(s).Action == Render {
			out = append(out, r)
		}
	}
	return out
}
