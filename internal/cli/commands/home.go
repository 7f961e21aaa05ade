package commands

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hds-conecte/conecte/internal/guard"
	"github.com/hds-conecte/conecte/internal/session"
)

// routeCommands maps each page to the command that renders it
var routeCommands = map[string]string{
	guard.PathHome:            "home",
	guard.PathLogin:           "login",
	guard.PathSignup:          "signup",
	guard.PathRecoverPassword: "recover-password",
	guard.PathProfile:         "profile",
	guard.PathRegistration:    "events",
	guard.PathChallenge:       "challenge",
	guard.PathVideos:          "videos",
	guard.PathNotifications:   "notifications",
	guard.PathTeams:           "teams",
	guard.PathTeamManagement:  "team-management",
	guard.PathAdmin:           "admin",
	guard.PathDevAdmin:        "dev-admin",
}

// NewHomeCmd creates the home command
func NewHomeCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "home",
		Short: "Show the home page and the pages available to you",
		RunE: func(cmd *cobra.Command, args []string) error {
			renderHome(env)
			return nil
		},
	}
	return withRoute(cmd, guard.PathHome)
}

func renderHome(env *Env) {
	snap := env.App.Store.Snapshot()
	if snap.User != nil {
		env.printf("Olá, %s!\n\n", snap.User.Name)
	}

	env.printf("Pages:\n")
	w := tabwriter.NewWriter(env.Out, 0, 0, 2, ' ', 0)
	for _, r := range guard.Navigation(snap.Guard()) {
		fmt.Fprintf(w, "  %s\t%s\tconecte %s\n", r.Title, r.Path, routeCommands[r.Path])
	}
	w.Flush()

	printFooter(env, snap.CompanyInfo)
}

func printFooter(env *Env, info session.CompanyInfo) {
	env.printf("\nDesenvolvido por %s · %s\n", info.Name, info.ContactLink)
}

// NewOpenCmd creates the open command
func NewOpenCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "open <path>",
		Short: "Open a page by its path, e.g. /teams",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if err := env.Guard(path); err != nil {
				if errors.Is(err, ErrNotFound) {
					env.printf("404\nOops! Page not found\nReturn to Home: conecte home\n")
				}
				return err
			}

			route, _ := guard.Lookup(path)
			target, _, err := cmd.Root().Find([]string{routeCommands[route.Path]})
			if err != nil || target.RunE == nil {
				return fmt.Errorf("no command renders %s", route.Path)
			}
			target.SetContext(cmd.Context())
			return target.RunE(target, nil)
		},
	}
}
