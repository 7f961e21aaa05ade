package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hds-conecte/conecte/internal/backend"
	"github.com/hds-conecte/conecte/internal/cli/picker"
	"github.com/hds-conecte/conecte/internal/guard"
	"github.com/hds-conecte/conecte/internal/models"
)

// NewTeamsCmd creates the teams command
func NewTeamsCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "teams",
		Short: "List teams",
		RunE: func(cmd *cobra.Command, args []string) error {
			teams, err := env.App.Client.ListTeams(cmd.Context())
			if err != nil {
				return err
			}
			if len(teams) == 0 {
				env.printf("No teams yet.\n")
				return nil
			}
			w := tabwriter.NewWriter(env.Out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tCOLOR\tMASCOT")
			for _, t := range teams {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ID, t.Name, deref(t.Color), deref(t.Mascot))
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show [team-id]",
		Short: "Show a team, its members and achievements",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := chooseTeam(cmd.Context(), env, args)
			if err != nil {
				return err
			}
			detail, err := env.App.Client.GetTeam(cmd.Context(), id)
			if err != nil {
				return err
			}
			achievements, err := env.App.Client.ListTeamAchievements(cmd.Context(), id)
			if err != nil {
				return err
			}

			t := detail.Team
			env.printf("%s\n", t.Name)
			if t.Description != nil {
				env.printf("%s\n", *t.Description)
			}
			env.printf("\nMembers (%d):\n", len(detail.Members))
			for _, m := range detail.Members {
				env.printf("  %s\n", m.Name)
			}
			if len(achievements) > 0 {
				env.printf("\nAchievements:\n")
				for _, a := range achievements {
					env.printf("  🏆 %s (%s %d)\n", a.Name, a.AchievementType, a.AchievementValue)
				}
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "join [team-id]",
		Short: "Ask to join a team",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := chooseTeam(cmd.Context(), env, args)
			if err != nil {
				return err
			}
			m, err := env.App.Client.JoinTeam(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("join failed: %w", err)
			}
			fmt.Fprintf(env.Out, "✓ Request sent (%s)\n", m.Status)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "mine",
		Short: "Show your team memberships",
		RunE: func(cmd *cobra.Command, args []string) error {
			members, err := env.App.Client.ListTeamMembers(cmd.Context(), backend.MemberFilter{})
			if err != nil {
				return err
			}
			if len(members) == 0 {
				env.printf("You are not in a team yet.\n\nJoin one with: conecte teams join\n")
				return nil
			}
			return printMembers(env, members)
		},
	})

	return withRoute(cmd, guard.PathTeams)
}

func printMembers(env *Env, members []backend.TeamMember) error {
	w := tabwriter.NewWriter(env.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTEAM\tMEMBER\tSTATUS")
	for _, m := range members {
		team := m.TeamID
		if m.Team != nil {
			team = m.Team.Name
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.ID, team, m.Name, m.Status)
	}
	return w.Flush()
}

func chooseTeam(ctx context.Context, env *Env, args []string) (string, error) {
	var arg string
	if len(args) > 0 {
		arg = args[0]
	}
	return picker.Choose(arg, env.Interactive, "Select a team", func() ([]picker.Option, error) {
		teams, err := env.App.Client.ListTeams(ctx)
		if err != nil {
			return nil, err
		}
		opts := make([]picker.Option, len(teams))
		for i, t := range teams {
			opts[i] = picker.Option{ID: t.ID, Label: t.Name}
		}
		return opts, nil
	})
}

// NewTeamManagementCmd creates the team-management command
func NewTeamManagementCmd(env *Env) *cobra.Command {
	var teamID string

	cmd := &cobra.Command{
		Use:   "team-management",
		Short: "Review membership requests (staff)",
		RunE: func(cmd *cobra.Command, args []string) error {
			members, err := env.App.Client.ListTeamMembers(cmd.Context(), backend.MemberFilter{TeamID: teamID, Status: models.StatusPending})
			if err != nil {
				return err
			}
			if len(members) == 0 {
				env.printf("No pending requests.\n")
				return nil
			}
			return printMembers(env, members)
		},
	}
	cmd.Flags().StringVar(&teamID, "team", "", "Only requests for this team")

	var name, description, color, mascot, logo string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a team",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := env.App.Client.CreateTeam(cmd.Context(), backend.TeamInput{
				Name:        name,
				Description: optional(description),
				Color:       optional(color),
				Mascot:      optional(mascot),
				LogoURL:     optional(logo),
			})
			if err != nil {
				return fmt.Errorf("failed to create team: %w", err)
			}
			fmt.Fprintf(env.Out, "✓ Team created: %s (%s)\n", t.Name, t.ID)
			return nil
		},
	}
	createCmd.Flags().StringVar(&name, "name", "", "Team name")
	createCmd.Flags().StringVar(&description, "description", "", "Description")
	createCmd.Flags().StringVar(&color, "color", "", "Color, e.g. #1E88E5")
	createCmd.Flags().StringVar(&mascot, "mascot", "", "Mascot")
	createCmd.Flags().StringVar(&logo, "logo", "", "Logo URL")
	_ = createCmd.MarkFlagRequired("name")

	deleteCmd := &cobra.Command{
		Use:   "delete <team-id>",
		Short: "Delete a team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := env.App.Client.DeleteTeam(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("failed to delete team: %w", err)
			}
			fmt.Fprintln(env.Out, "✓ Team deleted")
			return nil
		},
	}

	review := func(use, short, status string) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <membership-id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := env.App.Client.ReviewTeamMember(cmd.Context(), args[0], status)
				if err != nil {
					return fmt.Errorf("review failed: %w", err)
				}
				fmt.Fprintf(env.Out, "✓ Membership %s\n", m.Status)
				return nil
			},
		}
	}

	cmd.AddCommand(createCmd, deleteCmd,
		review("approve", "Approve a membership request", models.StatusApproved),
		review("reject", "Reject a membership request", models.StatusRejected),
	)
	return withRoute(cmd, guard.PathTeamManagement)
}
