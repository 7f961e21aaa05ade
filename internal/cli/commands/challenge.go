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

// NewChallengeCmd creates the challenge command (the gincana page)
func NewChallengeCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "challenge",
		Aliases: []string{"gincana"},
		Short:   "List the gincana challenges",
		RunE: func(cmd *cobra.Command, args []string) error {
			challenges, err := env.App.Client.ListChallenges(cmd.Context())
			if err != nil {
				return err
			}
			if len(challenges) == 0 {
				env.printf("No challenges yet.\n")
				return nil
			}
			w := tabwriter.NewWriter(env.Out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tPOINTS\tACTIVE")
			for _, c := range challenges {
				fmt.Fprintf(w, "%s\t%s\t%d\t%t\n", c.ID, c.Title, c.Points, c.Active)
			}
			return w.Flush()
		},
	}

	var evidence string
	submitTeam := &cobra.Command{
		Use:   "submit [challenge-id]",
		Short: "Submit a challenge for your team",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := chooseChallenge(cmd.Context(), env, args)
			if err != nil {
				return err
			}
			tc, err := env.App.Client.SubmitTeamChallenge(cmd.Context(), id, evidence)
			if err != nil {
				return fmt.Errorf("submission failed: %w", err)
			}
			fmt.Fprintf(env.Out, "✓ Submitted for review (%s)\n", tc.Status)
			return nil
		},
	}
	submitTeam.Flags().StringVar(&evidence, "evidence", "", "Link or note proving the challenge was done")

	var personalEvidence string
	submitPersonal := &cobra.Command{
		Use:   "submit-personal [challenge-id]",
		Short: "Submit a challenge for yourself",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := chooseChallenge(cmd.Context(), env, args)
			if err != nil {
				return err
			}
			uc, err := env.App.Client.SubmitUserChallenge(cmd.Context(), id, personalEvidence)
			if err != nil {
				return fmt.Errorf("submission failed: %w", err)
			}
			fmt.Fprintf(env.Out, "✓ Submitted for review (%s)\n", uc.Status)
			return nil
		},
	}
	submitPersonal.Flags().StringVar(&personalEvidence, "evidence", "", "Link or note proving the challenge was done")

	var status string
	progress := &cobra.Command{
		Use:   "progress",
		Short: "Show your personal submissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			subs, err := env.App.Client.ListUserChallenges(cmd.Context(), status)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(env.Out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CHALLENGE\tSTATUS\tEVIDENCE")
			for _, s := range subs {
				fmt.Fprintf(w, "%s\t%s\t%s\n", challengeTitle(s.Challenge, s.ChallengeID), s.Status, deref(s.Evidence))
			}
			return w.Flush()
		},
	}
	progress.Flags().StringVar(&status, "status", "", "Filter by status (pending, completed, rejected)")

	scoreboard := &cobra.Command{
		Use:   "scoreboard",
		Short: "Show the team ranking",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := env.App.Client.Scoreboard(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(env.Out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "#\tTEAM\tPOINTS\tCOMPLETED")
			for i, e := range entries {
				fmt.Fprintf(w, "%d\t%s\t%d\t%d\n", i+1, e.Name, e.Points, e.Completed)
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(submitTeam, submitPersonal, progress, scoreboard)
	for _, sub := range newChallengeAdminCmds(env) {
		cmd.AddCommand(withRoute(sub, guard.PathAdmin))
	}
	return withRoute(cmd, guard.PathChallenge)
}

func challengeTitle(c *models.Challenge, id string) string {
	if c == nil {
		return id
	}
	return c.Title
}

func chooseChallenge(ctx context.Context, env *Env, args []string) (string, error) {
	var arg string
	if len(args) > 0 {
		arg = args[0]
	}
	return picker.Choose(arg, env.Interactive, "Select a challenge", func() ([]picker.Option, error) {
		challenges, err := env.App.Client.ListChallenges(ctx)
		if err != nil {
			return nil, err
		}
		var opts []picker.Option
		for _, c := range challenges {
			if c.Active {
				opts = append(opts, picker.Option{ID: c.ID, Label: fmt.Sprintf("%s (%d pts)", c.Title, c.Points)})
			}
		}
		return opts, nil
	})
}

func newChallengeAdminCmds(env *Env) []*cobra.Command {
	var title, description string
	var points int
	var active bool

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a challenge (staff)",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := backend.ChallengeInput{Title: &title, Points: &points, Active: &active, Description: optional(description)}
			c, err := env.App.Client.CreateChallenge(cmd.Context(), in)
			if err != nil {
				return fmt.Errorf("failed to create challenge: %w", err)
			}
			fmt.Fprintf(env.Out, "✓ Challenge created: %s (%s)\n", c.Title, c.ID)
			return nil
		},
	}
	createCmd.Flags().StringVar(&title, "title", "", "Title")
	createCmd.Flags().StringVar(&description, "description", "", "Description")
	createCmd.Flags().IntVar(&points, "points", 10, "Points awarded when completed")
	createCmd.Flags().BoolVar(&active, "active", true, "Whether members can submit it")
	_ = createCmd.MarkFlagRequired("title")

	deleteCmd := &cobra.Command{
		Use:   "delete <challenge-id>",
		Short: "Delete a challenge (staff)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := env.App.Client.DeleteChallenge(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("failed to delete challenge: %w", err)
			}
			fmt.Fprintln(env.Out, "✓ Challenge deleted")
			return nil
		},
	}

	var personal bool
	submissionsCmd := &cobra.Command{
		Use:   "submissions",
		Short: "List pending submissions (staff)",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(env.Out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tBY\tCHALLENGE\tEVIDENCE")
			if personal {
				subs, err := env.App.Client.ListUserChallenges(cmd.Context(), models.StatusPending)
				if err != nil {
					return err
				}
				for _, s := range subs {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, s.UserID, challengeTitle(s.Challenge, s.ChallengeID), deref(s.Evidence))
				}
				return w.Flush()
			}
			subs, err := env.App.Client.ListTeamChallenges(cmd.Context(), backend.SubmissionFilter{Status: models.StatusPending})
			if err != nil {
				return err
			}
			for _, s := range subs {
				by := s.TeamID
				if s.Team != nil {
					by = s.Team.Name
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, by, challengeTitle(s.Challenge, s.ChallengeID), deref(s.Evidence))
			}
			return w.Flush()
		},
	}
	submissionsCmd.Flags().BoolVar(&personal, "personal", false, "List personal instead of team submissions")

	var reject, reviewPersonal bool
	reviewCmd := &cobra.Command{
		Use:   "review <submission-id>",
		Short: "Approve or reject a submission (staff)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status := models.StatusCompleted
			if reject {
				status = models.StatusRejected
			}
			var err error
			if reviewPersonal {
				_, err = env.App.Client.ReviewUserChallenge(cmd.Context(), args[0], status)
			} else {
				_, err = env.App.Client.ReviewTeamChallenge(cmd.Context(), args[0], status)
			}
			if err != nil {
				return fmt.Errorf("review failed: %w", err)
			}
			fmt.Fprintf(env.Out, "✓ Submission %s\n", status)
			return nil
		},
	}
	reviewCmd.Flags().BoolVar(&reject, "reject", false, "Reject instead of approving")
	reviewCmd.Flags().BoolVar(&reviewPersonal, "personal", false, "Review a personal submission")

	return []*cobra.Command{createCmd, deleteCmd, submissionsCmd, reviewCmd}
}
