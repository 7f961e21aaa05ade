package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hds-conecte/conecte/internal/backend"
	"github.com/hds-conecte/conecte/internal/guard"
)

// NewVideosCmd creates the videos command
func NewVideosCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "videos",
		Short: "List shared videos",
		RunE: func(cmd *cobra.Command, args []string) error {
			videos, err := env.App.Client.ListVideos(cmd.Context())
			if err != nil {
				return err
			}
			if len(videos) == 0 {
				env.printf("No videos yet.\n\nShare one with: conecte videos add <youtube-url> --title ...\n")
				return nil
			}
			w := tabwriter.NewWriter(env.Out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tLIKES\tURL")
			for _, v := range videos {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", v.ID, v.Title, v.Likes, v.URL)
			}
			return w.Flush()
		},
	}

	var title, description string
	addCmd := &cobra.Command{
		Use:   "add <youtube-url>",
		Short: "Share a YouTube video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := env.App.Client.AddVideo(cmd.Context(), backend.VideoInput{
				Title:       title,
				URL:         args[0],
				Description: optional(description),
			})
			if err != nil {
				return fmt.Errorf("failed to add video: %w", err)
			}
			fmt.Fprintf(env.Out, "✓ Video shared: %s\n", v.URL)
			return nil
		},
	}
	addCmd.Flags().StringVar(&title, "title", "", "Title")
	addCmd.Flags().StringVar(&description, "description", "", "Description")
	_ = addCmd.MarkFlagRequired("title")

	interaction := func(use, short, done string, in func() backend.Interaction) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <video-id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if _, err := env.App.Client.SetVideoInteraction(cmd.Context(), args[0], in()); err != nil {
					return err
				}
				fmt.Fprintf(env.Out, "✓ %s\n", done)
				return nil
			},
		}
	}
	flag := func(b bool) *bool { return &b }

	deleteCmd := &cobra.Command{
		Use:   "delete <video-id>",
		Short: "Delete a video you shared (staff may delete any)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := env.App.Client.DeleteVideo(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("failed to delete video: %w", err)
			}
			fmt.Fprintln(env.Out, "✓ Video deleted")
			return nil
		},
	}

	cmd.AddCommand(addCmd, deleteCmd,
		interaction("like", "Like a video", "Liked", func() backend.Interaction { return backend.Interaction{Liked: flag(true)} }),
		interaction("unlike", "Remove your like", "Like removed", func() backend.Interaction { return backend.Interaction{Liked: flag(false)} }),
		interaction("watched", "Mark a video as watched", "Marked as watched", func() backend.Interaction { return backend.Interaction{Watched: flag(true)} }),
	)

	return withRoute(cmd, guard.PathVideos)
}
