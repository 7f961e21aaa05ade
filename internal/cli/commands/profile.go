package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hds-conecte/conecte/internal/backend"
	"github.com/hds-conecte/conecte/internal/guard"
)

// NewProfileCmd creates the profile command
func NewProfileCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show your profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap := env.App.Store.Snapshot()
			u := snap.User
			env.printf("Name:   %s\n", u.Name)
			env.printf("Email:  %s\n", u.Email)
			env.printf("Role:   %s\n", u.Role)
			if p := snap.Profile; p != nil {
				env.printf("Phone:  %s\n", deref(p.Phone))
				env.printf("Church: %s\n", deref(p.Church))
				env.printf("Pastor: %s\n", deref(p.ResponsiblePastor))
			}
			if u.PhotoURL != nil {
				env.printf("Photo:  %s\n", *u.PhotoURL)
			}
			return nil
		},
	}

	cmd.AddCommand(newProfileUpdateCmd(env))
	cmd.AddCommand(newProfilePhotoCmd(env))
	return withRoute(cmd, guard.PathProfile)
}

func newProfileUpdateCmd(env *Env) *cobra.Command {
	var name, phone, church, pastor string

	cmd := &cobra.Command{
		Use:     "update",
		Short:   "Update your profile",
		Example: `  $ conecte profile update --name "Maria Souza" --church Sede`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var update backend.ProfileUpdate
			flags := cmd.Flags()
			if flags.Changed("name") {
				update.Name = &name
			}
			if flags.Changed("phone") {
				update.Phone = &phone
			}
			if flags.Changed("church") {
				update.Church = &church
			}
			if flags.Changed("pastor") {
				update.ResponsiblePastor = &pastor
			}
			if update == (backend.ProfileUpdate{}) {
				return fmt.Errorf("nothing to update (use --name, --phone, --church or --pastor)")
			}
			return result(env.App.Store.UpdateProfile(cmd.Context(), update))
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&phone, "phone", "", "Phone number")
	cmd.Flags().StringVar(&church, "church", "", "Church")
	cmd.Flags().StringVar(&pastor, "pastor", "", "Responsible pastor")
	return cmd
}

func newProfilePhotoCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "photo <file>",
		Short: "Upload a profile photo (JPEG, PNG, GIF or WebP)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open photo: %w", err)
			}
			defer f.Close()

			p, err := env.App.Client.UploadProfilePhoto(cmd.Context(), filepath.Base(args[0]), f)
			if err != nil {
				return fmt.Errorf("upload failed: %w", err)
			}
			// Refresh so the store shows the new photo
			if err := result(env.App.Store.RefreshSession(cmd.Context())); err != nil {
				return err
			}
			fmt.Fprintf(env.Out, "✓ Photo updated: %s\n", deref(p.PhotoURL))
			return nil
		},
	}
}
