package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hds-conecte/conecte/internal/backend"
	"github.com/hds-conecte/conecte/internal/cli/userconfig"
)

// NewConfigCmd creates the config command
func NewConfigCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the CLI configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := userconfig.GetConfigPath()
			if err != nil {
				return err
			}
			env.printf("Config: %s\n", path)
			env.printf("Server: %s\n", env.ServerURL)
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set-server <url>",
		Short: "Select the API server used by every command",
		Example: `  $ conecte config set-server https://api.hds.example
  $ conecte config set-server localhost:8080`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := userconfig.SetServerURL(args[0]); err != nil {
				return err
			}
			u, _ := userconfig.NormalizeURL(args[0])
			fmt.Fprintf(env.Out, "✓ Server set to %s\n", u)
			return nil
		},
	})

	return withoutSession(cmd)
}

// NewVersionCmd creates the version command
func NewVersionCmd(env *Env, version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the CLI and server versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			env.printf("conecte version %s\n", version)
			h, err := backend.New(env.ServerURL).Health(cmd.Context())
			if err != nil {
				env.printf("server %s unreachable: %v\n", env.ServerURL, err)
				return nil
			}
			env.printf("server %s version %s (%s)\n", env.ServerURL, h.Version, h.Status)
			return nil
		},
	}
	return withoutSession(cmd)
}
