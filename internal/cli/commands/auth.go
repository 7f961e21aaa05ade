package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hds-conecte/conecte/internal/guard"
)

// Env names read by login, useful for scripts
const (
	envEmail    = "CONECTE_EMAIL"
	envPassword = "CONECTE_PASSWORD"
)

// NewLoginCmd creates the login command
func NewLoginCmd(env *Env) *cobra.Command {
	var email, password string
	var google bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password, or with Google",
		Example: `  $ conecte login --email maria@hds.example
  $ conecte login --google`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if google {
				return runGoogleLogin(cmd.Context(), env)
			}
			return runLogin(cmd, env, email, password)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address (or set "+envEmail+")")
	cmd.Flags().StringVar(&password, "password", "", "Password (or set "+envPassword+", will prompt if not provided)")
	cmd.Flags().BoolVar(&google, "google", false, "Sign in with Google in the browser")

	return withRoute(cmd, guard.PathLogin)
}

func runLogin(cmd *cobra.Command, env *Env, email, password string) error {
	var err error
	if email == "" {
		email = os.Getenv(envEmail)
	}
	if password == "" {
		password = os.Getenv(envPassword)
	}

	if email == "" {
		if !env.Interactive {
			return fmt.Errorf("email is required (use --email flag or %s env var)", envEmail)
		}
		label := "Email: "
		last := env.App.Store.Snapshot().LastEmail
		if last != "" {
			label = fmt.Sprintf("Email [%s]: ", last)
		}
		if email, err = env.readLine(label); err != nil {
			return err
		}
		if email == "" {
			email = last
		}
	}

	if password == "" {
		if !env.Interactive {
			return fmt.Errorf("password is required in non-interactive mode (use --password flag or %s env var)", envPassword)
		}
		if password, err = env.readPassword("Password: "); err != nil {
			return err
		}
	}

	if err := result(env.App.Store.SignInWithEmail(cmd.Context(), email, password)); err != nil {
		return err
	}
	printWhoAmI(env)
	return nil
}

// NewSignupCmd creates the signup command
func NewSignupCmd(env *Env) *cobra.Command {
	var email, password, name string

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if name == "" && env.Interactive {
				if name, err = env.readLine("Name: "); err != nil {
					return err
				}
			}
			if email == "" && env.Interactive {
				if email, err = env.readLine("Email: "); err != nil {
					return err
				}
			}
			if password == "" && env.Interactive {
				if password, err = env.readPassword("Password: "); err != nil {
					return err
				}
				confirm, err := env.readPassword("Confirm password: ")
				if err != nil {
					return err
				}
				if confirm != password {
					return fmt.Errorf("passwords do not match")
				}
			}
			if email == "" || password == "" || name == "" {
				return fmt.Errorf("--name, --email and --password are required in non-interactive mode")
			}

			if err := result(env.App.Store.Signup(cmd.Context(), email, password, name)); err != nil {
				return err
			}
			snap := env.App.Store.Snapshot()
			if snap.PendingConfirmation != "" {
				env.printf("Then run: conecte confirm <token>\n")
				return nil
			}
			printWhoAmI(env)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Full name")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password (will prompt if not provided)")

	return withRoute(cmd, guard.PathSignup)
}

// NewConfirmCmd creates the confirm command
func NewConfirmCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "confirm <token>",
		Short: "Confirm your email with the token from the confirmation email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := env.App.Client.ConfirmEmail(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("confirmation failed: %w", err)
			}
			// The store follows the new session through a refresh
			if err := result(env.App.Store.RefreshSession(cmd.Context())); err != nil {
				return err
			}
			fmt.Fprintln(env.Out, "✓ Email confirmed!")
			printWhoAmI(env)
			return nil
		},
	}
	return withRoute(cmd, guard.PathSignup)
}

// NewRecoverPasswordCmd creates the recover-password command
func NewRecoverPasswordCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recover-password [email]",
		Short: "Send a password recovery email",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var email string
			if len(args) > 0 {
				email = args[0]
			}
			if email == "" {
				email = env.App.Store.Snapshot().LastEmail
			}
			if email == "" {
				return fmt.Errorf("email is required")
			}
			return result(env.App.Store.RecoverPassword(cmd.Context(), email))
		},
	}
	return withRoute(cmd, guard.PathRecoverPassword)
}

// NewResetPasswordCmd creates the reset-password command
func NewResetPasswordCmd(env *Env) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "reset-password <token>",
		Short: "Choose a new password with the token from the recovery email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if password == "" {
				if !env.Interactive {
					return fmt.Errorf("password is required in non-interactive mode (use --password flag)")
				}
				if password, err = env.readPassword("New password: "); err != nil {
					return err
				}
			}
			if err := env.App.Client.ResetPassword(cmd.Context(), args[0], password); err != nil {
				return fmt.Errorf("password reset failed: %w", err)
			}
			fmt.Fprintln(env.Out, "✓ Password updated. Sign in with: conecte login")
			return nil
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "New password (will prompt if not provided)")
	return withRoute(cmd, guard.PathRecoverPassword)
}

// NewLogoutCmd creates the logout command
func NewLogoutCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return result(env.App.Store.Logout(cmd.Context()))
		},
	}
}

// NewWhoAmICmd creates the whoami command
func NewWhoAmICmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !env.App.Store.Snapshot().IsAuthenticated {
				env.printf("Not signed in.\n")
				return nil
			}
			printWhoAmI(env)
			return nil
		},
	}
}

func printWhoAmI(env *Env) {
	u := env.App.Store.Snapshot().User
	if u == nil {
		return
	}
	env.printf("  User: %s (%s)\n", u.Name, u.Email)
	env.printf("  Role: %s\n", u.Role)
}
