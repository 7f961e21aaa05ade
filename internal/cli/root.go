package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hds-conecte/conecte/internal/backend"
	"github.com/hds-conecte/conecte/internal/cli/auth"
	"github.com/hds-conecte/conecte/internal/cli/commands"
	"github.com/hds-conecte/conecte/internal/cli/userconfig"
	"github.com/hds-conecte/conecte/internal/logger"
	"github.com/hds-conecte/conecte/internal/session"
)

var version = "dev" // Will be set during build

// AppFactory builds the API client and session store for env.ServerURL
type AppFactory func(env *commands.Env, log zerolog.Logger) (*commands.App, error)

// Root is the conecte command tree plus the session it restored
type Root struct {
	Cmd *cobra.Command

	env  *commands.Env
	stop func()
}

// NewRoot builds the command tree; newApp may be nil for the keychain-backed default
func NewRoot(env *commands.Env, newApp AppFactory) *Root {
	if newApp == nil {
		newApp = defaultApp
	}

	r := &Root{env: env}
	var serverFlag, logLevel string

	r.Cmd = &cobra.Command{
		Use:   "conecte",
		Short: "HDS Conecte - the church community app",
		Long: `HDS Conecte CLI - events, gincana, teams, videos and notifications
for the HDS community, from your terminal.

Run "conecte home" to see the pages available to you.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger.InitWithWriter(env.Err, logLevel, "console")
			log := logger.GetLogger()

			url, err := userconfig.ResolveServerURL(serverFlag)
			if err != nil {
				return err
			}
			env.ServerURL = url

			if !commands.NeedsSession(cmd) {
				return nil
			}

			app, err := newApp(env, log)
			if err != nil {
				return err
			}
			env.App = app

			init := session.NewInitializer(app.Store, log)
			r.stop = init.Start(cmd.Context())
			select {
			case <-init.Ready():
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			}

			if path, ok := commands.RouteOf(cmd); ok {
				return env.Guard(path)
			}
			return nil
		},
	}

	r.Cmd.PersistentFlags().StringVar(&serverFlag, "server", "", "API server URL (or set "+userconfig.EnvServerURL+")")
	r.Cmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	r.Cmd.SetOut(env.Out)
	r.Cmd.SetErr(env.Err)
	r.Cmd.SetIn(env.In)

	r.Cmd.AddCommand(
		commands.NewHomeCmd(env),
		commands.NewOpenCmd(env),
		commands.NewLoginCmd(env),
		commands.NewSignupCmd(env),
		commands.NewConfirmCmd(env),
		commands.NewRecoverPasswordCmd(env),
		commands.NewResetPasswordCmd(env),
		commands.NewLogoutCmd(env),
		commands.NewWhoAmICmd(env),
		commands.NewProfileCmd(env),
		commands.NewEventsCmd(env),
		commands.NewChallengeCmd(env),
		commands.NewTeamsCmd(env),
		commands.NewTeamManagementCmd(env),
		commands.NewVideosCmd(env),
		commands.NewNotificationsCmd(env),
		commands.NewAdminCmd(env),
		commands.NewDevAdminCmd(env),
		commands.NewConfigCmd(env),
		commands.NewVersionCmd(env, version),
	)
	return r
}

// Run executes args and stops the session initializer afterwards
func (r *Root) Run(ctx context.Context, args []string) error {
	r.Cmd.SetArgs(args)
	defer r.Close()
	return r.Cmd.ExecuteContext(ctx)
}

// Close stops the session initializer, if one was started
func (r *Root) Close() {
	if r.stop != nil {
		r.stop()
		r.stop = nil
	}
}

func defaultApp(env *commands.Env, log zerolog.Logger) (*commands.App, error) {
	client := backend.New(env.ServerURL,
		backend.WithTokenStore(auth.KeyringStore{ServerURL: env.ServerURL}),
		backend.WithLogger(log),
	)

	path, err := session.DefaultPath()
	if err != nil {
		return nil, err
	}
	store := session.New(client,
		session.WithPersister(session.FilePersister{Path: path}),
		session.WithNotifier(env.Notifier()),
		session.WithLogger(log),
	)
	return &commands.App{Client: client, Store: store}, nil
}

// Execute runs the root command against the process arguments
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	env := commands.NewEnv()
	err := NewRoot(env, nil).Run(ctx, os.Args[1:])
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	report(env, err)
	return err
}

// report prints err unless the user was already told through a notice
func report(env *commands.Env, err error) {
	var redirect *commands.RedirectError
	switch {
	case commands.IsSilent(err):
	case errors.As(err, &redirect):
		fmt.Fprintf(env.Err, "%v\n%s\n", err, redirect.Hint())
	default:
		fmt.Fprintf(env.Err, "Error: %v\n", err)
	}
}
