package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hds-conecte/conecte/internal/backend"
	"github.com/hds-conecte/conecte/internal/cli/picker"
	"github.com/hds-conecte/conecte/internal/guard"
	"github.com/hds-conecte/conecte/internal/models"
)

// dateLayout is how event dates are typed and shown
const dateLayout = "2006-01-02 15:04"

// NewEventsCmd creates the events command (the registration page)
func NewEventsCmd(env *Env) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:     "events",
		Aliases: []string{"registration"},
		Short:   "List events and manage your registrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listEvents(cmd.Context(), env, all)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include inactive events (staff only)")

	cmd.AddCommand(&cobra.Command{
		Use:   "register [event-id]",
		Short: "Register for an event",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := chooseEvent(cmd.Context(), env, args)
			if err != nil {
				return err
			}
			reg, err := env.App.Client.RegisterForEvent(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("registration failed: %w", err)
			}
			fmt.Fprintf(env.Out, "✓ Registered (%s)\n", reg.Status)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "cancel [event-id]",
		Short: "Cancel your registration for an event",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := chooseEvent(cmd.Context(), env, args)
			if err != nil {
				return err
			}
			if err := env.App.Client.CancelRegistration(cmd.Context(), id); err != nil {
				return fmt.Errorf("cancel failed: %w", err)
			}
			fmt.Fprintln(env.Out, "✓ Registration cancelled")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "mine",
		Short: "List your registrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			regs, err := env.App.Client.ListMyRegistrations(cmd.Context())
			if err != nil {
				return err
			}
			if len(regs) == 0 {
				env.printf("No registrations yet.\n\nRegister with: conecte events register\n")
				return nil
			}
			w := tabwriter.NewWriter(env.Out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "EVENT\tSTARTS\tSTATUS")
			for _, r := range regs {
				title, starts := r.EventID, ""
				if r.Event != nil {
					title, starts = r.Event.Title, r.Event.StartDate.Local().Format(dateLayout)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", title, starts, r.Status)
			}
			return w.Flush()
		},
	})

	for _, sub := range newEventAdminCmds(env) {
		cmd.AddCommand(withRoute(sub, guard.PathAdmin))
	}

	return withRoute(cmd, guard.PathRegistration)
}

func listEvents(ctx context.Context, env *Env, all bool) error {
	events, err := env.App.Client.ListEvents(ctx, all)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		env.printf("No events found.\n")
		return nil
	}

	w := tabwriter.NewWriter(env.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSTARTS\tENDS\tLOCATION\tACTIVE")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\n",
			e.ID,
			e.Title,
			e.StartDate.Local().Format(dateLayout),
			e.EndDate.Local().Format(dateLayout),
			deref(e.Location),
			e.Active,
		)
	}
	return w.Flush()
}

func chooseEvent(ctx context.Context, env *Env, args []string) (string, error) {
	var arg string
	if len(args) > 0 {
		arg = args[0]
	}
	return picker.Choose(arg, env.Interactive, "Select an event", func() ([]picker.Option, error) {
		events, err := env.App.Client.ListEvents(ctx, false)
		if err != nil {
			return nil, err
		}
		opts := make([]picker.Option, len(events))
		for i, e := range events {
			opts[i] = picker.Option{ID: e.ID, Label: fmt.Sprintf("%s (%s)", e.Title, e.StartDate.Local().Format(dateLayout))}
		}
		return opts, nil
	})
}

// eventFlags binds the create/update flags of an event
type eventFlags struct {
	title, description, location, start, end string
	active                                   bool
}

func (f *eventFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "Title")
	cmd.Flags().StringVar(&f.description, "description", "", "Description")
	cmd.Flags().StringVar(&f.location, "location", "", "Location")
	cmd.Flags().StringVar(&f.start, "start", "", "Start, as "+dateLayout)
	cmd.Flags().StringVar(&f.end, "end", "", "End, as "+dateLayout)
	cmd.Flags().BoolVar(&f.active, "active", true, "Whether members can see the event")
}

// input builds an EventInput from the flags that were set
func (f *eventFlags) input(cmd *cobra.Command) (backend.EventInput, error) {
	var in backend.EventInput
	flags := cmd.Flags()
	if flags.Changed("title") {
		in.Title = &f.title
	}
	if flags.Changed("description") {
		in.Description = &f.description
	}
	if flags.Changed("location") {
		in.Location = &f.location
	}
	if flags.Changed("active") {
		in.Active = &f.active
	}
	for _, d := range []struct {
		name, raw string
		dst       **time.Time
	}{{"start", f.start, &in.StartDate}, {"end", f.end, &in.EndDate}} {
		if !flags.Changed(d.name) {
			continue
		}
		t, err := time.ParseInLocation(dateLayout, d.raw, time.Local)
		if err != nil {
			return in, fmt.Errorf("invalid --%s %q, use %s", d.name, d.raw, dateLayout)
		}
		*d.dst = &t
	}
	return in, nil
}

func newEventAdminCmds(env *Env) []*cobra.Command {
	var create, update eventFlags

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an event (staff)",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := create.input(cmd)
			if err != nil {
				return err
			}
			in.Active = &create.active
			e, err := env.App.Client.CreateEvent(cmd.Context(), in)
			if err != nil {
				return fmt.Errorf("failed to create event: %w", err)
			}
			fmt.Fprintf(env.Out, "✓ Event created: %s (%s)\n", e.Title, e.ID)
			return nil
		},
	}
	create.bind(createCmd)
	_ = createCmd.MarkFlagRequired("title")
	_ = createCmd.MarkFlagRequired("start")
	_ = createCmd.MarkFlagRequired("end")

	updateCmd := &cobra.Command{
		Use:   "update <event-id>",
		Short: "Update an event (staff)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := update.input(cmd)
			if err != nil {
				return err
			}
			e, err := env.App.Client.UpdateEvent(cmd.Context(), args[0], in)
			if err != nil {
				return fmt.Errorf("failed to update event: %w", err)
			}
			fmt.Fprintf(env.Out, "✓ Event updated: %s\n", e.Title)
			return nil
		},
	}
	update.bind(updateCmd)

	deleteCmd := &cobra.Command{
		Use:   "delete <event-id>",
		Short: "Delete an event (staff)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := env.App.Client.DeleteEvent(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("failed to delete event: %w", err)
			}
			fmt.Fprintln(env.Out, "✓ Event deleted")
			return nil
		},
	}

	registrationsCmd := &cobra.Command{
		Use:   "registrations <event-id>",
		Short: "List the registrations of an event (staff)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			regs, err := env.App.Client.ListEventRegistrations(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(env.Out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUSER\tSTATUS\tCREATED")
			for _, r := range regs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.UserID, r.Status, r.CreatedAt.Local().Format(dateLayout))
			}
			return w.Flush()
		},
	}

	var status string
	setStatusCmd := &cobra.Command{
		Use:   "set-status <registration-id>",
		Short: "Confirm or cancel a registration (staff)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch status {
			case models.StatusPending, models.StatusConfirmed, models.StatusCancelled:
			default:
				return fmt.Errorf("--status must be pending, confirmed or cancelled")
			}
			r, err := env.App.Client.SetRegistrationStatus(cmd.Context(), args[0], status)
			if err != nil {
				return fmt.Errorf("failed to update registration: %w", err)
			}
			fmt.Fprintf(env.Out, "✓ Registration %s\n", r.Status)
			return nil
		},
	}
	setStatusCmd.Flags().StringVar(&status, "status", models.StatusConfirmed, "New status")

	return []*cobra.Command{createCmd, updateCmd, deleteCmd, registrationsCmd, setStatusCmd}
}
