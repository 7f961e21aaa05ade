package commands

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hds-conecte/conecte/internal/guard"
	"github.com/hds-conecte/conecte/internal/roles"
	"github.com/hds-conecte/conecte/internal/session"
)

// NewAdminCmd creates the admin command
func NewAdminCmd(env *Env) *cobra.Command {
	var search string

	cmd := &cobra.Command{
		Use:   "admin",
		Short: "List accounts (staff)",
		Long: `List accounts (staff).

Events, challenges and notifications are administered from their pages:
  $ conecte events create ...
  $ conecte challenge submissions
  $ conecte notifications send ...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			users, err := env.App.Client.ListUsers(cmd.Context(), search)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(env.Out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tEMAIL\tROLE\tPROVIDER")
			for _, u := range users {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", u.ID, u.Name, u.Email, u.Role, u.Provider)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "Filter by name or email")

	return withRoute(cmd, guard.PathAdmin)
}

// NewDevAdminCmd creates the dev-admin command
func NewDevAdminCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dev-admin",
		Short: "Show the developer settings (dev-admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := env.App.Store.Snapshot().CompanyInfo
			env.printf("Company: %s\n", info.Name)
			env.printf("Logo:    %s\n", info.Logo)
			env.printf("Contact: %s\n", info.ContactLink)
			return nil
		},
	}

	var name, logo, contact string
	companyCmd := &cobra.Command{
		Use:   "company",
		Short: "Update the company shown in the footer",
		RunE: func(cmd *cobra.Command, args []string) error {
			var update session.CompanyInfoUpdate
			flags := cmd.Flags()
			if flags.Changed("name") {
				update.Name = &name
			}
			if flags.Changed("logo") {
				update.Logo = &logo
			}
			if flags.Changed("contact") {
				update.ContactLink = &contact
			}
			if update == (session.CompanyInfoUpdate{}) {
				return fmt.Errorf("nothing to update (use --name, --logo or --contact)")
			}
			return result(env.App.Store.UpdateCompanyInfo(update))
		},
	}
	companyCmd.Flags().StringVar(&name, "name", "", "Company name")
	companyCmd.Flags().StringVar(&logo, "logo", "", "Logo URL")
	companyCmd.Flags().StringVar(&contact, "contact", "", "Contact link")

	setRoleCmd := &cobra.Command{
		Use:   "set-role <user-id> <role>",
		Short: "Change a user's role (user, admin, dev-admin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := roles.Parse(args[1])
			if err != nil {
				return err
			}
			u, err := env.App.Client.SetUserRole(cmd.Context(), args[0], role)
			if err != nil {
				return fmt.Errorf("failed to change role: %w", err)
			}
			fmt.Fprintf(env.Out, "✓ %s is now %s\n", u.Email, u.Role)
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the API host and data figures",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := env.App.Client.SystemStatus(cmd.Context())
			if err != nil {
				return err
			}
			h := st.Host
			env.printf("Server version: %s (%s)\n", st.Version, h.GoVersion)
			env.printf("CPUs: %d  Goroutines: %d  Heap: %.1f MB\n", h.CPUCount, h.Goroutines, h.HeapAllocMB)
			if h.MemoryTotalGB > 0 {
				env.printf("Memory: %.1f / %.1f GB used\n", h.MemoryUsedGB, h.MemoryTotalGB)
			}
			env.printf("Uploads: %d files, %.1f MB\n\n", h.UploadFiles, h.UploadsMB)

			names := make([]string, 0, len(st.Counts))
			for name := range st.Counts {
				names = append(names, name)
			}
			sort.Strings(names)
			w := tabwriter.NewWriter(env.Out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TABLE\tROWS")
			for _, name := range names {
				fmt.Fprintf(w, "%s\t%d\n", name, st.Counts[name])
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(companyCmd, setRoleCmd, statusCmd)
	return withRoute(cmd, guard.PathDevAdmin)
}
