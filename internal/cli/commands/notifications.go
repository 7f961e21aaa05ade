package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hds-conecte/conecte/internal/backend"
	"github.com/hds-conecte/conecte/internal/guard"
	"github.com/hds-conecte/conecte/internal/models"
)

// NewNotificationsCmd creates the notifications command
func NewNotificationsCmd(env *Env) *cobra.Command {
	var filter backend.NotificationFilter

	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List your notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := env.App.Client.ListNotifications(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				env.printf("No notifications.\n")
				return nil
			}
			w := tabwriter.NewWriter(env.Out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\t\tTYPE\tTITLE\tMESSAGE\tRECEIVED")
			for _, n := range list {
				mark := " "
				if !n.Read {
					mark = "●"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", n.ID, mark, n.Type, n.Title, n.Message, n.CreatedAt.Local().Format(dateLayout))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&filter.Type, "type", "", "Only this type (event, challenge, social, system)")
	cmd.Flags().BoolVar(&filter.UnreadOnly, "unread", false, "Only unread notifications")
	cmd.Flags().IntVar(&filter.Limit, "limit", 50, "Maximum number to show")

	cmd.AddCommand(&cobra.Command{
		Use:   "read <notification-id>",
		Short: "Mark a notification as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := env.App.Client.MarkNotificationRead(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(env.Out, "✓ Marked as read")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "read-all",
		Short: "Mark every notification as read",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := env.App.Client.MarkAllNotificationsRead(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(env.Out, "✓ %d marked as read\n", n)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <notification-id>",
		Short: "Delete a notification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := env.App.Client.DeleteNotification(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(env.Out, "✓ Notification deleted")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete all your notifications and hide broadcasts",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := env.App.Client.ClearNotifications(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(env.Out, "✓ %d deleted\n", n)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "watch",
		Short: "Print notifications as they arrive (Ctrl-C to stop)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ready := func() { env.printf("Listening for notifications...\n") }
			return env.App.Client.StreamNotifications(cmd.Context(), ready, func(n models.Notification) {
				env.printf("● [%s] %s: %s\n", n.Type, n.Title, n.Message)
			})
		},
	})

	var send backend.NotificationInput
	sendCmd := &cobra.Command{
		Use:   "send",
		Short: "Send a notification to one user or everyone (staff)",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := env.App.Client.SendNotification(cmd.Context(), send)
			if err != nil {
				return fmt.Errorf("failed to send notification: %w", err)
			}
			if n.IsBroadcast() {
				fmt.Fprintf(env.Out, "✓ Sent to everyone (%s)\n", n.ID)
			} else {
				fmt.Fprintf(env.Out, "✓ Sent to %s (%s)\n", *n.UserID, n.ID)
			}
			return nil
		},
	}
	sendCmd.Flags().StringVar(&send.UserID, "user", "", "Recipient user ID (empty for everyone)")
	sendCmd.Flags().StringVar(&send.Title, "title", "", "Title")
	sendCmd.Flags().StringVar(&send.Message, "message", "", "Message")
	sendCmd.Flags().StringVar(&send.Type, "type", models.NotificationSystem, "Type (event, challenge, social, system)")
	_ = sendCmd.MarkFlagRequired("title")
	_ = sendCmd.MarkFlagRequired("message")
	cmd.AddCommand(withRoute(sendCmd, guard.PathAdmin))

	return withRoute(cmd, guard.PathNotifications)
}
