package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status, configuration and unread notifications",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		headColor.Fprintln(a.out, "=== Authentication ===")
		if a.session.LoggedIn() {
			me, err := a.client.Me(cmd.Context())
			if err != nil {
				warnColor.Fprintf(a.out, "  Stored session is not usable: %v\n", err)
			} else {
				fmt.Fprintf(a.out, "  Logged in as: %s\n", displayName(me.DisplayName, me.Email))
			}
		} else {
			fmt.Fprintln(a.out, "  Not logged in. Run 'libra login' to authenticate.")
		}

		headColor.Fprintln(a.out, "\n=== Configuration ===")
		fmt.Fprintf(a.out, "  API:        %s\n", a.cfg.APIBase)
		fmt.Fprintf(a.out, "  Stream:     %s\n", a.cfg.StreamBase())
		fmt.Fprintf(a.out, "  Store:      %s (%s)\n", a.cfg.Store.Backend, a.cfg.StorePath())
		fmt.Fprintf(a.out, "  Sign-up:    %v\n", a.cfg.EnableSignup)

		if a.session.LoggedIn() {
			headColor.Fprintln(a.out, "\n=== Notifications ===")
			n, err := a.client.UnreadCount(cmd.Context())
			if err != nil {
				warnColor.Fprintf(a.out, "  Could not load unread count: %v\n", err)
			} else {
				fmt.Fprintf(a.out, "  Unread: %d\n", n)
			}
		}
		return nil
	}),
}
