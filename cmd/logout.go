package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logoutAll bool

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke the session and clear local credentials",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		if !a.session.LoggedIn() {
			fmt.Fprintln(a.out, "Not currently logged in.")
			return nil
		}

		logout := a.session.Logout
		if logoutAll {
			logout = a.session.LogoutAll
		}
		if err := logout(cmd.Context()); err != nil {
			return err
		}

		if logoutAll {
			okColor.Fprintln(a.out, "Logged out of every session.")
		} else {
			okColor.Fprintln(a.out, "Logged out successfully.")
		}
		return nil
	}),
}

func init() {
	logoutCmd.Flags().BoolVar(&logoutAll, "all", false, "revoke every session of this account")
}
