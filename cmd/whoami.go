package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE: withLogin(func(cmd *cobra.Command, a *app, args []string) error {
		me, err := a.session.Me(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s (id %d)\n", displayName(me.DisplayName, me.Email), me.ID)
		return nil
	}),
}
