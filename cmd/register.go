package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/libra-app/libra-cli/internal/api"
)

var (
	registerEmail    string
	registerPassword string
	registerName     string
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		if !a.cfg.EnableSignup {
			return fmt.Errorf("self-registration is disabled for %s", a.cfg.APIBase)
		}

		email, password, err := readCredentials(cmd, registerEmail, registerPassword)
		if err != nil {
			return err
		}

		me, err := a.session.Register(cmd.Context(), api.RegisterRequest{
			Email:       email,
			Password:    password,
			DisplayName: registerName,
		})
		if err != nil {
			return fmt.Errorf("registration failed: %w", err)
		}
		okColor.Fprintf(a.out, "Account %s created. Run 'libra login' to sign in.\n", me.Email)
		return nil
	}),
}

func init() {
	registerCmd.Flags().StringVar(&registerEmail, "email", "", "account email")
	registerCmd.Flags().StringVar(&registerPassword, "password", "", "account password (prompted when omitted)")
	registerCmd.Flags().StringVar(&registerName, "name", "", "display name")
}
