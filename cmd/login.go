package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	loginEmail    string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with email and password",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		if a.session.LoggedIn() {
			if me, err := a.client.Me(cmd.Context()); err == nil {
				fmt.Fprintf(a.out, "Already logged in as %s. Use 'libra logout' first.\n", me.Email)
				return nil
			}
		}

		email, password, err := readCredentials(cmd, loginEmail, loginPassword)
		if err != nil {
			return err
		}

		me, err := a.session.Login(cmd.Context(), email, password)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		okColor.Fprintf(a.out, "Logged in as %s\n", displayName(me.DisplayName, me.Email))
		return nil
	}),
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "account password (prompted when omitted)")
}

// readCredentials fills in whatever was not given as a flag from the
// terminal. The password is read without echo when stdin is a terminal.
func readCredentials(cmd *cobra.Command, email, password string) (string, string, error) {
	in := bufio.NewReader(cmd.InOrStdin())
	prompt := cmd.ErrOrStderr()

	if email == "" {
		fmt.Fprint(prompt, "Email: ")
		line, err := in.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return "", "", fmt.Errorf("reading email: %w", err)
		}
		email = strings.TrimSpace(line)
	}

	if password == "" {
		fmt.Fprint(prompt, "Password: ")
		fd := int(os.Stdin.Fd())
		if cmd.InOrStdin() == os.Stdin && term.IsTerminal(fd) {
			data, err := term.ReadPassword(fd)
			fmt.Fprintln(prompt)
			if err != nil {
				return "", "", fmt.Errorf("reading password: %w", err)
			}
			password = string(data)
		} else {
			line, err := in.ReadString('\n')
			if err != nil && (err != io.EOF || line == "") {
				return "", "", fmt.Errorf("reading password: %w", err)
			}
			password = strings.TrimRight(line, "\r\n")
		}
	}

	if email == "" || password == "" {
		return "", "", fmt.Errorf("email and password are required")
	}
	return email, password, nil
}

func displayName(name, email string) string {
	if name != "" {
		return fmt.Sprintf("%s <%s>", name, email)
	}
	return email
}
