package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version = "dev"
)

var (
	configFile string
	apiBase    string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "libra",
	Short:         "libra: browse the library, manage loans and chat with support",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default ~/%s/%s)", ".libra", "config.yaml"))
	rootCmd.PersistentFlags().StringVar(&apiBase, "api-base", "", "REST API base URL")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error, off)")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(booksCmd)
	rootCmd.AddCommand(loansCmd)
	rootCmd.AddCommand(reserveCmd)
	rootCmd.AddCommand(favoritesCmd)
	rootCmd.AddCommand(notificationsCmd)
	rootCmd.AddCommand(ticketsCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(configCmd)
}
