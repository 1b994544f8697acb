package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/libra-app/libra-cli/internal/api"
	"github.com/libra-app/libra-cli/internal/auth"
	"github.com/libra-app/libra-cli/internal/config"
	"github.com/libra-app/libra-cli/internal/credstore"
	"github.com/libra-app/libra-cli/internal/logging"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed, color.Bold)
	dimColor  = color.New(color.Faint)
	headColor = color.New(color.Bold)
)

var errNotLoggedIn = errors.New("not logged in, run 'libra login' first")

// app is the wiring shared by every command.
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	store   credstore.Backend
	client  *api.Client
	session *auth.Session
	out     io.Writer
}

// flagOverrides maps explicitly set persistent flags to config keys.
func flagOverrides() map[string]any {
	overrides := map[string]any{}
	if apiBase != "" {
		overrides["api_base"] = apiBase
	}
	if logLevel != "" {
		overrides["log.level"] = logLevel
	}
	return overrides
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(configFile, flagOverrides())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	log := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Pretty: cfg.Log.Pretty,
		Output: cmd.ErrOrStderr(),
	})

	if cfg.Store.Backend != credstore.BackendMemory {
		if err := os.MkdirAll(filepath.Dir(cfg.StorePath()), 0700); err != nil {
			return nil, fmt.Errorf("creating store dir: %w", err)
		}
	}
	store, err := credstore.Open(cfg.Store.Backend, cfg.StorePath())
	if err != nil {
		return nil, fmt.Errorf("opening credential store: %w", err)
	}

	client, err := api.NewClient(api.ClientConfig{
		BaseURL: cfg.APIBase,
		Store:   store,
		Logger:  &log,
		Timeout: cfg.HTTPTimeout(),
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &app{
		cfg:     cfg,
		log:     log,
		store:   store,
		client:  client,
		session: auth.NewSession(client, store, &log),
		out:     cmd.OutOrStdout(),
	}, nil
}

// withApp builds the app for a command and closes it afterwards.
func withApp(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()
		return fn(cmd, a, args)
	}
}

// withLogin is withApp for commands that need stored credentials.
func withLogin(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return withApp(func(cmd *cobra.Command, a *app, args []string) error {
		if !a.session.LoggedIn() {
			return errNotLoggedIn
		}
		return fn(cmd, a, args)
	})
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("closing credential store")
	}
}

func (a *app) table() *tabwriter.Writer {
	return tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
}

func printError(w io.Writer, err error) {
	switch {
	case errors.Is(err, api.ErrSessionExpired):
		errColor.Fprintln(w, "Session expired. Run 'libra login' to sign in again.")
		dimColor.Fprintln(w, err)
	default:
		errColor.Fprint(w, "Error: ")
		fmt.Fprintln(w, err)
	}
}

func parseID(arg, what string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, arg)
	}
	return id, nil
}
