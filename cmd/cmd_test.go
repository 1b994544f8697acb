package cmd

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libra-app/libra-cli/internal/config"
	"github.com/libra-app/libra-cli/internal/credstore"
	"github.com/libra-app/libra-cli/internal/testutil/backend"
)

// run executes the root command with args and returns what it printed.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, srv *backend.Server) string {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.APIBase = srv.URL
	cfg.Store.Backend = credstore.BackendSQLite
	cfg.Store.Path = filepath.Join(dir, "credentials.sqlite")
	cfg.Log.Level = "off"

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, config.Write(path, cfg))
	return path
}

func TestCommands_SessionLifecycle(t *testing.T) {
	srv := backend.New(t)
	cfgPath := writeConfig(t, srv)

	out, err := run(t, "--config", cfgPath, "whoami")
	assert.ErrorIs(t, err, errNotLoggedIn)
	assert.Empty(t, out)

	out, err = run(t, "--config", cfgPath, "login", "--email", backend.Email, "--password", backend.Password)
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as Reader <"+backend.Email+">")

	out, err = run(t, "--config", cfgPath, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "(id 7)")

	out, err = run(t, "--config", cfgPath, "books", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Solaris")
	assert.Contains(t, out, "Kindred")

	_, err = run(t, "--config", cfgPath, "logout")
	require.NoError(t, err)

	_, err = run(t, "--config", cfgPath, "whoami")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestCommands_AskStreamsAnswer(t *testing.T) {
	srv := backend.New(t)
	srv.Set(func(s *backend.Server) {
		s.StreamChunks = []string{"data: Loans \n\n", "data: last 21 days.\n\n", "data: [DONE]\n\n"}
	})
	cfgPath := writeConfig(t, srv)

	_, err := run(t, "--config", cfgPath, "login", "--email", backend.Email, "--password", backend.Password)
	require.NoError(t, err)

	out, err := run(t, "--config", cfgPath, "ask", "5", "how", "long", "is", "a", "loan?")
	require.NoError(t, err)
	assert.Contains(t, out, "Loans last 21 days.\n")

	req := srv.LastStreamRequest()
	require.NotNil(t, req)
	assert.Equal(t, "5", req.URL.Query().Get("ticket_id"))
	assert.Equal(t, "how long is a loan?", req.URL.Query().Get("content"))
}

func TestCommands_ConfigInitRefusesOverwrite(t *testing.T) {
	srv := backend.New(t)
	cfgPath := writeConfig(t, srv)

	_, err := run(t, "--config", cfgPath, "config", "init")
	assert.ErrorContains(t, err, "already exists")

	out, err := run(t, "--config", cfgPath, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "api_base: "+srv.URL)
	assert.Contains(t, out, "backend: sqlite")
}
