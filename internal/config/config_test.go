package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libra-app/libra-cli/internal/credstore"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultAPIBase, cfg.APIBase)
	assert.Equal(t, DefaultAPIBase, cfg.StreamBase())
	assert.True(t, cfg.EnableSignup)
	assert.Equal(t, credstore.BackendBolt, cfg.Store.Backend)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout())
	assert.Equal(t, 30*time.Second, cfg.PollInterval())
	assert.Equal(t, 1<<20, cfg.Stream.MaxBufferBytes)
}

func TestLoadFileEnvAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
api_base: http://library.test:8000
sse_base: http://stream.library.test
enable_signup: false
store:
  backend: sqlite
  path: /tmp/creds.sqlite
notifications:
  poll_interval_seconds: 10
log:
  level: debug
`)
	t.Setenv("LIBRA_HTTP_TIMEOUT_SECONDS", "5")
	t.Setenv("LIBRA_LOG_LEVEL", "info")

	cfg, err := Load(path, map[string]any{"api_base": "https://override.test"})
	require.NoError(t, err)

	assert.Equal(t, "https://override.test", cfg.APIBase)
	assert.Equal(t, "http://stream.library.test", cfg.StreamBase())
	assert.False(t, cfg.EnableSignup)
	assert.Equal(t, credstore.BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, "/tmp/creds.sqlite", cfg.StorePath())
	assert.Equal(t, 10*time.Second, cfg.PollInterval())
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout())
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"bad url":     "api_base: not-a-url\n",
		"bad backend": "store:\n  backend: redis\n",
		"bad poll":    "notifications:\n  poll_interval_seconds: 0\n",
		"bad yaml":    "api_base: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".yaml")
			writeFile(t, path, body)
			_, err := Load(path, nil)
			assert.Error(t, err)
		})
	}
}

func TestWriteThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.APIBase = "http://10.0.0.2:8000"
	cfg.Store.Backend = credstore.BackendMemory
	require.NoError(t, Write(path, cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, cfg, *loaded)
}

func TestStorePathDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, filepath.Join(Dir(), "credentials.db"), cfg.StorePath())
	cfg.Store.Backend = credstore.BackendSQLite
	assert.Equal(t, filepath.Join(Dir(), "credentials.sqlite"), cfg.StorePath())
}

func TestWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "notifications:\n  poll_interval_seconds: 30\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var latest *Config
	require.NoError(t, Watch(ctx, path, nil, func(cfg *Config, err error) {
		if err != nil {
			return
		}
		mu.Lock()
		latest = cfg
		mu.Unlock()
	}))

	writeFile(t, path, "notifications:\n  poll_interval_seconds: 5\n")
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return latest != nil && latest.PollInterval() == 5*time.Second
	}, 3*time.Second, 50*time.Millisecond)
}

func TestDebouncerCollapsesBursts(t *testing.T) {
	var mu sync.Mutex
	var got []int

	d := newDebouncer(30*time.Millisecond, func(cfg *Config, err error) {
		mu.Lock()
		got = append(got, cfg.Notifications.PollIntervalSeconds)
		mu.Unlock()
	})
	for i := 1; i <= 5; i++ {
		cfg := Default()
		cfg.Notifications.PollIntervalSeconds = i
		d.touch(&cfg, nil)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 10*time.Millisecond)
	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{5}, got)
}

func TestDebouncerStopDropsPending(t *testing.T) {
	fired := make(chan struct{}, 1)
	d := newDebouncer(20*time.Millisecond, func(*Config, error) { fired <- struct{}{} })

	cfg := Default()
	d.touch(&cfg, nil)
	d.stop()

	select {
	case <-fired:
		t.Fatal("delivery after stop")
	case <-time.After(80 * time.Millisecond):
	}
}
