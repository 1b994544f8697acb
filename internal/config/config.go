// Package config loads the CLI configuration from ~/.libra/config.yaml,
// a .env file, LIBRA_* environment variables and command-line overrides,
// in increasing order of precedence.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/libra-app/libra-cli/internal/credstore"
)

const (
	DefaultAPIBase = "http://127.0.0.1:8000"
	ConfigDirName  = ".libra"
	ConfigFileName = "config.yaml"
	EnvPrefix      = "LIBRA"
)

type Config struct {
	APIBase       string              `mapstructure:"api_base" yaml:"api_base"`
	SSEBase       string              `mapstructure:"sse_base" yaml:"sse_base,omitempty"`
	EnableSignup  bool                `mapstructure:"enable_signup" yaml:"enable_signup"`
	Store         StoreConfig         `mapstructure:"store" yaml:"store"`
	HTTP          HTTPConfig          `mapstructure:"http" yaml:"http"`
	Stream        StreamConfig        `mapstructure:"stream" yaml:"stream"`
	Notifications NotificationsConfig `mapstructure:"notifications" yaml:"notifications"`
	Log           LogConfig           `mapstructure:"log" yaml:"log"`
}

type StoreConfig struct {
	// Backend is bolt, sqlite or memory.
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Path defaults to a file under Dir().
	Path string `mapstructure:"path" yaml:"path,omitempty"`
}

type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

type StreamConfig struct {
	// IdleTimeoutSeconds of 0 disables the idle timeout.
	IdleTimeoutSeconds int `mapstructure:"idle_timeout_seconds" yaml:"idle_timeout_seconds"`
	MaxBufferBytes     int `mapstructure:"max_buffer_bytes" yaml:"max_buffer_bytes"`
}

type NotificationsConfig struct {
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds" yaml:"poll_interval_seconds"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		APIBase:      DefaultAPIBase,
		EnableSignup: true,
		Store: StoreConfig{
			Backend: credstore.BackendBolt,
		},
		HTTP: HTTPConfig{TimeoutSeconds: 30},
		Stream: StreamConfig{
			IdleTimeoutSeconds: 120,
			MaxBufferBytes:     1 << 20,
		},
		Notifications: NotificationsConfig{PollIntervalSeconds: 30},
		Log:           LogConfig{Level: "warn", Pretty: true},
	}
}

// Dir is the per-user configuration directory.
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ConfigDirName)
}

// Path is the default configuration file.
func Path() string {
	return filepath.Join(Dir(), ConfigFileName)
}

func EnsureDir() error {
	return os.MkdirAll(Dir(), 0700)
}

// StreamBase is the root for the reply stream, falling back to APIBase.
func (c *Config) StreamBase() string {
	if c.SSEBase != "" {
		return c.SSEBase
	}
	return c.APIBase
}

func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Stream.IdleTimeoutSeconds) * time.Second
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Notifications.PollIntervalSeconds) * time.Second
}

// StorePath returns the credential store file for the configured backend.
func (c *Config) StorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	if c.Store.Backend == credstore.BackendSQLite {
		return filepath.Join(Dir(), "credentials.sqlite")
	}
	return filepath.Join(Dir(), "credentials.db")
}

// Load reads the configuration at path (Path() when empty). A missing
// file is not an error. overrides are applied last, keyed like the file
// (e.g. "api_base", "log.level").
func Load(path string, overrides map[string]any) (*Config, error) {
	v, err := newViper(path, overrides)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

// Watch calls onChange with the reloaded configuration every time the
// file at path changes, until ctx is done. Reloads that fail to decode
// are passed as errors and the previous configuration stays in effect.
// Bursts of writes are collapsed into one reload.
func Watch(ctx context.Context, path string, overrides map[string]any, onChange func(*Config, error)) error {
	v, err := newViper(path, overrides)
	if err != nil {
		return err
	}
	d := newDebouncer(reloadQuiescence, func(cfg *Config, err error) {
		if ctx.Err() == nil {
			onChange(cfg, err)
		}
	})
	v.OnConfigChange(func(e fsnotify.Event) {
		if ctx.Err() != nil || !e.Has(fsnotify.Write|fsnotify.Create) {
			return
		}
		d.touch(decode(v))
	})
	v.WatchConfig()
	context.AfterFunc(ctx, d.stop)
	return nil
}

// Write stores cfg as YAML at path (Path() when empty).
func Write(path string, cfg Config) error {
	if path == "" {
		path = Path()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

func newViper(path string, overrides map[string]any) (*viper.Viper, error) {
	if path == "" {
		path = Path()
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	def := Default()
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("api_base", def.APIBase)
	v.SetDefault("sse_base", def.SSEBase)
	v.SetDefault("enable_signup", def.EnableSignup)
	v.SetDefault("store.backend", def.Store.Backend)
	v.SetDefault("store.path", def.Store.Path)
	v.SetDefault("http.timeout_seconds", def.HTTP.TimeoutSeconds)
	v.SetDefault("stream.idle_timeout_seconds", def.Stream.IdleTimeoutSeconds)
	v.SetDefault("stream.max_buffer_bytes", def.Stream.MaxBufferBytes)
	v.SetDefault("notifications.poll_interval_seconds", def.Notifications.PollIntervalSeconds)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.pretty", def.Log.Pretty)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	}
	for key, value := range overrides {
		v.Set(key, value)
	}
	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	for key, raw := range map[string]string{"api_base": c.APIBase, "sse_base": c.SSEBase} {
		if raw == "" && key == "sse_base" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must include scheme and host (e.g. http://127.0.0.1:8000)", key)
		}
	}
	switch c.Store.Backend {
	case credstore.BackendBolt, credstore.BackendSQLite, credstore.BackendMemory:
	default:
		return fmt.Errorf("store.backend: %w: %q", credstore.ErrUnknownBackend, c.Store.Backend)
	}
	if c.HTTP.TimeoutSeconds < 0 || c.Stream.IdleTimeoutSeconds < 0 || c.Stream.MaxBufferBytes < 0 {
		return fmt.Errorf("timeouts and buffer sizes must not be negative")
	}
	if c.Notifications.PollIntervalSeconds < 1 {
		return fmt.Errorf("notifications.poll_interval_seconds must be at least 1")
	}
	return nil
}
