// Package config loads boothkit configuration from a YAML file with
// environment-variable overrides. A .env file in the working directory is
// honored for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// RemoteKind selects the remote store implementation.
const (
	RemoteHTTP     = "http"
	RemotePostgres = "postgres"
	RemoteMemory   = "memory"
)

// Config is the full client/server configuration.
type Config struct {
	Environment string `yaml:"environment"`

	Log struct {
		Level     string `yaml:"level"`
		Format    string `yaml:"format"`
		AddSource bool   `yaml:"addSource"`
	} `yaml:"log"`

	Storage struct {
		// Path is the SQLite database file for the local cache and
		// mutation queue.
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Remote struct {
		// Kind is one of "http", "postgres" or "memory".
		Kind string `yaml:"kind"`

		// URL is the server base URL for the http kind.
		URL string `yaml:"url"`

		// ConnectionString is the lib/pq string for the postgres kind.
		ConnectionString string `yaml:"connectionString"`
	} `yaml:"remote"`

	Sync SyncConfig `yaml:"sync"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
}

// SyncConfig holds the sync engine tunables.
type SyncConfig struct {
	ReloadInterval time.Duration `yaml:"reloadInterval"`
}

// UnmarshalYAML accepts Go duration strings ("45s", "2m") for
// reloadInterval, which yaml.v3 cannot decode into time.Duration itself.
func (s *SyncConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		ReloadInterval string `yaml:"reloadInterval"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.ReloadInterval != "" {
		d, err := time.ParseDuration(raw.ReloadInterval)
		if err != nil {
			return fmt.Errorf("config: parsing sync.reloadInterval: %w", err)
		}
		s.ReloadInterval = d
	}
	return nil
}

// Default returns the configuration used when no file or environment is
// present: a memory remote and a cache next to the working directory.
func Default() *Config {
	cfg := &Config{}
	cfg.Environment = "development"
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.Storage.Path = "boothkit.db"
	cfg.Remote.Kind = RemoteMemory
	cfg.Sync.ReloadInterval = 30 * time.Second
	cfg.Server.Addr = ":8080"
	return cfg
}

// Load builds the configuration from defaults, then the YAML file at path
// (optional, "" skips it), then environment variables. Later sources win.
func Load(path string) (*Config, error) {
	// Missing .env files are the normal case outside development.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Environment, "ENVIRONMENT")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")
	setBool(&c.Log.AddSource, "LOG_ADD_SOURCE")
	setString(&c.Storage.Path, "BOOTHKIT_DB_PATH")
	setString(&c.Remote.Kind, "BOOTHKIT_REMOTE_KIND")
	setString(&c.Remote.URL, "BOOTHKIT_REMOTE_URL")
	setString(&c.Remote.ConnectionString, "BOOTHKIT_POSTGRES_URL")
	setDuration(&c.Sync.ReloadInterval, "BOOTHKIT_RELOAD_INTERVAL")
	setString(&c.Server.Addr, "BOOTHKIT_SERVER_ADDR")
}

func (c *Config) validate() error {
	switch c.Remote.Kind {
	case RemoteMemory:
	case RemoteHTTP:
		if c.Remote.URL == "" {
			return fmt.Errorf("config: remote.url is required for the http remote")
		}
	case RemotePostgres:
		if c.Remote.ConnectionString == "" {
			return fmt.Errorf("config: remote.connectionString is required for the postgres remote")
		}
	default:
		return fmt.Errorf("config: unknown remote kind %q", c.Remote.Kind)
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("config: storage.path is required")
	}
	if c.Sync.ReloadInterval < 0 {
		return fmt.Errorf("config: sync.reloadInterval must not be negative")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
