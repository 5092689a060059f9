// ABOUTME: Configuration loading and parsing for adt-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ConfigEnvVar overrides the config file location.
const ConfigEnvVar = "ADT_GATEWAY_CONFIG"

// minJWTSecretLength matches the token verifier's minimum.
const minJWTSecretLength = 32

// Config represents the complete adt-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics" toml:"metrics"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Auth     AuthConfig     `yaml:"auth" toml:"auth"`
	Probe    ProbeConfig    `yaml:"probe" toml:"probe"`
	Backend  BackendConfig  `yaml:"backend" toml:"backend"`
	Sessions SessionsConfig `yaml:"sessions" toml:"sessions"`
}

// ServerConfig holds server address and stream timing configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`

	ShutdownTimeout   time.Duration `yaml:"-" toml:"-"`
	KeepAliveInterval time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	ShutdownTimeoutRaw   string `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
	KeepAliveIntervalRaw string `yaml:"keepalive_interval" toml:"keepalive_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// DatabaseConfig holds call ledger configuration. An empty path disables the ledger.
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`

	// Retention is how long call records are kept. Zero keeps them forever.
	Retention    time.Duration `yaml:"-" toml:"-"`
	RetentionRaw string        `yaml:"retention" toml:"retention"`
}

// AuthConfig holds authentication configuration. An empty secret disables the token guard.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// ProbeConfig holds connectivity probe configuration
type ProbeConfig struct {
	Enabled    bool     `yaml:"enabled" toml:"enabled"`
	Candidates []string `yaml:"candidates" toml:"candidates"`
	Methods    []string `yaml:"methods" toml:"methods"`

	AttemptTimeout    time.Duration `yaml:"-" toml:"-"`
	AttemptTimeoutRaw string        `yaml:"attempt_timeout" toml:"attempt_timeout"`
}

// BackendConfig holds ADT client configuration. Credentials come from the
// environment, never from this file.
type BackendConfig struct {
	RequestTimeout    time.Duration `yaml:"-" toml:"-"`
	RequestTimeoutRaw string        `yaml:"request_timeout" toml:"request_timeout"`
}

// SessionsConfig holds per-session buffer sizes
type SessionsConfig struct {
	QueueSize   int `yaml:"queue_size" toml:"queue_size"`
	EventBuffer int `yaml:"event_buffer" toml:"event_buffer"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:          "127.0.0.1:3000",
			ShutdownTimeout:   5 * time.Second,
			KeepAliveInterval: 15 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Database: DatabaseConfig{
			Path: DefaultDatabasePath(),
		},
		Probe: ProbeConfig{
			Enabled:        true,
			AttemptTimeout: 3 * time.Second,
		},
		Backend: BackendConfig{
			RequestTimeout: 60 * time.Second,
		},
		Sessions: SessionsConfig{
			QueueSize:   32,
			EventBuffer: 64,
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
// Fields absent from the file keep their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	// Parse duration fields
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path, falling back to Default when the file does not
// exist. found reports whether a file was read.
func LoadOrDefault(path string) (cfg *Config, found bool, err error) {
	cfg, err = Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

// Path returns the path to the gateway config file.
// Priority: ADT_GATEWAY_CONFIG env var > XDG_CONFIG_HOME/adt-gateway/gateway.yaml > ~/.config/adt-gateway/gateway.yaml
func Path() string {
	if envPath := os.Getenv(ConfigEnvVar); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "adt-gateway", "gateway.yaml")
}

// DefaultDatabasePath returns the default call ledger location.
// Priority: XDG_DATA_HOME/adt-gateway/calls.db > ~/.local/share/adt-gateway/calls.db
func DefaultDatabasePath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "calls.db" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "adt-gateway", "calls.db")
}

// envVarPattern matches ${VAR_NAME}
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be debug, info, warn, or error", c.Logging.Level)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}

	if c.Metrics.Enabled {
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return fmt.Errorf("metrics.path %q must start with /", c.Metrics.Path)
		}
		switch c.Metrics.Path {
		case "/sse", "/messages", "/health", "/health/ready":
			return fmt.Errorf("metrics.path %q collides with a gateway endpoint", c.Metrics.Path)
		}
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", minJWTSecretLength)
	}

	if c.Probe.Enabled && c.Probe.AttemptTimeout <= 0 {
		return fmt.Errorf("probe.attempt_timeout must be positive")
	}

	if c.Backend.RequestTimeout < 0 {
		return fmt.Errorf("backend.request_timeout must not be negative")
	}

	if c.Database.Retention < 0 {
		return fmt.Errorf("database.retention must not be negative")
	}

	if c.Sessions.QueueSize < 0 || c.Sessions.EventBuffer < 0 {
		return fmt.Errorf("sessions.queue_size and sessions.event_buffer must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeoutRaw, &cfg.Server.ShutdownTimeout},
		{"server.keepalive_interval", cfg.Server.KeepAliveIntervalRaw, &cfg.Server.KeepAliveInterval},
		{"database.retention", cfg.Database.RetentionRaw, &cfg.Database.Retention},
		{"probe.attempt_timeout", cfg.Probe.AttemptTimeoutRaw, &cfg.Probe.AttemptTimeout},
		{"backend.request_timeout", cfg.Backend.RequestTimeoutRaw, &cfg.Backend.RequestTimeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
