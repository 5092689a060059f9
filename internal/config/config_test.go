// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults, and duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidYAML(t *testing.T) {
	configPath := writeConfig(t, "gateway.yaml", `
server:
  http_addr: "0.0.0.0:8080"
  shutdown_timeout: "10s"
  keepalive_interval: "30s"

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: true
  path: "/prom"

database:
  path: "./calls.db"
  retention: "168h"

probe:
  enabled: true
  attempt_timeout: "1500ms"
  candidates:
    - "/sap/public/ping"
  methods:
    - "GET"

backend:
  request_timeout: "2m"

sessions:
  queue_size: 8
  event_buffer: 16
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want 10s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Server.KeepAliveInterval != 30*time.Second {
		t.Errorf("Server.KeepAliveInterval = %v, want 30s", cfg.Server.KeepAliveInterval)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want debug/json", cfg.Logging)
	}
	if cfg.Metrics.Path != "/prom" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/prom")
	}
	if cfg.Database.Path != "./calls.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./calls.db")
	}
	if cfg.Database.Retention != 168*time.Hour {
		t.Errorf("Database.Retention = %v, want 168h", cfg.Database.Retention)
	}
	if cfg.Probe.AttemptTimeout != 1500*time.Millisecond {
		t.Errorf("Probe.AttemptTimeout = %v, want 1.5s", cfg.Probe.AttemptTimeout)
	}
	if len(cfg.Probe.Candidates) != 1 || cfg.Probe.Candidates[0] != "/sap/public/ping" {
		t.Errorf("Probe.Candidates = %v", cfg.Probe.Candidates)
	}
	if len(cfg.Probe.Methods) != 1 || cfg.Probe.Methods[0] != "GET" {
		t.Errorf("Probe.Methods = %v", cfg.Probe.Methods)
	}
	if cfg.Backend.RequestTimeout != 2*time.Minute {
		t.Errorf("Backend.RequestTimeout = %v, want 2m", cfg.Backend.RequestTimeout)
	}
	if cfg.Sessions.QueueSize != 8 || cfg.Sessions.EventBuffer != 16 {
		t.Errorf("Sessions = %+v, want 8/16", cfg.Sessions)
	}
}

func TestLoad_ValidTOML(t *testing.T) {
	configPath := writeConfig(t, "gateway.toml", `
[server]
http_addr = "127.0.0.1:9000"
shutdown_timeout = "3s"

[probe]
enabled = false

[database]
path = ""
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "127.0.0.1:9000" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "127.0.0.1:9000")
	}
	if cfg.Server.ShutdownTimeout != 3*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want 3s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Probe.Enabled {
		t.Error("Probe.Enabled should be false")
	}
	if cfg.Database.Path != "" {
		t.Errorf("Database.Path = %q, want empty (ledger disabled)", cfg.Database.Path)
	}
	// untouched sections keep defaults
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want default %q", cfg.Logging.Level, "info")
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	configPath := writeConfig(t, "gateway.yaml", `
logging:
  level: "warn"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	def := Default()
	if cfg.Server.HTTPAddr != def.Server.HTTPAddr {
		t.Errorf("Server.HTTPAddr = %q, want default %q", cfg.Server.HTTPAddr, def.Server.HTTPAddr)
	}
	if cfg.Server.ShutdownTimeout != def.Server.ShutdownTimeout {
		t.Errorf("Server.ShutdownTimeout = %v, want default %v", cfg.Server.ShutdownTimeout, def.Server.ShutdownTimeout)
	}
	if !cfg.Probe.Enabled {
		t.Error("Probe.Enabled should default to true")
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "warn")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_ADT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("TEST_ADT_ADDR", "0.0.0.0:7777")

	configPath := writeConfig(t, "gateway.yaml", `
server:
  http_addr: "${TEST_ADT_ADDR}"
auth:
  jwt_secret: "${TEST_ADT_SECRET}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:7777" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:7777")
	}
	if cfg.Auth.JWTSecret != "0123456789abcdef0123456789abcdef" {
		t.Errorf("Auth.JWTSecret = %q, want expanded value", cfg.Auth.JWTSecret)
	}
}

func TestExpandEnvVars_UnsetBecomesEmpty(t *testing.T) {
	got := expandEnvVars("a=${DEFINITELY_NOT_SET_ADT_GATEWAY}b")
	if got != "a=b" {
		t.Errorf("expandEnvVars() = %q, want %q", got, "a=b")
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{
			name:    "invalid yaml",
			file:    "gateway.yaml",
			content: "server: [unclosed",
			wantErr: "parsing config file",
		},
		{
			name:    "invalid toml",
			file:    "gateway.toml",
			content: "[server\nhttp_addr = 1",
			wantErr: "parsing config file",
		},
		{
			name:    "invalid duration",
			file:    "gateway.yaml",
			content: "probe:\n  attempt_timeout: \"soon\"\n",
			wantErr: "probe.attempt_timeout",
		},
		{
			name:    "empty address",
			file:    "gateway.yaml",
			content: "server:\n  http_addr: \"\"\n",
			wantErr: "server.http_addr is required",
		},
		{
			name:    "short jwt secret",
			file:    "gateway.yaml",
			content: "auth:\n  jwt_secret: \"short\"\n",
			wantErr: "auth.jwt_secret",
		},
		{
			name:    "bad log level",
			file:    "gateway.yaml",
			content: "logging:\n  level: \"loud\"\n",
			wantErr: "logging.level",
		},
		{
			name:    "metrics path collision",
			file:    "gateway.yaml",
			content: "metrics:\n  path: \"/sse\"\n",
			wantErr: "collides",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.content))
			if err == nil {
				t.Fatal("Load() should have failed")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadOrDefault(t *testing.T) {
	t.Run("missing file falls back to defaults", func(t *testing.T) {
		cfg, found, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
		if err != nil {
			t.Fatalf("LoadOrDefault() error = %v", err)
		}
		if found {
			t.Error("found should be false")
		}
		if cfg.Server.HTTPAddr != Default().Server.HTTPAddr {
			t.Errorf("expected default config, got %+v", cfg.Server)
		}
	})

	t.Run("invalid file is an error", func(t *testing.T) {
		_, _, err := LoadOrDefault(writeConfig(t, "gateway.yaml", "server: [unclosed"))
		if err == nil {
			t.Fatal("LoadOrDefault() should have failed")
		}
	})

	t.Run("existing file is found", func(t *testing.T) {
		_, found, err := LoadOrDefault(writeConfig(t, "gateway.yaml", "logging:\n  level: debug\n"))
		if err != nil {
			t.Fatalf("LoadOrDefault() error = %v", err)
		}
		if !found {
			t.Error("found should be true")
		}
	})
}

func TestPath(t *testing.T) {
	t.Run("env var wins", func(t *testing.T) {
		t.Setenv(ConfigEnvVar, "/etc/adt/custom.toml")
		t.Setenv("XDG_CONFIG_HOME", "/xdg")
		if got := Path(); got != "/etc/adt/custom.toml" {
			t.Errorf("Path() = %q", got)
		}
	})

	t.Run("xdg config home", func(t *testing.T) {
		t.Setenv(ConfigEnvVar, "")
		t.Setenv("XDG_CONFIG_HOME", "/xdg")
		if got := Path(); got != filepath.Join("/xdg", "adt-gateway", "gateway.yaml") {
			t.Errorf("Path() = %q", got)
		}
	})

	t.Run("home directory", func(t *testing.T) {
		t.Setenv(ConfigEnvVar, "")
		t.Setenv("XDG_CONFIG_HOME", "")
		t.Setenv("HOME", "/home/dev")
		if got := Path(); got != filepath.Join("/home/dev", ".config", "adt-gateway", "gateway.yaml") {
			t.Errorf("Path() = %q", got)
		}
	})
}

func TestDefaultDatabasePath(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")
	if got := DefaultDatabasePath(); got != filepath.Join("/data", "adt-gateway", "calls.db") {
		t.Errorf("DefaultDatabasePath() = %q", got)
	}
}

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}
