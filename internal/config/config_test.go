package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("os.WriteFile() error = %v", err)
	}
	return path
}

func TestDefault_Valid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "hubconn.yaml", `
connection:
  url: wss://chat.example.com/signalr
  query_string: token=abc
  groups: [east, " west "]
  attempt_reconnects: false
  reconnect_delay: 250ms
transport:
  invoke_timeout: 5s
logging:
  level: debug
  format: text
`)

	cfg, err := Load(LoadOptions{Path: path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	opts := cfg.ConnectionOptions()
	if opts.URL != "wss://chat.example.com/signalr" || opts.QueryString != "token=abc" {
		t.Errorf("ConnectionOptions() = %+v", opts)
	}
	if opts.AttemptReconnects {
		t.Error("AttemptReconnects = true, want false")
	}
	if opts.ReconnectDelay != 250*time.Millisecond {
		t.Errorf("ReconnectDelay = %v, want 250ms", opts.ReconnectDelay)
	}
	if names := opts.Groups.Names(); len(names) != 2 || names[0] != "east" || names[1] != "west" {
		t.Errorf("Groups = %v, want [east west]", names)
	}

	client := cfg.ClientOptions()
	if client.InvokeTimeout != 5*time.Second {
		t.Errorf("InvokeTimeout = %v, want 5s", client.InvokeTimeout)
	}
	if client.Conn.PingInterval != Default().Transport.PingInterval {
		t.Errorf("PingInterval = %v, want default", client.Conn.PingInterval)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoad_JSON(t *testing.T) {
	path := writeFile(t, "hubconn.json", `{"server": {"host": "0.0.0.0", "port": 8080, "path": "/hubs"}}`)

	cfg, err := Load(LoadOptions{Path: path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 8080 || cfg.Server.Path != "/hubs" {
		t.Errorf("Server = %+v", cfg.Server)
	}
}

func TestLoad_UnsupportedFormat(t *testing.T) {
	path := writeFile(t, "hubconn.toml", "")
	if _, err := Load(LoadOptions{Path: path}); err == nil {
		t.Fatal("Load() error = nil, want unsupported format")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HUBCONN_URL", "ws://override:9000/signalr")
	t.Setenv("HUBCONN_GROUPS", "a,b")
	t.Setenv("HUBCONN_ATTEMPT_RECONNECTS", "false")
	t.Setenv("HUBCONN_RECONNECT_DELAY", "2s")
	t.Setenv("HUBCONN_SERVER_PORT", "4000")
	t.Setenv("HUBCONN_LOG_FORMAT", "pretty")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Connection.URL != "ws://override:9000/signalr" {
		t.Errorf("URL = %q", cfg.Connection.URL)
	}
	if len(cfg.Connection.Groups) != 2 || cfg.Connection.AttemptReconnects {
		t.Errorf("Connection = %+v", cfg.Connection)
	}
	if cfg.Connection.ReconnectDelay != 2*time.Second {
		t.Errorf("ReconnectDelay = %v, want 2s", cfg.Connection.ReconnectDelay)
	}
	if cfg.Server.Port != 4000 || cfg.Logging.Format != "pretty" {
		t.Errorf("Server.Port = %d, Logging.Format = %q", cfg.Server.Port, cfg.Logging.Format)
	}
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("HUBCONN_SERVER_PORT", "eighty")

	_, err := Load()
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "server.port" {
		t.Fatalf("Load() error = %v, want ConfigError on server.port", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad scheme", func(c *Config) { c.Connection.URL = "ftp://x/y" }, "connection.url"},
		{"relative url", func(c *Config) { c.Connection.URL = "/signalr" }, "connection.url"},
		{"zero delay", func(c *Config) { c.Connection.ReconnectDelay = 0 }, "connection.reconnect_delay"},
		{"negative timeout", func(c *Config) { c.Transport.InvokeTimeout = -time.Second }, "transport.invoke_timeout"},
		{"ping after read timeout", func(c *Config) { c.Transport.PingInterval = time.Hour }, "transport.ping_interval"},
		{"port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"path", func(c *Config) { c.Server.Path = "signalr" }, "server.path"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Validate() error = %v, want ConfigError", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", cfgErr.Field, tt.field)
			}
		})
	}
}
