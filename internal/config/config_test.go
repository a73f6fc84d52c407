package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
chat:
  url: wss://chat.example.com/ws
  session_id: abc123
  liveness_timeout: 30s
  auto_reconnect: false
archive:
  enabled: true
  database:
    host: localhost
    port: 5432
    name: chat
    user: testuser
    password: testpass
metrics:
  enabled: true
  port: 9100
log:
  level: debug
  format: json
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Chat.URL != "wss://chat.example.com/ws" {
		t.Errorf("Chat.URL = %q, want %q", cfg.Chat.URL, "wss://chat.example.com/ws")
	}
	if cfg.Chat.SessionID != "abc123" {
		t.Errorf("Chat.SessionID = %q, want %q", cfg.Chat.SessionID, "abc123")
	}
	if cfg.Chat.LivenessTimeout != 30*time.Second {
		t.Errorf("Chat.LivenessTimeout = %v, want 30s", cfg.Chat.LivenessTimeout)
	}
	if cfg.Chat.Reconnect() {
		t.Error("Chat.Reconnect() = true, want false")
	}
	if !cfg.Archive.Enabled {
		t.Error("Archive.Enabled = false, want true")
	}
	if cfg.Archive.Database.Host != "localhost" {
		t.Errorf("Archive.Database.Host = %q, want %q", cfg.Archive.Database.Host, "localhost")
	}
	if cfg.Metrics.Port != 9100 {
		t.Errorf("Metrics.Port = %d, want 9100", cfg.Metrics.Port)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want json", cfg.Log.Format)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DGG_TOKEN", "secret123")

	yaml := `
chat:
  auth_token: ${TEST_DGG_TOKEN}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Chat.AuthToken != "secret123" {
		t.Errorf("Chat.AuthToken = %q, want %q", cfg.Chat.AuthToken, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, "chat: {}\n")

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Chat.URL != DefaultChatURL {
		t.Errorf("Chat.URL = %q, want default %q", cfg.Chat.URL, DefaultChatURL)
	}
	if cfg.Chat.LivenessTimeout != DefaultLivenessTimeout {
		t.Errorf("Chat.LivenessTimeout = %v, want default %v", cfg.Chat.LivenessTimeout, DefaultLivenessTimeout)
	}
	if !cfg.Chat.Reconnect() {
		t.Error("Chat.Reconnect() = false, want default true")
	}
	if cfg.Chat.ReconnectMaxWait != DefaultReconnectMaxWait {
		t.Errorf("Chat.ReconnectMaxWait = %v, want default %v", cfg.Chat.ReconnectMaxWait, DefaultReconnectMaxWait)
	}
	if cfg.Archive.Database.Port != DefaultDBPort {
		t.Errorf("Archive.Database.Port = %d, want default %d", cfg.Archive.Database.Port, DefaultDBPort)
	}
	if cfg.Archive.BatchSize != DefaultBatchSize {
		t.Errorf("Archive.BatchSize = %d, want default %d", cfg.Archive.BatchSize, DefaultBatchSize)
	}
	if cfg.Metrics.Path != DefaultMetricsPath {
		t.Errorf("Metrics.Path = %q, want default %q", cfg.Metrics.Path, DefaultMetricsPath)
	}
	if cfg.Log.Level != DefaultLogLevel {
		t.Errorf("Log.Level = %q, want default %q", cfg.Log.Level, DefaultLogLevel)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults: %v", err)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := writeTempFile(t, "chat: [unclosed")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "parse config yaml") {
		t.Errorf("Load() error = %v, want parse error", err)
	}
}

func TestLoadAndValidate(t *testing.T) {
	yaml := `
chat:
  session_id: a
  auth_token: b
`
	path := writeTempFile(t, yaml)

	_, err := LoadAndValidate(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	want := "validate config: chat.session_id and chat.auth_token are mutually exclusive"
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}

func TestValidate(t *testing.T) {
	validDB := DBConfig{Host: "localhost", Name: "chat", User: "user", Password: "pass", MaxConns: 4, MinConns: 1}

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:    "defaults",
			modify:  func(c *Config) {},
			wantErr: "",
		},
		{
			name:    "http url",
			modify:  func(c *Config) { c.Chat.URL = "https://chat.destiny.gg/ws" },
			wantErr: `chat.url must use ws or wss, got "https://chat.destiny.gg/ws"`,
		},
		{
			name: "both credentials",
			modify: func(c *Config) {
				c.Chat.SessionID = "sid"
				c.Chat.AuthToken = "token"
			},
			wantErr: "chat.session_id and chat.auth_token are mutually exclusive",
		},
		{
			name:    "negative liveness timeout",
			modify:  func(c *Config) { c.Chat.LivenessTimeout = -time.Second },
			wantErr: "chat.liveness_timeout must be >= 0",
		},
		{
			name: "base wait exceeds max wait",
			modify: func(c *Config) {
				c.Chat.ReconnectBaseWait = 2 * time.Minute
			},
			wantErr: "chat.reconnect_base_wait (2m0s) cannot exceed reconnect_max_wait (1m0s)",
		},
		{
			name:    "archive missing host",
			modify:  func(c *Config) { c.Archive.Enabled = true },
			wantErr: "archive.database.host is required",
		},
		{
			name: "archive missing password",
			modify: func(c *Config) {
				c.Archive.Enabled = true
				c.Archive.Database = DBConfig{Host: "localhost", Name: "chat", User: "user"}
			},
			wantErr: "archive.database.password is required",
		},
		{
			name: "archive min_conns exceeds max_conns",
			modify: func(c *Config) {
				c.Archive.Enabled = true
				c.Archive.Database = validDB
				c.Archive.Database.MinConns = 10
			},
			wantErr: "archive.database.min_conns (10) cannot exceed max_conns (4)",
		},
		{
			name: "archive valid",
			modify: func(c *Config) {
				c.Archive.Enabled = true
				c.Archive.Database = validDB
			},
			wantErr: "",
		},
		{
			name: "metrics bad port",
			modify: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Port = 70000
			},
			wantErr: "metrics.port must be between 1 and 65535, got 70000",
		},
		{
			name:    "bad log level",
			modify:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: `log.level must be one of debug, info, warn, error, got "verbose"`,
		},
		{
			name:    "bad log format",
			modify:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: `log.format must be text or json, got "xml"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
