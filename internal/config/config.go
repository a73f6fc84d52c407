package config

import "time"

// Config is the root configuration for a dggchat client.
type Config struct {
	Chat    ChatConfig    `yaml:"chat"`
	Archive ArchiveConfig `yaml:"archive"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

// ChatConfig holds the chat session settings.
type ChatConfig struct {
	URL               string        `yaml:"url"`
	SessionID         string        `yaml:"session_id"` // sid cookie
	AuthToken         string        `yaml:"auth_token"` // authtoken cookie; mutually exclusive with session_id
	LivenessTimeout   time.Duration `yaml:"liveness_timeout"`
	AutoReconnect     *bool         `yaml:"auto_reconnect"` // nil means true
	ReconnectBaseWait time.Duration `yaml:"reconnect_base_wait"`
	ReconnectMaxWait  time.Duration `yaml:"reconnect_max_wait"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	CloseTimeout      time.Duration `yaml:"close_timeout"`
	EventBufferSize   int           `yaml:"event_buffer_size"`
}

// Reconnect reports the effective auto-reconnect setting.
func (c ChatConfig) Reconnect() bool {
	return c.AutoReconnect == nil || *c.AutoReconnect
}

// ArchiveConfig holds the message archive settings.
type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
