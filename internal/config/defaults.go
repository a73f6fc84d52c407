package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultChatURL           = "wss://chat.destiny.gg/ws"
	DefaultLivenessTimeout   = 20 * time.Second
	DefaultReconnectBaseWait = 1 * time.Second
	DefaultReconnectMaxWait  = 60 * time.Second
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultWriteTimeout      = 5 * time.Second
	DefaultCloseTimeout      = 5 * time.Second
	DefaultEventBufferSize   = 1024
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 4
	DefaultMinConns          = 1
	DefaultBatchSize         = 500
	DefaultFlushInterval     = 1 * time.Second
	DefaultBufferSize        = 4096
	DefaultMetricsPort       = 9090
	DefaultMetricsPath       = "/metrics"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
)

func (c *Config) applyDefaults() {
	// Chat defaults
	if c.Chat.URL == "" {
		c.Chat.URL = DefaultChatURL
	}
	if c.Chat.LivenessTimeout == 0 {
		c.Chat.LivenessTimeout = DefaultLivenessTimeout
	}
	if c.Chat.ReconnectBaseWait == 0 {
		c.Chat.ReconnectBaseWait = DefaultReconnectBaseWait
	}
	if c.Chat.ReconnectMaxWait == 0 {
		c.Chat.ReconnectMaxWait = DefaultReconnectMaxWait
	}
	if c.Chat.HandshakeTimeout == 0 {
		c.Chat.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Chat.WriteTimeout == 0 {
		c.Chat.WriteTimeout = DefaultWriteTimeout
	}
	if c.Chat.CloseTimeout == 0 {
		c.Chat.CloseTimeout = DefaultCloseTimeout
	}
	if c.Chat.EventBufferSize == 0 {
		c.Chat.EventBufferSize = DefaultEventBufferSize
	}

	// Archive defaults
	applyDBDefaults(&c.Archive.Database)
	if c.Archive.BatchSize == 0 {
		c.Archive.BatchSize = DefaultBatchSize
	}
	if c.Archive.FlushInterval == 0 {
		c.Archive.FlushInterval = DefaultFlushInterval
	}
	if c.Archive.BufferSize == 0 {
		c.Archive.BufferSize = DefaultBufferSize
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
