package dggchat

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/dggchat/internal/connection"
	"github.com/rickgao/dggchat/internal/metrics"
)

// DefaultURL is the public destiny.gg chat endpoint.
const DefaultURL = connection.DefaultURL

// Session is a persistent chat session. Its identity survives reconnects.
type Session struct {
	manager connection.Manager
}

type options struct {
	cfg        connection.ManagerConfig
	logger     *slog.Logger
	registerer prometheus.Registerer
	dialer     connection.Dialer
}

// Option configures a Session.
type Option func(*options)

// WithURL sets the WebSocket endpoint.
func WithURL(url string) Option {
	return func(o *options) {
		o.cfg.Transport.URL = url
	}
}

// WithSessionID authenticates with a session cookie.
func WithSessionID(sid string) Option {
	return func(o *options) {
		o.cfg.Credential.SessionID = sid
	}
}

// WithAuthToken authenticates with a login token.
func WithAuthToken(token string) Option {
	return func(o *options) {
		o.cfg.Credential.AuthToken = token
	}
}

// WithLivenessTimeout sets how long the session waits for a ping before it
// drops the connection. Zero disables the check.
func WithLivenessTimeout(d time.Duration) Option {
	return func(o *options) {
		o.cfg.LivenessTimeout = d
	}
}

// WithAutoReconnect sets whether the session reconnects after a close.
func WithAutoReconnect(enabled bool) Option {
	return func(o *options) {
		o.cfg.AutoReconnect = enabled
	}
}

// WithReconnectBackoff sets the backoff used after failed dials.
func WithReconnectBackoff(base, maxWait time.Duration) Option {
	return func(o *options) {
		o.cfg.ReconnectBaseWait = base
		o.cfg.ReconnectMaxWait = maxWait
	}
}

// WithTimeouts sets the transport handshake, write and close timeouts.
// Zero values keep the defaults.
func WithTimeouts(handshake, write, closeWait time.Duration) Option {
	return func(o *options) {
		if handshake > 0 {
			o.cfg.Transport.HandshakeTimeout = handshake
		}
		if write > 0 {
			o.cfg.Transport.WriteTimeout = write
		}
		if closeWait > 0 {
			o.cfg.Transport.CloseTimeout = closeWait
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRegisterer enables Prometheus metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithEventBuffer sets the initial capacity of the event queue.
func WithEventBuffer(n int) Option {
	return func(o *options) {
		o.cfg.EventBufferSize = n
	}
}

// WithDialer replaces the WebSocket dialer.
func WithDialer(d Dialer) Option {
	return func(o *options) {
		o.dialer = d
	}
}

// New creates a Session. It does not connect until Start.
func New(opts ...Option) (*Session, error) {
	o := options{cfg: connection.DefaultManagerConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	var mopts []connection.ManagerOption
	if o.dialer != nil {
		mopts = append(mopts, connection.WithDialer(o.dialer))
	}
	if o.registerer != nil {
		mcfg := metrics.DefaultConfig()
		mcfg.Registerer = o.registerer
		mopts = append(mopts, connection.WithMetrics(metrics.New(mcfg)))
	}

	m, err := connection.NewManager(o.cfg, o.logger, mopts...)
	if err != nil {
		return nil, err
	}

	return &Session{manager: m}, nil
}

// Start opens the first connection. It returns immediately; progress is
// reported on Events.
func (s *Session) Start(ctx context.Context) error {
	return s.manager.Start(ctx)
}

// Stop closes the session for good and closes the event channel.
func (s *Session) Stop(ctx context.Context) error {
	return s.manager.Stop(ctx)
}

// Send writes a chat line. It fails with ErrNotConnected instead of
// buffering when no connection is open.
func (s *Session) Send(ctx context.Context, text string) error {
	return s.manager.Send(ctx, text)
}

// Close gracefully closes the current connection. Call SetAutoReconnect(false)
// first to keep it closed.
func (s *Session) Close() error {
	return s.manager.Close(context.Background())
}

// IsConnected reports whether a connection is open.
func (s *Session) IsConnected() bool {
	return s.manager.IsConnected()
}

// SetAutoReconnect changes the reconnect behavior at runtime.
func (s *Session) SetAutoReconnect(enabled bool) {
	s.manager.SetAutoReconnect(enabled)
}

// State returns the current connection state.
func (s *Session) State() State {
	return s.manager.State()
}

// Events returns the event stream.
func (s *Session) Events() <-chan Event {
	return s.manager.Events()
}

// Stats returns current counters.
func (s *Session) Stats() Stats {
	return s.manager.Stats()
}
