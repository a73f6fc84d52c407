package connection

import (
	"errors"
	"net/http"
	"time"
)

// Errors
var (
	ErrNotConnected           = errors.New("not connected")
	ErrAlreadyStarted         = errors.New("already started")
	ErrStopped                = errors.New("session stopped")
	ErrLivenessTimeout        = errors.New("no liveness signal within timeout")
	ErrConflictingCredentials = errors.New("session id and auth token are mutually exclusive")
)

// Defaults
const (
	DefaultURL               = "wss://chat.destiny.gg/ws"
	DefaultLivenessTimeout   = 20 * time.Second
	DefaultReconnectBaseWait = 1 * time.Second
	DefaultReconnectMaxWait  = 60 * time.Second
	DefaultWriteTimeout      = 5 * time.Second
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultCloseTimeout      = 5 * time.Second
	DefaultEventBufferSize   = 1024
)

// State is the connection state of a session.
type State int32

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Credential authenticates the session. At most one field may be set.
type Credential struct {
	SessionID string
	AuthToken string
}

// Validate rejects a credential carrying both forms.
func (c Credential) Validate() error {
	if c.SessionID != "" && c.AuthToken != "" {
		return ErrConflictingCredentials
	}
	return nil
}

// Header returns the handshake header for the credential. Without a
// credential the header carries no Cookie and the server will answer
// with needlogin.
func (c Credential) Header() http.Header {
	header := http.Header{}
	switch {
	case c.SessionID != "":
		header.Set("Cookie", "sid="+c.SessionID)
	case c.AuthToken != "":
		header.Set("Cookie", "authtoken="+c.AuthToken)
	}
	return header
}

// TransportConfig configures a WebSocket transport handle.
type TransportConfig struct {
	URL              string        // WebSocket URL (e.g., wss://chat.destiny.gg/ws)
	Header           http.Header   // Handshake headers (Cookie, User-Agent)
	HandshakeTimeout time.Duration // Dial + upgrade deadline
	WriteTimeout     time.Duration // Write deadline for sends
	CloseTimeout     time.Duration // How long to wait for the peer's close frame
	EventBufferSize  int           // Transport event channel buffer
}

// DefaultTransportConfig returns sensible defaults.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		URL:              DefaultURL,
		HandshakeTimeout: DefaultHandshakeTimeout,
		WriteTimeout:     DefaultWriteTimeout,
		CloseTimeout:     DefaultCloseTimeout,
		EventBufferSize:  64,
	}
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	Transport         TransportConfig
	Credential        Credential
	LivenessTimeout   time.Duration // Max time without a ping before the transport is presumed dead (<= 0 disables)
	AutoReconnect     bool          // Reconnect after every close
	ReconnectBaseWait time.Duration // First backoff after a failed dial
	ReconnectMaxWait  time.Duration // Backoff ceiling
	EventBufferSize   int           // Initial capacity of the caller event queue
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Transport:         DefaultTransportConfig(),
		LivenessTimeout:   DefaultLivenessTimeout,
		AutoReconnect:     true,
		ReconnectBaseWait: DefaultReconnectBaseWait,
		ReconnectMaxWait:  DefaultReconnectMaxWait,
		EventBufferSize:   DefaultEventBufferSize,
	}
}

// ManagerStats provides statistics about the session.
type ManagerStats struct {
	State            State
	ConnID           string // Current transport handle, empty when closed
	Connects         int64  // Transport handles created
	Reconnects       int64
	FramesReceived   int64
	DecodeErrors     int64
	LivenessTimeouts int64
	QueuedEvents     int   // Events waiting for the caller
	EventsDelivered  int64 // Events handed to the caller
}
