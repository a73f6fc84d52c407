package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// TransportEventType identifies a transport callback.
type TransportEventType int

const (
	TransportOpen  TransportEventType = iota // Handshake completed
	TransportData                            // Inbound message
	TransportPing                            // Ping control frame (liveness signal)
	TransportError                           // Unexpected failure; a TransportClose follows
	TransportClose                           // Handle is finished; always the last event
)

func (t TransportEventType) String() string {
	switch t {
	case TransportOpen:
		return "open"
	case TransportData:
		return "data"
	case TransportPing:
		return "ping"
	case TransportError:
		return "error"
	case TransportClose:
		return "close"
	default:
		return "unknown"
	}
}

// TransportEvent is one callback from a transport handle.
type TransportEvent struct {
	Type   TransportEventType
	Data   []byte // TransportData only
	Binary bool   // TransportData only
	Err    error
}

// Transport is one physical connection attempt. Its events are delivered,
// in order, on a single channel.
type Transport interface {
	// ID returns the handle identifier used in logs.
	ID() string

	// Events returns the ordered callback stream.
	Events() <-chan TransportEvent

	// Send writes one text message.
	Send(data []byte) error

	// Close starts an orderly close handshake. A TransportClose event
	// follows once the peer answers or the close timeout passes.
	Close() error

	// Terminate drops the connection immediately. No further events are
	// delivered after it returns.
	Terminate() error

	// IsOpen reports whether the handshake completed and no close has
	// started.
	IsOpen() bool
}

// Dialer creates transport handles. Dial returns at once; the connection
// attempt runs in the background after waiting wait.
type Dialer interface {
	Dial(ctx context.Context, id string, wait time.Duration) Transport
}

// WebSocketDialer dials gorilla/websocket connections.
type WebSocketDialer struct {
	cfg    TransportConfig
	logger *slog.Logger
}

// NewWebSocketDialer creates a dialer for cfg.URL.
func NewWebSocketDialer(cfg TransportConfig, logger *slog.Logger) *WebSocketDialer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = DefaultCloseTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.EventBufferSize < 1 {
		cfg.EventBufferSize = 64
	}
	return &WebSocketDialer{cfg: cfg, logger: logger}
}

// Dial starts a connection attempt.
func (d *WebSocketDialer) Dial(ctx context.Context, id string, wait time.Duration) Transport {
	ctx, cancel := context.WithCancel(ctx)

	t := &wsTransport{
		id:     id,
		cfg:    d.cfg,
		logger: d.logger.With("conn_id", id),
		events: make(chan TransportEvent, d.cfg.EventBufferSize),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go t.run(ctx, wait)

	return t
}

// wsTransport implements Transport over a gorilla/websocket connection.
type wsTransport struct {
	id     string
	cfg    TransportConfig
	logger *slog.Logger

	events chan TransportEvent
	done   chan struct{} // Closed by Terminate
	cancel context.CancelFunc

	// Write serialization
	writeMu sync.Mutex

	// State
	mu         sync.RWMutex
	conn       *websocket.Conn
	open       bool
	closing    bool
	terminated bool
	closeTimer *time.Timer
}

func (t *wsTransport) ID() string {
	return t.id
}

func (t *wsTransport) Events() <-chan TransportEvent {
	return t.events
}

func (t *wsTransport) IsOpen() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.open && !t.closing && !t.terminated
}

// Send writes raw bytes to the connection.
func (t *wsTransport) Send(data []byte) error {
	t.mu.RLock()
	conn := t.conn
	open := t.open && !t.closing && !t.terminated
	t.mu.RUnlock()

	if !open {
		return ErrNotConnected
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a normal-closure frame and lets the read loop finish when the
// peer echoes it. A dial in progress is cancelled instead.
func (t *wsTransport) Close() error {
	t.mu.Lock()
	if t.closing || t.terminated {
		t.mu.Unlock()
		return nil
	}
	t.closing = true

	conn := t.conn
	if conn == nil {
		t.mu.Unlock()
		t.cancel()
		return nil
	}
	if !t.open {
		t.mu.Unlock()
		return nil
	}

	// Peer never answered
	t.closeTimer = time.AfterFunc(t.cfg.CloseTimeout, func() {
		conn.Close()
	})
	t.mu.Unlock()

	err := conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(t.cfg.WriteTimeout),
	)
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		conn.Close()
		return fmt.Errorf("write close frame: %w", err)
	}

	return nil
}

// Terminate closes the socket without a handshake.
func (t *wsTransport) Terminate() error {
	t.mu.Lock()
	if t.terminated {
		t.mu.Unlock()
		return nil
	}
	t.terminated = true
	t.open = false
	if t.closeTimer != nil {
		t.closeTimer.Stop()
	}
	conn := t.conn
	t.mu.Unlock()

	close(t.done)
	t.cancel()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// run dials and then reads until the connection ends.
func (t *wsTransport) run(ctx context.Context, wait time.Duration) {
	defer t.cancel()

	if wait > 0 {
		t.logger.Debug("delaying dial", "wait", wait)
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			t.emit(TransportEvent{Type: TransportClose, Err: ctx.Err()})
			return
		}
	}

	dialer := websocket.Dialer{
		Proxy:             http.ProxyFromEnvironment,
		HandshakeTimeout:  t.cfg.HandshakeTimeout,
		EnableCompression: false,
	}

	conn, _, err := dialer.DialContext(ctx, t.cfg.URL, t.cfg.Header)
	if err != nil {
		if ctx.Err() == nil {
			t.emit(TransportEvent{Type: TransportError, Err: fmt.Errorf("dial %s: %w", t.cfg.URL, err)})
		}
		t.emit(TransportEvent{Type: TransportClose, Err: err})
		return
	}

	t.mu.Lock()
	if t.closing || t.terminated {
		t.mu.Unlock()
		conn.Close()
		t.emit(TransportEvent{Type: TransportClose})
		return
	}
	t.conn = conn
	t.open = true
	t.mu.Unlock()

	// Server pings are the liveness signal; answer them like the default handler
	conn.SetPingHandler(func(data string) error {
		t.emit(TransportEvent{Type: TransportPing})

		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(t.cfg.WriteTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil
		}
		return err
	})

	t.logger.Debug("websocket connected", "url", t.cfg.URL)
	t.emit(TransportEvent{Type: TransportOpen})

	t.readLoop(conn)
}

// readLoop forwards messages until the connection fails or closes.
func (t *wsTransport) readLoop(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if !t.expectedClose(err) {
				t.emit(TransportEvent{Type: TransportError, Err: err})
			}
			t.finish(conn, err)
			return
		}

		t.emit(TransportEvent{
			Type:   TransportData,
			Data:   data,
			Binary: msgType == websocket.BinaryMessage,
		})
	}
}

// expectedClose reports whether a read error is the normal end of the
// connection rather than a fault worth reporting.
func (t *wsTransport) expectedClose(err error) bool {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return true
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closing || t.terminated
}

func (t *wsTransport) finish(conn *websocket.Conn, err error) {
	t.mu.Lock()
	t.open = false
	if t.closeTimer != nil {
		t.closeTimer.Stop()
	}
	t.mu.Unlock()

	conn.Close()

	t.logger.Debug("websocket closed", "error", err)
	t.emit(TransportEvent{Type: TransportClose, Err: err})
}

// emit delivers an event unless the handle has been terminated.
func (t *wsTransport) emit(ev TransportEvent) {
	select {
	case t.events <- ev:
	case <-t.done:
	}
}
