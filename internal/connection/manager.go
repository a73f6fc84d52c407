package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/dggchat/internal/buffer"
	"github.com/rickgao/dggchat/internal/metrics"
	"github.com/rickgao/dggchat/internal/protocol"
	"github.com/rickgao/dggchat/internal/version"
)

// Manager owns the session state machine and its transport handle.
type Manager interface {
	// Start opens the first transport handle.
	Start(ctx context.Context) error

	// Stop shuts the session down for good.
	Stop(ctx context.Context) error

	// Send writes a MSG frame. Returns ErrNotConnected when no handle is open.
	Send(ctx context.Context, text string) error

	// Close gracefully closes the current handle. A reconnect still follows
	// unless auto-reconnect has been disabled.
	Close(ctx context.Context) error

	// SetAutoReconnect enables or disables reconnecting after a close.
	SetAutoReconnect(enabled bool)

	// IsConnected reports whether a handle exists and is open.
	IsConnected() bool

	// State returns the current connection state.
	State() State

	// Events returns the session event stream. Closed after Stop.
	Events() <-chan Event

	// Stats returns current counters.
	Stats() ManagerStats
}

// ManagerOption customizes a Manager.
type ManagerOption func(*manager)

// WithDialer replaces the WebSocket dialer.
func WithDialer(d Dialer) ManagerOption {
	return func(m *manager) {
		m.dialer = d
	}
}

// WithMetrics records session metrics.
func WithMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *manager) {
		m.metrics = mt
	}
}

// connState holds the state for the current transport handle.
type connState struct {
	transport Transport
	heartbeat *Heartbeat
	logger    *slog.Logger
	opened    bool
	closing   bool
}

type requestKind int

const (
	requestSend requestKind = iota
	requestClose
)

// request is a caller operation executed on the session loop.
type request struct {
	kind  requestKind
	text  string
	reply chan error
}

// manager implements the Manager interface.
type manager struct {
	cfg     ManagerConfig
	dialer  Dialer
	logger  *slog.Logger
	metrics *metrics.Metrics

	requests chan request

	// Event delivery
	queue    *buffer.Queue[Event]
	out      chan Event
	halt     chan struct{}
	pumpDone chan struct{}

	// Lifecycle
	lifecycleMu sync.Mutex
	started     bool
	stopped     bool
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{} // Closed when the loop exits

	autoReconnect atomic.Bool
	state         atomic.Int32
	connID        atomic.Value // string

	// Owned by the loop goroutine
	conn     *connState
	failures int // Consecutive handles that never opened

	// Counters
	connects         atomic.Int64
	reconnects       atomic.Int64
	framesReceived   atomic.Int64
	decodeErrors     atomic.Int64
	livenessTimeouts atomic.Int64
}

// NewManager creates a Connection Manager.
func NewManager(cfg ManagerConfig, logger *slog.Logger, opts ...ManagerOption) (Manager, error) {
	if err := cfg.Credential.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.EventBufferSize < 1 {
		cfg.EventBufferSize = DefaultEventBufferSize
	}
	if cfg.Transport.CloseTimeout <= 0 {
		cfg.Transport.CloseTimeout = DefaultCloseTimeout
	}

	m := &manager{
		cfg:      cfg,
		logger:   logger,
		requests: make(chan request),
		queue:    buffer.NewQueue[Event](cfg.EventBufferSize),
		out:      make(chan Event, 64),
		halt:     make(chan struct{}),
		pumpDone: make(chan struct{}),
		done:     make(chan struct{}),
	}
	m.autoReconnect.Store(cfg.AutoReconnect)
	m.connID.Store("")

	for _, opt := range opts {
		opt(m)
	}

	if m.dialer == nil {
		tcfg := cfg.Transport
		header := cfg.Credential.Header()
		for k, v := range tcfg.Header {
			header[k] = v
		}
		if header.Get("User-Agent") == "" {
			header.Set("User-Agent", version.UserAgent())
		}
		tcfg.Header = header
		m.dialer = NewWebSocketDialer(tcfg, logger)
	}

	return m, nil
}

// Start launches the session loop.
func (m *manager) Start(ctx context.Context) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if m.stopped {
		return ErrStopped
	}
	if m.started {
		return ErrAlreadyStarted
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(ctx)

	go m.pump()
	go m.run()

	m.logger.Info("session started",
		"url", m.cfg.Transport.URL,
		"auto_reconnect", m.autoReconnect.Load(),
		"liveness_timeout", m.cfg.LivenessTimeout,
	)

	return nil
}

// Stop gracefully shuts down.
func (m *manager) Stop(ctx context.Context) error {
	m.lifecycleMu.Lock()
	if m.stopped {
		m.lifecycleMu.Unlock()
		return nil
	}
	m.stopped = true
	started := m.started
	m.lifecycleMu.Unlock()

	if !started {
		m.queue.Close()
		close(m.out)
		close(m.done)
		return nil
	}

	m.logger.Info("stopping session")
	m.cancel()

	select {
	case <-m.done:
	case <-ctx.Done():
		m.logger.Warn("shutdown timeout, forcing close")
	}

	// Let the caller drain what is left, but not forever.
	m.queue.Close()
	drainCtx, cancel := context.WithTimeout(ctx, m.cfg.Transport.CloseTimeout)
	defer cancel()
	select {
	case <-m.pumpDone:
	case <-drainCtx.Done():
		m.logger.Warn("dropping unread events", "queued", m.queue.Len())
		close(m.halt)
		<-m.pumpDone
	}

	qs := m.queue.Stats()
	m.logger.Info("session stopped",
		"events_delivered", qs.Popped,
		"queue_resizes", qs.Resizes,
	)
	return nil
}

// Send encodes text as a MSG frame and writes it.
func (m *manager) Send(ctx context.Context, text string) error {
	if !m.running() {
		m.metrics.SendError()
		return ErrNotConnected
	}
	return m.do(ctx, request{kind: requestSend, text: text})
}

// Close requests a graceful close of the current handle.
func (m *manager) Close(ctx context.Context) error {
	if !m.running() {
		return nil
	}
	return m.do(ctx, request{kind: requestClose})
}

func (m *manager) SetAutoReconnect(enabled bool) {
	m.autoReconnect.Store(enabled)
	m.logger.Debug("auto-reconnect changed", "enabled", enabled)
}

func (m *manager) IsConnected() bool {
	return m.State() == StateOpen
}

func (m *manager) State() State {
	return State(m.state.Load())
}

func (m *manager) Events() <-chan Event {
	return m.out
}

// Stats returns current statistics.
func (m *manager) Stats() ManagerStats {
	qs := m.queue.Stats()
	return ManagerStats{
		State:            m.State(),
		ConnID:           m.connID.Load().(string),
		Connects:         m.connects.Load(),
		Reconnects:       m.reconnects.Load(),
		FramesReceived:   m.framesReceived.Load(),
		DecodeErrors:     m.decodeErrors.Load(),
		LivenessTimeouts: m.livenessTimeouts.Load(),
		QueuedEvents:     qs.Len,
		EventsDelivered:  qs.Popped,
	}
}

func (m *manager) running() bool {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	return m.started && !m.stopped
}

// do hands a request to the loop and waits for its result.
func (m *manager) do(ctx context.Context, req request) error {
	req.reply = make(chan error, 1)

	select {
	case m.requests <- req:
	case <-m.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.reply:
		return err
	case <-m.done:
		select {
		case err := <-req.reply:
			return err
		default:
			return ErrStopped
		}
	}
}

// run is the session loop. Every state change happens here.
func (m *manager) run() {
	defer close(m.done)

	m.connect()

	for {
		var events <-chan TransportEvent
		var expired <-chan struct{}
		if c := m.conn; c != nil {
			events = c.transport.Events()
			expired = c.heartbeat.Expired()
		}

		select {
		case <-m.ctx.Done():
			m.shutdown()
			return

		case ev := <-events:
			m.handleTransportEvent(ev)

		case <-expired:
			m.handleLivenessTimeout()

		case req := <-m.requests:
			m.handleRequest(req)
		}
	}
}

// pump moves events from the unbounded queue to the caller's channel.
func (m *manager) pump() {
	defer close(m.pumpDone)
	defer close(m.out)

	for {
		ev, ok := m.queue.Pop()
		if !ok {
			return
		}

		select {
		case m.out <- ev:
		case <-m.halt:
			return
		}
	}
}

func (m *manager) emit(ev Event) {
	if !m.queue.Push(ev) {
		m.logger.Debug("event dropped after stop", "kind", ev.Kind())
	}
}

func (m *manager) setState(s State, connID string) {
	m.state.Store(int32(s))
	m.connID.Store(connID)
}

// connect creates a new transport handle. Handles that follow a failed
// dial wait out an exponential backoff before dialing.
func (m *manager) connect() {
	wait := m.backoff()
	id := uuid.NewString()
	logger := m.logger.With("conn_id", id)

	m.conn = &connState{
		transport: m.dialer.Dial(m.ctx, id, wait),
		heartbeat: NewHeartbeat(m.cfg.LivenessTimeout),
		logger:    logger,
	}
	m.setState(StateConnecting, id)
	m.connects.Add(1)
	m.metrics.ConnectAttempt()

	logger.Info("connecting", "url", m.cfg.Transport.URL, "wait", wait)
}

func (m *manager) backoff() time.Duration {
	if m.failures == 0 {
		return 0
	}

	wait := m.cfg.ReconnectBaseWait
	for i := 1; i < m.failures && wait < m.cfg.ReconnectMaxWait; i++ {
		wait *= 2
	}
	if m.cfg.ReconnectMaxWait > 0 && wait > m.cfg.ReconnectMaxWait {
		wait = m.cfg.ReconnectMaxWait
	}
	return wait
}

func (m *manager) handleTransportEvent(ev TransportEvent) {
	c := m.conn

	switch ev.Type {
	case TransportOpen:
		c.opened = true
		m.failures = 0
		if !c.closing {
			m.setState(StateOpen, c.transport.ID())
			m.metrics.SetConnected(true)
		}
		c.heartbeat.Signal()
		c.logger.Info("connected")
		m.emit(OpenEvent{})

	case TransportData:
		m.handleData(c, ev)

	case TransportPing:
		c.heartbeat.Signal()

	case TransportError:
		c.logger.Warn("transport error", "error", ev.Err)

	case TransportClose:
		c.logger.Info("connection closed", "error", ev.Err)
		m.afterClose()
	}
}

func (m *manager) handleRequest(req request) {
	switch req.kind {
	case requestSend:
		req.reply <- m.send(req.text)
	case requestClose:
		m.gracefulClose("requested")
		req.reply <- nil
	}
}

func (m *manager) send(text string) error {
	c := m.conn
	if c == nil || !c.opened || c.closing || !c.transport.IsOpen() {
		m.metrics.SendError()
		m.logger.Warn("send while disconnected", "state", m.State())
		return ErrNotConnected
	}

	data, err := protocol.Encode(protocol.TagMsg, protocol.SendPayload{Data: text})
	if err != nil {
		return err
	}

	if err := c.transport.Send(data); err != nil {
		m.metrics.SendError()
		c.logger.Warn("send failed", "error", err)
		return fmt.Errorf("send message: %w", err)
	}

	m.metrics.MessageSent()
	return nil
}

// handleLivenessTimeout drops a silent transport and runs the close path
// directly; the terminated handle delivers no further events.
func (m *manager) handleLivenessTimeout() {
	c := m.conn

	c.logger.Warn("no liveness signal, terminating connection",
		"timeout", m.cfg.LivenessTimeout,
		"error", ErrLivenessTimeout,
	)
	m.livenessTimeouts.Add(1)
	m.metrics.LivenessTimeout()

	if err := c.transport.Terminate(); err != nil {
		c.logger.Debug("terminate failed", "error", err)
	}

	m.afterClose()
}

// gracefulClose starts an orderly close of the current handle.
func (m *manager) gracefulClose(reason string) {
	c := m.conn
	if c == nil || c.closing {
		return
	}
	c.closing = true
	m.setState(StateClosing, c.transport.ID())
	m.metrics.SetConnected(false)

	c.logger.Info("closing connection", "reason", reason)
	if err := c.transport.Close(); err != nil {
		c.logger.Warn("graceful close failed", "error", err)
	}
}

// afterClose discards the current handle and reconnects if enabled.
func (m *manager) afterClose() {
	c := m.conn
	if c == nil {
		return
	}

	c.heartbeat.Stop()
	m.conn = nil
	if !c.opened {
		m.failures++
	}
	m.setState(StateClosed, "")
	m.metrics.SetConnected(false)
	m.emit(CloseEvent{})

	if m.autoReconnect.Load() && m.ctx.Err() == nil {
		m.reconnects.Add(1)
		m.metrics.Reconnect()
		m.connect()
	}
}

// shutdown releases the current handle when the loop exits.
func (m *manager) shutdown() {
	c := m.conn
	if c == nil {
		m.setState(StateClosed, "")
		return
	}

	c.heartbeat.Stop()
	if err := c.transport.Close(); err != nil {
		c.logger.Debug("close on shutdown failed", "error", err)
	}
	c.transport.Terminate()

	m.conn = nil
	m.setState(StateClosed, "")
	m.metrics.SetConnected(false)
	m.emit(CloseEvent{})
}

// handleData decodes one inbound message and dispatches it by tag.
func (m *manager) handleData(c *connState, ev TransportEvent) {
	frame, err := protocol.DecodeBytes(ev.Data, ev.Binary)
	if err != nil {
		m.decodeErrors.Add(1)

		kind := "unknown"
		var de *protocol.DecodeError
		if errors.As(err, &de) {
			kind = de.Kind.Error()
		}
		m.metrics.DecodeError(kind)

		c.logger.Warn("dropping undecodable frame", "error", err, "bytes", len(ev.Data))
		return
	}

	m.framesReceived.Add(1)
	m.metrics.FrameReceived(frame.Tag.String())

	if frame.Tag.IsNotification() {
		m.emit(FrameEvent{Frame: frame})
		return
	}

	switch frame.Tag {
	case protocol.TagPing:
		m.handlePing(c, frame)
	case protocol.TagErr:
		m.handleProtocolError(c, frame)
	case protocol.TagMsg:
		m.handleMessage(c, frame)
	default:
		c.logger.Debug("unhandled frame", "tag", frame.Tag, "payload", frame.Payload)
	}
}

// handlePing answers an application-level PING. Servers normally ping at
// the WebSocket layer; this covers the ones that do not.
func (m *manager) handlePing(c *connState, frame protocol.Frame) {
	c.heartbeat.Signal()

	data, err := protocol.Encode(protocol.TagPong, frame.Raw())
	if err != nil {
		c.logger.Warn("encode pong failed", "error", err)
		return
	}
	if err := c.transport.Send(data); err != nil {
		c.logger.Warn("pong failed", "error", err)
	}
}

func (m *manager) handleProtocolError(c *connState, frame protocol.Frame) {
	var p protocol.ErrPayload
	if err := frame.Bind(&p); err != nil {
		c.logger.Warn("malformed ERR frame", "error", err)
		return
	}

	reason := p.Reason()
	if !reason.Known() {
		m.metrics.ProtocolError("unknown")
		c.logger.Error("unknown protocol error", "description", p.Description, "payload", frame.Payload)
		return
	}
	m.metrics.ProtocolError(string(reason))

	ev := ErrorEvent{Reason: reason}
	if reason == protocol.ReasonMuted {
		ev.MuteTimeLeft = p.MuteRemaining()
	}

	c.logger.Warn("protocol error", "reason", reason, "mute_time_left", ev.MuteTimeLeft)
	m.emit(ev)

	if reason.Terminal() {
		m.gracefulClose(string(reason))
	}
}

func (m *manager) handleMessage(c *connState, frame protocol.Frame) {
	var p protocol.MsgPayload
	if err := frame.Bind(&p); err != nil {
		c.logger.Warn("malformed MSG frame", "error", err)
		return
	}

	ts := time.Now()
	if p.Timestamp > 0 {
		ts = time.UnixMilli(p.Timestamp)
	}

	m.emit(MessageEvent{
		Nick:     p.Nick,
		Data:     p.Data,
		Features: p.Features,
		Time:     ts,
	})
}
