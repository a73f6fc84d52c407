package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Config configures metric registration.
type Config struct {
	// Namespace is the metrics namespace (default: "dggchat").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// Registerer receives the collectors.
	// Default: prometheus.DefaultRegisterer
	Registerer prometheus.Registerer
}

// DefaultConfig returns the default metrics configuration.
func DefaultConfig() Config {
	return Config{
		Namespace:  "dggchat",
		Registerer: prometheus.DefaultRegisterer,
	}
}

// Metrics holds the session collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	connects         prometheus.Counter
	reconnects       prometheus.Counter
	livenessTimeouts prometheus.Counter
	connected        prometheus.Gauge
	framesReceived   *prometheus.CounterVec
	decodeErrors     *prometheus.CounterVec
	protocolErrors   *prometheus.CounterVec
	messagesSent     prometheus.Counter
	sendErrors       prometheus.Counter
	archivedRows     prometheus.Counter
	archiveErrors    prometheus.Counter
}

// New registers the collectors with cfg.Registerer. Calling New again with
// the same registerer and names returns collectors that share the already
// registered series, so a session and an archive writer can both record.
func New(cfg Config) *Metrics {
	if cfg.Namespace == "" {
		cfg.Namespace = "dggchat"
	}
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.DefaultRegisterer
	}
	reg := cfg.Registerer

	opts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		}
	}
	counter := func(name, help string) prometheus.Counter {
		return register(reg, prometheus.NewCounter(opts(name, help)))
	}
	counterVec := func(name, help, label string) *prometheus.CounterVec {
		return register(reg, prometheus.NewCounterVec(opts(name, help), []string{label}))
	}

	return &Metrics{
		connects:         counter("connects_total", "Transport handles created"),
		reconnects:       counter("reconnects_total", "Automatic reconnections after a close"),
		livenessTimeouts: counter("liveness_timeouts_total", "Connections terminated for missing liveness signals"),
		connected: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "connected",
			Help:      "1 while a transport handle is open",
		})),
		framesReceived: counterVec("frames_received_total", "Decoded inbound frames by tag", "tag"),
		decodeErrors:   counterVec("decode_errors_total", "Inbound frames dropped by the codec", "kind"),
		protocolErrors: counterVec("protocol_errors_total", "ERR frames received by reason", "reason"),
		messagesSent:   counter("messages_sent_total", "MSG frames written"),
		sendErrors:     counter("send_errors_total", "Failed or rejected sends"),
		archivedRows:   counter("archived_messages_total", "Chat messages written to the archive"),
		archiveErrors:  counter("archive_errors_total", "Failed archive flushes"),
	}
}

// register adds c to reg, or returns the collector already registered
// under the same descriptor.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *Metrics) ConnectAttempt() {
	if m != nil {
		m.connects.Inc()
	}
}

func (m *Metrics) Reconnect() {
	if m != nil {
		m.reconnects.Inc()
	}
}

func (m *Metrics) LivenessTimeout() {
	if m != nil {
		m.livenessTimeouts.Inc()
	}
}

// SetConnected flips the connected gauge.
func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

func (m *Metrics) FrameReceived(tag string) {
	if m != nil {
		m.framesReceived.WithLabelValues(tag).Inc()
	}
}

func (m *Metrics) DecodeError(kind string) {
	if m != nil {
		m.decodeErrors.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) ProtocolError(reason string) {
	if m != nil {
		m.protocolErrors.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) MessageSent() {
	if m != nil {
		m.messagesSent.Inc()
	}
}

func (m *Metrics) SendError() {
	if m != nil {
		m.sendErrors.Inc()
	}
}

// Archived adds n rows to the archive counter.
func (m *Metrics) Archived(n int) {
	if m != nil {
		m.archivedRows.Add(float64(n))
	}
}

func (m *Metrics) ArchiveError() {
	if m != nil {
		m.archiveErrors.Inc()
	}
}
