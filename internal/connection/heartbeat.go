package connection

import (
	"sync"
	"time"
)

// Heartbeat tracks liveness signals for one transport handle. At most one
// deadline is pending at any time; each Signal replaces the previous one.
type Heartbeat struct {
	timeout time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	stopped bool

	expired chan struct{}
}

// NewHeartbeat creates a monitor. A timeout <= 0 disables it.
func NewHeartbeat(timeout time.Duration) *Heartbeat {
	return &Heartbeat{
		timeout: timeout,
		expired: make(chan struct{}, 1),
	}
}

// Signal records a liveness signal and schedules a new deadline.
func (h *Heartbeat) Signal() {
	if h.timeout <= 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return
	}
	h.cancelLocked()

	gen := h.gen
	h.timer = time.AfterFunc(h.timeout, func() {
		h.fire(gen)
	})
}

// Expired delivers one value per missed deadline.
func (h *Heartbeat) Expired() <-chan struct{} {
	return h.expired
}

// Stop cancels the pending deadline. Signal is a no-op afterwards.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stopped = true
	h.cancelLocked()
}

// cancelLocked invalidates the pending timer, including a callback that is
// already running, and discards an undelivered expiry.
func (h *Heartbeat) cancelLocked() {
	h.gen++
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	select {
	case <-h.expired:
	default:
	}
}

func (h *Heartbeat) fire(gen uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped || gen != h.gen {
		return
	}
	h.timer = nil

	select {
	case h.expired <- struct{}{}:
	default:
	}
}
