package connection

import (
	"time"

	"github.com/rickgao/dggchat/internal/protocol"
)

// EventKind enumerates the events a session emits.
type EventKind int

const (
	KindOpen EventKind = iota
	KindClose
	KindMessage
	KindError
	KindFrame
)

func (k EventKind) String() string {
	switch k {
	case KindOpen:
		return "open"
	case KindClose:
		return "close"
	case KindMessage:
		return "message"
	case KindError:
		return "error"
	case KindFrame:
		return "frame"
	default:
		return "unknown"
	}
}

// Event is implemented only by the event types in this package, so a type
// switch over them is exhaustive.
type Event interface {
	Kind() EventKind
	sealed()
}

// OpenEvent is emitted when a transport handle finishes its handshake.
type OpenEvent struct{}

// CloseEvent is emitted whenever the current transport handle goes away.
type CloseEvent struct{}

// MessageEvent carries a chat line from a MSG frame.
type MessageEvent struct {
	Nick     string
	Data     string
	Features []string
	Time     time.Time // Server timestamp when present, otherwise receive time
}

// ErrorEvent carries a recognized ERR frame.
type ErrorEvent struct {
	Reason       protocol.Reason
	MuteTimeLeft time.Duration // Only set for protocol.ReasonMuted
}

// FrameEvent forwards a notification frame (JOIN, QUIT, BROADCAST, ...)
// that the engine does not interpret.
type FrameEvent struct {
	Frame protocol.Frame
}

func (OpenEvent) Kind() EventKind    { return KindOpen }
func (CloseEvent) Kind() EventKind   { return KindClose }
func (MessageEvent) Kind() EventKind { return KindMessage }
func (ErrorEvent) Kind() EventKind   { return KindError }
func (FrameEvent) Kind() EventKind   { return KindFrame }

func (OpenEvent) sealed()    {}
func (CloseEvent) sealed()   {}
func (MessageEvent) sealed() {}
func (ErrorEvent) sealed()   {}
func (FrameEvent) sealed()   {}
