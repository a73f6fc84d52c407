package dggchat

import (
	"github.com/rickgao/dggchat/internal/connection"
	"github.com/rickgao/dggchat/internal/protocol"
)

// Event is one of OpenEvent, CloseEvent, MessageEvent, ErrorEvent or
// FrameEvent.
type Event = connection.Event

type (
	OpenEvent    = connection.OpenEvent
	CloseEvent   = connection.CloseEvent
	MessageEvent = connection.MessageEvent
	ErrorEvent   = connection.ErrorEvent
	FrameEvent   = connection.FrameEvent
)

// EventKind identifies an Event without a type switch.
type EventKind = connection.EventKind

const (
	KindOpen    = connection.KindOpen
	KindClose   = connection.KindClose
	KindMessage = connection.KindMessage
	KindError   = connection.KindError
	KindFrame   = connection.KindFrame
)

// Frame is a decoded wire frame carried by FrameEvent.
type Frame = protocol.Frame

// Tag identifies a frame type.
type Tag = protocol.Tag

// Reason is the description of a server ERR frame.
type Reason = protocol.Reason

const (
	ReasonTooManyConnections = protocol.ReasonTooManyConnections
	ReasonNeedLogin          = protocol.ReasonNeedLogin
	ReasonNoPermission       = protocol.ReasonNoPermission
	ReasonBanned             = protocol.ReasonBanned
	ReasonMuted              = protocol.ReasonMuted
)

// State is the connection state of a Session.
type State = connection.State

const (
	StateClosed     = connection.StateClosed
	StateConnecting = connection.StateConnecting
	StateOpen       = connection.StateOpen
	StateClosing    = connection.StateClosing
)

// Stats is a snapshot of session counters.
type Stats = connection.ManagerStats

// Transport and Dialer let callers replace the WebSocket layer.
type (
	Transport      = connection.Transport
	TransportEvent = connection.TransportEvent
	Dialer         = connection.Dialer
)

// Errors
var (
	ErrNotConnected           = connection.ErrNotConnected
	ErrAlreadyStarted         = connection.ErrAlreadyStarted
	ErrStopped                = connection.ErrStopped
	ErrConflictingCredentials = connection.ErrConflictingCredentials
)
