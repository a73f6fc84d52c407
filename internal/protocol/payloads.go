package protocol

import (
	"encoding/json"
	"time"
)

// MsgPayload is the body of an inbound MSG frame.
type MsgPayload struct {
	Nick      string   `json:"nick"`
	Data      string   `json:"data"`
	Features  []string `json:"features"`
	Timestamp int64    `json:"timestamp,omitempty"` // Unix milliseconds
}

// SendPayload is the body of an outbound MSG frame.
type SendPayload struct {
	Data string `json:"data"`
}

// Reason is the description carried by an ERR frame.
type Reason string

const (
	ReasonTooManyConnections Reason = "toomanyconnections"
	ReasonNeedLogin          Reason = "needlogin"
	ReasonNoPermission       Reason = "nopermission"
	ReasonBanned             Reason = "banned"
	ReasonMuted              Reason = "muted"
)

// Known reports whether the reason is one the session reports as an event.
func (r Reason) Known() bool {
	switch r {
	case ReasonTooManyConnections, ReasonNeedLogin, ReasonNoPermission, ReasonBanned, ReasonMuted:
		return true
	}
	return false
}

// Terminal reports whether the server considers the session over.
func (r Reason) Terminal() bool {
	return r == ReasonBanned
}

// ErrPayload is the body of an ERR frame. Servers send either an object
// with a description or the bare description string.
type ErrPayload struct {
	Description  string  `json:"description"`
	MuteTimeLeft float64 `json:"muteTimeLeft,omitempty"` // seconds
}

// UnmarshalJSON accepts both the object and the bare string form.
func (p *ErrPayload) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = ErrPayload{Description: s}
		return nil
	}

	type plain ErrPayload
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = ErrPayload(v)
	return nil
}

// Reason returns the description as a Reason.
func (p ErrPayload) Reason() Reason {
	return Reason(p.Description)
}

// MuteRemaining converts MuteTimeLeft to a duration.
func (p ErrPayload) MuteRemaining() time.Duration {
	return time.Duration(p.MuteTimeLeft * float64(time.Second))
}
