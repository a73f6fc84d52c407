package protocol

import (
	"errors"
	"fmt"
)

// Decode failure kinds. Match with errors.Is.
var (
	ErrMalformedInput     = errors.New("malformed input")
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrMalformedPayload   = errors.New("malformed payload")
)

// DecodeError describes a frame that could not be decoded. Raw holds the
// offending data for diagnostics.
type DecodeError struct {
	Kind error
	Tag  Tag // set for ErrMalformedPayload
	Raw  string
	Err  error
}

func (e *DecodeError) Error() string {
	switch {
	case e.Tag.Valid() && e.Err != nil:
		return fmt.Sprintf("decode %s frame: %v: %v", e.Tag, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("decode frame: %v: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("decode frame: %v", e.Kind)
	}
}

func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
