package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Frame is one decoded wire message.
type Frame struct {
	Tag     Tag
	Payload any // generic JSON value (map[string]any, []any, string, float64, bool or nil)

	raw json.RawMessage
}

// Raw returns the JSON body exactly as received, without the tag.
func (f Frame) Raw() json.RawMessage {
	return f.raw
}

// Bind unmarshals the frame body into v.
func (f Frame) Bind(v any) error {
	if err := json.Unmarshal(f.raw, v); err != nil {
		return fmt.Errorf("bind %s payload: %w", f.Tag, err)
	}
	return nil
}

// Encode renders a frame as "<TAG> <JSON>".
func Encode(tag Tag, payload any) ([]byte, error) {
	if !tag.Valid() {
		return nil, fmt.Errorf("encode frame: %w: %d", ErrUnknownMessageType, tag)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", tag, err)
	}

	name := tag.String()
	out := make([]byte, 0, len(name)+1+len(body))
	out = append(out, name...)
	out = append(out, ' ')
	out = append(out, body...)
	return out, nil
}

// DecodeBytes decodes a transport message. Binary messages are coerced to
// text and must be valid UTF-8.
func DecodeBytes(data []byte, binary bool) (Frame, error) {
	if data == nil {
		return Frame{}, &DecodeError{Kind: ErrMalformedInput}
	}
	if binary && !utf8.Valid(data) {
		return Frame{}, &DecodeError{
			Kind: ErrMalformedInput,
			Raw:  string(data),
			Err:  fmt.Errorf("binary message is not valid utf-8"),
		}
	}
	return Decode(string(data))
}

// Decode parses a single wire frame.
//
// The tag is the leading run of upper-case letters; whatever follows it is
// the JSON body. No separator is required between the two.
func Decode(raw string) (Frame, error) {
	end := 0
	for end < len(raw) && raw[end] >= 'A' && raw[end] <= 'Z' {
		end++
	}

	tag, ok := ParseTag(raw[:end])
	if !ok {
		return Frame{}, &DecodeError{Kind: ErrUnknownMessageType, Raw: raw}
	}

	body := strings.TrimSpace(raw[end:])

	var payload any
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return Frame{}, &DecodeError{
			Kind: ErrMalformedPayload,
			Tag:  tag,
			Raw:  raw,
			Err:  err,
		}
	}

	return Frame{
		Tag:     tag,
		Payload: payload,
		raw:     json.RawMessage(body),
	}, nil
}
