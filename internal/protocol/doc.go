// Package protocol implements the chat wire codec.
//
// Every WebSocket message carries exactly one frame of the form
//
//	<TAG> <JSON payload>
//
// where TAG is drawn from a small fixed vocabulary (see Tag). Encoding and
// decoding are pure functions with no connection state.
package protocol
