package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

var (
	ErrInvalidUTF8  = errors.New("Frame is not valid UTF-8")
	ErrInvalidJSON  = errors.New("Frame is not valid JSON")
	ErrNotAnObject  = errors.New("Frame is not a JSON object")
	ErrMissingType  = errors.New("Frame is missing a string type field")
	ErrInvalidID    = errors.New("Frame has an id that is not a string")
	ErrEmptyMessage = errors.New("Frame is empty")
)

// ParseMessage parses a single frame, without its delimiter, into a Message.
//
// The returned Message keeps references into frame, callers must not reuse
// the frame's backing array afterwards.
func ParseMessage(frame []byte) (*Message, error) {
	if len(frame) == 0 {
		return nil, ErrEmptyMessage
	}

	if !utf8.Valid(frame) {
		return nil, ErrInvalidUTF8
	}

	if !gjson.ValidBytes(frame) {
		return nil, ErrInvalidJSON
	}

	root := gjson.ParseBytes(frame)
	if !root.IsObject() {
		return nil, ErrNotAnObject
	}

	msgType := root.Get("type")
	if msgType.Type != gjson.String {
		return nil, ErrMissingType
	}

	msg := &Message{
		Type: msgType.String(),
		Raw:  frame,
	}

	switch id := root.Get("id"); id.Type {
	case gjson.Null:
		// Absent or explicitly null, either way this is an event
	case gjson.String:
		msg.ID = id.String()
	default:
		return nil, fmt.Errorf("Failed to parse id %s: %w", id.Raw, ErrInvalidID)
	}

	if data := root.Get("data"); data.Exists() {
		msg.Data = rawBytes(frame, data)
	}

	if errPayload := root.Get("error"); errPayload.Exists() {
		msg.Error = rawBytes(frame, errPayload)
	}

	return msg, nil
}

// rawBytes returns the raw JSON for result, sliced straight out of frame
// when gjson was able to tell us where it lives.
func rawBytes(frame []byte, result gjson.Result) json.RawMessage {
	if result.Index > 0 && result.Index+len(result.Raw) <= len(frame) {
		return json.RawMessage(frame[result.Index : result.Index+len(result.Raw)])
	}

	return json.RawMessage(result.Raw)
}
