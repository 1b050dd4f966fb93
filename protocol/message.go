package protocol

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Message is a parsed frame received from the daemon.
type Message struct {
	// Type is the message type, always present
	Type string

	// ID is the request ID this message answers. Empty for events.
	ID string

	// Data is the raw `data` payload, nil if absent
	Data json.RawMessage

	// Error is the raw `error` payload, nil if absent
	Error json.RawMessage

	// Raw is the complete frame
	Raw []byte
}

// NewEvent builds an event message that did not come from the wire, such as
// the synthetic connect and disconnect events.
func NewEvent(eventType string) *Message {
	return &Message{Type: eventType, Raw: []byte(`{}`)}
}

// IsEvent returns true if the message was pushed by the daemon rather than
// sent in response to a request.
func (m *Message) IsEvent() bool {
	return m.ID == ""
}

// HasError returns true if the message carries a string or object error.
// Any other JSON value in the error field, including null, is ignored.
func (m *Message) HasError() bool {
	if len(m.Error) == 0 {
		return false
	}

	result := gjson.ParseBytes(m.Error)
	return result.Type == gjson.String || result.IsObject()
}

// Get returns a top-level field of the raw frame. Command specific fields
// live next to `id` and `type`, this is how servers read them.
func (m *Message) Get(path string) gjson.Result {
	return gjson.GetBytes(m.Raw, path)
}
