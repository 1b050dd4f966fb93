package protocol

// Synthetic events raised by the client on socket connect and disconnect.
// They are dispatched like any other event but never sent on the wire.
const (
	ConnectedEvent    = "_socket_connected"
	DisconnectedEvent = "_socket_disconnected"
)

// UnexpectedErrorType is the response type the daemon uses for generic
// internal failures.
const UnexpectedErrorType = "unexpected_error"

// V1 is the request version sent by versioned calls.
const V1 = "v1"

// Commands understood by the bundled fake daemon.
const (
	PING    = "ping"
	VERSION = "version"
	GET     = "get"
	SET     = "set"
)

// UpdateEvent is pushed by the fake daemon whenever a key is set.
const UpdateEvent = "update"

// IsSynthetic reports whether eventType is one of the client's reserved
// lifecycle events.
func IsSynthetic(eventType string) bool {
	return eventType == ConnectedEvent || eventType == DisconnectedEvent
}
