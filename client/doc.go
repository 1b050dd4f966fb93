// Package client talks to a co-located daemon over a single persistent
// socket using the newline delimited JSON protocol described in package
// protocol.
//
// A Client owns the whole connection lifecycle. Connect starts a background
// loop that dials the daemon, reads frames, and redials after a fixed delay
// whenever the connection fails or drops. Requests are matched to responses
// by a random UUID; requests still waiting when the connection drops fail
// with a NotConnectedError. Frames without a request id are events and are
// handed to the handlers registered with AddEventHandler, each event on its
// own goroutine so slow handlers never hold up reading.
//
// Two synthetic events, protocol.ConnectedEvent and
// protocol.DisconnectedEvent, are dispatched through the same handlers
// whenever a connection is established or lost.
//
// Callers only ever see the errors classified by KindOf, or context errors
// when they stop waiting. Transport failures are logged and handled by
// reconnecting.
package client
