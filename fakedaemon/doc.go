// Package fakedaemon is a small daemon speaking the sockrpc protocol. It
// backs the client's integration tests and the `sockrpc fake-daemon`
// command.
//
// Out of the box it answers `ping`, `version`, `get` and `set`, pushing an
// `update` event to every client whenever a key is set. Unknown commands are
// answered with `unexpected_error`. Tests swap individual handlers with
// Handle and push arbitrary events with Broadcast.
package fakedaemon
