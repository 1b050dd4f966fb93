package protocol

// This package implements parsing and serialising the frames that sockrpc
// exchanges with the daemon it talks to.
//
// The protocol aims to be
//
// - easy to implement on both ends
// - human readable, so a socket can be debugged with `socat`
// - self-describing, every frame names its own type
//
// - `Frame`   - One line of text holding exactly one JSON object.
// - `Request` - A frame sent by the client. It always carries an `id`.
// - `Response` - A frame sent by the daemon carrying the `id` of the request
//                it answers.
// - `Event`   - A frame pushed by the daemon without an `id`.
//
// === General Syntax
//
// - frames are `\n` delimited, an optional trailing `\r` is ignored
// - a frame is at most 1 MiB, not counting the delimiter
// - frames are UTF-8 encoded JSON objects
// - every frame has a string `type`
//
// === Requests
//
//   ```
//   {"id":"<uuid>","type":"<command>","version":"v1",...command fields}
//   ```
//
// The request ID is a random UUID generated by the client. `version` is
// optional. Command specific fields live at the top level of the object.
//
// === Responses
//
//   ```
//   {"id":"<uuid>","type":"<response type>","data":{...}}
//   ```
//
// The daemon includes the request ID in its response so the client can
// associate the reply with the right request. Responses to different requests
// can arrive in any order and interleave with events.
//
// === Error responses
//
//   ```
//   {"id":"<uuid>","type":"<response type>","error":"<message>"}
//   {"id":"<uuid>","type":"<response type>","error":{"message":"<message>",...}}
//   {"id":"<uuid>","type":"unexpected_error","data":{"message":"<message>"}}
//   ```
//
// A top-level `error` that is a string or an object fails the request, even
// when `data` is also present. The `unexpected_error` type signals a generic
// failure inside the daemon.
//
// === Events
//
//   ```
//   {"type":"IncomingMessage","data":{...}}
//   ```
//
// Events never include request IDs as they aren't initiated by the client.
// Two event types are reserved for the client itself and never appear on the
// wire: `_socket_connected` and `_socket_disconnected`.
