package fakedaemon

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/luma/sockrpc/internal/meta"
	"github.com/luma/sockrpc/protocol"
	"github.com/luma/sockrpc/storage"
)

func (s *Server) registerBuiltins() {
	s.handlers[protocol.PING] = Ping
	s.handlers[protocol.VERSION] = Version
	s.handlers[protocol.GET] = s.get
	s.handlers[protocol.SET] = s.set
}

// Ping answers with an empty response of the same type.
func Ping(ctx context.Context, req *protocol.Message) *Reply {
	return &Reply{}
}

// Version answers with the build information of this binary.
func Version(ctx context.Context, req *protocol.Message) *Reply {
	info := meta.GetInfo()

	return &Reply{
		Data: map[string]string{
			"name":    "sockrpc-fake-daemon",
			"version": info.Version,
			"build":   info.Build,
			"branch":  info.Branch,
		},
	}
}

// Respond returns a handler that always replies with replyType and data.
func Respond(replyType string, data interface{}) HandlerFunc {
	return func(ctx context.Context, req *protocol.Message) *Reply {
		return &Reply{Type: replyType, Data: data}
	}
}

// Fail returns a handler that always replies with errPayload as the error.
func Fail(errPayload interface{}) HandlerFunc {
	return func(ctx context.Context, req *protocol.Message) *Reply {
		return &Reply{Error: errPayload}
	}
}

// Silent is a handler that never replies.
func Silent(ctx context.Context, req *protocol.Message) *Reply {
	return nil
}

// get expects `{"key": "<path>"}` and answers with `{"key", "value"}`.
func (s *Server) get(ctx context.Context, req *protocol.Message) *Reply {
	key := req.Get("key").String()
	if key == "" {
		return &Reply{Error: errorPayload("InvalidRequestError", "key is required")}
	}

	value, err := s.store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return &Reply{Error: errorPayload("NotFoundError", "no value for "+key)}
	} else if err != nil {
		return &Reply{Type: protocol.UnexpectedErrorType, Data: map[string]string{"message": err.Error()}}
	}

	return &Reply{Data: map[string]interface{}{"key": key, "value": rawJSON(value)}}
}

// set expects `{"key": "<path>", "value": <any>}`. Every successful set is
// pushed to all clients as an update event.
func (s *Server) set(ctx context.Context, req *protocol.Message) *Reply {
	key := req.Get("key").String()
	value := req.Get("value")

	if key == "" || !value.Exists() {
		return &Reply{Error: errorPayload("InvalidRequestError", "key and value are required")}
	}

	if err := s.store.Set(ctx, key, rawJSON([]byte(value.Raw))); err != nil {
		return &Reply{Type: protocol.UnexpectedErrorType, Data: map[string]string{"message": err.Error()}}
	}

	return &Reply{}
}

func errorPayload(errType, message string) map[string]string {
	return map[string]string{"type": errType, "message": message}
}

func rawJSON(b []byte) json.RawMessage {
	return json.RawMessage(b)
}
