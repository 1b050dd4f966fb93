package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/luma/sockrpc/protocol"
	"github.com/luma/sockrpc/transport"
)

// Request sends command with payload and waits for the daemon's response,
// returning the response type and data.
//
// payload is flattened into the request frame, see protocol.EncodeRequest.
//
// If ctx ends first Request returns ctx.Err(), but the request is not
// retracted: the daemon may still act on it and its response is discarded.
func (c *Client) Request(ctx context.Context, command string, payload interface{}) (string, json.RawMessage, error) {
	return c.request(ctx, command, "", payload)
}

// Call sends command and returns the response data. When expected is not
// empty a response of any other type fails with an UnexpectedResponseError.
func (c *Client) Call(ctx context.Context, command, expected string, payload interface{}) (json.RawMessage, error) {
	return c.call(ctx, command, expected, "", payload)
}

// CallV1 sends a version 1 request, which the daemon answers with a response
// of the same type.
func (c *Client) CallV1(ctx context.Context, command string, payload interface{}) (json.RawMessage, error) {
	return c.call(ctx, command, command, protocol.V1, payload)
}

// CallInto is Call that decodes the response data into out.
func (c *Client) CallInto(ctx context.Context, command, expected string, payload, out interface{}) error {
	data, err := c.Call(ctx, command, expected, payload)
	if err != nil {
		return err
	}

	if len(data) == 0 || out == nil {
		return nil
	}

	return json.Unmarshal(data, out)
}

func (c *Client) call(ctx context.Context, command, expected, version string, payload interface{}) (json.RawMessage, error) {
	respType, data, err := c.request(ctx, command, version, payload)
	if err != nil {
		return nil, err
	}

	if expected != "" && respType != expected {
		return nil, &UnexpectedResponseError{Type: respType, Data: data}
	}

	return data, nil
}

func (c *Client) request(ctx context.Context, command, version string, payload interface{}) (string, json.RawMessage, error) {
	conn, generation := c.currentConn()
	if conn == nil {
		return "", nil, &NotConnectedError{Reason: "Not connected to daemon"}
	}

	id := uuid.New()

	frame, err := protocol.EncodeRequest(id.String(), command, version, payload)
	if err != nil {
		return "", nil, err
	}

	if len(frame) > transport.MaxFrameSize {
		return "", nil, fmt.Errorf("Failed to send %s request of %d bytes: %w", command, len(frame), transport.ErrFrameTooLarge)
	}

	waiter := c.registry.Register(id, generation)

	// The connection may have dropped, and its pending requests abandoned,
	// between taking the snapshot and registering
	if current, _ := c.currentConn(); current != conn {
		c.registry.Drop(id)
		return "", nil, &NotConnectedError{Reason: "Not connected to daemon"}
	}

	c.log.Debug("Sending request",
		zap.Stringer("requestID", id),
		zap.String("command", command))

	if err := conn.WriteFrame(frame); err != nil {
		c.registry.Drop(id)
		return "", nil, &NotConnectedError{Reason: "Failed to send request to daemon", Err: err}
	}

	select {
	case result := <-waiter.Done():
		return result.Type, result.Data, result.Err

	case <-ctx.Done():
		return "", nil, ctx.Err()
	}
}
