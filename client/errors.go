package client

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// Kind classifies the errors a request can fail with.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotConnected
	KindUnexpectedResponse
	KindUnexpectedError
	KindResponseError
)

func (k Kind) String() string {
	switch k {
	case KindNotConnected:
		return "not_connected"
	case KindUnexpectedResponse:
		return "unexpected_response"
	case KindUnexpectedError:
		return "unexpected_error"
	case KindResponseError:
		return "response_error"
	default:
		return "unknown"
	}
}

// KindOf returns the Kind of err, or KindUnknown for errors that did not come
// from the daemon or the connection, such as context cancellation.
func KindOf(err error) Kind {
	var (
		notConnected *NotConnectedError
		unexpResp    *UnexpectedResponseError
		unexpErr     *UnexpectedError
		respErr      *ResponseError
	)

	switch {
	case err == nil:
		return KindUnknown
	case errors.As(err, &notConnected):
		return KindNotConnected
	case errors.As(err, &unexpResp):
		return KindUnexpectedResponse
	case errors.As(err, &unexpErr):
		return KindUnexpectedError
	case errors.As(err, &respErr):
		return KindResponseError
	default:
		return KindUnknown
	}
}

// ErrNotConnected matches every NotConnectedError with errors.Is.
var ErrNotConnected = errors.New("not connected to daemon")

// NotConnectedError is returned for requests issued while disconnected and
// for requests abandoned because the connection dropped.
type NotConnectedError struct {
	Reason string
	Err    error
}

func (e *NotConnectedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}

	return e.Reason
}

func (e *NotConnectedError) Unwrap() error {
	return e.Err
}

func (e *NotConnectedError) Is(target error) bool {
	return target == ErrNotConnected
}

// UnexpectedResponseError is returned when the daemon answers with a
// different message type than the caller expected.
type UnexpectedResponseError struct {
	Type string
	Data json.RawMessage
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("got unexpected response type %s", e.Type)
}

const defaultUnexpectedMessage = "Unexpected error with no message"

// UnexpectedError is returned when the daemon reports a generic internal
// failure for a request.
type UnexpectedError struct {
	Message string
}

func (e *UnexpectedError) Error() string {
	return "unexpected error in daemon: " + e.Message
}

// ResponseError carries an error payload the daemon attached to a response.
type ResponseError struct {
	// Response is the message type of the response that carried the error
	Response string

	// Type is the daemon's error type, when it provided one
	Type string

	Message string

	// Raw is the error payload as sent
	Raw json.RawMessage
}

func (e *ResponseError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s error in %s response: %s", e.Type, e.Response, e.Message)
	}

	return fmt.Sprintf("error in %s response: %s", e.Response, e.Message)
}

// newResponseError builds a ResponseError from a string or object error
// payload. Objects contribute their `message` and `type` fields; a top-level
// `error_type` next to the error takes precedence over the latter.
func newResponseError(msgType string, frame []byte, raw json.RawMessage) *ResponseError {
	respErr := &ResponseError{
		Response: msgType,
		Raw:      raw,
	}

	payload := gjson.ParseBytes(raw)
	if payload.Type == gjson.String {
		respErr.Message = payload.String()
	} else {
		respErr.Message = payload.Get("message").String()
		respErr.Type = payload.Get("type").String()

		if respErr.Message == "" {
			respErr.Message = payload.Raw
		}
	}

	if errType := gjson.GetBytes(frame, "error_type"); errType.Type == gjson.String {
		respErr.Type = errType.String()
	}

	return respErr
}
