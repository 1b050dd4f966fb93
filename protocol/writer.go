package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var (
	ErrPayloadNotObject = errors.New("Payload must encode to a JSON object")
	ErrMissingCommand   = errors.New("Request is missing a command")
)

// EncodeRequest builds a request frame, without its delimiter.
//
// payload may be nil, a json.RawMessage or []byte holding a JSON object, or
// any value encoding/json marshals to an object. Its fields end up at the top
// level of the frame. id, type and version, when set, always win over
// payload fields of the same name.
func EncodeRequest(id, command, version string, payload interface{}) ([]byte, error) {
	if command == "" {
		return nil, ErrMissingCommand
	}

	body, err := marshalObject(payload)
	if err != nil {
		return nil, err
	}

	if body, err = sjson.SetBytes(body, "id", id); err != nil {
		return nil, err
	}

	if body, err = sjson.SetBytes(body, "type", command); err != nil {
		return nil, err
	}

	if version != "" {
		if body, err = sjson.SetBytes(body, "version", version); err != nil {
			return nil, err
		}
	}

	return body, nil
}

// EncodeReply builds a response frame, or an event frame when id is empty.
// data and errPayload are omitted when nil.
func EncodeReply(id, msgType string, data, errPayload interface{}) ([]byte, error) {
	body := []byte(`{}`)

	var err error
	if body, err = sjson.SetBytes(body, "type", msgType); err != nil {
		return nil, err
	}

	if id != "" {
		if body, err = sjson.SetBytes(body, "id", id); err != nil {
			return nil, err
		}
	}

	if body, err = setValue(body, "data", data); err != nil {
		return nil, err
	}

	if body, err = setValue(body, "error", errPayload); err != nil {
		return nil, err
	}

	return body, nil
}

func setValue(body []byte, path string, value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return body, nil

	case json.RawMessage:
		if len(v) == 0 {
			return body, nil
		}
		return sjson.SetRawBytes(body, path, v)

	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("Failed to encode %s: %w", path, err)
		}
		return sjson.SetRawBytes(body, path, raw)
	}
}

func marshalObject(payload interface{}) ([]byte, error) {
	var (
		raw []byte
		err error
	)

	switch p := payload.(type) {
	case nil:
		return []byte(`{}`), nil

	case json.RawMessage:
		raw = p

	case []byte:
		raw = p

	default:
		if raw, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("Failed to encode payload: %w", err)
		}
	}

	if len(raw) == 0 || string(raw) == "null" {
		return []byte(`{}`), nil
	}

	if !gjson.ValidBytes(raw) || !gjson.ParseBytes(raw).IsObject() {
		return nil, ErrPayloadNotObject
	}

	// sjson may write into the slice it is given, and raw can belong to the caller
	return append([]byte(nil), raw...), nil
}
