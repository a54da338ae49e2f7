package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Item is one decoded element of an envelope. Exactly one of Request,
// Notification, or DecodeErr is set. A DecodeErr means the element was
// syntactically valid JSON but violated the JSON-RPC envelope shape; the
// element owes an id-null error response while its batch siblings proceed
// independently.
type Item struct {
	Request      *Request
	Notification *Notification
	DecodeErr    *Error
}

// Envelope is the result of decoding one raw payload: either a single
// message or a batch of them.
type Envelope struct {
	Batch bool
	Items []Item
}

// Decode parses a raw byte payload into an Envelope.
//
// Failure modes: raw that is not well-formed JSON yields a ParseError;
// a top-level value that is neither object nor array, or an empty batch
// array, yields an InvalidRequest. Per-element shape violations inside a
// batch are reported on the Item, not as a Decode failure.
func Decode(raw []byte) (*Envelope, error) {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, &Error{Code: ParseError, Message: "Parse error", Data: "empty payload"}
	}

	if trimmed[0] == '[' {
		var elements []json.RawMessage
		if err := json.Unmarshal(raw, &elements); err != nil {
			return nil, &Error{Code: ParseError, Message: "Parse error", Data: err.Error()}
		}
		if len(elements) == 0 {
			return nil, &Error{Code: InvalidRequest, Message: "Invalid Request", Data: "empty batch array"}
		}
		env := &Envelope{Batch: true, Items: make([]Item, 0, len(elements))}
		for _, el := range elements {
			env.Items = append(env.Items, decodeItem(el))
		}
		return env, nil
	}

	if trimmed[0] != '{' {
		// Validate JSON first so garbage is a parse error, not a shape error.
		var v interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, &Error{Code: ParseError, Message: "Parse error", Data: err.Error()}
		}
		return nil, &Error{Code: InvalidRequest, Message: "Invalid Request", Data: "message must be a JSON object"}
	}

	item := decodeItem(raw)
	if item.DecodeErr != nil {
		return nil, item.DecodeErr
	}
	return &Envelope{Items: []Item{item}}, nil
}

// wireMessage mirrors the envelope keys so presence of "id" can be
// distinguished from "id":null.
type wireMessage struct {
	JSONRPC *string          `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id"`
	Method  *json.RawMessage `json:"method"`
	Params  *json.RawMessage `json:"params"`
}

func decodeItem(raw json.RawMessage) Item {
	var wire wireMessage
	if err := json.Unmarshal(raw, &wire); err != nil {
		// Element is not an object (or not JSON at all inside a batch).
		return Item{DecodeErr: &Error{Code: InvalidRequest, Message: "Invalid Request", Data: "message must be a JSON object"}}
	}

	if wire.JSONRPC == nil || *wire.JSONRPC != JSONRPCVersion {
		return Item{DecodeErr: &Error{
			Code:    InvalidRequest,
			Message: "Invalid Request",
			Data:    fmt.Sprintf("unsupported jsonrpc version: %s", versionTag(wire.JSONRPC)),
		}}
	}

	method, err := decodeMethod(wire.Method)
	if err != nil {
		return Item{DecodeErr: err}
	}

	var params json.RawMessage
	if wire.Params != nil {
		p := bytes.TrimLeft(*wire.Params, " \t\r\n")
		if len(p) == 0 || (p[0] != '{' && p[0] != '[' && !bytes.Equal(p, []byte("null"))) {
			return Item{DecodeErr: &Error{Code: InvalidRequest, Message: "Invalid Request", Data: "'params' must be an object or array"}}
		}
		if !bytes.Equal(p, []byte("null")) {
			params = *wire.Params
		}
	}

	if wire.ID == nil {
		return Item{Notification: &Notification{
			JSONRPCMessage: JSONRPCMessage{JSONRPC: JSONRPCVersion},
			Method:         method,
			Params:         params,
		}}
	}

	var id interface{}
	if err := json.Unmarshal(*wire.ID, &id); err != nil {
		return Item{DecodeErr: &Error{Code: InvalidRequest, Message: "Invalid Request", Data: "malformed 'id'"}}
	}
	switch id.(type) {
	case nil, string, float64:
	default:
		return Item{DecodeErr: &Error{Code: InvalidRequest, Message: "Invalid Request", Data: "'id' must be a string, a number, or null"}}
	}

	return Item{Request: &Request{
		JSONRPCMessage: JSONRPCMessage{JSONRPC: JSONRPCVersion},
		ID:             id,
		Method:         method,
		Params:         params,
	}}
}

func decodeMethod(raw *json.RawMessage) (string, *Error) {
	if raw == nil {
		return "", &Error{Code: InvalidRequest, Message: "Invalid Request", Data: "'method' is required"}
	}
	var method string
	if err := json.Unmarshal(*raw, &method); err != nil {
		return "", &Error{Code: InvalidRequest, Message: "Invalid Request", Data: "'method' must be a string"}
	}
	if method == "" {
		return "", &Error{Code: InvalidRequest, Message: "Invalid Request", Data: "'method' must be non-empty"}
	}
	return method, nil
}

func versionTag(v *string) string {
	if v == nil {
		return "<absent>"
	}
	return *v
}

// Encode serializes a Response, a []*Response batch, or any other envelope
// value to compact single-line JSON, safe for line-delimited transports.
// json.Marshal never emits raw newlines, so the single-line property holds
// for any input.
func Encode(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return data, nil
}
