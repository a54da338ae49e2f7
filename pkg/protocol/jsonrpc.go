// Package protocol defines the JSON-RPC 2.0 envelopes and MCP wire types
// spoken by the server, together with the codec that parses and serializes
// them. It is independent of dispatch and of any particular transport.
package protocol

import (
	"encoding/json"
	"fmt"
)

const (
	// JSONRPCVersion is the supported JSON-RPC version tag.
	JSONRPCVersion = "2.0"
)

// ErrorCode represents a JSON-RPC 2.0 error code.
type ErrorCode int

// Standard error codes as per the JSON-RPC 2.0 specification.
const (
	ParseError     ErrorCode = -32700
	InvalidRequest ErrorCode = -32600
	MethodNotFound ErrorCode = -32601
	InvalidParams  ErrorCode = -32602
	InternalError  ErrorCode = -32603
)

// MCP-specific error codes.
const (
	// ServerNotInitialized indicates a request arrived before the
	// initialize handshake completed.
	ServerNotInitialized ErrorCode = -32002
)

// JSONRPCMessage carries the protocol version tag shared by every envelope.
type JSONRPCMessage struct {
	JSONRPC string `json:"jsonrpc"`
}

// Request represents a JSON-RPC 2.0 request. A response is owed to the
// sender, correlated by ID. ID may be a string, a number, or nil when the
// client explicitly sent "id":null.
type Request struct {
	JSONRPCMessage
	ID     interface{}     `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// NewRequest creates a new JSON-RPC 2.0 request.
func NewRequest(id interface{}, method string, params interface{}) (*Request, error) {
	paramsJSON, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Request{
		JSONRPCMessage: JSONRPCMessage{JSONRPC: JSONRPCVersion},
		ID:             id,
		Method:         method,
		Params:         paramsJSON,
	}, nil
}

// Notification represents a JSON-RPC 2.0 notification: fire-and-forget,
// no ID, no response expected.
type Notification struct {
	JSONRPCMessage
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// NewNotification creates a new JSON-RPC 2.0 notification.
func NewNotification(method string, params interface{}) (*Notification, error) {
	paramsJSON, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Notification{
		JSONRPCMessage: JSONRPCMessage{JSONRPC: JSONRPCVersion},
		Method:         method,
		Params:         paramsJSON,
	}, nil
}

// Response represents a JSON-RPC 2.0 response. Exactly one of Result or
// Error is set; ID echoes the originating request's ID.
type Response struct {
	JSONRPCMessage
	ID     interface{}     `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// NewResponse creates a success response carrying the marshaled result.
func NewResponse(id interface{}, result interface{}) (*Response, error) {
	var resultJSON json.RawMessage
	if result != nil {
		var err error
		resultJSON, err = json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}
	}
	return &Response{
		JSONRPCMessage: JSONRPCMessage{JSONRPC: JSONRPCVersion},
		ID:             id,
		Result:         resultJSON,
	}, nil
}

// NewErrorResponse creates an error response for the given request ID.
func NewErrorResponse(id interface{}, code ErrorCode, message string, data interface{}) *Response {
	return &Response{
		JSONRPCMessage: JSONRPCMessage{JSONRPC: JSONRPCVersion},
		ID:             id,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// Error represents a JSON-RPC 2.0 error object.
type Error struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface so a wire error can travel through
// Go error returns.
func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

func marshalParams(params interface{}) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}
	return data, nil
}
