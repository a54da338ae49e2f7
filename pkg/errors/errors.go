// Package errors provides structured error handling for the MCP engine.
// It defines typed errors that map to JSON-RPC error codes and carry
// category and severity for classification.
package errors

import (
	"fmt"

	"github.com/shredinjohn/micro-mcp/pkg/protocol"
)

// Category classifies an error for handling and reporting.
type Category string

const (
	CategoryProtocol   Category = "protocol"
	CategoryValidation Category = "validation"
	CategoryNotFound   Category = "not_found"
	CategoryTransport  Category = "transport"
	CategoryInternal   Category = "internal"
)

// Severity indicates how critical an error is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// MCPError is the interface implemented by all engine errors that surface
// as JSON-RPC error objects.
type MCPError interface {
	error

	// Code returns the JSON-RPC error code.
	Code() protocol.ErrorCode

	// Message returns the human-readable error message.
	Message() string

	// Data returns structured error data, or nil.
	Data() interface{}

	// Category returns the error category.
	Category() Category

	// Severity returns the error severity.
	Severity() Severity

	// Unwrap returns the underlying cause for error chain traversal.
	Unwrap() error
}

type baseError struct {
	code     protocol.ErrorCode
	message  string
	data     interface{}
	category Category
	severity Severity
	cause    error
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *baseError) Code() protocol.ErrorCode { return e.code }
func (e *baseError) Message() string          { return e.message }
func (e *baseError) Data() interface{}        { return e.data }
func (e *baseError) Category() Category       { return e.category }
func (e *baseError) Severity() Severity       { return e.severity }
func (e *baseError) Unwrap() error            { return e.cause }

// NewParseError reports a payload that is not well-formed JSON.
func NewParseError(detail string) MCPError {
	return &baseError{
		code:     protocol.ParseError,
		message:  "Parse error",
		data:     detail,
		category: CategoryProtocol,
		severity: SeverityError,
	}
}

// NewInvalidRequest reports a well-formed payload that violates the
// JSON-RPC envelope shape.
func NewInvalidRequest(detail string) MCPError {
	return &baseError{
		code:     protocol.InvalidRequest,
		message:  "Invalid Request",
		data:     detail,
		category: CategoryProtocol,
		severity: SeverityError,
	}
}

// NewMethodNotFound reports an unknown protocol method or unregistered
// capability name/URI.
func NewMethodNotFound(name string) MCPError {
	msg := "Method not found"
	if name != "" {
		msg = fmt.Sprintf("Method not found: %s", name)
	}
	return &baseError{
		code:     protocol.MethodNotFound,
		message:  msg,
		category: CategoryNotFound,
		severity: SeverityError,
	}
}

// NewToolNotFound reports an unregistered tool name.
func NewToolNotFound(name string) MCPError {
	return &baseError{
		code:     protocol.MethodNotFound,
		message:  fmt.Sprintf("Tool not found: %q", name),
		category: CategoryNotFound,
		severity: SeverityError,
	}
}

// NewResourceNotFound reports a URI that matches no registered resource.
func NewResourceNotFound(uri string) MCPError {
	return &baseError{
		code:     protocol.MethodNotFound,
		message:  fmt.Sprintf("Resource not found: %q", uri),
		category: CategoryNotFound,
		severity: SeverityError,
	}
}

// NewPromptNotFound reports an unregistered prompt name.
func NewPromptNotFound(name string) MCPError {
	return &baseError{
		code:     protocol.MethodNotFound,
		message:  fmt.Sprintf("Prompt not found: %q", name),
		category: CategoryNotFound,
		severity: SeverityError,
	}
}

// NewInvalidParams reports a schema or argument validation failure.
func NewInvalidParams(detail string) MCPError {
	msg := "Invalid params"
	if detail != "" {
		msg = fmt.Sprintf("Invalid params: %s", detail)
	}
	return &baseError{
		code:     protocol.InvalidParams,
		message:  msg,
		category: CategoryValidation,
		severity: SeverityError,
	}
}

// NewInternal wraps an unhandled fault during dispatch.
func NewInternal(cause error) MCPError {
	return &baseError{
		code:     protocol.InternalError,
		message:  "Internal error",
		category: CategoryInternal,
		severity: SeverityCritical,
		cause:    cause,
	}
}

// NewInternalf creates an internal error with a formatted message.
func NewInternalf(format string, args ...interface{}) MCPError {
	return &baseError{
		code:     protocol.InternalError,
		message:  fmt.Sprintf("Internal error: %s", fmt.Sprintf(format, args...)),
		category: CategoryInternal,
		severity: SeverityCritical,
	}
}

// NewServerNotInitialized reports dispatch of a non-initialize method
// before the handshake completed.
func NewServerNotInitialized(method string) MCPError {
	return &baseError{
		code:     protocol.ServerNotInitialized,
		message:  fmt.Sprintf("Server not initialized: %s rejected before initialize", method),
		category: CategoryProtocol,
		severity: SeverityError,
	}
}

// AsMCPError extracts an MCPError from err without wrapping.
func AsMCPError(err error) (MCPError, bool) {
	if err == nil {
		return nil, false
	}
	mcpErr, ok := err.(MCPError)
	return mcpErr, ok
}

// ToProtocolError converts any error into a wire error object. A
// *protocol.Error passes through, an MCPError keeps its code and data, and
// anything else becomes an InternalError.
func ToProtocolError(err error) *protocol.Error {
	if err == nil {
		return nil
	}
	if wireErr, ok := err.(*protocol.Error); ok {
		return wireErr
	}
	if mcpErr, ok := AsMCPError(err); ok {
		return &protocol.Error{
			Code:    mcpErr.Code(),
			Message: mcpErr.Message(),
			Data:    mcpErr.Data(),
		}
	}
	return &protocol.Error{
		Code:    protocol.InternalError,
		Message: fmt.Sprintf("Internal error: %v", err),
	}
}
