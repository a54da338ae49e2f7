package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shredinjohn/micro-mcp/pkg/protocol"
)

func TestErrorCodes(t *testing.T) {
	cases := []struct {
		name string
		err  MCPError
		code protocol.ErrorCode
	}{
		{"Parse", NewParseError("bad json"), protocol.ParseError},
		{"InvalidRequest", NewInvalidRequest("no method"), protocol.InvalidRequest},
		{"MethodNotFound", NewMethodNotFound("x/y"), protocol.MethodNotFound},
		{"ToolNotFound", NewToolNotFound("hammer"), protocol.MethodNotFound},
		{"ResourceNotFound", NewResourceNotFound("x://y"), protocol.MethodNotFound},
		{"PromptNotFound", NewPromptNotFound("greet"), protocol.MethodNotFound},
		{"InvalidParams", NewInvalidParams("missing a"), protocol.InvalidParams},
		{"Internal", NewInternal(errors.New("disk on fire")), protocol.InternalError},
		{"NotInitialized", NewServerNotInitialized("ping"), protocol.ServerNotInitialized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err.Code() != tc.code {
				t.Errorf("Expected code %d, got %d", tc.code, tc.err.Code())
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	if got := NewMethodNotFound("tools/exec").Message(); got != "Method not found: tools/exec" {
		t.Errorf("Unexpected message %q", got)
	}
	if got := NewInvalidParams("missing 'a'").Message(); got != "Invalid params: missing 'a'" {
		t.Errorf("Unexpected message %q", got)
	}
	if got := NewInvalidParams("").Message(); got != "Invalid params" {
		t.Errorf("Unexpected message %q", got)
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewInternal(cause)
	if !errors.Is(err, cause) {
		t.Error("Expected errors.Is to find the cause")
	}
	wrapped := fmt.Errorf("outer: %w", err)
	var mcpErr MCPError
	if !errors.As(wrapped, &mcpErr) {
		t.Error("Expected errors.As to find the MCPError")
	}
}

func TestToProtocolError(t *testing.T) {
	t.Run("Nil", func(t *testing.T) {
		if ToProtocolError(nil) != nil {
			t.Error("Expected nil for nil error")
		}
	})

	t.Run("WireErrorPassesThrough", func(t *testing.T) {
		wire := &protocol.Error{Code: protocol.ParseError, Message: "Parse error"}
		if got := ToProtocolError(wire); got != wire {
			t.Error("Expected wire error to pass through unchanged")
		}
	})

	t.Run("MCPErrorKeepsCodeAndData", func(t *testing.T) {
		got := ToProtocolError(NewInvalidParams("bad shape"))
		if got.Code != protocol.InvalidParams {
			t.Errorf("Expected InvalidParams, got %d", got.Code)
		}
		if got.Message != "Invalid params: bad shape" {
			t.Errorf("Unexpected message %q", got.Message)
		}
	})

	t.Run("PlainErrorBecomesInternal", func(t *testing.T) {
		got := ToProtocolError(errors.New("surprise"))
		if got.Code != protocol.InternalError {
			t.Errorf("Expected InternalError, got %d", got.Code)
		}
	})
}
