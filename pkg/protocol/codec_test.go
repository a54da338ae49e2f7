package protocol

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestDecodeSingleRequest(t *testing.T) {
	env, err := Decode([]byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if env.Batch {
		t.Error("Expected single message, got batch")
	}
	if len(env.Items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(env.Items))
	}
	req := env.Items[0].Request
	if req == nil {
		t.Fatal("Expected a request item")
	}
	if req.Method != "ping" {
		t.Errorf("Expected method ping, got %q", req.Method)
	}
	if id, ok := req.ID.(float64); !ok || id != 1 {
		t.Errorf("Expected numeric id 1, got %v", req.ID)
	}
}

func TestDecodeIDPresence(t *testing.T) {
	t.Run("AbsentIDIsNotification", func(t *testing.T) {
		env, err := Decode([]byte(`{"jsonrpc":"2.0","method":"initialized"}`))
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if env.Items[0].Notification == nil {
			t.Error("Expected a notification when id key is absent")
		}
	})

	t.Run("NullIDIsRequest", func(t *testing.T) {
		env, err := Decode([]byte(`{"jsonrpc":"2.0","id":null,"method":"ping"}`))
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		req := env.Items[0].Request
		if req == nil {
			t.Fatal("Expected a request when id is explicitly null")
		}
		if req.ID != nil {
			t.Errorf("Expected nil id, got %v", req.ID)
		}
	})

	t.Run("StringID", func(t *testing.T) {
		env, err := Decode([]byte(`{"jsonrpc":"2.0","id":"abc","method":"ping"}`))
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if id, ok := env.Items[0].Request.ID.(string); !ok || id != "abc" {
			t.Errorf("Expected string id abc, got %v", env.Items[0].Request.ID)
		}
	})
}

func TestDecodeFailures(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		code ErrorCode
	}{
		{"Garbage", `{not json`, ParseError},
		{"Empty", ``, ParseError},
		{"BareScalar", `42`, InvalidRequest},
		{"BareString", `"hello"`, InvalidRequest},
		{"EmptyBatch", `[]`, InvalidRequest},
		{"WrongVersion", `{"jsonrpc":"1.0","id":1,"method":"ping"}`, InvalidRequest},
		{"MissingVersion", `{"id":1,"method":"ping"}`, InvalidRequest},
		{"MissingMethod", `{"jsonrpc":"2.0","id":1}`, InvalidRequest},
		{"EmptyMethod", `{"jsonrpc":"2.0","id":1,"method":""}`, InvalidRequest},
		{"NonStringMethod", `{"jsonrpc":"2.0","id":1,"method":5}`, InvalidRequest},
		{"BooleanID", `{"jsonrpc":"2.0","id":true,"method":"ping"}`, InvalidRequest},
		{"ObjectID", `{"jsonrpc":"2.0","id":{},"method":"ping"}`, InvalidRequest},
		{"ScalarParams", `{"jsonrpc":"2.0","id":1,"method":"ping","params":5}`, InvalidRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.raw))
			if err == nil {
				t.Fatal("Expected decode error, got nil")
			}
			wireErr, ok := err.(*Error)
			if !ok {
				t.Fatalf("Expected *Error, got %T", err)
			}
			if wireErr.Code != tc.code {
				t.Errorf("Expected code %d, got %d", tc.code, wireErr.Code)
			}
		})
	}
}

func TestDecodeBatch(t *testing.T) {
	raw := `[
		{"jsonrpc":"2.0","id":1,"method":"ping"},
		{"jsonrpc":"2.0","method":"initialized"},
		{"jsonrpc":"1.0","id":2,"method":"ping"},
		"garbage"
	]`
	env, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("Expected no error for mixed batch, got %v", err)
	}
	if !env.Batch {
		t.Error("Expected batch envelope")
	}
	if len(env.Items) != 4 {
		t.Fatalf("Expected 4 items, got %d", len(env.Items))
	}
	if env.Items[0].Request == nil {
		t.Error("Expected item 0 to be a request")
	}
	if env.Items[1].Notification == nil {
		t.Error("Expected item 1 to be a notification")
	}
	// Malformed siblings carry their own error and never abort the rest.
	if env.Items[2].DecodeErr == nil || env.Items[2].DecodeErr.Code != InvalidRequest {
		t.Errorf("Expected item 2 to fail with InvalidRequest, got %+v", env.Items[2].DecodeErr)
	}
	if env.Items[3].DecodeErr == nil || env.Items[3].DecodeErr.Code != InvalidRequest {
		t.Errorf("Expected item 3 to fail with InvalidRequest, got %+v", env.Items[3].DecodeErr)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	req, err := NewRequest("req-7", "tools/call", map[string]interface{}{"name": "add"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	data, err := Encode(req)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	env, err := Decode(data)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	got := env.Items[0].Request
	if got == nil {
		t.Fatal("Expected a request")
	}
	if got.Method != req.Method {
		t.Errorf("Expected method %q, got %q", req.Method, got.Method)
	}
	if got.ID != "req-7" {
		t.Errorf("Expected id req-7, got %v", got.ID)
	}
	if !bytes.Equal(got.Params, req.Params) {
		t.Errorf("Expected params %s, got %s", req.Params, got.Params)
	}
}

func TestEncodeSingleLine(t *testing.T) {
	resp, err := NewResponse(1, map[string]string{"message": "line one\nline two"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	data, err := Encode(resp)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if bytes.ContainsRune(data, '\n') {
		t.Errorf("Expected single-line output, got %q", data)
	}
}

func TestErrorResponseShape(t *testing.T) {
	resp := NewErrorResponse(nil, MethodNotFound, "Method not found: bogus", nil)
	data, err := Encode(resp)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Expected valid JSON, got %v", err)
	}
	if _, ok := decoded["id"]; !ok {
		t.Error("Expected explicit id member on error response")
	}
	if decoded["id"] != nil {
		t.Errorf("Expected null id, got %v", decoded["id"])
	}
	if _, ok := decoded["result"]; ok {
		t.Error("Expected no result member on error response")
	}
}
