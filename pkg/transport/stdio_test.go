package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shredinjohn/micro-mcp/pkg/logging"
	"github.com/shredinjohn/micro-mcp/pkg/schema"
	"github.com/shredinjohn/micro-mcp/pkg/server"
)

func newEchoServer(t *testing.T) *server.Server {
	t.Helper()
	s := server.New("stdio-test", server.WithLogger(logging.Nop()))
	err := s.Tool("echo", "",
		[]schema.Param{{Name: "text", Type: schema.TypeOf("")}},
		func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			text, _ := args["text"].(string)
			return text, nil
		})
	require.NoError(t, err)
	return s
}

func TestStdioServe(t *testing.T) {
	s := newEchoServer(t)

	// Blank lines are skipped; the notification owes no output line.
	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":0,"method":"initialize","params":{"protocolVersion":"2024-11-05"}}`,
		``,
		`{"jsonrpc":"2.0","method":"initialized"}`,
		`   `,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo","arguments":{"text":"hi"}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"ping"}`,
	}, "\n") + "\n"

	var out bytes.Buffer
	tr := NewStdioTransport(s, StdioConfig{
		Reader: strings.NewReader(input),
		Writer: &out,
		Logger: logging.Nop(),
	})

	// EOF on the reader is a clean exit.
	require.NoError(t, tr.Serve(context.Background()))
	assert.Equal(t, server.StateStopped, s.State(), "shutdown hooks run when serving ends")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3, "one response line per request, none for notifications")

	var ids []float64
	for _, line := range lines {
		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &resp), "every output line is standalone JSON")
		require.Nil(t, resp["error"])
		ids = append(ids, resp["id"].(float64))
	}
	// Responses come back in request order.
	assert.Equal(t, []float64{0, 1, 2}, ids)

	var toolResp map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &toolResp))
	result := toolResp["result"].(map[string]interface{})
	content := result["content"].([]interface{})
	assert.Equal(t, "hi", content[0].(map[string]interface{})["text"])
}

func TestStdioMalformedLine(t *testing.T) {
	s := newEchoServer(t)
	input := "{oops\n"

	var out bytes.Buffer
	tr := NewStdioTransport(s, StdioConfig{
		Reader: strings.NewReader(input),
		Writer: &out,
		Logger: logging.Nop(),
	})
	require.NoError(t, tr.Serve(context.Background()))

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp))
	errObj := resp["error"].(map[string]interface{})
	assert.Equal(t, float64(-32700), errObj["code"])
	assert.Nil(t, resp["id"])
}

func TestStdioStartupFailure(t *testing.T) {
	s := server.New("doomed", server.WithLogger(logging.Nop()))
	s.OnStartup(func(ctx context.Context) error {
		return context.DeadlineExceeded
	})

	var out bytes.Buffer
	tr := NewStdioTransport(s, StdioConfig{
		Reader: strings.NewReader(""),
		Writer: &out,
		Logger: logging.Nop(),
	})
	err := tr.Serve(context.Background())
	require.Error(t, err)
	assert.Zero(t, out.Len(), "no protocol bytes before a successful startup")
}
