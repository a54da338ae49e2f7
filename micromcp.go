// Package micromcp is a server-side implementation of the Model Context
// Protocol (2024-11-05): a JSON-RPC 2.0 engine with tool, resource and
// prompt registries, served over stdio or Server-Sent Events.
package micromcp

import (
	"github.com/shredinjohn/micro-mcp/pkg/server"
	"github.com/shredinjohn/micro-mcp/pkg/transport"
)

// Version is the current version of the engine.
const Version = "0.1.0"

// These exports provide direct access to the core components.
var (
	// NewServer creates a new MCP server.
	NewServer = server.New

	// NewStdioTransport serves a server over newline-delimited stdio.
	NewStdioTransport = transport.NewStdioTransport

	// NewSSETransport serves a server over HTTP Server-Sent Events.
	NewSSETransport = transport.NewSSETransport
)
