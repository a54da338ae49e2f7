// Package registry holds the server's capability registries: tools,
// resources and prompts. Registration happens before serving begins;
// after that the registries are read-mostly and safe for concurrent
// lookup from every transport.
package registry

import (
	"github.com/shredinjohn/micro-mcp/pkg/logging"
)

// ProgressFunc delivers a progress report for the request identified by
// requestID to the originating transport's side channel.
type ProgressFunc func(requestID interface{}, progress, total float64)

// Context is the per-invocation handle passed to capability handlers that
// ask for one. It is created fresh for each tools/call, carries the
// originating request's identity, and is destroyed when the invocation
// returns. It is never shared across requests.
type Context struct {
	RequestID  interface{}
	ServerName string

	logger   logging.Logger
	progress ProgressFunc
}

// NewContext builds an invocation context. A nil logger falls back to the
// default stderr logger so handler logging can never reach the protocol
// stream.
func NewContext(requestID interface{}, serverName string, logger logging.Logger, progress ProgressFunc) *Context {
	if logger == nil {
		logger = logging.Default()
	}
	return &Context{
		RequestID:  requestID,
		ServerName: serverName,
		logger:     logger.WithFields(logging.Any("request_id", requestID), logging.String("server", serverName)),
		progress:   progress,
	}
}

// Debug logs a debug message to the diagnostic side channel.
func (c *Context) Debug(msg string, fields ...logging.Field) { c.logger.Debug(msg, fields...) }

// Info logs an informational message to the diagnostic side channel.
func (c *Context) Info(msg string, fields ...logging.Field) { c.logger.Info(msg, fields...) }

// Warn logs a warning message to the diagnostic side channel.
func (c *Context) Warn(msg string, fields ...logging.Field) { c.logger.Warn(msg, fields...) }

// Error logs an error message to the diagnostic side channel.
func (c *Context) Error(msg string, fields ...logging.Field) { c.logger.Error(msg, fields...) }

// ReportProgress reports invocation progress to the client when the
// originating transport registered a progress sink; otherwise it is a
// no-op.
func (c *Context) ReportProgress(progress, total float64) {
	if c.progress != nil {
		c.progress(c.RequestID, progress, total)
	}
}
