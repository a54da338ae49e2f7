// Package server implements the MCP dispatch core: the lifecycle state
// machine, the fixed method table, and the raw-bytes-in, raw-bytes-out
// entry point shared by every transport.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	mcperrors "github.com/shredinjohn/micro-mcp/pkg/errors"
	"github.com/shredinjohn/micro-mcp/pkg/logging"
	"github.com/shredinjohn/micro-mcp/pkg/observability"
	"github.com/shredinjohn/micro-mcp/pkg/protocol"
	"github.com/shredinjohn/micro-mcp/pkg/registry"
	"github.com/shredinjohn/micro-mcp/pkg/schema"
)

// State is a lifecycle phase of the server.
type State int32

const (
	StateCreated State = iota
	StateInitializing
	StateReady
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Hook runs application code at a lifecycle edge. Startup hooks run in
// registration order before any transport accepts traffic; a failure
// aborts startup. Shutdown hooks run in registration order exactly once.
type Hook func(ctx context.Context) error

// Sink delivers a server-initiated notification (currently progress) back
// through the originating transport's write path. May be nil when the
// transport has no side channel for the request. It is an alias so any
// func(data []byte) satisfies it without conversion.
type Sink = func(data []byte)

// methodFunc handles one protocol method. For notifications req.ID is nil.
type methodFunc func(ctx context.Context, req *protocol.Request, sink Sink) (interface{}, error)

// Server is the transport-agnostic MCP engine. Construct it with New,
// register capabilities and hooks, then hand it to one or more transports.
type Server struct {
	name    string
	version string

	logger  logging.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer

	tools     *registry.ToolRegistry
	resources *registry.ResourceRegistry
	prompts   *registry.PromptRegistry

	startupHooks  []Hook
	shutdownHooks []Hook
	shutdownOnce  sync.Once
	shutdownErr   error

	state   atomic.Int32
	methods map[string]methodFunc
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithVersion sets the version reported in serverInfo.
func WithVersion(version string) Option {
	return func(s *Server) { s.version = version }
}

// WithLogger sets the diagnostic logger. It must never write to stdout
// when the stdio transport is in use.
func WithLogger(logger logging.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics attaches dispatch metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithTracerProvider attaches a tracer provider; a span is opened per
// dispatched request.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) { s.tracer = observability.NewTracer(tp) }
}

// New creates a Server with empty registries in the Created state.
func New(name string, opts ...Option) *Server {
	s := &Server{
		name:      name,
		version:   "0.1.0",
		logger:    logging.Default(),
		tools:     registry.NewToolRegistry(),
		resources: registry.NewResourceRegistry(),
		prompts:   registry.NewPromptRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithFields(logging.String("server", name))

	// The method table is fixed for the lifetime of the server; dispatch
	// never consults the registries to discover methods.
	s.methods = map[string]methodFunc{
		protocol.MethodInitialize:            s.handleInitialize,
		protocol.MethodInitialized:           s.handleInitialized,
		protocol.MethodPing:                  s.handlePing,
		protocol.MethodListTools:             s.handleListTools,
		protocol.MethodCallTool:              s.handleCallTool,
		protocol.MethodListResources:         s.handleListResources,
		protocol.MethodReadResource:          s.handleReadResource,
		protocol.MethodListResourceTemplates: s.handleListResourceTemplates,
		protocol.MethodListPrompts:           s.handleListPrompts,
		protocol.MethodGetPrompt:             s.handleGetPrompt,
	}
	return s
}

// Name returns the server name reported in serverInfo.
func (s *Server) Name() string { return s.name }

// State returns the current lifecycle state.
func (s *Server) State() State { return State(s.state.Load()) }

// Tool registers a tool. Registration must happen before Startup.
func (s *Server) Tool(name, description string, params []schema.Param, handler interface{}) error {
	if err := s.checkRegistration("tool", name); err != nil {
		return err
	}
	_, err := s.tools.Register(name, description, params, handler)
	return err
}

// Resource registers a resource or resource template by URI pattern.
func (s *Server) Resource(pattern, name, description, mimeType string, handler registry.ResourceHandler) error {
	if err := s.checkRegistration("resource", pattern); err != nil {
		return err
	}
	_, err := s.resources.Register(pattern, name, description, mimeType, handler)
	return err
}

// Prompt registers a prompt template.
func (s *Server) Prompt(name, description string, args []protocol.PromptArgument, handler registry.PromptHandler) error {
	if err := s.checkRegistration("prompt", name); err != nil {
		return err
	}
	_, err := s.prompts.Register(name, description, args, handler)
	return err
}

// OnStartup appends a startup hook.
func (s *Server) OnStartup(h Hook) { s.startupHooks = append(s.startupHooks, h) }

// OnShutdown appends a shutdown hook.
func (s *Server) OnShutdown(h Hook) { s.shutdownHooks = append(s.shutdownHooks, h) }

func (s *Server) checkRegistration(kind, name string) error {
	if s.State() != StateCreated {
		return fmt.Errorf("cannot register %s %q: server already started", kind, name)
	}
	return nil
}

// Startup runs the startup hooks and moves the server to Initializing.
// A hook failure is fatal: the server lands in Stopped and the error is
// returned for the process to act on.
func (s *Server) Startup(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateCreated), int32(StateInitializing)) {
		return fmt.Errorf("startup from state %s", s.State())
	}
	for i, hook := range s.startupHooks {
		if err := hook(ctx); err != nil {
			s.state.Store(int32(StateStopped))
			return fmt.Errorf("startup hook %d: %w", i, err)
		}
	}
	s.logger.Info("server started",
		logging.String("version", s.version),
		logging.Int("tools", s.tools.Len()),
		logging.Int("resources", s.resources.Len()),
		logging.Int("prompts", s.prompts.Len()))
	return nil
}

// Shutdown runs the shutdown hooks exactly once and moves the server to
// Stopped. Subsequent calls return the first call's result.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.state.Store(int32(StateShuttingDown))
		for i, hook := range s.shutdownHooks {
			if err := hook(ctx); err != nil {
				s.logger.Error("shutdown hook failed",
					logging.Int("hook", i), logging.ErrorField(err))
				if s.shutdownErr == nil {
					s.shutdownErr = fmt.Errorf("shutdown hook %d: %w", i, err)
				}
			}
		}
		s.state.Store(int32(StateStopped))
		s.logger.Info("server stopped")
	})
	return s.shutdownErr
}

// HandleMessage is the single dispatch entry point: one raw payload in,
// one raw payload out. A nil return means nothing is owed to the client
// (a lone notification, or a batch of them). sink, when non-nil, receives
// server-initiated notifications raised while handling the payload.
func (s *Server) HandleMessage(ctx context.Context, raw []byte, sink Sink) []byte {
	env, err := protocol.Decode(raw)
	if err != nil {
		wireErr := mcperrors.ToProtocolError(err)
		return s.encode(protocol.NewErrorResponse(nil, wireErr.Code, wireErr.Message, wireErr.Data))
	}

	if !env.Batch {
		resp := s.dispatchItem(ctx, env.Items[0], sink)
		if resp == nil {
			return nil
		}
		return s.encode(resp)
	}

	responses := make([]*protocol.Response, 0, len(env.Items))
	for _, item := range env.Items {
		if resp := s.dispatchItem(ctx, item, sink); resp != nil {
			responses = append(responses, resp)
		}
	}
	if len(responses) == 0 {
		return nil
	}
	return s.encode(responses)
}

func (s *Server) encode(v interface{}) []byte {
	data, err := protocol.Encode(v)
	if err != nil {
		// Response types marshal from plain data; reaching this means a
		// handler produced an unmarshalable result value.
		s.logger.Error("failed to encode response", logging.ErrorField(err))
		data, _ = protocol.Encode(protocol.NewErrorResponse(nil, protocol.InternalError, "Internal error", nil))
	}
	return data
}

// dispatchItem routes one decoded envelope element. Requests always yield
// a response; notifications never do, whatever happens while handling them.
func (s *Server) dispatchItem(ctx context.Context, item protocol.Item, sink Sink) *protocol.Response {
	switch {
	case item.DecodeErr != nil:
		return protocol.NewErrorResponse(nil, item.DecodeErr.Code, item.DecodeErr.Message, item.DecodeErr.Data)
	case item.Notification != nil:
		s.dispatchNotification(ctx, item.Notification, sink)
		return nil
	default:
		return s.dispatchRequest(ctx, item.Request, sink)
	}
}

func (s *Server) dispatchRequest(ctx context.Context, req *protocol.Request, sink Sink) *protocol.Response {
	if st := s.State(); st >= StateShuttingDown {
		return protocol.NewErrorResponse(req.ID, protocol.InvalidRequest, "Invalid Request", "server is shutting down")
	} else if req.Method != protocol.MethodInitialize && st != StateReady {
		err := mcperrors.NewServerNotInitialized(req.Method)
		return protocol.NewErrorResponse(req.ID, err.Code(), err.Message(), err.Data())
	}

	handler, ok := s.methods[req.Method]
	if !ok {
		err := mcperrors.NewMethodNotFound(req.Method)
		s.recordDispatch(req.Method, "error", 0)
		return protocol.NewErrorResponse(req.ID, err.Code(), err.Message(), err.Data())
	}

	done := s.metrics.RequestStarted()
	defer done()
	ctx, span := s.tracer.StartRequest(ctx, req.Method, req.ID)
	start := time.Now()

	result, err := handler(ctx, req, sink)
	elapsed := time.Since(start)
	s.tracer.EndRequest(span, err)

	if err != nil {
		s.recordDispatch(req.Method, "error", elapsed)
		s.logger.Warn("request failed",
			logging.String("method", req.Method),
			logging.Any("id", req.ID),
			logging.ErrorField(err))
		wireErr := mcperrors.ToProtocolError(err)
		return protocol.NewErrorResponse(req.ID, wireErr.Code, wireErr.Message, wireErr.Data)
	}

	s.recordDispatch(req.Method, "success", elapsed)
	resp, err := protocol.NewResponse(req.ID, result)
	if err != nil {
		s.logger.Error("failed to encode result",
			logging.String("method", req.Method), logging.ErrorField(err))
		return protocol.NewErrorResponse(req.ID, protocol.InternalError, "Internal error", nil)
	}
	return resp
}

// dispatchNotification runs a notification handler for its side effects.
// Faults are logged and swallowed; a notification never produces bytes on
// the wire.
func (s *Server) dispatchNotification(ctx context.Context, n *protocol.Notification, sink Sink) {
	if s.State() >= StateShuttingDown {
		return
	}
	handler, ok := s.methods[n.Method]
	if !ok {
		s.logger.Debug("ignoring unknown notification", logging.String("method", n.Method))
		return
	}
	req := &protocol.Request{
		JSONRPCMessage: protocol.JSONRPCMessage{JSONRPC: protocol.JSONRPCVersion},
		Method:         n.Method,
		Params:         n.Params,
	}
	if _, err := handler(ctx, req, sink); err != nil {
		s.logger.Warn("notification handler failed",
			logging.String("method", n.Method), logging.ErrorField(err))
	}
}

func (s *Server) recordDispatch(method, outcome string, elapsed time.Duration) {
	s.metrics.RecordRequest(method, outcome, elapsed)
}

func (s *Server) handleInitialize(ctx context.Context, req *protocol.Request, _ Sink) (interface{}, error) {
	var params protocol.InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, mcperrors.NewInvalidParams(err.Error())
		}
	}
	if params.ClientInfo != nil {
		s.logger.Info("client connected",
			logging.String("client", params.ClientInfo.Name),
			logging.String("client_version", params.ClientInfo.Version),
			logging.String("protocol_version", params.ProtocolVersion))
	}

	// initialize is idempotent with respect to state: it promotes the
	// server to Ready from any pre-Ready state.
	if st := s.State(); st < StateReady {
		s.state.CompareAndSwap(int32(st), int32(StateReady))
	}

	return &protocol.InitializeResult{
		ProtocolVersion: protocol.ProtocolVersion,
		Capabilities:    s.capabilities(),
		ServerInfo: protocol.ImplementationInfo{
			Name:    s.name,
			Version: s.version,
		},
	}, nil
}

// capabilities advertises only the registries that hold at least one
// entry.
func (s *Server) capabilities() protocol.ServerCapabilities {
	caps := protocol.ServerCapabilities{}
	if s.tools.Len() > 0 {
		caps.Tools = &protocol.ToolsCapability{}
	}
	if s.resources.Len() > 0 {
		caps.Resources = &protocol.ResourcesCapability{}
	}
	if s.prompts.Len() > 0 {
		caps.Prompts = &protocol.PromptsCapability{}
	}
	return caps
}

func (s *Server) handleInitialized(ctx context.Context, _ *protocol.Request, _ Sink) (interface{}, error) {
	s.logger.Info("initialization complete", logging.String("state", s.State().String()))
	return nil, nil
}

func (s *Server) handlePing(ctx context.Context, _ *protocol.Request, _ Sink) (interface{}, error) {
	return struct{}{}, nil
}

func (s *Server) handleListTools(ctx context.Context, _ *protocol.Request, _ Sink) (interface{}, error) {
	return &protocol.ListToolsResult{Tools: s.tools.List()}, nil
}

func (s *Server) handleCallTool(ctx context.Context, req *protocol.Request, sink Sink) (interface{}, error) {
	var params protocol.CallToolParams
	if err := unmarshalParams(req.Params, &params); err != nil {
		return nil, err
	}
	if params.Name == "" {
		return nil, mcperrors.NewInvalidParams("missing tool name")
	}

	mc := registry.NewContext(req.ID, s.name, s.logger, s.progressFunc(sink))
	return s.tools.Call(ctx, params.Name, params.Arguments, mc)
}

// progressFunc adapts a transport sink into the registry's progress
// callback, encoding each report as a notifications/progress message.
func (s *Server) progressFunc(sink Sink) registry.ProgressFunc {
	if sink == nil {
		return nil
	}
	return func(requestID interface{}, progress, total float64) {
		notif, err := protocol.NewNotification(protocol.MethodProgress, protocol.ProgressParams{
			ProgressToken: requestID,
			Progress:      progress,
			Total:         total,
		})
		if err != nil {
			return
		}
		data, err := protocol.Encode(notif)
		if err != nil {
			return
		}
		sink(data)
	}
}

func (s *Server) handleListResources(ctx context.Context, _ *protocol.Request, _ Sink) (interface{}, error) {
	return &protocol.ListResourcesResult{Resources: s.resources.List()}, nil
}

func (s *Server) handleReadResource(ctx context.Context, req *protocol.Request, _ Sink) (interface{}, error) {
	var params protocol.ReadResourceParams
	if err := unmarshalParams(req.Params, &params); err != nil {
		return nil, err
	}
	if params.URI == "" {
		return nil, mcperrors.NewInvalidParams("missing resource uri")
	}
	return s.resources.Read(ctx, params.URI)
}

func (s *Server) handleListResourceTemplates(ctx context.Context, _ *protocol.Request, _ Sink) (interface{}, error) {
	return &protocol.ListResourceTemplatesResult{ResourceTemplates: s.resources.ListTemplates()}, nil
}

func (s *Server) handleListPrompts(ctx context.Context, _ *protocol.Request, _ Sink) (interface{}, error) {
	return &protocol.ListPromptsResult{Prompts: s.prompts.List()}, nil
}

func (s *Server) handleGetPrompt(ctx context.Context, req *protocol.Request, _ Sink) (interface{}, error) {
	var params protocol.GetPromptParams
	if err := unmarshalParams(req.Params, &params); err != nil {
		return nil, err
	}
	if params.Name == "" {
		return nil, mcperrors.NewInvalidParams("missing prompt name")
	}
	return s.prompts.Get(ctx, params.Name, params.Arguments)
}

func unmarshalParams(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return mcperrors.NewInvalidParams(err.Error())
	}
	return nil
}
