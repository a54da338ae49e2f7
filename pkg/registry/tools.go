package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	mcperrors "github.com/shredinjohn/micro-mcp/pkg/errors"
	"github.com/shredinjohn/micro-mcp/pkg/protocol"
	"github.com/shredinjohn/micro-mcp/pkg/schema"
)

// ToolHandler implements a tool that only needs its arguments.
type ToolHandler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// ContextToolHandler implements a tool that also wants the per-invocation
// Context for logging and progress reporting.
type ContextToolHandler func(ctx context.Context, mc *Context, args map[string]interface{}) (interface{}, error)

// Tool is a registered tool. Its schema is compiled once at registration
// and reused for every call; whether the handler wants a Context is
// likewise resolved once and stored as data.
type Tool struct {
	Name        string
	Description string
	Schema      *schema.Schema
	RawSchema   json.RawMessage

	wantsContext bool
	invoke       ContextToolHandler
}

// ToolRegistry owns the mapping from tool name to Tool.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
	order []string
}

// NewToolRegistry creates an empty tool registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]*Tool)}
}

// Register adds a tool under a unique name. The handler must be a
// ToolHandler or a ContextToolHandler (or a bare func of either
// signature); params declare its argument shapes, from which the input
// schema is compiled exactly once.
func (r *ToolRegistry) Register(name, description string, params []schema.Param, handler interface{}) (*Tool, error) {
	if name == "" {
		return nil, fmt.Errorf("tool name must be non-empty")
	}

	invoke, wantsContext, err := normalizeToolHandler(handler)
	if err != nil {
		return nil, fmt.Errorf("tool %q: %w", name, err)
	}

	compiled := schema.Compile(params)
	raw, err := schema.MarshalRaw(compiled)
	if err != nil {
		return nil, fmt.Errorf("tool %q: %w", name, err)
	}

	tool := &Tool{
		Name:         name,
		Description:  description,
		Schema:       compiled,
		RawSchema:    raw,
		wantsContext: wantsContext,
		invoke:       invoke,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return nil, fmt.Errorf("tool already registered: %q", name)
	}
	r.tools[name] = tool
	r.order = append(r.order, name)
	return tool, nil
}

func normalizeToolHandler(handler interface{}) (ContextToolHandler, bool, error) {
	switch h := handler.(type) {
	case ContextToolHandler:
		return h, true, nil
	case func(context.Context, *Context, map[string]interface{}) (interface{}, error):
		return h, true, nil
	case ToolHandler:
		return func(ctx context.Context, _ *Context, args map[string]interface{}) (interface{}, error) {
			return h(ctx, args)
		}, false, nil
	case func(context.Context, map[string]interface{}) (interface{}, error):
		return func(ctx context.Context, _ *Context, args map[string]interface{}) (interface{}, error) {
			return h(ctx, args)
		}, false, nil
	default:
		return nil, false, fmt.Errorf("unsupported handler signature %T", handler)
	}
}

// Len returns the number of registered tools.
func (r *ToolRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// List returns tools/list descriptors in registration order.
func (r *ToolRegistry) List() []protocol.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.Tool, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, protocol.Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.RawSchema,
		})
	}
	return out
}

// Call executes a tool. Lookup and validation failures propagate as
// protocol errors; a handler fault (returned error or panic) is tool-level
// data and comes back as a successful result with IsError set.
func (r *ToolRegistry) Call(ctx context.Context, name string, args map[string]interface{}, mc *Context) (*protocol.CallToolResult, error) {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, mcperrors.NewToolNotFound(name)
	}

	if args == nil {
		args = map[string]interface{}{}
	}
	if err := schema.Validate(tool.Schema, args); err != nil {
		return nil, mcperrors.NewInvalidParams(err.Error())
	}

	if !tool.wantsContext {
		mc = nil
	}

	result, err := safeInvoke(ctx, tool, mc, args)
	if err != nil {
		return &protocol.CallToolResult{
			Content: []protocol.ContentItem{protocol.NewTextContent(err.Error())},
			IsError: true,
		}, nil
	}

	// A handler may return a fully-formed result to control isError itself.
	switch structured := result.(type) {
	case *protocol.CallToolResult:
		return structured, nil
	case protocol.CallToolResult:
		return &structured, nil
	}

	return &protocol.CallToolResult{
		Content: wrapContent(result),
		IsError: false,
	}, nil
}

func safeInvoke(ctx context.Context, tool *Tool, mc *Context, args map[string]interface{}) (result interface{}, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tool %q panicked: %v", tool.Name, rec)
		}
	}()
	return tool.invoke(ctx, mc, args)
}

// wrapContent normalizes a raw handler return value into content blocks.
// Content items pass through; a bare string becomes text; everything else
// is JSON-encoded, so a bare scalar or collection reads naturally (8 ->
// "8", a slice -> its JSON form).
func wrapContent(result interface{}) []protocol.ContentItem {
	switch v := result.(type) {
	case []protocol.ContentItem:
		return v
	case protocol.ContentItem:
		return []protocol.ContentItem{v}
	case string:
		return []protocol.ContentItem{protocol.NewTextContent(v)}
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return []protocol.ContentItem{protocol.NewTextContent(fmt.Sprintf("%v", v))}
		}
		return []protocol.ContentItem{protocol.NewTextContent(string(data))}
	}
}
