package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	mcperrors "github.com/shredinjohn/micro-mcp/pkg/errors"
	"github.com/shredinjohn/micro-mcp/pkg/protocol"
)

// PromptHandler renders a prompt. It may return a bare string (wrapped as
// a single user message), a protocol.PromptMessage, or a slice of them.
type PromptHandler func(ctx context.Context, args map[string]string) (interface{}, error)

// Prompt is a registered prompt template. Its argument metadata is fixed
// at registration; default values are never transmitted, only whether an
// argument is required.
type Prompt struct {
	Name        string
	Description string
	Arguments   []protocol.PromptArgument

	handler PromptHandler
}

// PromptRegistry owns the mapping from prompt name to Prompt.
type PromptRegistry struct {
	mu      sync.RWMutex
	prompts map[string]*Prompt
	order   []string
}

// NewPromptRegistry creates an empty prompt registry.
func NewPromptRegistry() *PromptRegistry {
	return &PromptRegistry{prompts: make(map[string]*Prompt)}
}

// Register adds a prompt under a unique name.
func (r *PromptRegistry) Register(name, description string, args []protocol.PromptArgument, handler PromptHandler) (*Prompt, error) {
	if name == "" {
		return nil, fmt.Errorf("prompt name must be non-empty")
	}
	if handler == nil {
		return nil, fmt.Errorf("prompt %q: handler must be non-nil", name)
	}

	prompt := &Prompt{
		Name:        name,
		Description: description,
		Arguments:   args,
		handler:     handler,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.prompts[name]; exists {
		return nil, fmt.Errorf("prompt already registered: %q", name)
	}
	r.prompts[name] = prompt
	r.order = append(r.order, name)
	return prompt, nil
}

// Len returns the number of registered prompts.
func (r *PromptRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.prompts)
}

// List returns prompts/list descriptors in registration order.
func (r *PromptRegistry) List() []protocol.Prompt {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.Prompt, 0, len(r.order))
	for _, name := range r.order {
		p := r.prompts[name]
		out = append(out, protocol.Prompt{
			Name:        p.Name,
			Description: p.Description,
			Arguments:   p.Arguments,
		})
	}
	return out
}

// Get renders a prompt with the given arguments. Unknown names fail with
// MethodNotFound, missing required arguments with InvalidParams.
func (r *PromptRegistry) Get(ctx context.Context, name string, args map[string]string) (*protocol.GetPromptResult, error) {
	r.mu.RLock()
	prompt, ok := r.prompts[name]
	r.mu.RUnlock()
	if !ok {
		return nil, mcperrors.NewPromptNotFound(name)
	}

	if args == nil {
		args = map[string]string{}
	}
	for _, arg := range prompt.Arguments {
		if arg.Required {
			if _, ok := args[arg.Name]; !ok {
				return nil, mcperrors.NewInvalidParams(fmt.Sprintf("missing required argument: %q", arg.Name))
			}
		}
	}

	raw, err := prompt.handler(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("prompt %q: %w", name, err)
	}

	messages, err := normalizeMessages(raw)
	if err != nil {
		return nil, fmt.Errorf("prompt %q: %w", name, err)
	}

	return &protocol.GetPromptResult{
		Description: prompt.Description,
		Messages:    messages,
	}, nil
}

func normalizeMessages(raw interface{}) ([]protocol.PromptMessage, error) {
	switch v := raw.(type) {
	case string:
		return []protocol.PromptMessage{userMessage(v)}, nil
	case protocol.PromptMessage:
		if err := validateMessage(v); err != nil {
			return nil, err
		}
		return []protocol.PromptMessage{v}, nil
	case []protocol.PromptMessage:
		for _, m := range v {
			if err := validateMessage(m); err != nil {
				return nil, err
			}
		}
		return v, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("cannot encode prompt output: %w", err)
		}
		return []protocol.PromptMessage{userMessage(string(data))}, nil
	}
}

func userMessage(text string) protocol.PromptMessage {
	return protocol.PromptMessage{
		Role:    "user",
		Content: protocol.NewTextContent(text),
	}
}

func validateMessage(m protocol.PromptMessage) error {
	switch m.Role {
	case "user", "assistant", "system":
	default:
		return fmt.Errorf("unrecognized message role %q", m.Role)
	}
	if m.Content.Text == "" && m.Content.Data == "" && m.Content.Resource == nil {
		return fmt.Errorf("message content must be non-empty")
	}
	return nil
}
