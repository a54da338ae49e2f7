package registry

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	mcperrors "github.com/shredinjohn/micro-mcp/pkg/errors"
	"github.com/shredinjohn/micro-mcp/pkg/protocol"
)

// DefaultMimeType is used when a resource is registered without one.
const DefaultMimeType = "text/plain"

// ResourceHandler produces the content of a resource. For template
// resources, params carries the values captured from the URI placeholders.
type ResourceHandler func(ctx context.Context, params map[string]string) (interface{}, error)

// segment is one "/"-delimited piece of a URI pattern: either a literal
// or a {param} placeholder.
type segment struct {
	literal string
	param   string
}

func (s segment) isPlaceholder() bool { return s.param != "" }

// Resource is a registered resource. Its pattern is parsed into segments
// once at registration; matching never re-parses.
type Resource struct {
	Pattern     string
	Name        string
	Description string
	MimeType    string

	handler      ResourceHandler
	segments     []segment
	placeholders int
}

// IsTemplate reports whether the pattern contains at least one
// placeholder segment.
func (r *Resource) IsTemplate() bool { return r.placeholders > 0 }

// ResourceRegistry owns the mapping from URI pattern to Resource.
type ResourceRegistry struct {
	mu        sync.RWMutex
	resources map[string]*Resource
	order     []string
}

// NewResourceRegistry creates an empty resource registry.
func NewResourceRegistry() *ResourceRegistry {
	return &ResourceRegistry{resources: make(map[string]*Resource)}
}

// Register adds a resource under a URI pattern such as "data://config" or
// "users://{id}/profile". It fails on a duplicate pattern and on any
// pattern whose shape would make matching ambiguous: same segment count,
// placeholders in the same positions, and equal literals everywhere else.
func (r *ResourceRegistry) Register(pattern, name, description, mimeType string, handler ResourceHandler) (*Resource, error) {
	if pattern == "" {
		return nil, fmt.Errorf("resource pattern must be non-empty")
	}
	if handler == nil {
		return nil, fmt.Errorf("resource %q: handler must be non-nil", pattern)
	}
	if mimeType == "" {
		mimeType = DefaultMimeType
	}

	segments, placeholders, err := parsePattern(pattern)
	if err != nil {
		return nil, fmt.Errorf("resource %q: %w", pattern, err)
	}

	res := &Resource{
		Pattern:      pattern,
		Name:         name,
		Description:  description,
		MimeType:     mimeType,
		handler:      handler,
		segments:     segments,
		placeholders: placeholders,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.resources[pattern]; exists {
		return nil, fmt.Errorf("resource already registered: %q", pattern)
	}
	for _, existing := range r.resources {
		if ambiguous(existing.segments, segments) {
			return nil, fmt.Errorf("resource pattern %q is ambiguous with %q", pattern, existing.Pattern)
		}
	}
	r.resources[pattern] = res
	r.order = append(r.order, pattern)
	return res, nil
}

func parsePattern(pattern string) ([]segment, int, error) {
	parts := strings.Split(pattern, "/")
	segments := make([]segment, 0, len(parts))
	placeholders := 0
	seen := make(map[string]bool)
	for _, part := range parts {
		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
			name := part[1 : len(part)-1]
			if name == "" {
				return nil, 0, fmt.Errorf("empty placeholder name")
			}
			if strings.ContainsAny(name, "{}") {
				return nil, 0, fmt.Errorf("malformed placeholder %q", part)
			}
			if seen[name] {
				return nil, 0, fmt.Errorf("duplicate placeholder %q", name)
			}
			seen[name] = true
			segments = append(segments, segment{param: name})
			placeholders++
			continue
		}
		if strings.ContainsAny(part, "{}") {
			return nil, 0, fmt.Errorf("placeholder must span a whole segment: %q", part)
		}
		segments = append(segments, segment{literal: part})
	}
	return segments, placeholders, nil
}

// ambiguous reports whether two patterns would match an identical URI
// set: equal length, same segment kind at every position, and equal
// literals at the literal positions. Placeholder names do not
// disambiguate.
func ambiguous(a, b []segment) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].isPlaceholder() != b[i].isPlaceholder() {
			return false
		}
		if !a[i].isPlaceholder() && a[i].literal != b[i].literal {
			return false
		}
	}
	return true
}

// List returns resources/list descriptors for static resources only, in
// registration order.
func (r *ResourceRegistry) List() []protocol.Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.Resource, 0, len(r.order))
	for _, pattern := range r.order {
		res := r.resources[pattern]
		if res.IsTemplate() {
			continue
		}
		out = append(out, protocol.Resource{
			URI:         res.Pattern,
			Name:        res.Name,
			Description: res.Description,
			MimeType:    res.MimeType,
		})
	}
	return out
}

// ListTemplates returns resources/templates/list descriptors exposing the
// raw pattern strings, in registration order.
func (r *ResourceRegistry) ListTemplates() []protocol.ResourceTemplate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.ResourceTemplate, 0, len(r.order))
	for _, pattern := range r.order {
		res := r.resources[pattern]
		if !res.IsTemplate() {
			continue
		}
		out = append(out, protocol.ResourceTemplate{
			URITemplate: res.Pattern,
			Name:        res.Name,
			Description: res.Description,
			MimeType:    res.MimeType,
		})
	}
	return out
}

// Len returns the number of registered resources, templates included.
func (r *ResourceRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.resources)
}

// Match finds the resource serving uri and the parameters captured from
// its placeholders. When several patterns match, the one with the fewest
// placeholders wins; exact ties cannot occur because registration rejects
// ambiguous shapes.
func (r *ResourceRegistry) Match(uri string) (*Resource, map[string]string, error) {
	parts := strings.Split(uri, "/")

	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *Resource
	var bestParams map[string]string
	for _, pattern := range r.order {
		res := r.resources[pattern]
		params, ok := matchSegments(res.segments, parts)
		if !ok {
			continue
		}
		if best == nil || res.placeholders < best.placeholders {
			best = res
			bestParams = params
		}
	}
	if best == nil {
		return nil, nil, mcperrors.NewResourceNotFound(uri)
	}
	return best, bestParams, nil
}

func matchSegments(segments []segment, parts []string) (map[string]string, bool) {
	if len(segments) != len(parts) {
		return nil, false
	}
	var params map[string]string
	for i, seg := range segments {
		if seg.isPlaceholder() {
			if params == nil {
				params = make(map[string]string)
			}
			params[seg.param] = parts[i]
			continue
		}
		if seg.literal != parts[i] {
			return nil, false
		}
	}
	return params, true
}

// Read resolves uri and invokes the matched handler, wrapping its output
// into a resources/read result. Binary content is base64-encoded into the
// blob field.
func (r *ResourceRegistry) Read(ctx context.Context, uri string) (*protocol.ReadResourceResult, error) {
	res, params, err := r.Match(uri)
	if err != nil {
		return nil, err
	}

	content, err := res.handler(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("resource %q: %w", uri, err)
	}

	switch v := content.(type) {
	case *protocol.ReadResourceResult:
		return v, nil
	case []protocol.ResourceContents:
		return &protocol.ReadResourceResult{Contents: v}, nil
	case protocol.ResourceContents:
		return &protocol.ReadResourceResult{Contents: []protocol.ResourceContents{v}}, nil
	case string:
		return &protocol.ReadResourceResult{Contents: []protocol.ResourceContents{
			{URI: uri, MimeType: res.MimeType, Text: v},
		}}, nil
	case []byte:
		return &protocol.ReadResourceResult{Contents: []protocol.ResourceContents{
			{URI: uri, MimeType: res.MimeType, Blob: base64.StdEncoding.EncodeToString(v)},
		}}, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("resource %q: cannot encode content: %w", uri, err)
		}
		return &protocol.ReadResourceResult{Contents: []protocol.ResourceContents{
			{URI: uri, MimeType: res.MimeType, Text: string(data)},
		}}, nil
	}
}
