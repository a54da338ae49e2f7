package protocol

// Content type discriminators.
const (
	ContentTypeText     = "text"
	ContentTypeImage    = "image"
	ContentTypeResource = "resource"
)

// ContentItem is the tagged union of content blocks a tool or prompt can
// produce: text, a base64-encoded image, or an embedded resource.
type ContentItem struct {
	Type     string            `json:"type"`
	Text     string            `json:"text,omitempty"`
	Data     string            `json:"data,omitempty"`
	MimeType string            `json:"mimeType,omitempty"`
	Resource *ResourceContents `json:"resource,omitempty"`
}

// NewTextContent creates a plain-text content block.
func NewTextContent(text string) ContentItem {
	return ContentItem{Type: ContentTypeText, Text: text}
}

// NewImageContent creates an image content block from base64-encoded data.
func NewImageContent(data, mimeType string) ContentItem {
	return ContentItem{Type: ContentTypeImage, Data: data, MimeType: mimeType}
}

// NewEmbeddedResource creates an embedded resource content block.
func NewEmbeddedResource(uri, text, mimeType string) ContentItem {
	return ContentItem{
		Type:     ContentTypeResource,
		Resource: &ResourceContents{URI: uri, Text: text, MimeType: mimeType},
	}
}

// ResourceContents is one entry of a resources/read result. Text and Blob
// are mutually exclusive; Blob carries base64-encoded binary data.
type ResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// PromptMessage is one role-tagged message of a rendered prompt.
type PromptMessage struct {
	Role    string      `json:"role"`
	Content ContentItem `json:"content"`
}
