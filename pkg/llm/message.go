package llm

// Message represents a single message in a conversation.
// Content is stored as an array of ContentBlocks to support multimodal
// content (text plus images) in a provider-agnostic way.
type Message struct {
	Role    string         `json:"role"`    // "system", "user", "assistant"
	Content []ContentBlock `json:"content"` // Array of content blocks
}

// ContentBlock represents a single piece of content within a message.
// The Type field determines which other fields are populated.
type ContentBlock struct {
	Type string `json:"type"` // "text", "image"

	// Text content (type="text")
	Text string `json:"text,omitempty"`

	// Image content (type="image")
	ImageURL    string `json:"image_url,omitempty"`    // URL to image
	ImageBase64 string `json:"image_base64,omitempty"` // Base64-encoded image data
	MediaType   string `json:"media_type,omitempty"`   // MIME type (e.g., "image/png")
}

// NewTextMessage creates a simple text message with the given role and content.
func NewTextMessage(role, text string) Message {
	return Message{
		Role: role,
		Content: []ContentBlock{
			{Type: "text", Text: text},
		},
	}
}

// NewUserMessage creates a user message holding a text prompt followed by
// one image block per URL.
func NewUserMessage(text string, imageURLs ...string) Message {
	blocks := make([]ContentBlock, 0, 1+len(imageURLs))
	blocks = append(blocks, ContentBlock{Type: "text", Text: text})
	for _, url := range imageURLs {
		blocks = append(blocks, ContentBlock{Type: "image", ImageURL: url})
	}

	return Message{Role: "user", Content: blocks}
}

// GetText returns the concatenated text content from all text blocks in the
// message. This is a convenience method for text-only consumers.
func (m *Message) GetText() string {
	var result string
	for _, block := range m.Content {
		if block.Type == "text" {
			result += block.Text
		}
	}
	return result
}
