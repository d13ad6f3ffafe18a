package llm

// Request represents one provider-agnostic generation request. Providers map
// it onto their own wire formats.
type Request struct {
	// Prompt is the user-facing question, already assembled (retrieval
	// context included when the mode calls for it).
	Prompt string `json:"prompt"`

	// ImageURLs are attached to the prompt as image content blocks.
	ImageURLs []string `json:"image_urls,omitempty"`

	// SystemPrompt is handled separately from messages because some
	// providers take it out of band.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// Mode labels the request for logging: "with_context" or "without_context".
	Mode string `json:"mode,omitempty"`

	// Generation parameters (unified across providers)
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// Conversation accumulates the message history for one dispatch. The
// orchestrator creates a fresh Conversation per (sample, mode) pair so
// history never leaks across evaluations.
type Conversation struct {
	Messages []Message `json:"messages"`
}

// NewConversation returns an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{}
}

// Append adds a message to the history.
func (c *Conversation) Append(m Message) {
	c.Messages = append(c.Messages, m)
}

// Len returns the number of messages in the history.
func (c *Conversation) Len() int {
	return len(c.Messages)
}
