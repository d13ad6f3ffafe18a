package llm

import "encoding/json"

// Response represents a provider-agnostic generation response.
type Response struct {
	// Text is the model's answer with surrounding whitespace trimmed.
	Text string `json:"text"`

	// Model is the provider-side identifier that produced the response.
	Model string `json:"model"`

	// StopReason (e.g., "stop", "length", "end_turn") when the provider
	// reports one.
	StopReason string `json:"stop_reason,omitempty"`

	// Usage metrics when the provider reports them.
	Usage *Usage `json:"usage,omitempty"`

	// LatencyMs is the wall-clock duration of the single successful
	// network call, as observed by the provider client.
	LatencyMs int64 `json:"latency_ms,omitempty"`

	// Raw preserves the original response payload for debugging.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// Usage contains token counts reported by the provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}
