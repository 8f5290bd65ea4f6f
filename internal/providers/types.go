package providers

import "context"

// Provider is the interface completion backends must implement.
type Provider interface {
	// Complete sends a system prompt plus the user's message and returns
	// the generated reply text.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// DefaultModel returns the provider's default model name.
	DefaultModel() string

	// Name returns the provider identifier (e.g. "openai").
	Name() string
}

// Message represents a conversation message on the wire.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// CompletionRequest contains the input for a Complete call.
type CompletionRequest struct {
	SystemPrompt string
	UserText     string
	Model        string // overrides the provider default when set
}

// CompletionResponse is the result of a completion call.
type CompletionResponse struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason"`
	Usage        *Usage `json:"usage,omitempty"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
