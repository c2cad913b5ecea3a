// Package llm defines the text-completion provider interface the pipeline
// uses for plausibility checks on verified mentions.
package llm

import "context"

// Message is a single chat message.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role    string
	Content string
}

// CompletionRequest is a single completion call.
type CompletionRequest struct {
	// SystemPrompt, when non-empty, is prepended as a system message.
	SystemPrompt string

	Messages []Message

	// Temperature of 0 requests deterministic output where the backend
	// supports it.
	Temperature float64

	// MaxTokens caps the response length. Zero means provider default.
	MaxTokens int
}

// Usage reports token accounting when the backend provides it.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionResponse is the provider's answer.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// Provider is a text-completion backend.
type Provider interface {
	// Complete performs a blocking completion and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
