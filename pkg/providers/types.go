package providers

import (
	"context"
	"fmt"
)

// Message is one role-tagged turn sent to the model backend.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type LLMResponse struct {
	Content string
	Usage   *Usage
}

// LLMProvider issues one completion request per turn. history holds the
// prior turns (excluding the newest user text), system carries the
// persona plus the live-context digest.
type LLMProvider interface {
	Chat(ctx context.Context, history []Message, userText, system string) (*LLMResponse, error)
}

// ModelBackendError reports a non-success response from the model backend,
// carrying the backend's own message.
type ModelBackendError struct {
	Message string
}

func (e *ModelBackendError) Error() string {
	return fmt.Sprintf("model backend: %s", e.Message)
}
