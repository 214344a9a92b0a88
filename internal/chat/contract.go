package chat

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Provider is an upstream model backend.
type Provider interface {
	// Name identifies the provider in logs, metrics and audit events.
	Name() string
	// ContextLimit is the provider's total context window in tokens.
	ContextLimit() int
	// CountTokens returns the provider's own token count for text. Providers
	// without a counting endpoint return an error and the caller falls back
	// to estimation.
	CountTokens(ctx context.Context, text string) (int, error)
	// Generate produces a reply to the conversation. maxTokens bounds the
	// response length.
	Generate(ctx context.Context, messages []Message, maxTokens int) (*Reply, error)
}

// Usage is the token accounting reported by a provider for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Reply is a successful provider response.
type Reply struct {
	Content string
	Usage   Usage
}

// HistoryStore persists per-user conversation history.
type HistoryStore interface {
	Load(ctx context.Context, userID uuid.UUID) ([]Message, error)
	Save(ctx context.Context, userID uuid.UUID, messages []Message) error
	Delete(ctx context.Context, userID uuid.UUID) error
}

// ErrAllProvidersFailed is returned when every configured provider failed to
// produce a reply.
var ErrAllProvidersFailed = errors.New("all providers failed")
