package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/codementor-labs/codementor/internal/chat"
)

// ErrNoTokenCounting is returned by OpenAI.CountTokens; the API has no
// counting endpoint, so callers estimate instead.
var ErrNoTokenCounting = errors.New("openai: no token counting endpoint")

// OpenAI serves chat completions through the OpenAI API. It is typically
// configured as the fallback behind Gemini.
type OpenAI struct {
	client       *openai.Client
	model        string
	contextLimit int
	temperature  float32
}

// NewOpenAI creates an OpenAI provider.
func NewOpenAI(apiKey, model string, contextLimit int, temperature float32) *OpenAI {
	return &OpenAI{
		client:       openai.NewClient(apiKey),
		model:        model,
		contextLimit: contextLimit,
		temperature:  temperature,
	}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) ContextLimit() int { return o.contextLimit }

func (o *OpenAI) CountTokens(context.Context, string) (int, error) {
	return 0, ErrNoTokenCounting
}

func (o *OpenAI) Generate(ctx context.Context, messages []chat.Message, maxTokens int) (*chat.Reply, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case chat.RoleSystem:
			role = openai.ChatMessageRoleSystem
		case chat.RoleModel:
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: o.temperature,
		MaxTokens:   maxTokens,
		Messages:    msgs,
	})
	if err != nil {
		return nil, fmt.Errorf("creating chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai returned no choices")
	}

	return &chat.Reply{
		Content: resp.Choices[0].Message.Content,
		Usage: chat.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}
