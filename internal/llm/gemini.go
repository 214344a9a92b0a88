package llm

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/codementor-labs/codementor/internal/chat"
)

// Gemini serves chat completions through the Google Gemini API.
type Gemini struct {
	client       *genai.Client
	model        string
	contextLimit int
	temperature  float32
}

// NewGemini creates a Gemini provider.
func NewGemini(ctx context.Context, apiKey, model string, contextLimit int, temperature float32) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client:       client,
		model:        model,
		contextLimit: contextLimit,
		temperature:  temperature,
	}, nil
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) ContextLimit() int { return g.contextLimit }

// CountTokens asks the API for the exact token count of text.
func (g *Gemini) CountTokens(ctx context.Context, text string) (int, error) {
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}
	resp, err := g.client.Models.CountTokens(ctx, g.model, contents, nil)
	if err != nil {
		return 0, fmt.Errorf("counting tokens: %w", err)
	}
	return int(resp.TotalTokens), nil
}

func (g *Gemini) Generate(ctx context.Context, messages []chat.Message, maxTokens int) (*chat.Reply, error) {
	var system *genai.Content
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case chat.RoleSystem:
			system = genai.NewContentFromText(m.Content, genai.RoleUser)
		case chat.RoleModel:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(g.temperature),
		MaxOutputTokens:   int32(maxTokens),
		SystemInstruction: system,
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return nil, errors.New("gemini returned an empty response")
	}

	reply := &chat.Reply{Content: text}
	if u := resp.UsageMetadata; u != nil {
		reply.Usage = chat.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return reply, nil
}
