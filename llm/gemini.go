package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const (
	GeminiID           = "gemini"
	GeminiDefaultModel = "gemini-2.0-flash"
)

type geminiModelsClient interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

var newGenaiClient = func(ctx context.Context, cfg *genai.ClientConfig) (*genai.Client, error) {
	return genai.NewClient(ctx, cfg)
}

// GeminiClient sends each message as a single generateContent request with a
// fixed model.
type GeminiClient struct {
	models geminiModelsClient
	model  string
}

func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	model = strings.TrimSpace(model)
	if model == "" {
		model = GeminiDefaultModel
	}

	client, err := newGenaiClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiClient{
		models: client.Models,
		model:  model,
	}, nil
}

func (c *GeminiClient) ID() string {
	return GeminiID
}

func (c *GeminiClient) Model() string {
	return c.model
}

func (c *GeminiClient) Send(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.Message) == "" {
		return Response{}, upstream(GeminiID, errors.New("missing prompt"))
	}

	resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(req.Message), nil)
	if err != nil {
		return Response{}, upstream(GeminiID, err)
	}

	if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return Response{}, upstream(GeminiID, fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason))
	}

	text := visibleText(resp)
	if text == "" {
		return Response{}, upstream(GeminiID, errors.New("empty response"))
	}

	return Response{Text: text, Model: c.model}, nil
}

func visibleText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return ""
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought || part.Text == "" {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String()
}
