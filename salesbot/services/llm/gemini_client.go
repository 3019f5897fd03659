// salesbot/services/llm/gemini_client.go
package llm

import (
	"context"
	"fmt"
	"strings"

	"salesbot/salesbot/utils/logging"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiClient is configured with the API key once per process. Every Run
// starts a new chat session so no conversation state leaks between calls.
type GeminiClient struct {
	client *genai.Client
}

func NewGeminiClient(ctx context.Context, apiKey string, opts ...option.ClientOption) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiClient{client: client}, nil
}

func (c *GeminiClient) Run(ctx context.Context, req ChatRequest) (string, error) {
	defer logging.LogDuration(ctx, "gemini_service_run")()

	model := c.client.GenerativeModel(req.Model)
	cs := model.StartChat()
	cs.History = toContents(req.History)

	resp, err := cs.SendMessage(ctx, genai.Text(req.Prompt))
	if err != nil {
		return "", err
	}
	text := responseText(resp)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func (c *GeminiClient) Close() error {
	return c.client.Close()
}

func toContents(turns []Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		parts := make([]genai.Part, 0, len(turn.Parts))
		for _, p := range turn.Parts {
			parts = append(parts, genai.Text(p))
		}
		contents = append(contents, &genai.Content{Role: turn.Role, Parts: parts})
	}
	return contents
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return sb.String()
}
