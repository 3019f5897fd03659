// salesbot/services/llm/openai_client.go
package llm

import (
	"context"

	"salesbot/salesbot/utils/logging"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient talks to OpenAI or any OpenAI-compatible endpoint (Groq, vLLM).
type OpenAIClient struct {
	client *openai.Client
}

func NewOpenAIClient(apiKey, baseURL string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg)}
}

func (c *OpenAIClient) Run(ctx context.Context, req ChatRequest) (string, error) {
	defer logging.LogDuration(ctx, "openai_service_run")()

	flat := flatten(req)
	messages := make([]openai.ChatCompletionMessage, 0, len(flat))
	for _, m := range flat {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}
