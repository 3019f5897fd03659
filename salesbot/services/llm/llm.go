// salesbot/services/llm/llm.go
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"salesbot/salesbot/config"
	httputils "salesbot/salesbot/utils/http"
	"salesbot/salesbot/utils/logging"
)

const RoleUser = "user"

// Turn is one role-tagged block of seed history.
type Turn struct {
	Role  string   `json:"role"`
	Parts []string `json:"parts"`
}

// ChatRequest asks for one reply to Prompt given the seed History.
type ChatRequest struct {
	Model   string
	Prompt  string
	History []Turn
}

// Client sends one prompt in a fresh conversation and returns the reply text.
type Client interface {
	Run(ctx context.Context, req ChatRequest) (string, error)
}

var ErrEmptyResponse = errors.New("model returned no text")

// NewClient builds the adapter selected by cfg.LLMProvider.
func NewClient(ctx context.Context, cfg config.Config) (Client, error) {
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		return NewGeminiClient(ctx, cfg.GeminiAPIKey)
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL), nil
	case config.ProviderOllama:
		return NewOllamaClient(cfg.OllamaURL), nil
	}
	return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
}

type OllamaClient struct {
	baseURL string
}

func NewOllamaClient(baseURL string) *OllamaClient {
	return &OllamaClient{baseURL: strings.TrimRight(baseURL, "/")}
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type ollamaChatResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
}

func (c *OllamaClient) Run(ctx context.Context, req ChatRequest) (string, error) {
	defer logging.LogDuration(ctx, "ollama_service_run")()
	var resp ollamaChatResponse
	body := ollamaChatRequest{
		Model:    req.Model,
		Messages: flatten(req),
		Stream:   false,
	}
	if err := httputils.PostJSON(ctx, c.baseURL+"/chat", body, &resp); err != nil {
		return "", err
	}
	if resp.Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return resp.Message.Content, nil
}

// flatten turns seed history into one message per part, then the prompt.
func flatten(req ChatRequest) []Message {
	var msgs []Message
	for _, turn := range req.History {
		role := turn.Role
		if role == "model" {
			role = "assistant"
		}
		for _, part := range turn.Parts {
			msgs = append(msgs, Message{Role: role, Content: part})
		}
	}
	return append(msgs, Message{Role: RoleUser, Content: req.Prompt})
}
