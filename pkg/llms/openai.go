package llms

import (
	"context"
	"errors"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kadirpekel/agentsdk/pkg/config"
)

// OpenAIProvider implements the generate contract against the OpenAI chat
// completions API (and compatible endpoints via BaseURL).
type OpenAIProvider struct {
	client *openai.Client
	name   string
}

// NewOpenAIProvider builds a provider. An empty apiKey falls back to
// OPENAI_API_KEY.
func NewOpenAIProvider(apiKey, baseURL string) *OpenAIProvider {
	if apiKey == "" {
		apiKey = os.Getenv(config.EnvOpenAIAPIKey)
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		name:   "openai",
	}
}

func (p *OpenAIProvider) Generate(ctx context.Context, messages []ChatMessage, cfg ModelConfig) (*GenerateResult, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	chatMessages := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		chatMessages = append(chatMessages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	req := openai.ChatCompletionRequest{
		Model:    cfg.Model,
		Messages: chatMessages,
	}
	if cfg.MaxTokens > 0 {
		req.MaxTokens = cfg.MaxTokens
	}
	if cfg.Temperature > 0 {
		req.Temperature = float32(cfg.Temperature)
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, normalizeOpenAIError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, NewProviderError(502, "empty_response", "no choices in completion response")
	}

	return &GenerateResult{
		Text:             resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}, nil
}

func (p *OpenAIProvider) GetName() string {
	return p.name
}

func normalizeOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := ""
		if s, ok := apiErr.Code.(string); ok {
			code = s
		}
		return NewProviderError(apiErr.HTTPStatusCode, code, apiErr.Message)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return NewProviderError(reqErr.HTTPStatusCode, "", reqErr.Error())
	}

	// Connection-level failures have no status; treat as a retriable 503.
	return NewProviderError(503, "transport", fmt.Sprintf("openai request failed: %v", err))
}
