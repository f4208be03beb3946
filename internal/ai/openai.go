package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/facturaIA/invoice-extraction-service/internal/errs"
)

const (
	defaultOpenAIModel   = "gpt-4o-mini"
	defaultOllamaBaseURL = "http://localhost:11434/v1"
	defaultOllamaModel   = "llama3.1"
)

// OpenAIProvider implements Reasoner using the OpenAI chat API or any
// compatible endpoint.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(apiKey, baseURL, model string) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(config), model: model}
}

// NewOllamaProvider creates a provider for a local Ollama server through its
// OpenAI-compatible API.
func NewOllamaProvider(baseURL, model string) *OpenAIProvider {
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	if model == "" {
		model = defaultOllamaModel
	}
	return NewOpenAIProvider("ollama", baseURL, model)
}

func (p *OpenAIProvider) Ask(ctx context.Context, q Question) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: q.Prompt},
		},
		MaxTokens:   q.MaxTokens,
		Temperature: float32(q.Temperature),
		TopP:        float32(q.TopP),
	})
	if err != nil {
		return "", openAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", errs.Malformed("", errors.New("no choices in OpenAI response"))
	}
	return resp.Choices[0].Message.Content, nil
}

func openAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return errs.Upstream(errs.CauseStatus, apiErr.HTTPStatusCode, apiErr.Message,
			fmt.Errorf("openai: %w", err))
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return errs.Upstream(errs.CauseStatus, reqErr.HTTPStatusCode, "", fmt.Errorf("openai: %w", err))
	}
	return transportError(err)
}
