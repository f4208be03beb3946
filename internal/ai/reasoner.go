package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/facturaIA/invoice-extraction-service/internal/errs"
	"github.com/facturaIA/invoice-extraction-service/internal/models"
)

// Generation parameters used for extraction requests.
const (
	DefaultMaxTokens   = 4000
	DefaultTemperature = 0.1
	DefaultTopP        = 0.9
)

// Question is one free-text request to a reasoning service.
type Question struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// Reasoner answers a question with free text. Implementations report
// transport failures as errs.UpstreamUnavailable with a cause.
type Reasoner interface {
	Ask(ctx context.Context, q Question) (string, error)
}

// NewReasoner builds the configured reasoning backend.
func NewReasoner(ctx context.Context, cfg models.AIConfig) (Reasoner, error) {
	switch strings.ToLower(cfg.DefaultProvider) {
	case "", "ask":
		if cfg.Ask.URL == "" {
			return nil, errors.New("ask provider requires a URL")
		}
		return NewAskClient(cfg.Ask.URL, nil, nil), nil
	case "openai":
		if cfg.OpenAI.APIKey == "" {
			return nil, errors.New("OpenAI API key not configured")
		}
		return NewOpenAIProvider(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model), nil
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return nil, errors.New("Gemini API key not configured")
		}
		return NewGeminiProvider(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
	case "ollama":
		return NewOllamaProvider(cfg.Ollama.BaseURL, cfg.Ollama.Model), nil
	default:
		return nil, fmt.Errorf("unknown AI provider: %s", cfg.DefaultProvider)
	}
}

// transportError classifies a failed call as timeout or connection.
func transportError(err error) error {
	cause := errs.CauseConnection
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		cause = errs.CauseTimeout
	}
	return errs.Upstream(cause, 0, "", err)
}
