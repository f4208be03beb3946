package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/facturaIA/invoice-extraction-service/internal/errs"
)

const defaultGeminiModel = "gemini-1.5-flash"

// GeminiProvider implements Reasoner with Google Gemini.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiProvider{client: client, model: model}, nil
}

func (p *GeminiProvider) Ask(ctx context.Context, q Question) (string, error) {
	// GenerativeModel carries mutable settings, so one per call.
	model := p.client.GenerativeModel(p.model)
	model.SetTemperature(float32(q.Temperature))
	model.SetTopP(float32(q.TopP))
	if q.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(q.MaxTokens))
	}

	resp, err := model.GenerateContent(ctx, genai.Text(q.Prompt))
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			return "", errs.Upstream(errs.CauseStatus, gerr.Code, gerr.Message, fmt.Errorf("gemini: %w", err))
		}
		return "", transportError(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errs.Malformed("", errors.New("gemini: empty response"))
	}

	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out.WriteString(string(text))
		}
	}
	return out.String(), nil
}

// Close releases the client.
func (p *GeminiProvider) Close() error {
	return p.client.Close()
}
