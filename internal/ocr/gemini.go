package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/facturaIA/invoice-extraction-service/internal/models"
)

const defaultVisionModel = "gemini-1.5-flash"

const visionPrompt = `Lis ce document scanné et retourne TOUT le texte visible, de haut en bas et de gauche à droite, une ligne par ligne du document.
Ne reformate pas, n'interprète pas, ne traduis pas. Conserve les nombres exactement comme imprimés.
Indique dans "confidence" ta confiance globale dans la lecture, de 0 à 100.`

// GeminiEngine is the in-process primary tier: a vision model reading the
// page image directly.
type GeminiEngine struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// GeminiLoader returns a Loader creating the vision client once.
func GeminiLoader(apiKey, modelName string) Loader {
	return func(ctx context.Context) (Engine, error) {
		if apiKey == "" {
			return nil, errors.New("gemini: no API key configured")
		}
		if modelName == "" {
			modelName = defaultVisionModel
		}
		client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}

		model := client.GenerativeModel(modelName)
		model.SetTemperature(0)
		model.ResponseMIMEType = "application/json"
		model.ResponseSchema = &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"text": {
					Type:        genai.TypeString,
					Description: "All visible text, lines separated by \\n",
				},
				"confidence": {
					Type:        genai.TypeNumber,
					Description: "Reading confidence from 0 to 100",
				},
			},
			Required: []string{"text", "confidence"},
		}
		return &GeminiEngine{client: client, model: model}, nil
	}
}

func (g *GeminiEngine) Name() string { return "gemini" }

func (g *GeminiEngine) Recognize(ctx context.Context, path, lang string) (models.ExtractionResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.ExtractionResult{}, fmt.Errorf("read page: %w", err)
	}

	prompt := visionPrompt
	if lang != "" {
		prompt += "\nLangues attendues: " + lang
	}
	resp, err := g.model.GenerateContent(ctx,
		genai.Text(prompt),
		genai.Blob{MIMEType: mimeFor(path), Data: data},
	)
	if err != nil {
		return models.ExtractionResult{}, fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return models.ExtractionResult{}, errors.New("gemini: empty response")
	}

	var raw strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			raw.WriteString(string(text))
		}
	}

	text, conf, err := parseVisionReply(raw.String())
	if err != nil {
		return models.ExtractionResult{}, err
	}
	return models.ExtractionResult{Text: text, Confidence: conf, Engine: g.Name()}, nil
}

// Close releases the client.
func (g *GeminiEngine) Close() error {
	return g.client.Close()
}

// parseVisionReply decodes the {"text","confidence"} reply, clamping the
// confidence to 0-100.
func parseVisionReply(raw string) (string, float64, error) {
	var reply struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &reply); err != nil {
		return "", 0, fmt.Errorf("gemini: decode reply: %w", err)
	}
	switch {
	case reply.Confidence < 0:
		reply.Confidence = 0
	case reply.Confidence > 100:
		reply.Confidence = 100
	}
	return reply.Text, reply.Confidence, nil
}

func mimeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".pdf":
		return "application/pdf"
	default:
		return "image/png"
	}
}
