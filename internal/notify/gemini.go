package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/pesio-ai/be-print-rfq/internal/platform/logger"
)

const defaultGeminiModel = "gemini-2.5-flash"

const draftInstructions = `You write short, professional request-for-quote emails from a print broker to a manufacturing vendor.
Use only the facts below. Do not invent prices, dates or services. Keep the reference number exactly as given.
Ask for total cost, lead time in days and any notes. Plain text only, no markdown, no subject line.`

// contentGenerator is the subset of *genai.Models the renderer uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiRenderer drafts RFQ emails with Gemini. Any model failure falls back
// to the template renderer so dispatch never depends on the model.
type GeminiRenderer struct {
	models   contentGenerator
	model    string
	fallback Renderer
	facts    *TemplateRenderer
	log      *logger.Logger
}

// NewGeminiRenderer creates a renderer backed by the Gemini API.
func NewGeminiRenderer(ctx context.Context, apiKey, model string, fallback Renderer, log *logger.Logger) (*GeminiRenderer, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newGeminiRenderer(client.Models, model, fallback, log), nil
}

func newGeminiRenderer(models contentGenerator, model string, fallback Renderer, log *logger.Logger) *GeminiRenderer {
	if model = strings.TrimSpace(model); model == "" {
		model = defaultGeminiModel
	}
	facts := NewTemplateRenderer()
	if fallback == nil {
		fallback = facts
	}
	if log == nil {
		log = logger.Nop()
	}
	return &GeminiRenderer{
		models:   models,
		model:    model,
		fallback: fallback,
		facts:    facts,
		log:      log,
	}
}

// Model returns the configured model name.
func (g *GeminiRenderer) Model() string { return g.model }

// Render implements Renderer.
func (g *GeminiRenderer) Render(ctx context.Context, req *Request) (string, error) {
	body, err := g.draft(ctx, req)
	if err != nil {
		g.log.Warn().Err(err).
			Str("request_number", req.RequestNumber).
			Str("vendor_id", req.VendorID).
			Msg("gemini: drafting failed, using template")
		return g.fallback.Render(ctx, req)
	}
	return body, nil
}

func (g *GeminiRenderer) draft(ctx context.Context, req *Request) (string, error) {
	facts, err := g.facts.Render(ctx, req)
	if err != nil {
		return "", err
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: draftInstructions}}},
	}
	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text("Facts:\n"+facts), config)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", errors.New("gemini api returned empty response")
	}
	if !strings.Contains(output, req.RequestNumber) {
		output += "\n\nReference: " + req.RequestNumber
	}
	return output + "\n", nil
}
