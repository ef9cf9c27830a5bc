package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/genai"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.5-flash"

// Gemini calls the Gemini API through google.golang.org/genai.
type Gemini struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// NewGemini creates a Gemini oracle.
func NewGemini(ctx context.Context, apiKey, model string, logger *slog.Logger) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("oracle: gemini api key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("oracle: create gemini client: %w", err)
	}
	return &Gemini{client: client, model: model, logger: logger}, nil
}

// Generate sends the request as a single user turn: the prompt followed by
// each part in order. The system prompt goes in the system instruction.
func (g *Gemini) Generate(ctx context.Context, req Request) (Response, error) {
	parts := make([]*genai.Part, 0, len(req.Parts)+1)
	if req.Prompt != "" {
		parts = append(parts, genai.NewPartFromText(req.Prompt))
	}
	for _, p := range req.Parts {
		if p.IsBinary() {
			parts = append(parts, genai.NewPartFromBytes(p.Data, p.MediaType))
			continue
		}
		if p.Text != "" {
			parts = append(parts, genai.NewPartFromText(p.Text))
		}
	}
	if len(parts) == 0 {
		return Response{}, errors.New("oracle: empty request")
	}

	var cfg *genai.GenerateContentConfig
	if req.System != "" {
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, cfg)
	if err != nil {
		return Response{}, fmt.Errorf("oracle: gemini generate: %w", err)
	}

	out := Response{Text: resp.Text()}
	if resp.UsageMetadata != nil {
		out.Tokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	g.logger.Debug("oracle: gemini call",
		slog.String("model", g.model),
		slog.Int("parts", len(parts)),
		slog.Int("tokens", out.Tokens))
	return out, nil
}
