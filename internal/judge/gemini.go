package judge

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"
)

// gemini calls Google's Gemini models through the genai SDK.
type gemini struct {
	client *genai.Client
	model  string
}

func newGemini(ctx context.Context, apiKey, model string) (*gemini, error) {
	if model == "" || strings.HasPrefix(model, "gpt") {
		model = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &gemini{client: client, model: model}, nil
}

func (g *gemini) name() string { return "gemini" }

func (g *gemini) complete(ctx context.Context, c completion) (string, error) {
	temp := float32(c.Temperature)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(c.System, genai.RoleUser),
		Temperature:       &temp,
		MaxOutputTokens:   int32(c.MaxTokens),
	}
	if c.JSON {
		cfg.ResponseMIMEType = "application/json"
	}
	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(c.Prompt), cfg)
	if err != nil {
		return "", err
	}
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("gemini returned no candidates")
	}
	var sb strings.Builder
	for _, p := range result.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}
