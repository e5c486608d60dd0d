package gcp

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiTextModel sends single-turn text prompts to the Gemini Developer API.
// It is used instead of Vertex AI when an API key is configured.
type GeminiTextModel struct {
	Client      *genai.Client
	Model       string
	Temperature float32
}

// NewGeminiTextModel creates a Gemini API client authenticated with apiKey.
func NewGeminiTextModel(ctx context.Context, apiKey, model string, temperature float32) (*GeminiTextModel, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("NewGeminiTextModel: apiKey cannot be empty")
	}
	if model == "" {
		model = DefaultChatModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiTextModel{Client: client, Model: model, Temperature: temperature}, nil
}

// Generate returns the model's text reply to prompt.
func (m *GeminiTextModel) Generate(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}
	temp := m.Temperature
	resp, err := m.Client.Models.GenerateContent(ctx, m.Model, contents, &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: 256,
	})
	if err != nil {
		return "", fmt.Errorf("gemini API call failed: %w", err)
	}
	text := extractGeminiText(resp)
	if text == "" {
		return "", fmt.Errorf("gemini returned an empty response")
	}
	return text, nil
}

func extractGeminiText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && !part.Thought {
			sb.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}
