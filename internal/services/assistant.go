package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Lllllllleong/croppulse/internal/assistant"
	"github.com/Lllllllleong/croppulse/internal/auth"
	"github.com/Lllllllleong/croppulse/internal/gcp"
	"github.com/Lllllllleong/croppulse/internal/models"
)

// Sampling temperatures of the two prompt kinds.
const (
	chatTemperature      = 0.7
	communityTemperature = 0.4
)

// ModelConfig selects the text generation backend.
type ModelConfig struct {
	ProjectID      string
	VertexAIRegion string
	ChatModel      string
	// GeminiAPIKey switches generation from Vertex AI to the Gemini Developer API.
	GeminiAPIKey string
}

func loadModelConfig() ModelConfig {
	return ModelConfig{
		ProjectID:      gcp.GetEnv("PROJECT_ID", ""),
		VertexAIRegion: gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		ChatModel:      gcp.GetEnv("CHAT_MODEL", gcp.DefaultChatModel),
		GeminiAPIKey:   gcp.GetEnv("GEMINI_API_KEY", ""),
	}
}

// newAssistant wires the chat and community generators to the configured backend.
func newAssistant(ctx context.Context, cfg ModelConfig) (*assistant.Assistant, error) {
	if cfg.GeminiAPIKey != "" {
		chat, err := gcp.NewGeminiTextModel(ctx, cfg.GeminiAPIKey, cfg.ChatModel, chatTemperature)
		if err != nil {
			return nil, err
		}
		community, err := gcp.NewGeminiTextModel(ctx, cfg.GeminiAPIKey, cfg.ChatModel, communityTemperature)
		if err != nil {
			return nil, err
		}
		slog.Info("Using Gemini Developer API for text generation.", "model", cfg.ChatModel)
		return &assistant.Assistant{Chat: chat, Community: community}, nil
	}

	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	vertexClient, err := gcp.NewVertexClient(ctx, cfg.ProjectID, cfg.VertexAIRegion, cfg.ChatModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex client: %w", err)
	}
	slog.Info("Using Vertex AI for text generation.", "model", cfg.ChatModel, "region", cfg.VertexAIRegion)
	return &assistant.Assistant{
		Chat:      gcp.VertexTextModel{Model: vertexClient.ChatModel},
		Community: gcp.VertexTextModel{Model: vertexClient.CommunityModel},
	}, nil
}

// AssistantFunction serves the crop assistant chat.
type AssistantFunction struct {
	assistant *assistant.Assistant
}

// NewAssistant creates a new AssistantFunction instance.
func NewAssistant(ctx context.Context) (*AssistantFunction, error) {
	a, err := newAssistant(ctx, loadModelConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create assistant: %w", err)
	}
	return &AssistantFunction{assistant: a}, nil
}

// ServeHTTP returns the welcome message on GET and a reply on POST. A failed generation
// is answered with the error bubble, not an error status.
func (f *AssistantFunction) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	authenticated(func(w http.ResponseWriter, r *http.Request, _ auth.Session, logCtx *slog.Logger) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, logCtx, http.StatusOK, assistant.Welcome())
		case http.MethodPost:
			var req models.ChatRequest
			if err := decodeJSON(r, &req); err != nil {
				writeError(w, logCtx, err)
				return
			}
			msg, err := f.assistant.Reply(r.Context(), req.Message)
			if err != nil && models.IsValidation(err) {
				writeError(w, logCtx, err)
				return
			}
			writeJSON(w, logCtx, http.StatusOK, msg)
		default:
			writeJSON(w, logCtx, http.StatusMethodNotAllowed, models.ErrorResponse{Error: "Method Not Allowed"})
		}
	}).ServeHTTP(w, r)
}
