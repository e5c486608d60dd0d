package gcp

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

// DefaultChatModel is the Gemini model used for every CropPulse prompt.
const DefaultChatModel = "gemini-1.5-flash"

// --- Crop Assistant Prompts ---
const AssistantWelcome = "Hello! I'm your farming assistant, specialized in helping with crop diseases and plant health. How can I help you today?"
const AssistantErrorReply = "Sorry, I encountered an error. Please try again."
const AssistantUserPrompt = "You are a helpful assistant for farmers, specializing in crop diseases. Please provide information and advice about the following query related to crop diseases: %s. Limit your response to less than 50 words. "

// --- Community Expert Prompts ---
const CommunityReplyFallback = "Unable to generate AI response at this time."
const CommunityOffTopicReply = "This post appears to be unrelated to plants or crops. Please keep discussions focused on plant and crop-related topics."
const CommunityUserPrompt = `You are a plant disease and crop expert. A user has made the following post about their %s plant/crop: "%s".
If this post is related to plants, crops, or gardening, provide a helpful, short (2-3 sentences) response addressing their concern or adding relevant information.
If the post is completely unrelated to plants/crops/gardening, respond with "` + CommunityOffTopicReply + `"`

// VertexClient holds the pre-configured generative models.
type VertexClient struct {
	ChatModel      *genai.GenerativeModel
	CommunityModel *genai.GenerativeModel
	baseClient     *genai.Client
}

// NewVertexClient creates a client holding the chat and community models.
func NewVertexClient(ctx context.Context, projectID, region, modelName string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}
	if modelName == "" {
		modelName = DefaultChatModel
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	chatModel := baseClient.GenerativeModel(modelName)
	chatModel.GenerationConfig = genai.GenerationConfig{
		Temperature:     genai.Ptr[float32](0.7),
		MaxOutputTokens: genai.Ptr[int32](256),
	}

	communityModel := baseClient.GenerativeModel(modelName)
	communityModel.GenerationConfig = genai.GenerationConfig{
		Temperature:     genai.Ptr[float32](0.4),
		MaxOutputTokens: genai.Ptr[int32](256),
	}

	return &VertexClient{
		ChatModel:      chatModel,
		CommunityModel: communityModel,
		baseClient:     baseClient,
	}, nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}

// VertexTextModel sends single-turn text prompts to a Vertex AI model.
type VertexTextModel struct {
	Model *genai.GenerativeModel
}

// Generate returns the model's text reply to prompt.
func (m VertexTextModel) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := m.Model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini API call failed: %w", err)
	}
	text := extractVertexText(resp)
	if text == "" {
		return "", fmt.Errorf("gemini returned an empty response")
	}
	return text, nil
}

func extractVertexText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(sb.String())
}
