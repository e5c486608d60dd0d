// Package assistant is the crop-disease chat assistant and the community board's
// automatic expert reply.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/Lllllllleong/croppulse/internal/gcp"
	"github.com/Lllllllleong/croppulse/internal/models"
)

// ErrEmptyMessage is returned for blank chat input.
var ErrEmptyMessage = models.Invalid("Message cannot be empty")

// Generator produces a text completion for a single prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Message is one chat bubble.
type Message struct {
	Text  string `json:"text"`
	IsBot bool   `json:"isBot"`
}

// Assistant answers grower questions. Each call is a single turn; no history is kept.
type Assistant struct {
	Chat      Generator
	Community Generator
}

// Welcome is the first message of every conversation.
func Welcome() Message {
	return Message{Text: gcp.AssistantWelcome, IsBot: true}
}

// Reply answers a grower's message. Blank messages are rejected before any call. When
// generation fails the returned message carries the user-facing error text alongside the error.
func (a *Assistant) Reply(ctx context.Context, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}
	logCtx := slog.With("component", "assistant")

	prompt := fmt.Sprintf(gcp.AssistantUserPrompt, text)
	logCtx.Info("Sending chat prompt.", "estimatedTokens", EstimateTokens(prompt))

	reply, err := a.Chat.Generate(ctx, prompt)
	if err != nil {
		logCtx.Error("Chat generation failed.", "error", err)
		return Message{Text: gcp.AssistantErrorReply, IsBot: true}, fmt.Errorf("failed to generate reply: %w", err)
	}
	logCtx.Info("Chat reply received.", "estimatedTokens", EstimateTokens(reply))
	return Message{Text: reply, IsBot: true}, nil
}

// CommunityReply drafts the expert comment attached to a new post. It never fails:
// generation errors yield the fallback text.
func (a *Assistant) CommunityReply(ctx context.Context, tag, content string) string {
	gen := a.Community
	if gen == nil {
		gen = a.Chat
	}
	if gen == nil {
		return gcp.CommunityReplyFallback
	}
	reply, err := gen.Generate(ctx, fmt.Sprintf(gcp.CommunityUserPrompt, tag, content))
	if err != nil {
		slog.Warn("Community reply generation failed.", "tag", tag, "error", err)
		return gcp.CommunityReplyFallback
	}
	return reply
}

// EstimateTokens approximates token usage at 65 tokens per 100 words, rounded up.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	return int(math.Ceil(float64(words) * 65 / 100))
}
