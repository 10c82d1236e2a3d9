package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"strategyavs/internal/config"
)

const advisorSystemPrompt = "You are a DeFi risk analyst. Evaluate the proposed strategy " +
	"and respond with a single JSON object: " +
	`{"safe": bool, "reasoning": string, "risks": [string], "recommendation": string, "risk_score": int}. ` +
	"risk_score is 0-100 where 100 is maximum risk. No prose outside the JSON."

// OpenAIAdvisor asks a chat-completion model for a risk verdict. Temperature
// is pinned to zero; the surrounding pipeline expects repeatable output for
// identical prompts.
type OpenAIAdvisor struct {
	client openai.Client
	model  string
}

func NewOpenAIAdvisor(cfg config.AnalysisConfig) *OpenAIAdvisor {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIAdvisor{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}
}

func (a *OpenAIAdvisor) Assess(ctx context.Context, prompt string) (string, error) {
	if a == nil {
		return "", fmt.Errorf("advisor is nil")
	}
	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(a.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(advisorSystemPrompt),
			openai.UserMessage(prompt),
		},
		MaxTokens:   openai.Int(1024),
		Temperature: openai.Float(0),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return "", fmt.Errorf("advisory request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("advisory response has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
