package translate

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const maxCompletionTokens = 2500

type LLMTranslator struct {
	client    *openai.Client
	model     string
	keepTerms []string
}

// NewLLMTranslator translates via chat completions. keepTerms lists proper
// nouns that must pass through untranslated.
func NewLLMTranslator(client *openai.Client, model string, keepTerms []string) *LLMTranslator {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &LLMTranslator{client: client, model: model, keepTerms: keepTerms}
}

func (c *LLMTranslator) Translate(ctx context.Context, req Request) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildPrompt(req, c.keepTerms),
			},
		},
		MaxTokens:   maxCompletionTokens,
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("translate completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("translate completion: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
