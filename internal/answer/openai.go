package answer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"kbqa/internal/domain"
)

const (
	DefaultModel     = "gpt-4.1-mini"
	DefaultAPIKeyEnv = "OPENAI_API_KEY"
)

const systemPrompt = `You are a technical assistant.
Answer only from the provided context.
If the answer is not in the context, say that you did not find it.`

// OpenAIConfig configures the chat completion generator.
type OpenAIConfig struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
}

// OpenAI answers with an OpenAI-compatible chat completion endpoint.
type OpenAI struct {
	client *goopenai.Client
	model  string
}

// NewOpenAI creates a chat generator. The API key is read from the
// environment variable named in cfg.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = DefaultAPIKeyEnv
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("%w: missing API key in env %s", domain.ErrConfig, cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	oc := goopenai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &OpenAI{client: goopenai.NewClientWithConfig(oc), model: cfg.Model}, nil
}

// Answer asks the model to answer question from results only.
func (g *OpenAI) Answer(ctx context.Context, question string, results []domain.Result) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: g.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: userPrompt(question, results)},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func userPrompt(question string, results []domain.Result) string {
	return "Context:\n" + BuildContext(results) + "\n\nQuestion:\n" + question
}
