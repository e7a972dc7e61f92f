package llm

import (
	"context"
	"errors"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultOpenRouterModel mirrors the teacher provider's default, shifted to
// a model OpenRouter bills cheaply for short summarization calls.
const DefaultOpenRouterModel = "openai/gpt-4o-mini"

// DefaultOpenRouterMaxTokens bounds a summarization response.
const DefaultOpenRouterMaxTokens = 4096

type openRouterConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

type openRouterClient struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

func newOpenRouterClient(cfg openRouterConfig) *openRouterClient {
	model := cfg.Model
	if model == "" {
		model = DefaultOpenRouterModel
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = "https://openrouter.ai/api/v1"

	return &openRouterClient{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   model,
		timeout: cfg.Timeout,
	}
}

func (c *openRouterClient) Call(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.UserPrompt,
	})

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultOpenRouterMaxTokens
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: DefaultTemperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Response{}, newError(KindTimeout, "openrouter", c.model, err)
		}
		return Response{}, newError(classify(err), "openrouter", c.model, err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return Response{}, newError(KindEmptyResponse, "openrouter", c.model, nil)
	}

	return Response{
		Content:     resp.Choices[0].Message.Content,
		TotalTokens: resp.Usage.TotalTokens,
	}, nil
}
