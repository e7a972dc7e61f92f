package llm

import (
	"context"
	"time"

	"google.golang.org/genai"
)

// DefaultGeminiModel mirrors the teacher provider's default.
const DefaultGeminiModel = "gemini-2.0-flash"

// DefaultGeminiMaxTokens bounds a summarization response, smaller than the
// OpenRouter default since Gemini's summaries run more concise.
const DefaultGeminiMaxTokens = 2048

type geminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

type geminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

func newGeminiClient(cfg geminiConfig) (*geminiClient, error) {
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, newError(KindUpstreamError, "gemini", model, err)
	}

	return &geminiClient{client: client, model: model, timeout: cfg.Timeout}, nil
}

func (c *geminiClient) Call(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultGeminiMaxTokens
	}

	genConfig := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(DefaultTemperature)),
		MaxOutputTokens: int32(maxTokens),
	}
	if req.SystemPrompt != "" {
		genConfig.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemPrompt}},
		}
	}

	contents := []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: req.UserPrompt}},
	}}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, genConfig)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, newError(KindTimeout, "gemini", c.model, err)
		}
		return Response{}, newError(classify(err), "gemini", c.model, err)
	}

	text := resp.Text()
	if text == "" {
		return Response{}, newError(KindEmptyResponse, "gemini", c.model, nil)
	}

	var totalTokens int
	if resp.UsageMetadata != nil {
		totalTokens = int(resp.UsageMetadata.PromptTokenCount + resp.UsageMetadata.CandidatesTokenCount)
	}

	return Response{Content: text, TotalTokens: totalTokens}, nil
}
