package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIClient talks to any OpenAI-compatible chat completion endpoint.
type OpenAIClient struct {
	client   *openai.Client
	id       string
	model    string
	endpoint string
	logger   *zap.Logger
}

// NewOpenAIClient builds a client. APIKey may be empty for local
// endpoints (vLLM, Ollama and similar).
func NewOpenAIClient(id, endpoint, model, apiKey string, logger *zap.Logger) (*OpenAIClient, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimSuffix(endpoint, "/")
	return &OpenAIClient{
		client:   openai.NewClientWithConfig(cfg),
		id:       id,
		model:    model,
		endpoint: endpoint,
		logger:   logger.Named("llm.openai"),
	}, nil
}

// Generate produces a chat completion for the prompt.
func (c *OpenAIClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: req.System},
		{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
	}

	c.logger.Debug("provider request",
		zap.String("provider", c.id),
		zap.String("model", c.model),
		zap.Int("prompt_len", len(req.Prompt)),
		zap.Float64("temperature", req.Temperature))

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	})
	elapsed := time.Since(start)
	if err != nil {
		c.logger.Error("provider request failed",
			zap.String("provider", c.id),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return nil, ClassifyError(c.id, err)
	}

	if len(resp.Choices) == 0 {
		return nil, &Error{Type: ErrorTypeMalformed, Message: "no choices in response", Provider: c.id}
	}

	c.logger.Info("provider request completed",
		zap.String("provider", c.id),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("elapsed", elapsed))

	return &GenerateResult{
		Text:       resp.Choices[0].Message.Content,
		TokensUsed: resp.Usage.TotalTokens,
		Latency:    elapsed,
	}, nil
}

// ProviderID returns the configured descriptor id.
func (c *OpenAIClient) ProviderID() string { return c.id }

var _ Client = (*OpenAIClient)(nil)
