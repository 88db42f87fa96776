package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

// AnthropicClient talks to the Anthropic Messages API.
type AnthropicClient struct {
	client    *anthropic.Client
	id        string
	model     string
	maxTokens int
	logger    *zap.Logger
}

// NewAnthropicClient builds a client for the given model.
func NewAnthropicClient(id, model, apiKey string, maxTokens int, logger *zap.Logger) (*AnthropicClient, error) {
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if maxTokens <= 0 {
		maxTokens = 2000
	}
	return &AnthropicClient{
		client:    anthropic.NewClient(apiKey),
		id:        id,
		model:     model,
		maxTokens: maxTokens,
		logger:    logger.Named("llm.anthropic"),
	}, nil
}

// Generate produces a completion via the Messages API.
func (c *AnthropicClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	temperature := float32(req.Temperature)

	c.logger.Debug("provider request",
		zap.String("provider", c.id),
		zap.String("model", c.model),
		zap.Int("prompt_len", len(req.Prompt)))

	start := time.Now()
	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(c.model),
		System:      req.System,
		MaxTokens:   maxTokens,
		Temperature: &temperature,
		Messages: []anthropic.Message{
			anthropic.NewUserTextMessage(req.Prompt),
		},
	})
	elapsed := time.Since(start)
	if err != nil {
		c.logger.Error("provider request failed",
			zap.String("provider", c.id),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return nil, ClassifyError(c.id, err)
	}

	text := ""
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			text = *block.Text
			break
		}
	}
	if text == "" {
		return nil, &Error{Type: ErrorTypeMalformed, Message: "no text block in response", Provider: c.id}
	}

	c.logger.Info("provider request completed",
		zap.String("provider", c.id),
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", elapsed))

	return &GenerateResult{
		Text:       text,
		TokensUsed: resp.Usage.InputTokens + resp.Usage.OutputTokens,
		Latency:    elapsed,
	}, nil
}

// ProviderID returns the configured descriptor id.
func (c *AnthropicClient) ProviderID() string { return c.id }

var _ Client = (*AnthropicClient)(nil)
