package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wagerworks/sqlgen/pkg/models"
)

// NewClientFromDescriptor builds the wire client declared by a provider
// descriptor.
func NewClientFromDescriptor(d models.ProviderDescriptor, logger *zap.Logger) (Client, error) {
	switch d.Kind {
	case models.ProviderOpenAI:
		return NewOpenAIClient(d.ID, d.Endpoint, d.Model, d.APIKey, logger)
	case models.ProviderAnthropic:
		return NewAnthropicClient(d.ID, d.Model, d.APIKey, d.MaxTokens, logger)
	case models.ProviderMock:
		return NewMockClient(d.ID), nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q for provider %s", d.Kind, d.ID)
	}
}
