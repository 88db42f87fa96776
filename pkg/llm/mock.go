package llm

import (
	"context"
	"sync"
)

// MockClient is a configurable mock for testing provider behavior.
// Set GenerateFunc to control responses; call counts are tracked for
// verification.
type MockClient struct {
	// GenerateFunc is called when Generate is invoked. If nil, returns
	// an empty result and nil error.
	GenerateFunc func(ctx context.Context, req GenerateRequest) (*GenerateResult, error)

	// ID is returned by ProviderID. Defaults to "mock".
	ID string

	mu            sync.Mutex
	generateCalls int
}

// NewMockClient creates a mock with the given provider id.
func NewMockClient(id string) *MockClient {
	if id == "" {
		id = "mock"
	}
	return &MockClient{ID: id}
}

// Generate implements Client.
func (m *MockClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	m.mu.Lock()
	m.generateCalls++
	m.mu.Unlock()
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return &GenerateResult{}, nil
}

// ProviderID implements Client.
func (m *MockClient) ProviderID() string { return m.ID }

// GenerateCalls returns how many times Generate was invoked.
func (m *MockClient) GenerateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generateCalls
}

var _ Client = (*MockClient)(nil)
