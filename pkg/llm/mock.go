package llm

import (
	"context"
)

// MockGenerator is a configurable mock for testing code that depends on a Generator.
// Set the function fields to control behavior in tests.
type MockGenerator struct {
	// GenerateFunc is called when Generate is invoked.
	// If nil, returns an empty string and nil error.
	GenerateFunc func(ctx context.Context, prompt string) (string, error)

	// Model is returned by GetModel. Defaults to "mock-model".
	Model string

	// Call tracking for verification
	GenerateCalls int
	Prompts       []string
}

// NewMockGenerator creates a new mock with sensible defaults.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{Model: "mock-model"}
}

// Generate implements Generator.
func (m *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	m.GenerateCalls++
	m.Prompts = append(m.Prompts, prompt)
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, prompt)
	}
	return "", nil
}

// GetModel implements Generator.
func (m *MockGenerator) GetModel() string {
	if m.Model == "" {
		return "mock-model"
	}
	return m.Model
}
