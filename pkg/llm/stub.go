package llm

import (
	"context"
)

// StubModel is the model name reported by StubGenerator.
const StubModel = "stub"

// StubAdvice is the fixed reply of StubGenerator.
const StubAdvice = "Automated advice is disabled. Review the suggested SQL against a copy of the data before applying it."

// StubGenerator answers every prompt with StubAdvice. It is the default
// provider so scans and suggestions work without network access.
type StubGenerator struct{}

// NewStubGenerator creates a StubGenerator.
func NewStubGenerator() *StubGenerator {
	return &StubGenerator{}
}

// Generate implements Generator.
func (s *StubGenerator) Generate(ctx context.Context, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return StubAdvice, nil
}

// GetModel implements Generator.
func (s *StubGenerator) GetModel() string {
	return StubModel
}
