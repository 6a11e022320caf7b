// Package llm provides the text generators used to phrase remediation advice.
package llm

import (
	"context"
)

// Generator produces a completion for a single prompt.
// Use this interface for dependency injection to enable mocking in tests.
type Generator interface {
	// Generate returns the model's reply to prompt.
	Generate(ctx context.Context, prompt string) (string, error)

	// GetModel returns the configured model name.
	GetModel() string
}

// Ensure implementations satisfy Generator at compile time.
var (
	_ Generator = (*Client)(nil)
	_ Generator = (*AnthropicClient)(nil)
	_ Generator = (*StubGenerator)(nil)
	_ Generator = (*MockGenerator)(nil)
)

// systemMessage frames every fix-suggestion request.
const systemMessage = "You are a data quality engineer. Given a detected data quality issue, " +
	"explain the likely root cause and recommend a safe remediation in a few sentences. " +
	"Prefer SQL that can be reviewed before it is executed."
