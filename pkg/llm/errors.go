package llm

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// ErrorType classifies what part of the generator setup failed.
type ErrorType string

const (
	ErrorTypeEndpoint ErrorType = "endpoint"
	ErrorTypeAuth     ErrorType = "auth"
	ErrorTypeModel    ErrorType = "model"
	ErrorTypeResponse ErrorType = "response"
	ErrorTypeUnknown  ErrorType = "unknown"
)

// Error is a classified generation failure.
type Error struct {
	Type       ErrorType
	Message    string
	Retryable  bool
	Cause      error
	StatusCode int    // 0 when the provider gave none
	Model      string
	Endpoint   string // reduced to its host in Error()
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string
	parts = append(parts, string(e.Type))

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}
	if host := endpointHost(e.Endpoint); host != "" {
		parts = append(parts, fmt.Sprintf("endpoint=%s", host))
	}

	parts = append(parts, e.Message)

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// endpointHost reduces an endpoint URL to its host so paths and query
// strings never reach logs.
func endpointHost(endpoint string) string {
	if endpoint == "" {
		return ""
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Host
}

// IsRetryable lets retry.IsRetryable trust the classification over message
// patterns.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError creates a new structured LLM error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

// NewErrorWithContext creates a new structured LLM error with additional context.
func NewErrorWithContext(errType ErrorType, message string, retryable bool, cause error, model, endpoint string, statusCode int) *Error {
	return &Error{
		Type:       errType,
		Message:    message,
		Retryable:  retryable,
		Cause:      cause,
		Model:      model,
		Endpoint:   endpoint,
		StatusCode: statusCode,
	}
}

// statusCodePattern finds the HTTP status codes providers put in their
// error strings.
var statusCodePattern = regexp.MustCompile(`(?:^|\D)(40[0134]|429|50[0234]|529)(?:\D|$)`)

// classifyRule maps error text to a classification. matches receives the
// original and the lower-cased message.
type classifyRule struct {
	errType   ErrorType
	message   string
	retryable bool
	matches   func(msg, lower string) bool
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// classifyRules are checked in order; the first match wins.
var classifyRules = []classifyRule{
	{ErrorTypeAuth, "authentication failed", false, func(msg, lower string) bool {
		return strings.Contains(msg, "401") || containsAny(lower, "unauthorized", "invalid api key", "invalid x-api-key")
	}},
	{ErrorTypeModel, "model not found", false, func(_, lower string) bool {
		return strings.Contains(lower, "model") && containsAny(lower, "not found", "does not exist")
	}},
	{ErrorTypeEndpoint, "endpoint not found", false, func(msg, _ string) bool {
		return strings.Contains(msg, "404")
	}},
	{ErrorTypeEndpoint, "connection failed", true, func(_, lower string) bool {
		return containsAny(lower, "connection refused", "no such host", "connection reset")
	}},
	{ErrorTypeEndpoint, "request timeout", true, func(_, lower string) bool {
		return containsAny(lower, "timeout", "deadline exceeded")
	}},
	{ErrorTypeUnknown, "rate limited", true, func(msg, lower string) bool {
		return strings.Contains(msg, "429") || strings.Contains(lower, "rate limit")
	}},
	{ErrorTypeEndpoint, "provider overloaded", true, func(msg, lower string) bool {
		return strings.Contains(msg, "529") || strings.Contains(lower, "overloaded")
	}},
	{ErrorTypeEndpoint, "server error", true, func(msg, _ string) bool {
		return containsAny(msg, "500", "502", "503", "504")
	}},
}

// ClassifyError wraps err in an *Error describing whether a generation
// failure is worth retrying. An *Error anywhere in the chain is returned as is.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	msg := err.Error()
	lower := strings.ToLower(msg)

	statusCode := 0
	if m := statusCodePattern.FindStringSubmatch(msg); m != nil {
		statusCode, _ = strconv.Atoi(m[1])
	}

	for _, rule := range classifyRules {
		if rule.matches(msg, lower) {
			llmErr = NewError(rule.errType, rule.message, rule.retryable, err)
			llmErr.StatusCode = statusCode
			return llmErr
		}
	}

	llmErr = NewError(ErrorTypeUnknown, "llm error", false, err)
	llmErr.StatusCode = statusCode
	return llmErr
}

// IsRetryable returns true if the error is retryable.
func IsRetryable(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}

// GetErrorType extracts the ErrorType from an error.
func GetErrorType(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}
