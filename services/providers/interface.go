package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/samber/lo"
)

// ProviderID identifies one upstream provider (or a catalog-only entry).
type ProviderID string

const (
	// OpenAI is the OpenAI Chat Completions API
	OpenAI ProviderID = "openai"

	// Anthropic is the Anthropic Messages API
	Anthropic ProviderID = "anthropic"

	// Perplexity is the Perplexity OpenAI-compatible API
	Perplexity ProviderID = "perplexity"

	// RuleBased is the built-in heuristic advice catalog entry. It is listed
	// for display but is never dispatched to.
	RuleBased ProviderID = "rule_based"
)

// dispatchable is the set of providers the orchestration layer may call.
var dispatchable = []ProviderID{OpenAI, Anthropic, Perplexity}

// catalog lists every known identifier, dispatchable or not.
var catalog = []ProviderID{OpenAI, Anthropic, Perplexity, RuleBased}

// Dispatchable returns the providers that may receive network calls.
func Dispatchable() []ProviderID {
	return append([]ProviderID(nil), dispatchable...)
}

// Catalog returns every known provider identifier.
func Catalog() []ProviderID {
	return append([]ProviderID(nil), catalog...)
}

// IsDispatchable reports whether id may be dispatched to.
func (id ProviderID) IsDispatchable() bool {
	return lo.Contains(dispatchable, id)
}

// IsKnown reports whether id is part of the catalog.
func (id ProviderID) IsKnown() bool {
	return lo.Contains(catalog, id)
}

func (id ProviderID) String() string {
	return string(id)
}

// ParseProviderID parses a provider identifier, case-insensitively.
func ParseProviderID(s string) (ProviderID, error) {
	id := ProviderID(strings.ToLower(strings.TrimSpace(s)))
	if !id.IsKnown() {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
	}
	return id, nil
}

// Provider is the single capability every upstream integration implements.
type Provider interface {
	// ID returns the provider identifier
	ID() ProviderID

	// Attempt performs one upstream call and returns its JSON result
	Attempt(ctx context.Context, prompt Prompt) (json.RawMessage, error)
}

// Prompt is the provider-agnostic request sent to a chat model
type Prompt struct {
	// System instructions
	System string `json:"system,omitempty"`

	// User message
	User string `json:"user"`

	// MaxTokens limits the response length (0 uses the adapter default)
	MaxTokens int `json:"max_tokens,omitempty"`
}

// ProviderConfig holds common configuration for providers
type ProviderConfig struct {
	// APIKey for authentication
	APIKey string

	// BaseURL for the API (optional override)
	BaseURL string

	// Model used for every request
	Model string

	// Timeout for requests
	Timeout time.Duration

	// Additional headers
	Headers map[string]string

	// OrgID for organization-specific endpoints
	OrgID string

	// JSONMode asks the upstream for a JSON object response when supported
	JSONMode bool
}

// DefaultProviderConfig returns a sensible default configuration
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Timeout: 60 * time.Second,
		Headers: make(map[string]string),
	}
}

// ContentJSON turns model output into a JSON value. Output that already is a
// JSON object or array is kept verbatim; anything else becomes a JSON string.
func ContentJSON(content string) json.RawMessage {
	trimmed := strings.TrimSpace(content)
	if (strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")) && json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}
	b, _ := json.Marshal(content)
	return b
}

var (
	// ErrUnknownProvider is returned for identifiers outside the catalog
	ErrUnknownProvider = errors.New("unknown provider")
)

// CodeInsufficientQuota is the upstream error code for an exhausted usage allowance
const CodeInsufficientQuota = "insufficient_quota"

// ProviderError represents an error from a provider
type ProviderError struct {
	// Provider that generated the error
	Provider ProviderID

	// Code is the machine-readable error code
	Code string

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code (0 when no response was received)
	StatusCode int

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Provider, e.Message)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// HTTPStatusCode returns the upstream HTTP status
func (e *ProviderError) HTTPStatusCode() int {
	return e.StatusCode
}

// ErrorCode returns the upstream error code
func (e *ProviderError) ErrorCode() string {
	return e.Code
}

// NewProviderError creates a new provider error
func NewProviderError(provider ProviderID, code, message string, statusCode int, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Cause:      cause,
	}
}

type statusCoder interface {
	HTTPStatusCode() int
}

type errorCoder interface {
	ErrorCode() string
}

// StatusCodeOf extracts an HTTP-like status code from err, or 0.
func StatusCodeOf(err error) int {
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatusCode()
	}
	return 0
}

// ErrorCodeOf extracts a machine-readable error code from err, or "".
func ErrorCodeOf(err error) string {
	var ec errorCoder
	if errors.As(err, &ec) {
		return ec.ErrorCode()
	}
	return ""
}

// IsRetryable reports a transient failure worth retrying on the same provider:
// a rate limit (429) or any 5xx.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	status := StatusCodeOf(err)
	return status == http.StatusTooManyRequests || (status >= 500 && status <= 599)
}

// IsQuotaExceeded reports a quota-class failure: a 429 or the insufficient
// quota code. The orchestration engine moves on to the next provider for these.
func IsQuotaExceeded(err error) bool {
	if err == nil {
		return false
	}
	return StatusCodeOf(err) == http.StatusTooManyRequests || ErrorCodeOf(err) == CodeInsufficientQuota
}
