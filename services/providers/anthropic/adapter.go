package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/upb/finance-advisor/services/providers"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	defaultModel     = "claude-3-5-haiku-latest"
	defaultMaxTokens = 800
	apiVersion       = "2023-06-01"
)

// Adapter implements providers.Provider for the Anthropic Messages API
type Adapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
}

// NewAdapter creates a new Anthropic adapter
func NewAdapter(config providers.ProviderConfig) *Adapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Model == "" {
		config.Model = defaultModel
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &Adapter{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// ID returns the provider identifier
func (a *Adapter) ID() providers.ProviderID {
	return providers.Anthropic
}

// Model returns the configured model
func (a *Adapter) Model() string {
	return a.config.Model
}

// Attempt sends one Messages request
func (a *Adapter) Attempt(ctx context.Context, prompt providers.Prompt) (json.RawMessage, error) {
	maxTokens := prompt.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	reqBody, err := json.Marshal(MessagesRequest{
		Model:     a.config.Model,
		System:    prompt.System,
		MaxTokens: maxTokens,
		Messages:  []Message{{Role: "user", Content: prompt.User}},
	})
	if err != nil {
		return nil, providers.NewProviderError(providers.Anthropic, "MARSHAL_ERROR", "failed to marshal request", 0, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/v1/messages", bytes.NewReader(reqBody))
	if err != nil {
		return nil, providers.NewProviderError(providers.Anthropic, "REQUEST_ERROR", "failed to create request", 0, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.config.APIKey)
	httpReq.Header.Set("anthropic-version", apiVersion)
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, providers.NewProviderError(providers.Anthropic, "HTTP_ERROR", "HTTP request failed", 0, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, providers.NewProviderError(providers.Anthropic, "READ_ERROR", "failed to read response", httpResp.StatusCode, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, handleErrorResponse(httpResp.StatusCode, respBody)
	}

	text := gjson.GetBytes(respBody, "content.0.text")
	if !text.Exists() {
		return nil, providers.NewProviderError(providers.Anthropic, "EMPTY_RESPONSE", "response has no text content", httpResp.StatusCode, nil)
	}

	return providers.ContentJSON(text.String()), nil
}

func handleErrorResponse(statusCode int, body []byte) error {
	if !gjson.ValidBytes(body) {
		return providers.NewProviderError(providers.Anthropic, "UNKNOWN_ERROR", strings.TrimSpace(string(body)), statusCode, nil)
	}

	parsed := gjson.ParseBytes(body)
	message := parsed.Get("error.message").String()
	if message == "" {
		message = fmt.Sprintf("upstream returned status %d", statusCode)
	}

	return providers.NewProviderError(providers.Anthropic, parsed.Get("error.type").String(), message, statusCode, nil)
}

type MessagesRequest struct {
	Model     string    `json:"model"`
	System    string    `json:"system,omitempty"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []Message `json:"messages"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
