package openai

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
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultModel     = "gpt-4o-mini"
	defaultMaxTokens = 800
)

// Adapter implements providers.Provider for OpenAI-compatible Chat Completions APIs
type Adapter struct {
	id         providers.ProviderID
	config     providers.ProviderConfig
	httpClient *http.Client
}

// NewAdapter creates a new OpenAI adapter
func NewAdapter(config providers.ProviderConfig) *Adapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Model == "" {
		config.Model = defaultModel
	}
	return NewCompatibleAdapter(providers.OpenAI, config)
}

// NewCompatibleAdapter creates an adapter for any service speaking the
// Chat Completions protocol under the given identifier.
func NewCompatibleAdapter(id providers.ProviderID, config providers.ProviderConfig) *Adapter {
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &Adapter{
		id:     id,
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// ID returns the provider identifier
func (a *Adapter) ID() providers.ProviderID {
	return a.id
}

// Model returns the configured model
func (a *Adapter) Model() string {
	return a.config.Model
}

// Attempt performs a single chat completion request. Retries are left to the caller.
func (a *Adapter) Attempt(ctx context.Context, prompt providers.Prompt) (json.RawMessage, error) {
	reqBody, err := json.Marshal(a.buildRequest(prompt))
	if err != nil {
		return nil, providers.NewProviderError(a.id, "MARSHAL_ERROR", "failed to marshal request", 0, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, providers.NewProviderError(a.id, "REQUEST_ERROR", "failed to create request", 0, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	if a.config.OrgID != "" {
		httpReq.Header.Set("OpenAI-Organization", a.config.OrgID)
	}
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, providers.NewProviderError(a.id, "HTTP_ERROR", "HTTP request failed", 0, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, providers.NewProviderError(a.id, "READ_ERROR", "failed to read response", httpResp.StatusCode, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, a.handleErrorResponse(httpResp.StatusCode, respBody)
	}

	content := gjson.GetBytes(respBody, "choices.0.message.content")
	if !content.Exists() {
		return nil, providers.NewProviderError(a.id, "EMPTY_RESPONSE", "response has no message content", httpResp.StatusCode, nil)
	}

	return providers.ContentJSON(content.String()), nil
}

// buildRequest converts the prompt to the Chat Completions format
func (a *Adapter) buildRequest(prompt providers.Prompt) *ChatRequest {
	req := &ChatRequest{
		Model:     a.config.Model,
		MaxTokens: prompt.MaxTokens,
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = defaultMaxTokens
	}
	if prompt.System != "" {
		req.Messages = append(req.Messages, Message{Role: "system", Content: prompt.System})
	}
	req.Messages = append(req.Messages, Message{Role: "user", Content: prompt.User})
	if a.config.JSONMode {
		req.ResponseFormat = &ResponseFormat{Type: "json_object"}
	}
	return req
}

// handleErrorResponse converts an error body into a ProviderError
func (a *Adapter) handleErrorResponse(statusCode int, body []byte) error {
	if !gjson.ValidBytes(body) {
		return providers.NewProviderError(a.id, "UNKNOWN_ERROR", strings.TrimSpace(string(body)), statusCode, nil)
	}

	parsed := gjson.ParseBytes(body)
	code := parsed.Get("error.code").String()
	if code == "" {
		code = parsed.Get("error.type").String()
	}
	message := parsed.Get("error.message").String()
	if message == "" {
		message = fmt.Sprintf("upstream returned status %d", statusCode)
	}

	return providers.NewProviderError(a.id, code, message, statusCode, nil)
}

// Chat Completions request types

type ChatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ResponseFormat struct {
	Type string `json:"type"`
}
