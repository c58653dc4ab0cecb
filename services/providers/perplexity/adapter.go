// Package perplexity binds the Perplexity API, which speaks the Chat
// Completions protocol, to its own provider identifier.
package perplexity

import (
	"github.com/upb/finance-advisor/services/providers"
	"github.com/upb/finance-advisor/services/providers/openai"
)

const (
	defaultBaseURL = "https://api.perplexity.ai"
	defaultModel   = "sonar"
)

// NewAdapter creates a Perplexity adapter
func NewAdapter(config providers.ProviderConfig) *openai.Adapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Model == "" {
		config.Model = defaultModel
	}
	// Perplexity rejects the json_object response format.
	config.JSONMode = false
	return openai.NewCompatibleAdapter(providers.Perplexity, config)
}
