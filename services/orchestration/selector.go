package orchestration

import "github.com/upb/finance-advisor/services/providers"

// fallbackOrders is the fixed lookup table of provider orders used when
// fallback is enabled. It is intentionally asymmetric; any preferred provider
// without an entry uses defaultFallbackOrder.
var fallbackOrders = map[providers.ProviderID][]providers.ProviderID{
	providers.Perplexity: {providers.Perplexity, providers.OpenAI, providers.Anthropic},
	providers.OpenAI:     {providers.OpenAI, providers.Perplexity, providers.Anthropic},
}

var defaultFallbackOrder = []providers.ProviderID{providers.Anthropic, providers.Perplexity, providers.OpenAI}

// Order returns the providers to try, in order. Without fallback only the
// preferred provider is tried. The returned slice is owned by the caller.
func Order(preferred providers.ProviderID, autoFallback bool) []providers.ProviderID {
	if !autoFallback {
		return []providers.ProviderID{preferred}
	}

	order, ok := fallbackOrders[preferred]
	if !ok {
		order = defaultFallbackOrder
	}
	return append([]providers.ProviderID(nil), order...)
}
