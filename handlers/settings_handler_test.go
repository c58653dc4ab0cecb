package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/finance-advisor/services/providers"
	"github.com/upb/finance-advisor/services/settings"
	"go.uber.org/zap"
)

func newTestSettingsHandler(t *testing.T) (*SettingsHandler, *settings.Store) {
	t.Helper()
	store, err := settings.NewStore(settings.Defaults(), nil)
	require.NoError(t, err)
	return NewSettingsHandler(store, zap.NewNop()), store
}

func decodeSettings(t *testing.T, w *httptest.ResponseRecorder) SettingsResponse {
	t.Helper()
	var response struct {
		Data SettingsResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	return response.Data
}

func TestSettingsHandler_Get(t *testing.T) {
	handler, _ := newTestSettingsHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/settings", nil)
	w := httptest.NewRecorder()

	handler.HandleGet(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	got := decodeSettings(t, w)
	assert.True(t, got.CacheEnabled)
	assert.Equal(t, int64(86400), got.CacheTTLSeconds)
	assert.Equal(t, "openai", got.DefaultProvider)
	assert.True(t, got.AutoFallback)
	assert.Equal(t, 3, got.MaxRetries)
	assert.Equal(t, []string{"openai", "anthropic", "perplexity", "rule_based"}, got.Providers)
}

func TestSettingsHandler_Update(t *testing.T) {
	t.Run("partial update", func(t *testing.T) {
		handler, store := newTestSettingsHandler(t)

		body := `{"cache_ttl_seconds":3600,"default_provider":"Perplexity","auto_fallback":false}`
		req := httptest.NewRequest(http.MethodPatch, "/api/v1/settings", strings.NewReader(body))
		w := httptest.NewRecorder()

		handler.HandleUpdate(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		got := decodeSettings(t, w)
		assert.Equal(t, int64(3600), got.CacheTTLSeconds)
		assert.Equal(t, "perplexity", got.DefaultProvider)
		assert.False(t, got.AutoFallback)
		assert.True(t, got.CacheEnabled, "omitted fields are unchanged")

		current := store.Current()
		assert.Equal(t, time.Hour, current.CacheTTL)
		assert.Equal(t, providers.Perplexity, current.DefaultProvider)
	})

	tests := []struct {
		name string
		body string
	}{
		{name: "empty update", body: `{}`},
		{name: "unknown field", body: `{"ttl":5}`},
		{name: "non positive ttl", body: `{"cache_ttl_seconds":0}`},
		{name: "ttl over one year", body: `{"cache_ttl_seconds":31536001}`},
		{name: "ttl that would overflow a duration", body: `{"cache_ttl_seconds":20000000000}`},
		{name: "unknown provider", body: `{"default_provider":"gemini"}`},
		{name: "retries out of range", body: `{"max_retries":0}`},
		{name: "malformed", body: `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, store := newTestSettingsHandler(t)
			before := store.Current()

			req := httptest.NewRequest(http.MethodPatch, "/api/v1/settings", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			handler.HandleUpdate(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, before, store.Current())
		})
	}
}
