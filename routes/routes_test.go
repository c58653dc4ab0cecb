package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/finance-advisor/app"
	"github.com/upb/finance-advisor/config"
	"github.com/upb/finance-advisor/middleware"
	"go.uber.org/zap/zaptest"
)

const (
	testSecret = "route-test-secret"
	testIssuer = "finance-advisor-test"
)

type testServer struct {
	handler  http.Handler
	upstream *atomic.Int32
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	var calls atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"summary\":\"save\",\"recommendations\":[]}"}}]}`))
	}))
	t.Cleanup(upstream.Close)

	cfg := &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			WriteTimeout:   5 * time.Second,
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Cache: config.CacheConfig{Backend: config.CacheBackendMemory},
		Providers: config.ProvidersConfig{
			OpenAI: config.ProviderConfig{
				APIKey:  "sk-test",
				BaseURL: upstream.URL,
				Model:   "gpt-4o-mini",
				Timeout: time.Second,
			},
		},
		Orchestration: config.OrchestrationConfig{
			CacheEnabled:    true,
			CacheTTL:        time.Hour,
			DefaultProvider: "openai",
			AutoFallback:    true,
			MaxRetries:      1,
			InitialDelay:    time.Millisecond,
		},
		Auth: config.AuthConfig{AdminJWTSecret: testSecret, Issuer: testIssuer},
		Observability: config.ObservabilityConfig{
			LogLevel:  "debug",
			LogFormat: "text",
		},
	}

	deps, err := app.NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close(context.Background()) })

	return &testServer{handler: SetupRoutes(deps), upstream: &calls}
}

func (s *testServer) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func adminToken(t *testing.T, roles ...string) string {
	t.Helper()

	token, err := middleware.NewHMACValidator(testSecret, testIssuer).IssueToken("ops", roles, time.Minute)
	require.NoError(t, err)
	return token
}

func TestSetupRoutes_Health(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))
}

func TestSetupRoutes_NotFound(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/nope", "", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "endpoint not found")
}

func TestSetupRoutes_AdviceIsCached(t *testing.T) {
	srv := newTestServer(t)
	body := `{"question":"How much should I save?","context":{"income":4000}}`

	var first struct {
		Data struct {
			RequestID string          `json:"request_id"`
			Data      json.RawMessage `json:"data"`
			ServedBy  string          `json:"served_by"`
		} `json:"data"`
	}
	rec := srv.do(t, http.MethodPost, "/api/v1/advice", body, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.Equal(t, "openai", first.Data.ServedBy)
	assert.JSONEq(t, `{"summary":"save","recommendations":[]}`, string(first.Data.Data))

	second := first
	rec = srv.do(t, http.MethodPost, "/api/v1/advice", body, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.Equal(t, "cache", second.Data.ServedBy)
	assert.NotEqual(t, first.Data.RequestID, second.Data.RequestID)

	assert.Equal(t, int32(1), srv.upstream.Load())
}

func TestSetupRoutes_AdviceValidation(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/v1/advice", `{"question":""}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/v1/advice", `{"question":"hi","provider":"carrier-pigeon"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, int32(0), srv.upstream.Load())
}

func TestSetupRoutes_Settings(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/api/v1/settings", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"default_provider":"openai"`)

	patch := `{"default_provider":"anthropic","max_retries":2}`

	rec = srv.do(t, http.MethodPatch, "/api/v1/settings", patch, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = srv.do(t, http.MethodPatch, "/api/v1/settings", patch, adminToken(t, "viewer"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = srv.do(t, http.MethodPatch, "/api/v1/settings", patch, adminToken(t, middleware.RoleAdmin))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"default_provider":"anthropic"`)
	assert.Contains(t, rec.Body.String(), `"max_retries":2`)
}

func TestSetupRoutes_CacheAdmin(t *testing.T) {
	srv := newTestServer(t)
	token := adminToken(t, middleware.RoleAdmin)

	rec := srv.do(t, http.MethodPost, "/api/v1/advice", `{"question":"Should I pay off debt first?"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/v1/cache/stats", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"writes":1`)

	rec = srv.do(t, http.MethodDelete, "/api/v1/cache", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = srv.do(t, http.MethodDelete, "/api/v1/cache", "", token)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/v1/advice", `{"question":"Should I pay off debt first?"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(2), srv.upstream.Load())
}
