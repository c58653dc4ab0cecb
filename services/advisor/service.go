// Package advisor turns a user's finance question into an orchestrated
// provider call.
package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/upb/finance-advisor/internal/prompt"
	"github.com/upb/finance-advisor/services"
	"github.com/upb/finance-advisor/services/cache"
	"github.com/upb/finance-advisor/services/orchestration"
	"github.com/upb/finance-advisor/services/providers"
	"github.com/upb/finance-advisor/services/settings"
	"go.uber.org/zap"
)

const systemPrompt = `You are a careful personal-finance assistant. Answer with a single JSON object ` +
	`of the form {"summary": string, "recommendations": [string]}. ` +
	`Base the answer only on the question and the financial context provided.`

const maxTokens = 800

// Request is one advice request
type Request struct {
	Question string         `json:"question"`
	Context  map[string]any `json:"context,omitempty"`
	// Provider overrides the configured default provider when set
	Provider string `json:"provider,omitempty"`
}

// Advice is the answer returned to callers
type Advice struct {
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
	ServedBy  string          `json:"served_by"`
	LatencyMs int64           `json:"latency_ms"`
}

// Payload is the cache identity of a request
type Payload struct {
	Question string         `json:"question"`
	Context  map[string]any `json:"context"`
}

// Executor is the part of the orchestration engine the service needs
type Executor interface {
	Execute(
		ctx context.Context,
		payload any,
		attempters map[providers.ProviderID]orchestration.Attempter,
		preferred providers.ProviderID,
		s settings.Settings,
	) (*orchestration.Result, error)
}

// Service answers advice requests
type Service struct {
	registry *providers.Registry
	engine   Executor
	settings *settings.Store
	logger   *zap.Logger
}

// NewService creates an advisor service
func NewService(registry *providers.Registry, engine Executor, settingsStore *settings.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		registry: registry,
		engine:   engine,
		settings: settingsStore,
		logger:   logger,
	}
}

// Advise answers req from the cache or the configured providers
func (s *Service) Advise(ctx context.Context, req Request) (*Advice, error) {
	start := time.Now()
	requestID := uuid.New().String()

	payload, err := BuildPayload(req)
	if err != nil {
		return nil, err
	}

	current := s.settings.Current()
	preferred, err := s.preferredProvider(req, current)
	if err != nil {
		return nil, err
	}

	p, err := buildPrompt(payload)
	if err != nil {
		return nil, err
	}

	attempters := lo.MapValues(s.registry.Snapshot(), func(provider providers.Provider, _ providers.ProviderID) orchestration.Attempter {
		return orchestration.AttemptFunc(func(ctx context.Context) (json.RawMessage, error) {
			return provider.Attempt(ctx, p)
		})
	})

	result, err := s.engine.Execute(ctx, payload, attempters, preferred, current)
	if err != nil {
		s.logger.Warn("advice request failed",
			zap.String("request_id", requestID),
			zap.String("preferred_provider", preferred.String()),
			zap.Error(err),
		)
		return nil, err
	}

	advice := &Advice{
		RequestID: requestID,
		Data:      result.Data,
		ServedBy:  result.ServedBy,
		LatencyMs: time.Since(start).Milliseconds(),
	}

	s.logger.Info("advice served",
		zap.String("request_id", requestID),
		zap.String("served_by", advice.ServedBy),
		zap.Int64("latency_ms", advice.LatencyMs),
	)

	return advice, nil
}

// CacheKey returns the cache key req would be stored under
func CacheKey(req Request) (string, error) {
	payload, err := BuildPayload(req)
	if err != nil {
		return "", err
	}
	key, err := cache.Key(orchestration.CacheKeyProvider, payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", services.ErrInvalidPayload, err)
	}
	return key, nil
}

// BuildPayload validates req and returns its sanitized payload. Credentials
// and personal data in the question are redacted before it is cached or
// sent anywhere.
func BuildPayload(req Request) (Payload, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return Payload{}, services.ErrEmptyQuestion
	}
	if err := prompt.Guard(question); err != nil {
		return Payload{}, services.WrapValidation("question rejected", err)
	}

	ctxData := req.Context
	if ctxData == nil {
		ctxData = map[string]any{}
	}

	return Payload{
		Question: prompt.Sanitize(question),
		Context:  ctxData,
	}, nil
}

func (s *Service) preferredProvider(req Request, current settings.Settings) (providers.ProviderID, error) {
	if req.Provider == "" {
		return current.DefaultProvider, nil
	}
	id, err := providers.ParseProviderID(req.Provider)
	if err != nil {
		return "", fmt.Errorf("%w: %v", services.ErrInvalidProvider, err)
	}
	return id, nil
}

func buildPrompt(payload Payload) (providers.Prompt, error) {
	user := payload.Question
	if len(payload.Context) > 0 {
		ctxJSON, err := cache.CanonicalJSON(payload.Context)
		if err != nil {
			return providers.Prompt{}, fmt.Errorf("%w: %v", services.ErrInvalidPayload, err)
		}
		user += "\n\nFinancial context (JSON): " + string(ctxJSON)
	}

	return providers.Prompt{
		System:    systemPrompt,
		User:      user,
		MaxTokens: maxTokens,
	}, nil
}
