// Package orchestration answers a request from the cache or by walking an
// ordered list of providers, retrying transient failures on each and moving
// on only when a provider's quota is exhausted.
package orchestration

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/upb/finance-advisor/services"
	"github.com/upb/finance-advisor/services/cache"
	"github.com/upb/finance-advisor/services/providers"
	"github.com/upb/finance-advisor/services/retry"
	"github.com/upb/finance-advisor/services/settings"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ServedByCache is the ServedBy value of a cache hit
const ServedByCache = "cache"

// CacheKeyProvider is the provider identity every cache key is computed
// against, so a cached answer is reused whichever provider produced it.
const CacheKeyProvider = providers.OpenAI

// DefaultInitialDelay is the backoff before the first retry
const DefaultInitialDelay = time.Second

// Attempter performs one call against one provider for the current request
type Attempter interface {
	Attempt(ctx context.Context) (json.RawMessage, error)
}

// AttemptFunc adapts a function to the Attempter interface
type AttemptFunc func(ctx context.Context) (json.RawMessage, error)

// Attempt calls f
func (f AttemptFunc) Attempt(ctx context.Context) (json.RawMessage, error) {
	return f(ctx)
}

// Cache is the part of cache.Store the engine uses
type Cache interface {
	Get(ctx context.Context, key string, policy cache.Policy) (*cache.Entry, bool)
	Put(ctx context.Context, key string, data json.RawMessage, policy cache.Policy)
}

// Result is the outcome of one successful Execute
type Result struct {
	Data     json.RawMessage `json:"data"`
	ServedBy string          `json:"served_by"`
}

// FromCache reports whether the result was a cache hit
func (r *Result) FromCache() bool {
	return r.ServedBy == ServedByCache
}

// Engine composes the cache, the provider order and the retry executor
type Engine struct {
	cache        Cache
	retry        *retry.Executor
	initialDelay time.Duration
	dedupe       bool
	inflight     singleflight.Group
	logger       *zap.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithRetryExecutor replaces the retry executor (tests inject a fake sleeper through it)
func WithRetryExecutor(r *retry.Executor) Option {
	return func(e *Engine) {
		if r != nil {
			e.retry = r
		}
	}
}

// WithInitialDelay sets the backoff before the first retry
func WithInitialDelay(d time.Duration) Option {
	return func(e *Engine) {
		e.initialDelay = d
	}
}

// WithDeduplication collapses concurrent executions of the same request
// into one provider walk
func WithDeduplication(enabled bool) Option {
	return func(e *Engine) {
		e.dedupe = enabled
	}
}

// NewEngine creates an orchestration engine
func NewEngine(c Cache, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		cache:        c,
		initialDelay: DefaultInitialDelay,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.retry == nil {
		e.retry = retry.NewExecutor(retry.WithLogger(logger))
	}
	return e
}

// Execute answers payload from the cache or from the providers selected by
// preferred and s.AutoFallback. Errors from the last provider tried are
// returned unchanged.
func (e *Engine) Execute(
	ctx context.Context,
	payload any,
	attempters map[providers.ProviderID]Attempter,
	preferred providers.ProviderID,
	s settings.Settings,
) (*Result, error) {
	key, err := cache.Key(CacheKeyProvider, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", services.ErrInvalidPayload, err)
	}

	policy := cache.Policy{Enabled: s.CacheEnabled, TTL: s.CacheTTL}
	if entry, ok := e.cache.Get(ctx, key, policy); ok {
		e.logger.Debug("served from cache", zap.String("cache_key", key))
		return &Result{Data: entry.Data, ServedBy: ServedByCache}, nil
	}

	if !e.dedupe {
		return e.dispatch(ctx, key, policy, attempters, preferred, s)
	}

	// The shared walk outlives any single caller; each caller waits on its own ctx.
	ch := e.inflight.DoChan(key, func() (any, error) {
		return e.dispatch(context.WithoutCancel(ctx), key, policy, attempters, preferred, s)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		if r.Shared {
			e.logger.Debug("joined in-flight request", zap.String("cache_key", key))
		}
		res := *r.Val.(*Result)
		return &res, nil
	}
}

func (e *Engine) dispatch(
	ctx context.Context,
	key string,
	policy cache.Policy,
	attempters map[providers.ProviderID]Attempter,
	preferred providers.ProviderID,
	s settings.Settings,
) (*Result, error) {
	order := Order(preferred, s.AutoFallback)
	rp := retry.Policy{MaxRetries: s.MaxRetries, InitialDelay: e.initialDelay}

	if !s.AutoFallback {
		id := order[0]
		a, ok := attempters[id]
		if !ok || a == nil {
			return nil, fmt.Errorf("%w: %s", services.ErrProviderNotConfigured, id)
		}
		return e.attempt(ctx, key, policy, id, a, rp)
	}

	var lastErr error
	for _, id := range order {
		a, ok := attempters[id]
		if !ok || a == nil {
			e.logger.Warn("skipping unconfigured provider", zap.String("provider", id.String()))
			continue
		}

		res, err := e.attempt(ctx, key, policy, id, a, rp)
		if err == nil {
			return res, nil
		}
		if !providers.IsQuotaExceeded(err) {
			return nil, err
		}

		e.logger.Warn("provider quota exhausted, falling back",
			zap.String("provider", id.String()),
			zap.Error(err),
		)
		lastErr = err
	}

	if lastErr == nil {
		return nil, fmt.Errorf("%w: none of %v is configured", services.ErrNoProviderAvailable, order)
	}
	return nil, lastErr
}

// attempt runs one provider under the retry policy and writes a success through to the cache
func (e *Engine) attempt(
	ctx context.Context,
	key string,
	policy cache.Policy,
	id providers.ProviderID,
	a Attempter,
	rp retry.Policy,
) (*Result, error) {
	start := time.Now()

	data, err := retry.Do(ctx, e.retry, rp, a.Attempt)
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: %s returned invalid JSON", services.ErrProviderError, id)
	}

	e.cache.Put(ctx, key, data, policy)

	e.logger.Info("served by provider",
		zap.String("provider", id.String()),
		zap.Duration("latency", time.Since(start)),
	)
	return &Result{Data: data, ServedBy: id.String()}, nil
}
