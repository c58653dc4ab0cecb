// Package settings owns the process-wide orchestration settings.
package settings

import (
	"fmt"
	"sync"
	"time"

	"github.com/upb/finance-advisor/services/providers"
	"go.uber.org/zap"
)

// Settings is an immutable snapshot of the orchestration knobs
type Settings struct {
	CacheEnabled    bool                 `json:"cache_enabled" yaml:"cache_enabled"`
	CacheTTL        time.Duration        `json:"cache_ttl" yaml:"cache_ttl"`
	DefaultProvider providers.ProviderID `json:"default_provider" yaml:"default_provider"`
	AutoFallback    bool                 `json:"auto_fallback" yaml:"auto_fallback"`
	MaxRetries      int                  `json:"max_retries" yaml:"max_retries"`
}

// Defaults returns the settings used when nothing is configured
func Defaults() Settings {
	return Settings{
		CacheEnabled:    true,
		CacheTTL:        24 * time.Hour,
		DefaultProvider: providers.OpenAI,
		AutoFallback:    true,
		MaxRetries:      3,
	}
}

// Validate checks invariants
func (s Settings) Validate() error {
	if !s.DefaultProvider.IsKnown() {
		return fmt.Errorf("%w: %q", providers.ErrUnknownProvider, s.DefaultProvider)
	}
	if s.CacheTTL <= 0 {
		return fmt.Errorf("cache TTL must be positive, got %s", s.CacheTTL)
	}
	if s.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1, got %d", s.MaxRetries)
	}
	return nil
}

// Partial carries the fields of an update; nil fields keep their value
type Partial struct {
	CacheEnabled    *bool
	CacheTTL        *time.Duration
	DefaultProvider *providers.ProviderID
	AutoFallback    *bool
	MaxRetries      *int
}

// IsEmpty reports whether the update changes nothing
func (p Partial) IsEmpty() bool {
	return p.CacheEnabled == nil && p.CacheTTL == nil && p.DefaultProvider == nil &&
		p.AutoFallback == nil && p.MaxRetries == nil
}

// Apply returns s with the non-nil fields of p merged in
func (p Partial) Apply(s Settings) Settings {
	if p.CacheEnabled != nil {
		s.CacheEnabled = *p.CacheEnabled
	}
	if p.CacheTTL != nil {
		s.CacheTTL = *p.CacheTTL
	}
	if p.DefaultProvider != nil {
		s.DefaultProvider = *p.DefaultProvider
	}
	if p.AutoFallback != nil {
		s.AutoFallback = *p.AutoFallback
	}
	if p.MaxRetries != nil {
		s.MaxRetries = *p.MaxRetries
	}
	return s
}

// Snapshot is what readers see: the settings plus the provider catalog
type Snapshot struct {
	Settings
	Providers []providers.ProviderID `json:"providers"`
}

// Store guards the current settings
type Store struct {
	mu      sync.RWMutex
	current Settings
	logger  *zap.Logger
}

// NewStore creates a store seeded with initial, which must be valid
func NewStore(initial Settings, logger *zap.Logger) (*Store, error) {
	if err := initial.Validate(); err != nil {
		return nil, fmt.Errorf("invalid initial settings: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{current: initial, logger: logger}, nil
}

// Current returns the settings value to hand to one orchestration call
func (s *Store) Current() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Get returns the current snapshot
func (s *Store) Get() Snapshot {
	return Snapshot{
		Settings:  s.Current(),
		Providers: providers.Catalog(),
	}
}

// Update merges p into the current settings. An invalid result leaves the
// settings untouched.
func (s *Store) Update(p Partial) (Snapshot, error) {
	s.mu.Lock()
	next := p.Apply(s.current)
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}
	prev := s.current
	s.current = next
	s.mu.Unlock()

	if prev != next {
		s.logger.Info("settings updated",
			zap.Bool("cache_enabled", next.CacheEnabled),
			zap.Duration("cache_ttl", next.CacheTTL),
			zap.String("default_provider", next.DefaultProvider.String()),
			zap.Bool("auto_fallback", next.AutoFallback),
			zap.Int("max_retries", next.MaxRetries),
		)
	}

	return Snapshot{Settings: next, Providers: providers.Catalog()}, nil
}
