package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/upb/finance-advisor/config"
	"github.com/upb/finance-advisor/middleware"
	"github.com/upb/finance-advisor/repositories/postgres"
	"github.com/upb/finance-advisor/services"
	"github.com/upb/finance-advisor/services/advisor"
	"github.com/upb/finance-advisor/services/cache"
	"github.com/upb/finance-advisor/services/orchestration"
	"github.com/upb/finance-advisor/services/providers"
	"github.com/upb/finance-advisor/services/providers/anthropic"
	"github.com/upb/finance-advisor/services/providers/openai"
	"github.com/upb/finance-advisor/services/providers/perplexity"
	"github.com/upb/finance-advisor/services/retry"
	"github.com/upb/finance-advisor/services/settings"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB // nil unless the postgres cache backend is selected
	Logger *zap.Logger

	// Orchestration
	Registry *providers.Registry
	Cache    *cache.Store
	Settings *settings.Store
	Engine   *orchestration.Engine
	Advisor  *advisor.Service

	// Auth
	TokenValidator middleware.TokenValidator
	AuthMiddleware *middleware.AuthMiddleware

	// fsys backs the file cache backend; tests swap in an in-memory filesystem
	fsys afero.Fs
}

// Option customizes dependency construction
type Option func(*Dependencies)

// WithFs sets the filesystem used by the file cache backend
func WithFs(fsys afero.Fs) Option {
	return func(d *Dependencies) {
		d.fsys = fsys
	}
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*Dependencies, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
		fsys:   afero.NewOsFs(),
	}
	for _, opt := range opts {
		opt(deps)
	}

	if err := deps.initCache(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	if err := deps.initProviders(cfg); err != nil {
		deps.closeQuietly(ctx)
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	if err := deps.initSettings(cfg); err != nil {
		deps.closeQuietly(ctx)
		return nil, fmt.Errorf("failed to initialize settings: %w", err)
	}

	deps.initOrchestration(cfg)
	deps.initAuth(cfg)

	logger.Info("all dependencies initialized successfully",
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.Strings("providers", providerNames(deps.Registry.IDs())),
	)
	return deps, nil
}

// initCache opens the configured cache backend and wraps it in a store
func (d *Dependencies) initCache(ctx context.Context, cfg *config.Config) error {
	var backend cache.Backend

	switch cfg.Cache.Backend {
	case config.CacheBackendMemory:
		backend = cache.NewMemoryBackend(cfg.Cache.MaxEntries)

	case config.CacheBackendFile:
		fb, err := cache.NewFileBackend(d.fsys, cfg.Cache.Dir)
		if err != nil {
			return err
		}
		backend = fb

	case config.CacheBackendSQLite:
		sb, err := cache.NewSQLiteBackend(cfg.Cache.SQLitePath)
		if err != nil {
			return err
		}
		backend = sb

	case config.CacheBackendPostgres:
		db, err := postgres.NewDB(cfg.Database, d.Logger)
		if err != nil {
			return err
		}
		if err := db.InitCacheSchema(ctx); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to initialize cache schema: %w", err)
		}
		d.DB = db
		backend = postgres.NewCacheRepository(db, d.Logger)

	case config.CacheBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("redis ping failed: %w", err)
		}
		backend = cache.NewRedisBackend(client, cfg.Cache.Redis.Prefix)

	default:
		return fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}

	d.Cache = cache.NewStore(backend, d.Logger)
	d.Logger.Info("cache initialized", zap.String("backend", backend.Name()))
	return nil
}

// initProviders registers every provider that has credentials
func (d *Dependencies) initProviders(cfg *config.Config) error {
	registry := providers.NewRegistry()

	candidates := []struct {
		id  providers.ProviderID
		cfg config.ProviderConfig
		new func(providers.ProviderConfig) providers.Provider
	}{
		{providers.OpenAI, cfg.Providers.OpenAI, func(pc providers.ProviderConfig) providers.Provider {
			pc.JSONMode = true
			return openai.NewAdapter(pc)
		}},
		{providers.Anthropic, cfg.Providers.Anthropic, func(pc providers.ProviderConfig) providers.Provider {
			return anthropic.NewAdapter(pc)
		}},
		{providers.Perplexity, cfg.Providers.Perplexity, func(pc providers.ProviderConfig) providers.Provider {
			return perplexity.NewAdapter(pc)
		}},
	}

	for _, c := range candidates {
		if !c.cfg.Enabled() {
			continue
		}
		p := c.new(providers.ProviderConfig{
			APIKey:  c.cfg.APIKey,
			BaseURL: c.cfg.BaseURL,
			Model:   c.cfg.Model,
			OrgID:   c.cfg.OrgID,
			Timeout: c.cfg.Timeout,
		})
		if err := registry.Register(p); err != nil {
			return err
		}
		d.Logger.Info("registered provider",
			zap.String("provider", c.id.String()),
			zap.String("model", c.cfg.Model),
		)
	}

	if registry.Count() == 0 {
		d.Logger.Warn("no LLM providers configured")
	}

	d.Registry = registry
	return nil
}

// initSettings seeds the settings store from config, then applies the
// optional YAML overlay
func (d *Dependencies) initSettings(cfg *config.Config) error {
	o := cfg.Orchestration
	seed := settings.Settings{
		CacheEnabled:    o.CacheEnabled,
		CacheTTL:        o.CacheTTL,
		DefaultProvider: providers.ProviderID(o.DefaultProvider),
		AutoFallback:    o.AutoFallback,
		MaxRetries:      o.MaxRetries,
	}

	if o.SettingsFile != "" {
		overlay, err := settings.LoadFile(o.SettingsFile)
		if err != nil {
			return err
		}
		seed = overlay.Apply(seed)
		d.Logger.Info("settings file applied", zap.String("path", o.SettingsFile))
	}

	store, err := settings.NewStore(seed, d.Logger)
	if err != nil {
		return err
	}
	d.Settings = store
	return nil
}

func (d *Dependencies) initOrchestration(cfg *config.Config) {
	executor := retry.NewExecutor(retry.WithLogger(d.Logger))
	d.Engine = orchestration.NewEngine(d.Cache, d.Logger,
		orchestration.WithRetryExecutor(executor),
		orchestration.WithInitialDelay(cfg.Orchestration.InitialDelay),
		orchestration.WithDeduplication(cfg.Orchestration.Deduplicate),
	)
	d.Advisor = advisor.NewService(d.Registry, d.Engine, d.Settings, d.Logger)
}

func (d *Dependencies) initAuth(cfg *config.Config) {
	if cfg.Auth.AdminJWTSecret == "" {
		d.Logger.Warn("admin JWT secret not configured, admin endpoints disabled")
		// Reject-all validator so protected routes return 401
		d.TokenValidator = rejectAllValidator{}
		d.AuthMiddleware = middleware.NewAuthMiddleware(d.TokenValidator, d.Logger)
		return
	}
	d.TokenValidator = middleware.NewHMACValidator(cfg.Auth.AdminJWTSecret, cfg.Auth.Issuer)
	d.AuthMiddleware = middleware.NewAuthMiddleware(d.TokenValidator, d.Logger)
	d.Logger.Info("admin auth initialized", zap.String("issuer", cfg.Auth.Issuer))
}

// rejectAllValidator rejects all tokens (used when no admin secret is configured)
type rejectAllValidator struct{}

func (rejectAllValidator) ValidateToken(context.Context, string) (*middleware.Claims, error) {
	return nil, fmt.Errorf("%w: authentication not configured", services.ErrUnauthorized)
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Cache != nil {
		if err := d.Cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close cache: %w", err))
		} else {
			d.Logger.Info("cache closed")
		}
	}

	// The postgres cache repository closes d.DB with the store
	if d.DB != nil && d.Cache == nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	return errors.Join(errs...)
}

func (d *Dependencies) closeQuietly(ctx context.Context) {
	if err := d.Close(ctx); err != nil {
		d.Logger.Warn("cleanup after failed initialization", zap.Error(err))
	}
}

func providerNames(ids []providers.ProviderID) []string {
	return lo.Map(ids, func(id providers.ProviderID, _ int) string {
		return id.String()
	})
}
