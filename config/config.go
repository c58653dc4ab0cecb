package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"github.com/upb/finance-advisor/services/providers"
)

// Cache backend names
const (
	CacheBackendFile     = "file"
	CacheBackendMemory   = "memory"
	CacheBackendSQLite   = "sqlite"
	CacheBackendPostgres = "postgres"
	CacheBackendRedis    = "redis"
)

var cacheBackends = []string{CacheBackendFile, CacheBackendMemory, CacheBackendSQLite, CacheBackendPostgres, CacheBackendRedis}

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig // Only used by the postgres cache backend
	Cache         CacheConfig
	Providers     ProvidersConfig
	Orchestration OrchestrationConfig
	Auth          AuthConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// CacheConfig selects and configures the response cache backend
type CacheConfig struct {
	Backend    string
	Dir        string // file backend
	SQLitePath string // sqlite backend
	MaxEntries int    // memory backend, 0 = unbounded
	Redis      RedisConfig
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// ProvidersConfig holds upstream provider configurations
type ProvidersConfig struct {
	OpenAI     ProviderConfig
	Anthropic  ProviderConfig
	Perplexity ProviderConfig
}

// ProviderConfig holds one provider's connection settings.
// A provider without an API key is not registered.
type ProviderConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	OrgID   string
	Timeout time.Duration
}

// Enabled reports whether the provider has credentials
func (p ProviderConfig) Enabled() bool {
	return p.APIKey != ""
}

// OrchestrationConfig seeds the runtime settings and tunes the engine
type OrchestrationConfig struct {
	CacheEnabled    bool
	CacheTTL        time.Duration
	DefaultProvider string
	AutoFallback    bool
	MaxRetries      int
	InitialDelay    time.Duration
	Deduplicate     bool
	SettingsFile    string // optional YAML overlay
}

// AuthConfig holds admin API authentication settings
type AuthConfig struct {
	AdminJWTSecret string
	Issuer         string
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or text
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 90*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			TLS: struct {
				Enabled  bool
				CertFile string
				KeyFile  string
			}{
				Enabled:  getEnvAsBool("TLS_ENABLED", false),
				CertFile: getEnv("TLS_CERT_FILE", "certs/cert.pem"),
				KeyFile:  getEnv("TLS_KEY_FILE", "certs/key.pem"),
			},
		},
		Database: loadDatabaseConfig(),
		Cache: CacheConfig{
			Backend:    strings.ToLower(getEnv("CACHE_BACKEND", CacheBackendFile)),
			Dir:        getEnv("CACHE_DIR", ".cache/advice"),
			SQLitePath: getEnv("CACHE_SQLITE_PATH", ".cache/advice.db"),
			MaxEntries: getEnvAsInt("CACHE_MAX_ENTRIES", 10000),
			Redis: RedisConfig{
				Addr:     getEnv("REDIS_ADDR", ""),
				Password: getEnv("REDIS_PASSWORD", ""),
				DB:       getEnvAsInt("REDIS_DB", 0),
				Prefix:   getEnv("REDIS_PREFIX", "advisor:cache:"),
			},
		},
		Providers: ProvidersConfig{
			OpenAI: ProviderConfig{
				APIKey:  getEnv("OPENAI_API_KEY", ""),
				BaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
				Model:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
				OrgID:   getEnv("OPENAI_ORG_ID", ""),
				Timeout: getEnvAsDuration("OPENAI_TIMEOUT", 60*time.Second),
			},
			Anthropic: ProviderConfig{
				APIKey:  getEnv("ANTHROPIC_API_KEY", ""),
				BaseURL: getEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
				Model:   getEnv("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
				Timeout: getEnvAsDuration("ANTHROPIC_TIMEOUT", 60*time.Second),
			},
			Perplexity: ProviderConfig{
				APIKey:  getEnv("PERPLEXITY_API_KEY", ""),
				BaseURL: getEnv("PERPLEXITY_BASE_URL", "https://api.perplexity.ai"),
				Model:   getEnv("PERPLEXITY_MODEL", "sonar"),
				Timeout: getEnvAsDuration("PERPLEXITY_TIMEOUT", 60*time.Second),
			},
		},
		Orchestration: OrchestrationConfig{
			CacheEnabled:    getEnvAsBool("CACHE_ENABLED", true),
			CacheTTL:        getEnvAsDuration("CACHE_TTL", 24*time.Hour),
			DefaultProvider: strings.ToLower(getEnv("DEFAULT_PROVIDER", string(providers.OpenAI))),
			AutoFallback:    getEnvAsBool("AUTO_FALLBACK", true),
			MaxRetries:      getEnvAsInt("MAX_RETRIES", 3),
			InitialDelay:    getEnvAsDuration("RETRY_INITIAL_DELAY", time.Second),
			Deduplicate:     getEnvAsBool("ORCHESTRATOR_DEDUPLICATE", false),
			SettingsFile:    getEnv("SETTINGS_FILE", ""),
		},
		Auth: AuthConfig{
			AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
			Issuer:         getEnv("ADMIN_JWT_ISSUER", "finance-advisor"),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if !lo.Contains(cacheBackends, c.Cache.Backend) {
		return fmt.Errorf("unknown cache backend %q (want one of %s)", c.Cache.Backend, strings.Join(cacheBackends, ", "))
	}

	switch c.Cache.Backend {
	case CacheBackendPostgres:
		if c.Database.ConnectionString == "" && c.Database.Host == "" {
			return fmt.Errorf("database configuration required for postgres cache: set DATABASE_URL or DB_HOST")
		}
		if c.Database.ConnectionString == "" {
			if c.Database.User == "" {
				return fmt.Errorf("database user is required")
			}
			if c.Database.Database == "" {
				return fmt.Errorf("database name is required")
			}
		}
	case CacheBackendRedis:
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR is required for redis cache")
		}
	case CacheBackendFile:
		if c.Cache.Dir == "" {
			return fmt.Errorf("CACHE_DIR is required for file cache")
		}
	case CacheBackendSQLite:
		if c.Cache.SQLitePath == "" {
			return fmt.Errorf("CACHE_SQLITE_PATH is required for sqlite cache")
		}
	}

	if _, err := providers.ParseProviderID(c.Orchestration.DefaultProvider); err != nil {
		return fmt.Errorf("invalid DEFAULT_PROVIDER: %w", err)
	}
	if c.Orchestration.CacheTTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}
	if c.Orchestration.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1")
	}
	if c.Orchestration.InitialDelay < 0 {
		return fmt.Errorf("retry initial delay cannot be negative")
	}

	// Production needs a real provider and a way to authenticate admins
	if c.IsProduction() {
		if !c.Providers.OpenAI.Enabled() &&
			!c.Providers.Anthropic.Enabled() &&
			!c.Providers.Perplexity.Enabled() {
			return fmt.Errorf("at least one provider must be configured in production")
		}
		if c.Auth.AdminJWTSecret == "" {
			return fmt.Errorf("ADMIN_JWT_SECRET is required in production")
		}
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}
	if c.Observability.LogFormat != "json" && c.Observability.LogFormat != "text" {
		return fmt.Errorf("log format must be json or text")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			return fmt.Sprintf("host=%s port=%s database=%s", u.Hostname(), port, strings.TrimPrefix(u.Path, "/"))
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	pool := DatabaseConfig{
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}

	if dbURL := getEnv("DATABASE_URL", ""); dbURL != "" {
		pool.ConnectionString = dbURL
		return pool
	}

	pool.Host = getEnv("DB_HOST", "")
	pool.Port = getEnvAsInt("DB_PORT", 5432)
	pool.User = getEnv("DB_USER", "advisor")
	pool.Password = getEnv("DB_PASSWORD", "")
	pool.Database = getEnv("DB_NAME", "advisor")
	pool.SSLMode = getEnv("DB_SSLMODE", "disable")
	return pool
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	for _, key := range []string{"PORT", "SERVER_PORT"} {
		if value := os.Getenv(key); value != "" {
			if p, err := strconv.Atoi(value); err == nil {
				return p
			}
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := lo.Map(strings.Split(valueStr, ","), func(s string, _ int) string {
		return strings.TrimSpace(s)
	})
	return lo.Compact(parts)
}
