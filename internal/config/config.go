package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Cache backend constants
const (
	CacheTypeNone       = "none"
	CacheTypeMemory     = "memory"
	CacheTypeRedisAside = "redis-aside"
)

// Rate limit store constants
const (
	RateLimitStoreMemory = "memory"
	RateLimitStoreRedis  = "redis"
)

// ProviderConfig holds the OAuth settings for one upstream provider.
// AuthURL, TokenURL and APIURL have production defaults but can be
// overridden, which is how tests point the clients at local fakes.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURL      string
	TokenURL     string
	APIURL       string
	Scopes       []string
}

type Config struct {
	// Server settings
	ServerAddr  string
	BaseURL     string
	FrontendURL string

	// Session settings (CSRF state for login redirects)
	SessionSecret string

	// Cookie settings
	CookieSecure bool          // false for local development over plain HTTP
	CookieMaxAge time.Duration // long horizon so the cookie survives refreshes

	// Providers
	Oura   ProviderConfig
	Strava ProviderConfig

	// Outbound HTTP timeouts
	TokenTimeout    time.Duration // token exchange/refresh calls
	ResourceTimeout time.Duration // resource proxy calls

	// Insights upstream (narrative analysis API)
	InsightsAPIURL     string
	InsightsAPIKey     string
	InsightsTimeout    time.Duration
	InsightsMaxRetries int
	InsightsRetryDelay time.Duration
	InsightsMaxDelay   time.Duration

	// Resource response cache
	CacheType string // "none", "memory" or "redis-aside"
	CacheTTL  time.Duration

	// Rate limiting (insights endpoint)
	RateLimitEnabled   bool
	RateLimitPerMinute int
	RateLimitStore     string // "memory" or "redis"

	// Redis (cache and rate limit stores)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Metrics
	MetricsEnabled bool
}

func Load() *Config {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	return &Config{
		ServerAddr:  getEnv("SERVER_ADDR", ":8080"),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		FrontendURL: getEnv("FRONTEND_URL", "/"),

		SessionSecret: getEnv("SESSION_SECRET", "session-secret-change-in-production"),

		CookieSecure: getEnvBool("COOKIE_SECURE", true),
		CookieMaxAge: getEnvDuration("COOKIE_MAX_AGE", 720*time.Hour), // 30 days

		Oura: ProviderConfig{
			ClientID:     getEnv("OURA_CLIENT_ID", ""),
			ClientSecret: getEnv("OURA_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("OURA_REDIRECT_URI", ""),
			AuthURL:      getEnv("OURA_AUTH_URL", "https://cloud.ouraring.com/oauth/authorize"),
			TokenURL:     getEnv("OURA_TOKEN_URL", "https://api.ouraring.com/oauth/token"),
			APIURL:       getEnv("OURA_API_URL", "https://api.ouraring.com"),
			Scopes:       getEnvSlice("OURA_SCOPES", []string{"daily", "tag"}),
		},
		Strava: ProviderConfig{
			ClientID:     getEnv("STRAVA_CLIENT_ID", ""),
			ClientSecret: getEnv("STRAVA_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("STRAVA_REDIRECT_URI", ""),
			AuthURL:      getEnv("STRAVA_AUTH_URL", "https://www.strava.com/oauth/authorize"),
			TokenURL:     getEnv("STRAVA_TOKEN_URL", "https://www.strava.com/oauth/token"),
			APIURL:       getEnv("STRAVA_API_URL", "https://www.strava.com/api/v3"),
			Scopes:       getEnvSlice("STRAVA_SCOPES", []string{"activity:read_all"}),
		},

		TokenTimeout:    getEnvDuration("TOKEN_TIMEOUT", 15*time.Second),
		ResourceTimeout: getEnvDuration("RESOURCE_TIMEOUT", 15*time.Second),

		InsightsAPIURL:     getEnv("INSIGHTS_API_URL", ""),
		InsightsAPIKey:     getEnv("INSIGHTS_API_KEY", ""),
		InsightsTimeout:    getEnvDuration("INSIGHTS_TIMEOUT", 60*time.Second),
		InsightsMaxRetries: getEnvInt("INSIGHTS_MAX_RETRIES", 2),
		InsightsRetryDelay: getEnvDuration("INSIGHTS_RETRY_DELAY", 1*time.Second),
		InsightsMaxDelay:   getEnvDuration("INSIGHTS_MAX_RETRY_DELAY", 10*time.Second),

		CacheType: getEnv("CACHE_TYPE", CacheTypeNone),
		CacheTTL:  getEnvDuration("CACHE_TTL", 5*time.Minute),

		RateLimitEnabled:   getEnvBool("RATE_LIMIT_ENABLED", true),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		RateLimitStore:     getEnv("RATE_LIMIT_STORE", RateLimitStoreMemory),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MetricsEnabled: getEnvBool("METRICS_ENABLED", false),
	}
}

// Validate checks enum fields and cross-field requirements.
func (c *Config) Validate() error {
	switch c.CacheType {
	case CacheTypeNone, CacheTypeMemory, CacheTypeRedisAside:
	default:
		return fmt.Errorf("invalid CACHE_TYPE value: %q (must be: none, memory, redis-aside)", c.CacheType)
	}

	switch c.RateLimitStore {
	case RateLimitStoreMemory, RateLimitStoreRedis:
	default:
		return fmt.Errorf("invalid RATE_LIMIT_STORE value: %q (must be: memory, redis)", c.RateLimitStore)
	}

	if c.CacheType == CacheTypeRedisAside && c.RedisAddr == "" {
		return errors.New("REDIS_ADDR is required when CACHE_TYPE=redis-aside")
	}
	if c.RateLimitEnabled && c.RateLimitStore == RateLimitStoreRedis && c.RedisAddr == "" {
		return errors.New("REDIS_ADDR is required when RATE_LIMIT_STORE=redis")
	}

	if c.CacheTTL <= 0 {
		return errors.New("CACHE_TTL must be positive")
	}

	return nil
}

// ValidateProviders checks that each enabled provider carries complete
// OAuth credentials. A provider with an empty client ID is treated as
// disabled rather than misconfigured.
func (c *Config) ValidateProviders() error {
	if err := validateProvider("OURA", c.Oura); err != nil {
		return err
	}
	return validateProvider("STRAVA", c.Strava)
}

func validateProvider(name string, p ProviderConfig) error {
	if p.ClientID == "" {
		return nil // disabled
	}
	if p.ClientSecret == "" {
		return fmt.Errorf("%s_CLIENT_SECRET is required when %s_CLIENT_ID is set", name, name)
	}
	if p.RedirectURI == "" {
		return fmt.Errorf("%s_REDIRECT_URI is required when %s_CLIENT_ID is set", name, name)
	}
	return nil
}

// Enabled reports whether the provider has credentials configured.
func (p ProviderConfig) Enabled() bool {
	return p.ClientID != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var parts []string
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		if len(parts) > 0 {
			return parts
		}
	}
	return defaultValue
}
