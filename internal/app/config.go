package app

import (
	"io/fs"
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/gaurosa/storefront/internal/domain/checkout"
)

// Config holds the complete application configuration, loadable from
// environment variables (GAUROSA_ prefix), a .env file, flags, or YAML
// config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (GAUROSA_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisURL     string `usage:"Redis URL for the promotion cache, empty disables it (GAUROSA_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (GAUROSA_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Timezone     string `default:"Europe/Rome" usage:"Time zone of naive dates in synced promotions"`
	Promotions   PromotionsConfig
	Shipping     ShippingConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// PromotionsConfig controls the promotion cache.
type PromotionsConfig struct {
	CacheTTL time.Duration `default:"1m" usage:"How long active promotions stay cached in Redis" flag:"promotions-cache-ttl"`
}

// ShippingConfig is the flat-rate shipping policy, in euros.
type ShippingConfig struct {
	Cost          string `default:"5.90" usage:"Shipping cost"`
	FreeThreshold string `default:"45" usage:"Discounted subtotal from which shipping is free, 0 disables it"`
}

// Policy parses the configured amounts.
func (c ShippingConfig) Policy() (checkout.Shipping, error) {
	cost, err := decimal.NewFromString(c.Cost)
	if err != nil {
		return checkout.Shipping{}, errors.Wrap(err, "shipping cost")
	}
	free, err := decimal.NewFromString(c.FreeThreshold)
	if err != nil {
		return checkout.Shipping{}, errors.Wrap(err, "free shipping threshold")
	}
	if cost.IsNegative() || free.IsNegative() {
		return checkout.Shipping{}, errors.New("shipping amounts must not be negative")
	}
	return checkout.Shipping{Cost: cost, FreeThreshold: free}, nil
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, an optional
// .env file, YAML config files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	// Variables already set in the environment win over .env.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "GAUROSA",
		Files:     []string{"config.yaml", "/etc/gaurosa/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set GAUROSA_DATABASE_URL or DATABASE_URL")
	}
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	if _, err := cfg.Shipping.Policy(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, errors.Wrapf(err, "load timezone %q", c.Timezone)
	}
	return loc, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL, REDIS_URL and PORT
// to the application's GAUROSA_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.RedisURL == "" {
		c.RedisURL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
