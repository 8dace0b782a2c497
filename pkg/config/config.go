package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/platinummonkey/tenantd/pkg/billing"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Storage       StorageConfig
	Auth          AuthConfig
	Billing       BillingConfig
	Directory     DirectoryConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	PublicURL       string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
}

// StorageConfig holds tenant store configuration
type StorageConfig struct {
	DataDir           string
	MaxActors         int
	ActorIdleTimeout  time.Duration
	IdleSweepSchedule string
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	IssuerURL          string
	VerifyTimeout      time.Duration
	InternalSecret     string
	InternalSecretFile string
}

// BillingConfig holds billing provider configuration
type BillingConfig struct {
	StripeSecretKey string
	StripeAPIURL    string
	Timeout         time.Duration
	PriceTiers      map[string]billing.PlanTier
	AppURL          string
	RedisURL        string
	PlanCacheTTL    time.Duration
	PlanCacheSize   int
}

// DirectoryConfig holds identity directory configuration
type DirectoryConfig struct {
	APIURL    string
	SecretKey string
	Timeout   time.Duration
}

// ObservabilityConfig holds logging and telemetry configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads an optional .env file and then the environment
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds and validates configuration from the environment only
func FromEnv() (*Config, error) {
	billingCfg, err := loadBillingConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Auth:          loadAuthConfig(),
		Billing:       billingCfg,
		Directory:     loadDirectoryConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadServerConfig() ServerConfig {
	port := getEnv("TENANTD_PORT", "8080")
	return ServerConfig{
		Host:            getEnv("TENANTD_HOST", "0.0.0.0"),
		Port:            port,
		PublicURL:       strings.TrimRight(getEnv("TENANTD_PUBLIC_URL", "http://localhost:"+port), "/"),
		ReadTimeout:     getEnvDuration("TENANTD_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("TENANTD_WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:     getEnvDuration("TENANTD_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("TENANTD_SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:    getEnvInt64("TENANTD_MAX_BODY_BYTES", 1<<20),
	}
}

func loadStorageConfig() StorageConfig {
	return StorageConfig{
		DataDir:           getEnv("TENANTD_DATA_DIR", "./data"),
		MaxActors:         getEnvInt("TENANTD_MAX_ACTORS", 1024),
		ActorIdleTimeout:  getEnvDuration("TENANTD_ACTOR_IDLE_TIMEOUT", 15*time.Minute),
		IdleSweepSchedule: getEnv("TENANTD_IDLE_SWEEP_SCHEDULE", "@every 1m"),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		IssuerURL:          getEnv("AUTH_ISSUER_URL", ""),
		VerifyTimeout:      getEnvDuration("AUTH_VERIFY_TIMEOUT", 5*time.Second),
		InternalSecret:     getEnv("INTERNAL_TOKEN_SECRET", ""),
		InternalSecretFile: getEnv("INTERNAL_TOKEN_SECRET_FILE", ""),
	}
}

func loadBillingConfig() (BillingConfig, error) {
	tiers := make(map[string]billing.PlanTier)

	if path := getEnv("BILLING_PRICE_TIERS_FILE", ""); path != "" {
		fromFile, err := loadPriceTierFile(path)
		if err != nil {
			return BillingConfig{}, err
		}
		for price, tier := range fromFile {
			tiers[price] = tier
		}
	}

	fromEnv, err := ParsePriceTiers(getEnv("BILLING_PRICE_TIERS", ""))
	if err != nil {
		return BillingConfig{}, fmt.Errorf("BILLING_PRICE_TIERS: %w", err)
	}
	for price, tier := range fromEnv {
		tiers[price] = tier
	}

	return BillingConfig{
		StripeSecretKey: getEnv("STRIPE_SECRET_KEY", ""),
		StripeAPIURL:    getEnv("STRIPE_API_URL", ""),
		Timeout:         getEnvDuration("BILLING_TIMEOUT", 10*time.Second),
		PriceTiers:      tiers,
		AppURL:          strings.TrimRight(getEnv("APP_URL", "http://localhost:5173"), "/"),
		RedisURL:        getEnv("REDIS_URL", ""),
		PlanCacheTTL:    getEnvDuration("PLAN_CACHE_TTL", 5*time.Minute),
		PlanCacheSize:   getEnvInt("PLAN_CACHE_SIZE", 4096),
	}, nil
}

func loadDirectoryConfig() DirectoryConfig {
	return DirectoryConfig{
		APIURL:    getEnv("DIRECTORY_API_URL", "https://api.clerk.com/v1"),
		SecretKey: getEnv("DIRECTORY_SECRET_KEY", ""),
		Timeout:   getEnvDuration("DIRECTORY_TIMEOUT", 5*time.Second),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
		OTelEnabled:        getEnvBool("TENANTD_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("TENANTD_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("TENANTD_OTEL_SERVICE_NAME", "tenantd"),
		OTelServiceVersion: getEnv("TENANTD_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("TENANTD_OTEL_INSECURE", true),
	}
}

// ParsePriceTiers parses "price_a=STANDARD,price_b=ENTERPRISE"
func ParsePriceTiers(s string) (map[string]billing.PlanTier, error) {
	tiers := make(map[string]billing.PlanTier)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		price, tierName, ok := strings.Cut(pair, "=")
		price = strings.TrimSpace(price)
		if !ok || price == "" {
			return nil, fmt.Errorf("invalid price tier entry %q", pair)
		}
		tier, err := billing.ParsePlanTier(tierName)
		if err != nil {
			return nil, err
		}
		tiers[price] = tier
	}
	return tiers, nil
}

func loadPriceTierFile(path string) (map[string]billing.PlanTier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read price tier file: %w", err)
	}

	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse price tier file: %w", err)
	}

	tiers := make(map[string]billing.PlanTier, len(raw))
	for price, tierName := range raw {
		tier, err := billing.ParsePlanTier(tierName)
		if err != nil {
			return nil, fmt.Errorf("price tier file %s: %w", path, err)
		}
		tiers[price] = tier
	}
	return tiers, nil
}

// Validate checks required settings
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Auth.IssuerURL == "" {
		return fmt.Errorf("AUTH_ISSUER_URL is required")
	}
	if c.Auth.VerifyTimeout <= 0 {
		return fmt.Errorf("AUTH_VERIFY_TIMEOUT must be positive")
	}
	if c.Auth.InternalSecret != "" && c.Auth.InternalSecretFile != "" {
		return fmt.Errorf("set only one of INTERNAL_TOKEN_SECRET and INTERNAL_TOKEN_SECRET_FILE")
	}
	if c.Storage.MaxActors <= 0 {
		return fmt.Errorf("TENANTD_MAX_ACTORS must be positive")
	}
	if c.Storage.IdleSweepSchedule == "" {
		return fmt.Errorf("TENANTD_IDLE_SWEEP_SCHEDULE is required")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// InternalTokensConfigured reports whether a secret for internal tokens
// is provided
func (c *Config) InternalTokensConfigured() bool {
	return c.Auth.InternalSecret != "" || c.Auth.InternalSecretFile != ""
}

// Address returns the listen address
func (c *Config) Address() string {
	return c.Server.Host + ":" + c.Server.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
