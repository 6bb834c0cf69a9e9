package api

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/Apurer/catalog-gateway/internal/clients/http/resilient"
)

const envPrefix = "GATEWAY"

// Config carries environment-driven settings for the gateway process.
type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	Version     string `envconfig:"VERSION" default:"1.0.0"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	// TraceExporter selects otlp, stdout or none.
	TraceExporter string `envconfig:"TRACE_EXPORTER" default:"otlp"`

	CatalogBaseURL string `envconfig:"CATALOG_BASE_URL" default:"http://localhost:8081"`
	StockBaseURL   string `envconfig:"STOCK_BASE_URL" default:"http://localhost:8082"`

	RequestTimeout   time.Duration `envconfig:"REQUEST_TIMEOUT" default:"10s"`
	MaxRetries       int           `envconfig:"MAX_RETRIES" default:"3"`
	RetryBaseDelay   time.Duration `envconfig:"RETRY_BASE_DELAY" default:"1s"`
	RetryMaxJitter   time.Duration `envconfig:"RETRY_MAX_JITTER" default:"500ms"`
	FailureThreshold float64       `envconfig:"BREAKER_FAILURE_THRESHOLD" default:"50"`
	MinRequests      uint32        `envconfig:"BREAKER_MIN_REQUESTS" default:"1"`
	ResetTimeout     time.Duration `envconfig:"BREAKER_RESET_TIMEOUT" default:"30s"`
	RollingWindow    time.Duration `envconfig:"BREAKER_ROLLING_WINDOW" default:"15s"`

	CacheTTL       time.Duration `envconfig:"CACHE_TTL" default:"30s"`
	IdempotencyTTL time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"5m"`
	SweepInterval  time.Duration `envconfig:"SWEEP_INTERVAL" default:"1m"`

	KafkaBrokers string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string `envconfig:"KAFKA_TOPIC" default:"gateway.circuit-events"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// LoadConfig reads GATEWAY_* environment variables, applies defaults, and validates them.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Port) == "" {
		errs = append(errs, errors.New("GATEWAY_PORT must not be empty"))
	}
	if strings.TrimSpace(c.CatalogBaseURL) == "" {
		errs = append(errs, errors.New("GATEWAY_CATALOG_BASE_URL must not be empty"))
	}
	if strings.TrimSpace(c.StockBaseURL) == "" {
		errs = append(errs, errors.New("GATEWAY_STOCK_BASE_URL must not be empty"))
	}
	if c.MaxRetries < 1 {
		errs = append(errs, errors.New("GATEWAY_MAX_RETRIES must be at least 1"))
	}
	if c.FailureThreshold <= 0 || c.FailureThreshold > 100 {
		errs = append(errs, errors.New("GATEWAY_BREAKER_FAILURE_THRESHOLD must be in (0, 100]"))
	}
	for name, d := range map[string]time.Duration{
		"GATEWAY_REQUEST_TIMEOUT":        c.RequestTimeout,
		"GATEWAY_RETRY_BASE_DELAY":       c.RetryBaseDelay,
		"GATEWAY_BREAKER_RESET_TIMEOUT":  c.ResetTimeout,
		"GATEWAY_BREAKER_ROLLING_WINDOW": c.RollingWindow,
		"GATEWAY_CACHE_TTL":              c.CacheTTL,
		"GATEWAY_IDEMPOTENCY_TTL":        c.IdempotencyTTL,
		"GATEWAY_SWEEP_INTERVAL":         c.SweepInterval,
		"GATEWAY_SHUTDOWN_TIMEOUT":       c.ShutdownTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.RetryMaxJitter < 0 {
		errs = append(errs, errors.New("GATEWAY_RETRY_MAX_JITTER must not be negative"))
	}
	return errors.Join(errs...)
}

// Upstream builds the resilience policy for one upstream from the shared settings.
func (c Config) Upstream(name, baseURL string) resilient.Config {
	cfg := resilient.DefaultConfig(name, baseURL)
	cfg.Timeout = c.RequestTimeout
	cfg.MaxAttempts = c.MaxRetries
	cfg.BaseDelay = c.RetryBaseDelay
	cfg.MaxJitter = c.RetryMaxJitter
	cfg.FailureThreshold = c.FailureThreshold
	cfg.MinRequests = c.MinRequests
	cfg.ResetTimeout = c.ResetTimeout
	cfg.RollingWindow = c.RollingWindow
	return cfg
}
