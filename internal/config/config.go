package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type (
	// Config holds configuration settings for the orchestrator
	Config struct {
		// API Server
		APIHost        string
		APIPort        int
		WebhookBaseURL string
		LogLevel       string

		// Instance store
		Redis RedisConfig

		// External services
		Classifier ServiceConfig
		Assistant  ServiceConfig
		Payments   ServiceConfig

		// Intent classification
		ConfidenceThreshold float64

		// Engine
		WaitTTL           time.Duration
		SweepInterval     time.Duration
		TerminalRetention time.Duration
		MaxChainLength    int
		SessionTurns      int
		NotifyBuffer      int

		// Workflow definitions & reports
		DefinitionsPath string
		ReportBucketURL string

		// Eventing. An empty NATSURL disables the subscriber; webhook
		// ingress always runs
		NATSURL     string
		NATSSubject string

		ShutdownTimeout time.Duration
	}

	// RedisConfig holds connection settings for the Redis instance store
	RedisConfig struct {
		Addr     string
		Password string
		DB       int
		Prefix   string
	}

	// ServiceConfig holds endpoint settings for an external HTTP service
	ServiceConfig struct {
		Endpoint string
		APIKey   string
		Timeout  time.Duration
	}
)

const (
	DefaultAPIPort = 8080
	DefaultAPIHost = "0.0.0.0"
	MaxTCPPort     = 65535

	DefaultRedisAddr   = "localhost:6379"
	DefaultRedisDB     = 0
	DefaultRedisPrefix = "parley"

	DefaultClassifierEndpoint = "http://localhost:8091/v1/classify"
	DefaultAssistantEndpoint  = "http://localhost:8092/v1/complete"
	DefaultPaymentsEndpoint   = "http://localhost:8093/v1/links"
	DefaultServiceTimeout     = 10 * time.Second

	DefaultConfidenceThreshold = 0.55

	DefaultWaitTTL           = 24 * time.Hour
	DefaultSweepInterval     = time.Minute
	DefaultTerminalRetention = 7 * 24 * time.Hour
	DefaultMaxChainLength    = 8
	DefaultSessionTurns      = 50
	DefaultNotifyBuffer      = 64

	DefaultNATSSubject = "parley.events"

	DefaultDefinitionsPath = "configs/workflows.yaml"
	DefaultReportBucketURL = "mem://"

	DefaultShutdownTimeout = 10 * time.Second

	MaxWaitTTL           = 30 * 24 * time.Hour
	MaxSweepInterval     = 24 * time.Hour
	MaxTerminalRetention = 90 * 24 * time.Hour
	MaxServiceTimeout    = 5 * time.Minute
	MaxChainLength       = 64
	MaxSessionTurns      = 1000
	MaxNotifyBuffer      = 65536
)

var (
	ErrInvalidAPIPort       = errors.New("invalid API port")
	ErrInvalidWaitTTL       = errors.New("wait TTL must be positive")
	ErrInvalidSweepInterval = errors.New(
		"sweep interval must be positive",
	)
	ErrSweepExceedsWaitTTL = errors.New(
		"sweep interval must not exceed wait TTL",
	)
	ErrInvalidThreshold = errors.New(
		"confidence threshold must be between 0 and 1",
	)
	ErrInvalidChainLength     = errors.New("chain length must be positive")
	ErrMissingDefinitionsPath = errors.New(
		"workflow definitions path is required",
	)
)

// NewDefaultConfig creates a configuration with sensible defaults for the
// server, the instance store, and every external service the engine talks to
func NewDefaultConfig() *Config {
	return &Config{
		APIPort:        DefaultAPIPort,
		APIHost:        DefaultAPIHost,
		WebhookBaseURL: "http://localhost:8080",
		Redis: RedisConfig{
			Addr:     DefaultRedisAddr,
			Password: "",
			DB:       DefaultRedisDB,
			Prefix:   DefaultRedisPrefix,
		},
		Classifier: ServiceConfig{
			Endpoint: DefaultClassifierEndpoint,
			Timeout:  DefaultServiceTimeout,
		},
		Assistant: ServiceConfig{
			Endpoint: DefaultAssistantEndpoint,
			Timeout:  DefaultServiceTimeout,
		},
		Payments: ServiceConfig{
			Endpoint: DefaultPaymentsEndpoint,
			Timeout:  DefaultServiceTimeout,
		},
		ConfidenceThreshold: DefaultConfidenceThreshold,
		WaitTTL:             DefaultWaitTTL,
		SweepInterval:       DefaultSweepInterval,
		TerminalRetention:   DefaultTerminalRetention,
		MaxChainLength:      DefaultMaxChainLength,
		SessionTurns:        DefaultSessionTurns,
		NotifyBuffer:        DefaultNotifyBuffer,
		DefinitionsPath:     DefaultDefinitionsPath,
		ReportBucketURL:     DefaultReportBucketURL,
		NATSSubject:         DefaultNATSSubject,
		ShutdownTimeout:     DefaultShutdownTimeout,
		LogLevel:            "info",
	}
}

// LoadFromEnv populates configuration values from environment variables.
// Returns an error if any env var cannot be parsed.
func (c *Config) LoadFromEnv() error {
	LoadRedisConfigFromEnv(&c.Redis)
	LoadServiceConfigFromEnv(&c.Classifier, "CLASSIFIER")
	LoadServiceConfigFromEnv(&c.Assistant, "ASSISTANT")
	LoadServiceConfigFromEnv(&c.Payments, "PAYMENTS")

	if apiHost := os.Getenv("API_HOST"); apiHost != "" {
		c.APIHost = apiHost
	}
	if webhookBaseURL := os.Getenv("WEBHOOK_BASE_URL"); webhookBaseURL != "" {
		c.WebhookBaseURL = webhookBaseURL
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.LogLevel = logLevel
	}
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		c.NATSURL = natsURL
	}
	if natsSubject := os.Getenv("NATS_SUBJECT"); natsSubject != "" {
		c.NATSSubject = natsSubject
	}
	if defs := os.Getenv("WORKFLOW_DEFINITIONS"); defs != "" {
		c.DefinitionsPath = defs
	}
	if bucket := os.Getenv("REPORT_BUCKET_URL"); bucket != "" {
		c.ReportBucketURL = bucket
	}

	if err := loadEnvInt("API_PORT", &c.APIPort, 0, MaxTCPPort); err != nil {
		return err
	}
	if err := loadEnvInt(
		"MAX_CHAIN_LENGTH", &c.MaxChainLength, 0, MaxChainLength,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"SESSION_TURNS", &c.SessionTurns, 0, MaxSessionTurns,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"NOTIFY_BUFFER", &c.NotifyBuffer, 0, MaxNotifyBuffer,
	); err != nil {
		return err
	}

	if err := loadEnvDuration(
		"WAIT_TTL", &c.WaitTTL, 0, MaxWaitTTL,
	); err != nil {
		return err
	}
	if err := loadEnvDuration(
		"SWEEP_INTERVAL", &c.SweepInterval, 0, MaxSweepInterval,
	); err != nil {
		return err
	}
	if err := loadEnvDuration(
		"TERMINAL_RETENTION", &c.TerminalRetention, 0, MaxTerminalRetention,
	); err != nil {
		return err
	}
	if err := loadEnvDuration(
		"SHUTDOWN_TIMEOUT", &c.ShutdownTimeout, 0, MaxServiceTimeout,
	); err != nil {
		return err
	}

	return loadEnvFloat(
		"CONFIDENCE_THRESHOLD", &c.ConfidenceThreshold, 0, 1,
	)
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort > MaxTCPPort {
		return fmt.Errorf("%w: %d", ErrInvalidAPIPort, c.APIPort)
	}

	if c.WaitTTL <= 0 {
		return ErrInvalidWaitTTL
	}

	if c.SweepInterval <= 0 {
		return ErrInvalidSweepInterval
	}

	if c.SweepInterval > c.WaitTTL {
		return ErrSweepExceedsWaitTTL
	}

	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("%w: %f", ErrInvalidThreshold, c.ConfidenceThreshold)
	}

	if c.MaxChainLength <= 0 {
		return ErrInvalidChainLength
	}

	if c.DefinitionsPath == "" {
		return ErrMissingDefinitionsPath
	}

	return nil
}

// LoadRedisConfigFromEnv loads Redis connection settings from REDIS_*
// environment variables
func LoadRedisConfigFromEnv(r *RedisConfig) {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		r.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		r.Password = password
	}
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		db, err := strconv.Atoi(dbStr)
		if err == nil {
			r.DB = db
		}
	}
	if prefix := os.Getenv("REDIS_PREFIX"); prefix != "" {
		r.Prefix = prefix
	}
}

// LoadServiceConfigFromEnv loads external service settings from environment
// variables with the given prefix (e.g., "CLASSIFIER" or "PAYMENTS")
func LoadServiceConfigFromEnv(s *ServiceConfig, prefix string) {
	if endpoint := os.Getenv(prefix + "_ENDPOINT"); endpoint != "" {
		s.Endpoint = endpoint
	}
	if apiKey := os.Getenv(prefix + "_API_KEY"); apiKey != "" {
		s.APIKey = apiKey
	}
	if timeoutStr := os.Getenv(prefix + "_TIMEOUT"); timeoutStr != "" {
		if d, err := time.ParseDuration(timeoutStr); err == nil && d > 0 {
			s.Timeout = d
		}
	}
}

// loadEnvInt reads key from the environment, parses it as an integer, and
// sets *dst if the value is in the range (min, max). Returns an error if
// the value cannot be parsed or falls outside the valid range.
func loadEnvInt[T ~int | ~int64](key string, dst *T, min, max T) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	tv := T(v)
	if tv <= min || tv > max {
		return fmt.Errorf("invalid %s: %d out of range [%d, %d]",
			key, tv, min+1, max)
	}
	*dst = tv
	return nil
}

// loadEnvDuration reads key from the environment, parses it as a Go duration
// string, and sets *dst if the value is in the range (min, max)
func loadEnvDuration(
	key string, dst *time.Duration, min, max time.Duration,
) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	if v <= min || v > max {
		return fmt.Errorf("invalid %s: %s out of range (%s, %s]",
			key, v, min, max)
	}
	*dst = v
	return nil
}

// loadEnvFloat reads key from the environment, parses it as a float, and
// sets *dst if the value is in the range [min, max]
func loadEnvFloat(key string, dst *float64, min, max float64) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	if v < min || v > max {
		return fmt.Errorf("invalid %s: %f out of range [%f, %f]",
			key, v, min, max)
	}
	*dst = v
	return nil
}
