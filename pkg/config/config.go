package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fishdeas/fishdeas/pkg/observability"
	"github.com/fishdeas/fishdeas/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Token signing secrets
	Auth AuthConfig

	// Outbound email
	SMTP SMTPConfig

	// External identity provider
	Identity IdentityConfig

	// Disease detection inference
	Inference InferenceConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// Browser origins allowed to send credentialed requests
	CORSOrigins []string

	// Upper bound on request bodies, multipart uploads included
	MaxBodyBytes int64
}

// AuthConfig holds the two token signing secrets. The bearer and
// session secrets must differ or either token could impersonate the
// other.
type AuthConfig struct {
	BearerSecret  string
	SessionSecret string
}

// SMTPConfig holds outbound mail settings. Email is disabled when the
// host or credentials are empty.
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	FromName    string
	SkipVerify  bool
}

// IdentityConfig points at the account service that mirrors credentials
// and owns email verification
type IdentityConfig struct {
	BaseURL string
	APIKey  string
}

// InferenceConfig holds the external model runner settings
type InferenceConfig struct {
	PythonBin  string
	ScriptPath string
	WorkDir    string
	Timeout    time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Auth:          loadAuthConfig(),
		SMTP:          loadSMTPConfig(),
		Identity:      loadIdentityConfig(),
		Inference:     loadInferenceConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("FISHDEAS_HOST", "0.0.0.0"),
		Port:            getEnv("FISHDEAS_PORT", "8080"),
		ReadTimeout:     getEnvDuration("FISHDEAS_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("FISHDEAS_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("FISHDEAS_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("FISHDEAS_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("FISHDEAS_HEALTH_PORT", "9090"),
		CORSOrigins:     getEnvList("FISHDEAS_CORS_ORIGINS", []string{"http://localhost:3000"}),
		MaxBodyBytes:    getEnvInt64("FISHDEAS_MAX_BODY_BYTES", 8<<20),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if storageType := getEnv("FISHDEAS_STORAGE_TYPE", ""); storageType != "" {
		cfg.Type = storageType
	}

	// PostgreSQL config
	if pgURL := getEnv("FISHDEAS_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if maxConns := getEnvInt("FISHDEAS_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("FISHDEAS_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("FISHDEAS_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	// S3 config
	if s3Endpoint := getEnv("FISHDEAS_S3_ENDPOINT", ""); s3Endpoint != "" {
		cfg.S3Endpoint = s3Endpoint
	}
	if s3Region := getEnv("FISHDEAS_S3_REGION", ""); s3Region != "" {
		cfg.S3Region = s3Region
	}
	if s3Bucket := getEnv("FISHDEAS_S3_BUCKET", ""); s3Bucket != "" {
		cfg.S3Bucket = s3Bucket
	}
	if s3AccessKey := getEnv("FISHDEAS_S3_ACCESS_KEY", ""); s3AccessKey != "" {
		cfg.S3AccessKey = s3AccessKey
	}
	if s3SecretKey := getEnv("FISHDEAS_S3_SECRET_KEY", ""); s3SecretKey != "" {
		cfg.S3SecretKey = s3SecretKey
	}
	if s3UsePathStyle := getEnv("FISHDEAS_S3_USE_PATH_STYLE", ""); s3UsePathStyle != "" {
		cfg.S3UsePathStyle = strings.ToLower(s3UsePathStyle) == "true"
	}
	if s3PublicURL := getEnv("FISHDEAS_S3_PUBLIC_URL", ""); s3PublicURL != "" {
		cfg.S3PublicURL = s3PublicURL
	}

	// Redis config
	if redisURL := getEnv("FISHDEAS_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("FISHDEAS_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("FISHDEAS_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}

	// Cache config
	if cacheEnabled := getEnv("FISHDEAS_CACHE_ENABLED", ""); cacheEnabled != "" {
		cfg.CacheEnabled = strings.ToLower(cacheEnabled) == "true"
	}

	return cfg
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		BearerSecret:  getEnv("FISHDEAS_BEARER_SECRET", ""),
		SessionSecret: getEnv("FISHDEAS_SESSION_SECRET", ""),
	}
}

func loadSMTPConfig() SMTPConfig {
	return SMTPConfig{
		Host:        getEnv("FISHDEAS_SMTP_HOST", ""),
		Port:        getEnvInt("FISHDEAS_SMTP_PORT", 465),
		Username:    getEnv("FISHDEAS_SMTP_USERNAME", ""),
		Password:    getEnv("FISHDEAS_SMTP_PASSWORD", ""),
		FromAddress: getEnv("FISHDEAS_SMTP_FROM", "no-reply@fishdeas.dev"),
		FromName:    getEnv("FISHDEAS_SMTP_FROM_NAME", "FishDeas"),
		SkipVerify:  getEnvBool("FISHDEAS_SMTP_SKIP_VERIFY", false),
	}
}

func loadIdentityConfig() IdentityConfig {
	return IdentityConfig{
		BaseURL: getEnv("FISHDEAS_IDENTITY_URL", ""),
		APIKey:  getEnv("FISHDEAS_IDENTITY_API_KEY", ""),
	}
}

func loadInferenceConfig() InferenceConfig {
	return InferenceConfig{
		PythonBin:  getEnv("FISHDEAS_INFERENCE_PYTHON", "python3"),
		ScriptPath: getEnv("FISHDEAS_INFERENCE_SCRIPT", "scripts/detect.py"),
		WorkDir:    getEnv("FISHDEAS_INFERENCE_WORKDIR", os.TempDir()),
		Timeout:    getEnvDuration("FISHDEAS_INFERENCE_TIMEOUT", 60*time.Second),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       observability.ParseLogLevel(getEnv("FISHDEAS_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("FISHDEAS_METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive")
	}

	switch c.Storage.Type {
	case "memory":
		// Dev mode, no external services required.
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
		if c.Storage.S3Bucket == "" {
			return fmt.Errorf("S3 bucket is required for postgres storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be memory or postgres)", c.Storage.Type)
	}

	if c.Auth.BearerSecret == "" || c.Auth.SessionSecret == "" {
		return fmt.Errorf("bearer and session token secrets are required")
	}
	if c.Auth.BearerSecret == c.Auth.SessionSecret {
		return fmt.Errorf("bearer and session token secrets must be different")
	}

	if c.SMTP.Host != "" && c.SMTP.Port <= 0 {
		return fmt.Errorf("SMTP port must be positive")
	}

	if c.Inference.Timeout <= 0 {
		return fmt.Errorf("inference timeout must be positive")
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
