package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fishdeas/fishdeas/pkg/observability"
)

// setMinimalEnv sets the variables without which validation fails
func setMinimalEnv(t *testing.T) {
	t.Helper()
	t.Setenv("FISHDEAS_BEARER_SECRET", "bearer-secret")
	t.Setenv("FISHDEAS_SESSION_SECRET", "session-secret")
}

func TestLoadConfigDefaults(t *testing.T) {
	setMinimalEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, int64(8<<20), cfg.Server.MaxBodyBytes)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORSOrigins)

	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.True(t, cfg.Storage.CacheEnabled)

	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
	assert.True(t, cfg.Observability.MetricsEnabled)

	assert.Equal(t, "python3", cfg.Inference.PythonBin)
	assert.Equal(t, 60*time.Second, cfg.Inference.Timeout)

	// SMTP is disabled out of the box.
	assert.Empty(t, cfg.SMTP.Host)
	assert.Equal(t, 465, cfg.SMTP.Port)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("FISHDEAS_PORT", "9999")
	t.Setenv("FISHDEAS_STORAGE_TYPE", "postgres")
	t.Setenv("FISHDEAS_POSTGRES_URL", "postgres://fishdeas:secret@db:5432/fishdeas?sslmode=disable")
	t.Setenv("FISHDEAS_S3_BUCKET", "fishdeas-images")
	t.Setenv("FISHDEAS_S3_REGION", "us-east-1")
	t.Setenv("FISHDEAS_REDIS_URL", "redis:6379")
	t.Setenv("FISHDEAS_LOG_LEVEL", "debug")
	t.Setenv("FISHDEAS_CORS_ORIGINS", "https://fishdeas.dev, https://admin.fishdeas.dev")
	t.Setenv("FISHDEAS_INFERENCE_TIMEOUT", "2m")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Storage.Type)
	assert.Equal(t, "fishdeas-images", cfg.Storage.S3Bucket)
	assert.Equal(t, "redis:6379", cfg.Storage.RedisURL)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
	assert.Equal(t, []string{"https://fishdeas.dev", "https://admin.fishdeas.dev"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 2*time.Minute, cfg.Inference.Timeout)
}

func TestValidate(t *testing.T) {
	t.Run("missing token secrets", func(t *testing.T) {
		_, err := LoadConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "token secrets are required")
	})

	t.Run("identical token secrets", func(t *testing.T) {
		t.Setenv("FISHDEAS_BEARER_SECRET", "same")
		t.Setenv("FISHDEAS_SESSION_SECRET", "same")

		_, err := LoadConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be different")
	})

	t.Run("postgres storage requires a URL", func(t *testing.T) {
		setMinimalEnv(t)
		t.Setenv("FISHDEAS_STORAGE_TYPE", "postgres")

		_, err := LoadConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "postgres URL is required")
	})

	t.Run("postgres storage requires an S3 bucket", func(t *testing.T) {
		setMinimalEnv(t)
		t.Setenv("FISHDEAS_STORAGE_TYPE", "postgres")
		t.Setenv("FISHDEAS_POSTGRES_URL", "postgres://fishdeas@db/fishdeas")

		_, err := LoadConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "S3 bucket is required")
	})

	t.Run("unknown storage type", func(t *testing.T) {
		setMinimalEnv(t)
		t.Setenv("FISHDEAS_STORAGE_TYPE", "cassandra")

		_, err := LoadConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid storage type")
	})

	t.Run("same port for server and health", func(t *testing.T) {
		setMinimalEnv(t)
		t.Setenv("FISHDEAS_PORT", "8080")
		t.Setenv("FISHDEAS_HEALTH_PORT", "8080")

		_, err := LoadConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be different")
	})
}
