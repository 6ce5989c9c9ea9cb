package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"guard-gateway/dispatch"
	"guard-gateway/middleware/ratelimit/application"
	"guard-gateway/middleware/ratelimit/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestReadConfig_Defaults(t *testing.T) {
	t.Setenv("TOKEN_GUARD_URL", "http://token:8000")

	cfg, err := readConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.listenAddr)
	assert.True(t, cfg.rateEnabled)
	assert.Equal(t, domain.Rule{Limit: 100, Window: 60 * time.Second}, cfg.limits.Global)
	assert.Equal(t, domain.Rule{Limit: 1000, Window: time.Hour}, cfg.limits.Hourly)
	assert.Equal(t, domain.Rule{Limit: 20, Window: 10 * time.Second}, cfg.limits.Burst)
	assert.Equal(t, 5, cfg.limits.Classes[application.ClassAdmin].Limit)
	assert.Equal(t, 200, cfg.limits.Classes[application.ClassRead].Limit)
	assert.Equal(t, 100, cfg.limits.Classes[application.ClassProcessing].Limit)
	assert.Equal(t, 5, cfg.breaker.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.breaker.Cooldown)
	assert.Equal(t, 3, cfg.retry.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.backendTimeout)
	assert.Equal(t, 5*time.Second, cfg.redisTimeout)
	assert.Equal(t, 10<<20, cfg.threat.MaxPayloadBytes)
	assert.Equal(t, 10, cfg.threat.MaxDepth)
	assert.Equal(t, map[dispatch.ServiceType]string{dispatch.TokenGuard: "http://token:8000"}, cfg.backends)
	assert.Empty(t, cfg.userHeader)
}

func TestReadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("TRUST_GUARD_URL", "http://trust")
	t.Setenv("RATE_LIMIT_REQUESTS", "5")
	t.Setenv("RATE_LIMIT_WINDOW", "30")
	t.Setenv("RATE_LIMIT_ADMIN", "2")
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	t.Setenv("CIRCUIT_BREAKER_COOLDOWN", "1m")
	t.Setenv("MAX_PAYLOAD_SIZE", "1024")

	cfg, err := readConfig([]string{"--listen", ":9090"})
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.listenAddr)
	assert.False(t, cfg.rateEnabled)
	assert.Equal(t, domain.Rule{Limit: 5, Window: 30 * time.Second}, cfg.limits.Global)
	assert.Equal(t, 2, cfg.limits.Classes[application.ClassAdmin].Limit)
	assert.Equal(t, time.Minute, cfg.breaker.Cooldown)
	assert.Equal(t, 1024, cfg.threat.MaxPayloadBytes)
}

func TestReadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backends:
  token-guard: http://token-from-file
  HEALTH_GUARD: http://health
endpoints:
  "POST /v1/process": {limit: 50, window: 30s}
users:
  alice: {limit: 500}
ips:
  203.0.113.9: {limit: 3, window: 1m}
allowed_path_prefixes: [/var/log/app]
`), 0o600))
	t.Setenv("HEALTH_GUARD_URL", "http://health-from-env")

	cfg, err := readConfig([]string{"--config", path})
	require.NoError(t, err)

	assert.Equal(t, "http://token-from-file", cfg.backends[dispatch.TokenGuard])
	assert.Equal(t, "http://health-from-env", cfg.backends[dispatch.HealthGuard], "env wins over the file")
	assert.Equal(t, domain.Rule{Limit: 50, Window: 30 * time.Second}, cfg.limits.Endpoints["POST /v1/process"])
	assert.Equal(t, domain.Rule{Limit: 500, Window: time.Minute}, cfg.limits.Users["alice"])
	assert.Equal(t, domain.Rule{Limit: 3, Window: time.Minute}, cfg.limits.IPs["203.0.113.9"])
	assert.Equal(t, []string{"/var/log/app"}, cfg.threat.AllowedPathPrefixes)
}

func TestReadConfig_FileFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backends:\n  BIAS_GUARD: http://bias\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := readConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, "http://bias", cfg.backends[dispatch.BiasGuard])
}

func TestReadConfig_CollectsAllErrors(t *testing.T) {
	t.Setenv("CIRCUIT_BREAKER_THRESHOLD", "0")
	t.Setenv("RETRY_ATTEMPTS", "0")
	t.Setenv("CONCURRENCY_MAX", "-1")

	_, err := readConfig(nil)
	require.Error(t, err)
	errs := multierr.Errors(err)
	assert.Len(t, errs, 4)
	assert.ErrorContains(t, err, "CIRCUIT_BREAKER_THRESHOLD")
	assert.ErrorContains(t, err, "RETRY_ATTEMPTS")
	assert.ErrorContains(t, err, "CONCURRENCY_MAX")
	assert.ErrorContains(t, err, "backend URL")
}

func TestReadConfig_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backends:\n  MAGIC_GUARD: http://x\n  TOKEN_GUARD: http://t\n"), 0o600))

	_, err := readConfig([]string{"--config", path})
	assert.ErrorContains(t, err, "MAGIC_GUARD")

	_, err = readConfig([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.ErrorContains(t, err, "read config file")
}

func TestGetenvSecondsDefault(t *testing.T) {
	t.Setenv("X_SECONDS", "15")
	t.Setenv("X_DURATION", "2m")
	t.Setenv("X_BAD", "soon")

	assert.Equal(t, 15*time.Second, getenvSecondsDefault("X_SECONDS", time.Second))
	assert.Equal(t, 2*time.Minute, getenvSecondsDefault("X_DURATION", time.Second))
	assert.Equal(t, time.Second, getenvSecondsDefault("X_BAD", time.Second))
	assert.Equal(t, time.Second, getenvSecondsDefault("X_UNSET", time.Second))
}

func TestNewLogger(t *testing.T) {
	log, flush, err := newLogger("debug", true)
	require.NoError(t, err)
	defer flush()
	assert.True(t, log.V(1).Enabled())

	_, _, err = newLogger("loud", false)
	assert.Error(t, err)
}
