package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oriys/novacore/fault"
)

func TestDefaultIsRestrictive(t *testing.T) {
	cfg := Default()

	assert.False(t, cfg.Features.WebFetchEnabled)
	assert.False(t, cfg.Features.VerificationEnabled)
	assert.False(t, cfg.Fetch.AllowPrivateIPs)
	assert.False(t, cfg.Fetch.AllowLocalhost)
	assert.True(t, cfg.Fetch.ValidateCerts)
	assert.Equal(t, int64(1<<20), cfg.Fetch.MaxResponseBytes)
	assert.Equal(t, []int{80, 443}, cfg.Fetch.AllowedPorts)
	assert.Contains(t, cfg.Fetch.BlockedHostnames, "metadata.google.internal")
	assert.Equal(t, "", cfg.Redis.URL, "memory backend by default")
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("WEB_FETCH_ENABLED", "true")
	t.Setenv("WEB_FETCH_MAX_RESPONSE_BYTES", "2097152")
	t.Setenv("WEB_FETCH_ALLOWED_PORTS", "443,8443")
	t.Setenv("WEB_FETCH_BLOCKED_HOSTNAMES", "evil.test, worse.test")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("NOVA_ENV", "staging")
	t.Setenv("VERIFY_MAX_CONCURRENT", "5")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())

	assert.True(t, cfg.Features.WebFetchEnabled)
	assert.Equal(t, int64(2097152), cfg.Fetch.MaxResponseBytes)
	assert.Equal(t, []int{443, 8443}, cfg.Fetch.AllowedPorts)
	assert.Contains(t, cfg.Fetch.BlockedHostnames, "evil.test")
	assert.Contains(t, cfg.Fetch.BlockedHostnames, "metadata.google.internal",
		"extra blocks extend the defaults")
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, 5, cfg.Verify.MaxConcurrent)
}

func TestApplyEnvRejectsMalformedValues(t *testing.T) {
	t.Setenv("WEB_FETCH_ENABLED", "definitely")

	cfg := Default()
	err := cfg.ApplyEnv()
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrMalformedInput)
}

func TestApplyEnvRejectsBadPorts(t *testing.T) {
	for _, v := range []string{"http", "0", "70000", "443,-1"} {
		t.Setenv("WEB_FETCH_ALLOWED_PORTS", v)
		cfg := Default()
		err := cfg.ApplyEnv()
		require.Error(t, err, "ports %q", v)
	}
}

func TestLoadYAMLWithExpansion(t *testing.T) {
	t.Setenv("TEST_REDIS_URL", "redis://cache.test:6379/0")
	dir := t.TempDir()
	path := filepath.Join(dir, "novacore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment: production
redis:
  url: ${TEST_REDIS_URL}
log:
  level: ${TEST_LOG_LEVEL:-warn}
features:
  web_fetch_enabled: true
fetch:
  max_response_bytes: 524288
verify:
  trusted_sources:
    - domain: en.wikipedia.org
      url: https://en.wikipedia.org/w/index.php?search={query}
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "redis://cache.test:6379/0", cfg.Redis.URL)
	assert.Equal(t, "warn", cfg.Log.Level, "${VAR:-default} falls back")
	assert.True(t, cfg.Features.WebFetchEnabled)
	assert.Equal(t, int64(524288), cfg.Fetch.MaxResponseBytes)
	require.Len(t, cfg.Verify.TrustedSources, 1)
	assert.Equal(t, "en.wikipedia.org", cfg.Verify.TrustedSources[0].Domain)

	// Unspecified sections keep their defaults.
	assert.Equal(t, []int{80, 443}, cfg.Fetch.AllowedPorts)
}

func TestLoadEnvWinsOverFile(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	dir := t.TempDir()
	path := filepath.Join(dir, "novacore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/novacore.yaml")
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrMalformedInput)
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("SET_VAR", "value")
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"${SET_VAR}", "value"},
		{"${UNSET_VAR_XYZ}", ""},
		{"${UNSET_VAR_XYZ:-fallback}", "fallback"},
		{"${SET_VAR:-fallback}", "value"},
		{"prefix-${SET_VAR}-suffix", "prefix-value-suffix"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExpandEnv(tt.in), tt.in)
	}
}

func TestConfigConversions(t *testing.T) {
	cfg := Default()
	cfg.Features.WebFetchEnabled = true
	cfg.Fetch.ReadTimeoutMs = 2000

	gc := cfg.GuardConfig()
	assert.Equal(t, 2*time.Second, gc.ReadTimeout)
	assert.Equal(t, []int{80, 443}, gc.AllowedPorts)
	assert.True(t, gc.DetectAlternateEncodings)

	vc := cfg.VerifyExecutorConfig()
	assert.False(t, vc.Enabled)
	assert.Equal(t, 15*time.Second, vc.Budget)
	assert.Equal(t, 24*time.Hour, vc.CacheTTL)

	wc := cfg.WorkerConfig()
	assert.Equal(t, 4, wc.Workers)
	assert.Equal(t, time.Second, wc.PollInterval)

	rc := cfg.SchedulerConfig()
	assert.Equal(t, 2*time.Hour, rc.MaxAge)
	assert.Equal(t, 2, rc.PerUserBatchCap)
}
