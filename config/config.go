// Package config assembles the service configuration: restrictive
// defaults, optional YAML file with ${VAR} expansion, environment
// overrides on top. The typed sections convert directly into the
// component configs they feed.
package config

import (
	"time"

	"github.com/oriys/novacore/guard"
	"github.com/oriys/novacore/log"
	"github.com/oriys/novacore/reminder"
	"github.com/oriys/novacore/transport"
	"github.com/oriys/novacore/verify"
	"github.com/oriys/novacore/webhook"
)

// Config is the full service configuration. All values have working
// defaults; the zero value is not usable, start from Default.
type Config struct {
	// Environment names the deployment (development, staging,
	// production).
	Environment string `yaml:"environment"`

	Log       LogConfig       `yaml:"log"`
	Redis     RedisConfig     `yaml:"redis"`
	Features  FeaturesConfig  `yaml:"features"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Verify    VerifyConfig    `yaml:"verify"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Reminder  ReminderConfig  `yaml:"reminder"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// LogConfig controls the logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Redact bool   `yaml:"redact"`
}

// RedisConfig selects the KV backend; an empty URL means the in-memory
// store.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// FeaturesConfig are the static kill switches. Everything outbound is
// off until deliberately enabled.
type FeaturesConfig struct {
	WebFetchEnabled     bool `yaml:"web_fetch_enabled"`
	VerificationEnabled bool `yaml:"verification_enabled"`
	WebhooksEnabled     bool `yaml:"webhooks_enabled"`
	RemindersEnabled    bool `yaml:"reminders_enabled"`
}

// FetchConfig parameterizes the URL guard and transport.
type FetchConfig struct {
	AllowPrivateIPs  bool     `yaml:"allow_private_ips"`
	AllowLocalhost   bool     `yaml:"allow_localhost"`
	ValidateCerts    bool     `yaml:"validate_certs"`
	MaxResponseBytes int64    `yaml:"max_response_bytes"`
	ConnectTimeoutMs int64    `yaml:"connect_timeout_ms"`
	ReadTimeoutMs    int64    `yaml:"read_timeout_ms"`
	MaxRedirects     int      `yaml:"max_redirects"`
	AllowedPorts     []int    `yaml:"allowed_ports"`
	BlockedHostnames []string `yaml:"blocked_hostnames"`
	AllowedHostnames []string `yaml:"allowed_hostnames"`
	CertificatePins  []string `yaml:"certificate_pins"`

	DNSCacheTTLCeilingSeconds int `yaml:"dns_cache_ttl_ceiling_seconds"`
}

// VerifyConfig parameterizes claim verification.
type VerifyConfig struct {
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
	MaxSources      int `yaml:"max_sources"`
	MaxConcurrent   int `yaml:"max_concurrent"`
	BudgetMs        int `yaml:"budget_ms"`

	TrustedSources []SourceConfig `yaml:"trusted_sources"`
	GeneralSources []SourceConfig `yaml:"general_sources"`
}

// SourceConfig is one verification origin; the URL contains a {query}
// placeholder.
type SourceConfig struct {
	Domain string `yaml:"domain"`
	URL    string `yaml:"url"`
}

// WebhookConfig parameterizes the delivery engine.
type WebhookConfig struct {
	UserAgent          string `yaml:"user_agent"`
	FailureThreshold   int    `yaml:"failure_threshold"`
	PerHookConcurrency int    `yaml:"per_hook_concurrency"`
	Workers            int    `yaml:"workers"`
	PollIntervalMs     int64  `yaml:"poll_interval_ms"`
}

// ReminderConfig parameterizes the reminder scheduler.
type ReminderConfig struct {
	MaxAgeMs int64 `yaml:"max_age_ms"`
	UserCap  int   `yaml:"user_cap"`
}

// RateLimitConfig parameterizes admission rate limiting.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// Default returns the restrictive baseline: outbound features off,
// certificates validated, private address space denied.
func Default() *Config {
	return &Config{
		Environment: "development",
		Log:         LogConfig{Level: "info", Redact: true},
		Features:    FeaturesConfig{},
		Fetch: FetchConfig{
			ValidateCerts:             true,
			MaxResponseBytes:          1 << 20,
			ConnectTimeoutMs:          5000,
			ReadTimeoutMs:             10000,
			MaxRedirects:              3,
			AllowedPorts:              []int{80, 443},
			BlockedHostnames:          guard.DefaultBlockedHostnames(),
			DNSCacheTTLCeilingSeconds: 300,
		},
		Verify: VerifyConfig{
			CacheTTLSeconds: 86400,
			MaxSources:      3,
			MaxConcurrent:   2,
			BudgetMs:        15000,
		},
		Webhook: WebhookConfig{
			UserAgent:          "novacore-webhooks/1.0",
			FailureThreshold:   20,
			PerHookConcurrency: 4,
			Workers:            4,
			PollIntervalMs:     1000,
		},
		Reminder: ReminderConfig{
			MaxAgeMs: int64(2 * time.Hour / time.Millisecond),
			UserCap:  2,
		},
		RateLimit: RateLimitConfig{RequestsPerMinute: 60},
	}
}

// GuardConfig converts the fetch section for the URL guard.
func (c *Config) GuardConfig() guard.Config {
	return guard.Config{
		AllowPrivateIPs:          c.Fetch.AllowPrivateIPs,
		AllowLoopback:            c.Fetch.AllowLocalhost,
		DetectAlternateEncodings: true,
		DetectEmbeddedIPs:        true,
		BlockIDN:                 true,
		AllowedPorts:             c.Fetch.AllowedPorts,
		BlockedHostnames:         c.Fetch.BlockedHostnames,
		AllowedHostnames:         c.Fetch.AllowedHostnames,
		MaxResponseBytes:         c.Fetch.MaxResponseBytes,
		ConnectTimeout:           time.Duration(c.Fetch.ConnectTimeoutMs) * time.Millisecond,
		ReadTimeout:              time.Duration(c.Fetch.ReadTimeoutMs) * time.Millisecond,
		AllowRedirects:           c.Fetch.MaxRedirects > 0,
		MaxRedirects:             c.Fetch.MaxRedirects,
		CertificatePins:          c.Fetch.CertificatePins,
		DNSTimeout:               5 * time.Second,
		DNSCacheTTLCeiling:       time.Duration(c.Fetch.DNSCacheTTLCeilingSeconds) * time.Second,
	}
}

// TransportConfig converts the fetch section for the pinned transport.
func (c *Config) TransportConfig() transport.Config {
	return transport.Config{
		ValidateCerts: c.Fetch.ValidateCerts,
		UserAgent:     c.Webhook.UserAgent,
	}
}

// VerifyExecutorConfig converts the verify section.
func (c *Config) VerifyExecutorConfig() verify.Config {
	return verify.Config{
		Enabled:       c.Features.VerificationEnabled,
		MaxSources:    c.Verify.MaxSources,
		MaxConcurrent: c.Verify.MaxConcurrent,
		Budget:        time.Duration(c.Verify.BudgetMs) * time.Millisecond,
		CacheTTL:      time.Duration(c.Verify.CacheTTLSeconds) * time.Second,
	}
}

// VerifyPlanner builds the source planner from the configured tiers.
func (c *Config) VerifyPlanner() *verify.Planner {
	return verify.NewPlanner(sourceTemplates(c.Verify.TrustedSources), sourceTemplates(c.Verify.GeneralSources))
}

func sourceTemplates(sources []SourceConfig) []verify.SourceTemplate {
	out := make([]verify.SourceTemplate, 0, len(sources))
	for _, s := range sources {
		out = append(out, verify.SourceTemplate{Domain: s.Domain, URLTemplate: s.URL})
	}
	return out
}

// WorkerConfig converts the webhook section for the delivery pool.
func (c *Config) WorkerConfig() webhook.WorkerConfig {
	return webhook.WorkerConfig{
		Workers:      c.Webhook.Workers,
		PollInterval: time.Duration(c.Webhook.PollIntervalMs) * time.Millisecond,
		UserAgent:    c.Webhook.UserAgent,
	}
}

// SchedulerConfig converts the reminder section.
func (c *Config) SchedulerConfig() reminder.Config {
	return reminder.Config{
		MaxAge:          time.Duration(c.Reminder.MaxAgeMs) * time.Millisecond,
		PerUserBatchCap: c.Reminder.UserCap,
	}
}

// LoggerConfig converts the log section.
func (c *Config) LoggerConfig(component string) log.Config {
	return log.Config{
		Level:       c.Log.Level,
		Environment: c.Environment,
		Component:   component,
		Redact:      c.Log.Redact,
	}
}
