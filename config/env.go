package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/oriys/novacore/fault"
)

// FromEnv builds the configuration from defaults plus environment
// overrides. A .env file in the working directory is loaded first when
// present; real environment variables win over it.
func FromEnv() (*Config, error) {
	_ = godotenv.Load()
	cfg := Default()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays recognized environment variables onto the config.
// Unset variables leave the current values alone; malformed values are
// MALFORMED_INPUT so startup can exit with a configuration error.
func (c *Config) ApplyEnv() error {
	var errs []string

	env := func(name string) (string, bool) {
		v, ok := os.LookupEnv(name)
		return v, ok && v != ""
	}
	boolVar := func(name string, dst *bool) {
		if v, ok := env(name); ok {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s=%q is not a boolean", name, v))
				return
			}
			*dst = parsed
		}
	}
	intVar := func(name string, dst *int) {
		if v, ok := env(name); ok {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s=%q is not an integer", name, v))
				return
			}
			*dst = parsed
		}
	}
	int64Var := func(name string, dst *int64) {
		if v, ok := env(name); ok {
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s=%q is not an integer", name, v))
				return
			}
			*dst = parsed
		}
	}
	stringVar := func(name string, dst *string) {
		if v, ok := env(name); ok {
			*dst = v
		}
	}

	stringVar("NOVA_ENV", &c.Environment)
	stringVar("LOG_LEVEL", &c.Log.Level)
	boolVar("LOG_REDACT", &c.Log.Redact)
	stringVar("REDIS_URL", &c.Redis.URL)

	boolVar("WEB_FETCH_ENABLED", &c.Features.WebFetchEnabled)
	boolVar("VERIFICATION_ENABLED", &c.Features.VerificationEnabled)
	boolVar("WEBHOOKS_ENABLED", &c.Features.WebhooksEnabled)
	boolVar("REMINDERS_ENABLED", &c.Features.RemindersEnabled)

	boolVar("WEB_FETCH_ALLOW_PRIVATE_IPS", &c.Fetch.AllowPrivateIPs)
	boolVar("WEB_FETCH_ALLOW_LOCALHOST", &c.Fetch.AllowLocalhost)
	boolVar("WEB_FETCH_VALIDATE_CERTS", &c.Fetch.ValidateCerts)
	int64Var("WEB_FETCH_MAX_RESPONSE_BYTES", &c.Fetch.MaxResponseBytes)
	int64Var("WEB_FETCH_CONNECT_TIMEOUT_MS", &c.Fetch.ConnectTimeoutMs)
	int64Var("WEB_FETCH_READ_TIMEOUT_MS", &c.Fetch.ReadTimeoutMs)
	intVar("WEB_FETCH_MAX_REDIRECTS", &c.Fetch.MaxRedirects)
	intVar("DNS_CACHE_TTL_CEILING_SECONDS", &c.Fetch.DNSCacheTTLCeilingSeconds)

	if v, ok := env("WEB_FETCH_ALLOWED_PORTS"); ok {
		ports, err := parsePorts(v)
		if err != nil {
			errs = append(errs, err.Error())
		} else {
			c.Fetch.AllowedPorts = ports
		}
	}
	if v, ok := env("WEB_FETCH_BLOCKED_HOSTNAMES"); ok {
		// Additions extend the defaults rather than replacing them; the
		// metadata endpoints stay blocked.
		c.Fetch.BlockedHostnames = append(c.Fetch.BlockedHostnames, splitList(v)...)
	}
	if v, ok := env("WEB_FETCH_ALLOWED_HOSTNAMES"); ok {
		c.Fetch.AllowedHostnames = splitList(v)
	}

	intVar("VERIFY_CACHE_TTL_SECONDS", &c.Verify.CacheTTLSeconds)
	intVar("VERIFY_MAX_SOURCES", &c.Verify.MaxSources)
	intVar("VERIFY_MAX_CONCURRENT", &c.Verify.MaxConcurrent)
	intVar("VERIFY_BUDGET_MS", &c.Verify.BudgetMs)

	stringVar("WEBHOOK_USER_AGENT", &c.Webhook.UserAgent)
	intVar("WEBHOOK_FAILURE_THRESHOLD", &c.Webhook.FailureThreshold)
	intVar("WEBHOOK_PER_HOOK_CONCURRENCY", &c.Webhook.PerHookConcurrency)

	int64Var("REMINDER_MAX_AGE_MS", &c.Reminder.MaxAgeMs)
	intVar("REMINDER_USER_CAP", &c.Reminder.UserCap)
	intVar("RATE_LIMIT_REQUESTS_PER_MINUTE", &c.RateLimit.RequestsPerMinute)

	if len(errs) > 0 {
		return fault.New(fault.ErrMalformedInput, "config.env", "",
			fmt.Errorf("%s", strings.Join(errs, "; ")))
	}
	return nil
}

func parsePorts(v string) ([]int, error) {
	var ports []int
	for _, part := range splitList(v) {
		port, err := strconv.Atoi(part)
		if err != nil || port < 1 || port > 65535 {
			return nil, fmt.Errorf("WEB_FETCH_ALLOWED_PORTS contains invalid port %q", part)
		}
		ports = append(ports, port)
	}
	return ports, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
