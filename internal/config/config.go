package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds all application configuration.
type Config struct {
	// Enforcement Agent Connection
	AgentURL         string        `koanf:"agent_url"`
	AgentAPIKey      string        `koanf:"agent_api_key"`
	AgentHTTPTimeout time.Duration `koanf:"agent_http_timeout"`
	AgentDebug       bool          `koanf:"agent_debug"`

	// Sync Bridge
	SyncCallTimeout time.Duration `koanf:"sync_call_timeout"`
	PoolWorkers     int           `koanf:"pool_workers"`
	PoolQueueDepth  int           `koanf:"pool_queue_depth"`
	PoolMaxRetries  int           `koanf:"pool_max_retries"`
	PoolRetryBase   time.Duration `koanf:"pool_retry_base"`

	// Credentials
	BootstrapPassword string `koanf:"bootstrap_password"`
	BootstrapPIN      string `koanf:"bootstrap_pin"`
	RecoveryCode      string `koanf:"recovery_code"`

	// Storage
	DataDir           string `koanf:"data_dir"`
	ActivityRetention int    `koanf:"activity_retention"`

	// Operational
	APIAddr         string        `koanf:"api_addr"`
	LogLevel        string        `koanf:"log_level"`
	LogFormat       string        `koanf:"log_format"`
	MetricsEnabled  bool          `koanf:"metrics_enabled"`
	MetricsAddr     string        `koanf:"metrics_addr"`
	JanitorInterval time.Duration `koanf:"janitor_interval"`
}

// sanitise removes a single layer of matching surrounding quotes from all
// string fields. This normalises values from Docker --env-file which does
// not strip shell quoting.
func (c *Config) sanitise() {
	c.AgentURL = stripEnvQuotes(c.AgentURL)
	c.AgentAPIKey = stripEnvQuotes(c.AgentAPIKey)
	c.BootstrapPassword = stripEnvQuotes(c.BootstrapPassword)
	c.BootstrapPIN = stripEnvQuotes(c.BootstrapPIN)
	c.RecoveryCode = stripEnvQuotes(c.RecoveryCode)
	c.DataDir = stripEnvQuotes(c.DataDir)
	c.APIAddr = stripEnvQuotes(c.APIAddr)
	c.LogLevel = stripEnvQuotes(c.LogLevel)
	c.LogFormat = stripEnvQuotes(c.LogFormat)
	c.MetricsAddr = stripEnvQuotes(c.MetricsAddr)
}

// defaults sets sensible default values.
func defaults() map[string]interface{} {
	return map[string]interface{}{
		"agent_url":          "http://127.0.0.1:8643",
		"agent_http_timeout": "15s",
		"sync_call_timeout":  "10s",
		// One worker keeps agent calls in issuance order (replace rule
		// set before start monitoring).
		"pool_workers":       1,
		"pool_queue_depth":   256,
		"pool_max_retries":   0,
		"pool_retry_base":    "1s",
		"data_dir":           "/data",
		"activity_retention": 500,
		"api_addr":           "127.0.0.1:8642",
		"log_level":          "info",
		"log_format":         "json",
		"metrics_enabled":    true,
		"metrics_addr":       ":9090",
		"janitor_interval":   "1m",
	}
}

// stripEnvQuotes removes a single layer of matching surrounding single or
// double quotes from s. Only symmetric pairs are stripped: 'x' → x, "x" → x.
// Unpaired or mismatched quotes are left as-is.
func stripEnvQuotes(s string) string {
	if len(s) < 2 {
		return s
	}
	if (s[0] == '\'' && s[len(s)-1] == '\'') ||
		(s[0] == '"' && s[len(s)-1] == '"') {
		return s[1 : len(s)-1]
	}
	return s
}

// Load reads configuration from environment variables, applying _FILE secret injection.
func Load() (*Config, error) {
	// Use "." as delimiter so that env vars with "_" in their names are
	// treated as flat keys, not nested paths. E.g. AGENT_URL → "agent_url"
	// maps to struct tag koanf:"agent_url" without any nesting.
	k := koanf.New(".")

	// Apply defaults first
	defs := defaults()
	if err := k.Load(&rawProvider{data: defs}, nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(s)
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	// Inject _FILE secrets
	if err := injectFileSecrets(k); err != nil {
		return nil, fmt.Errorf("inject file secrets: %w", err)
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Strip Docker env-file quoting from all string values
	cfg.sanitise()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and semantic constraints.
func (c *Config) Validate() error {
	if c.AgentURL == "" {
		return fmt.Errorf("AGENT_URL is required")
	}
	if !strings.HasPrefix(c.AgentURL, "http://") && !strings.HasPrefix(c.AgentURL, "https://") {
		return fmt.Errorf("AGENT_URL must start with http:// or https://; got %q", c.AgentURL)
	}

	if c.PoolWorkers < 1 || c.PoolWorkers > 16 {
		return fmt.Errorf("POOL_WORKERS must be 1–16; got %d", c.PoolWorkers)
	}
	if c.PoolQueueDepth < 1 {
		return fmt.Errorf("POOL_QUEUE_DEPTH must be >= 1; got %d", c.PoolQueueDepth)
	}

	if c.ActivityRetention < 1 {
		return fmt.Errorf("ACTIVITY_RETENTION must be >= 1; got %d", c.ActivityRetention)
	}

	if c.JanitorInterval <= 0 {
		return fmt.Errorf("JANITOR_INTERVAL must be > 0; got %s", c.JanitorInterval)
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of trace,debug,info,warn,error,fatal,panic; got %q", c.LogLevel)
	}

	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("LOG_FORMAT must be json or text; got %q", c.LogFormat)
	}

	return nil
}

// injectFileSecrets reads _FILE env vars and injects their file contents.
var fileSecretKeys = []string{
	"agent_api_key",
	"bootstrap_password",
	"bootstrap_pin",
	"recovery_code",
}

func injectFileSecrets(k *koanf.Koanf) error {
	for _, key := range fileSecretKeys {
		fileKey := key + "_file"
		filePath := k.String(fileKey)
		if filePath == "" {
			// Also check uppercased env var with _FILE suffix
			envKey := strings.ToUpper(key) + "_FILE"
			filePath = os.Getenv(envKey)
		}
		if filePath == "" {
			continue
		}
		filePath = stripEnvQuotes(filePath)
		content, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("reading secret file for %s (%s): %w", key, filePath, err)
		}
		val := strings.TrimSpace(string(content))
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("setting %s from file: %w", key, err)
		}
	}
	return nil
}

// rawProvider implements koanf.Provider for a map[string]interface{}.
type rawProvider struct {
	data map[string]interface{}
}

// Read returns the config map directly (no Parser needed).
func (r *rawProvider) Read() (map[string]interface{}, error) {
	return r.data, nil
}

// ReadBytes is not used by rawProvider; koanf calls Read() when no Parser is given.
func (r *rawProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("rawProvider does not support ReadBytes")
}
