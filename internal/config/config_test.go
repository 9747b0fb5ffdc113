package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AgentURL != "http://127.0.0.1:8643" {
		t.Errorf("AgentURL = %q", cfg.AgentURL)
	}
	if cfg.PoolWorkers != 1 {
		t.Errorf("PoolWorkers = %d, want 1", cfg.PoolWorkers)
	}
	if cfg.ActivityRetention != 500 {
		t.Errorf("ActivityRetention = %d, want 500", cfg.ActivityRetention)
	}
	if cfg.APIAddr != "127.0.0.1:8642" {
		t.Errorf("APIAddr = %q", cfg.APIAddr)
	}
	if cfg.SyncCallTimeout != 10*time.Second {
		t.Errorf("SyncCallTimeout = %v", cfg.SyncCallTimeout)
	}
	if cfg.JanitorInterval != time.Minute {
		t.Errorf("JanitorInterval = %v", cfg.JanitorInterval)
	}
	if !cfg.MetricsEnabled {
		t.Error("MetricsEnabled should default to true")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("AGENT_URL", "https://agent.local:9999")
	t.Setenv("POOL_WORKERS", "4")
	t.Setenv("ACTIVITY_RETENTION", "50")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AgentURL != "https://agent.local:9999" {
		t.Errorf("AgentURL = %q", cfg.AgentURL)
	}
	if cfg.PoolWorkers != 4 {
		t.Errorf("PoolWorkers = %d", cfg.PoolWorkers)
	}
	if cfg.ActivityRetention != 50 {
		t.Errorf("ActivityRetention = %d", cfg.ActivityRetention)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
}

func TestLoadStripsEnvFileQuotes(t *testing.T) {
	t.Setenv("AGENT_URL", `"http://quoted.local:8643"`)
	t.Setenv("BOOTSTRAP_PASSWORD", `'secret22'`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AgentURL != "http://quoted.local:8643" {
		t.Errorf("AgentURL = %q", cfg.AgentURL)
	}
	if cfg.BootstrapPassword != "secret22" {
		t.Errorf("BootstrapPassword = %q", cfg.BootstrapPassword)
	}
}

func TestLoadFileSecret(t *testing.T) {
	dir := t.TempDir()
	secretPath := filepath.Join(dir, "api_key")
	if err := os.WriteFile(secretPath, []byte("file-borne-key\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("AGENT_API_KEY_FILE", secretPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AgentAPIKey != "file-borne-key" {
		t.Errorf("AgentAPIKey = %q", cfg.AgentAPIKey)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name string
		key  string
		val  string
	}{
		{"bad agent url scheme", "AGENT_URL", "ftp://agent"},
		{"workers too high", "POOL_WORKERS", "32"},
		{"workers zero", "POOL_WORKERS", "0"},
		{"queue depth zero", "POOL_QUEUE_DEPTH", "0"},
		{"retention zero", "ACTIVITY_RETENTION", "0"},
		{"bad log level", "LOG_LEVEL", "verbose"},
		{"bad log format", "LOG_FORMAT", "xml"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Setenv(c.key, c.val)
			if _, err := Load(); err == nil {
				t.Errorf("%s=%s accepted", c.key, c.val)
			}
		})
	}
}

func TestStripEnvQuotes(t *testing.T) {
	cases := []struct{ in, want string }{
		{`"abc"`, "abc"},
		{`'abc'`, "abc"},
		{`abc`, "abc"},
		{`"abc'`, `"abc'`},
		{`"`, `"`},
		{``, ``},
	}
	for _, c := range cases {
		if got := stripEnvQuotes(c.in); got != c.want {
			t.Errorf("stripEnvQuotes(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
