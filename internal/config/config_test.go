package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, "logging:\n  level: info\n"))
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Server.Port != 8080 {
			t.Errorf("Expected default port 8080, got %d", cfg.Server.Port)
		}
		if len(cfg.Privacy.Categories) != 1 || cfg.Privacy.Categories[0] != "all" {
			t.Errorf("Expected default categories [all], got %v", cfg.Privacy.Categories)
		}
		if cfg.Privacy.OutputSuffix != ".protected" {
			t.Errorf("Expected .protected suffix, got %q", cfg.Privacy.OutputSuffix)
		}
		if cfg.Annotator.Timeout != 10*time.Second {
			t.Errorf("Expected 10s annotator timeout, got %s", cfg.Annotator.Timeout)
		}
	})

	t.Run("FileOverrides", func(t *testing.T) {
		path := writeConfig(t, strings.Join([]string{
			"server:",
			"  port: 9090",
			"privacy:",
			"  categories: [email, card]",
			"annotator:",
			"  enabled: true",
			"  url: http://ner:8000/annotate",
			"  timeout: 2s",
			"batch:",
			"  workers: 2",
			"  report: findings.parquet",
		}, "\n"))

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Server.Port != 9090 {
			t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
		}
		if strings.Join(cfg.Privacy.Categories, ",") != "email,card" {
			t.Errorf("Expected [email card], got %v", cfg.Privacy.Categories)
		}
		if !cfg.Annotator.Enabled || cfg.Annotator.Timeout != 2*time.Second {
			t.Errorf("Unexpected annotator config %+v", cfg.Annotator)
		}
		if cfg.Annotator.Breaker.FailureThreshold != 5 {
			t.Errorf("Expected default breaker threshold to survive, got %d", cfg.Annotator.Breaker.FailureThreshold)
		}
		if cfg.Batch.Workers != 2 || cfg.Batch.Report != "findings.parquet" {
			t.Errorf("Unexpected batch config %+v", cfg.Batch)
		}
	})

	t.Run("EnvOverride", func(t *testing.T) {
		t.Setenv("PII_SENTINEL_SERVER_PORT", "7070")
		t.Setenv("PII_SENTINEL_LOGGING_LEVEL", "debug")

		cfg, err := Load(writeConfig(t, "batch:\n  workers: 1\n"))
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Server.Port != 7070 {
			t.Errorf("Expected port 7070 from env, got %d", cfg.Server.Port)
		}
		if cfg.Logging.Level != "debug" {
			t.Errorf("Expected debug level from env, got %s", cfg.Logging.Level)
		}
	})
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"Port", func(c *Config) { c.Server.Port = 70000 }},
		{"Suffix", func(c *Config) { c.Privacy.OutputSuffix = "" }},
		{"AnnotatorURL", func(c *Config) { c.Annotator.Enabled = true; c.Annotator.URL = "ftp://x" }},
		{"Workers", func(c *Config) { c.Batch.Workers = 0 }},
		{"Report", func(c *Config) { c.Batch.Report = "out.xml" }},
		{"Ledger", func(c *Config) { c.Ledger.Enabled = true; c.Ledger.DatabaseURL = "" }},
		{"RateLimit", func(c *Config) { c.RateLimit.RequestsPerMin = 0 }},
		{"LogLevel", func(c *Config) { c.Logging.Level = "trace" }},
		{"LogFormat", func(c *Config) { c.Logging.Format = "xml" }},
	}

	if err := validateConfig(GetDefaults()); err != nil {
		t.Fatalf("Defaults should be valid: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaults()
			tt.mutate(cfg)
			if err := validateConfig(cfg); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}
