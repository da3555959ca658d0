package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "negative workers",
			mutate: func(cfg *Config) {
				cfg.Workers = -1
			},
			wantErr: "workers",
		},
		{
			name: "negative max pages",
			mutate: func(cfg *Config) {
				cfg.MaxPages = -1
			},
			wantErr: "max pages",
		},
		{
			name: "empty base url",
			mutate: func(cfg *Config) {
				cfg.BaseURL = ""
			},
			wantErr: "base URL",
		},
		{
			name: "invalid url format",
			mutate: func(cfg *Config) {
				cfg.BaseURL = "http://"
			},
			wantErr: "base URL",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "negative retries",
			mutate: func(cfg *Config) {
				cfg.MaxRetries = -1
			},
			wantErr: "max retries",
		},
		{
			name: "min delay above max delay",
			mutate: func(cfg *Config) {
				cfg.MinDelay = 5 * time.Second
				cfg.MaxDelay = time.Second
			},
			wantErr: "min delay",
		},
		{
			name: "unknown output format",
			mutate: func(cfg *Config) {
				cfg.OutputFormat = "xml"
			},
			wantErr: "output format",
		},
		{
			name: "rating filter out of range",
			mutate: func(cfg *Config) {
				cfg.MinRatingFilter = 6
			},
			wantErr: "min rating filter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
	if cfg.S3Enabled() {
		t.Fatalf("default config should not enable S3")
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BaseURL != "https://books.toscrape.com" {
		t.Fatalf("base url = %q", cfg.BaseURL)
	}
	if cfg.MaxRetries != 3 || cfg.MinDelay != time.Second || cfg.MaxDelay != 3*time.Second {
		t.Fatalf("unexpected retry settings: %+v", cfg)
	}
	if cfg.Headers["accept-language"] == "" && cfg.Headers["Accept-Language"] == "" {
		t.Fatalf("default headers missing: %v", cfg.Headers)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("SCRAPER_MAX_PAGES", "7")
	t.Setenv("SCRAPER_TASK_TIMEOUT", "3s")
	t.Setenv("SCRAPER_DETAILED", "false")
	t.Setenv("SELECTEL_ACCESS_KEY", "access")
	t.Setenv("SELECTEL_SECRET_KEY", "secret")
	t.Setenv("SELECTEL_BUCKET", "de-books")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MaxPages != 7 {
		t.Fatalf("max pages = %d, want 7", cfg.MaxPages)
	}
	if cfg.TaskTimeout != 3*time.Second {
		t.Fatalf("task timeout = %s, want 3s", cfg.TaskTimeout)
	}
	if cfg.Detailed {
		t.Fatalf("detailed should be disabled by env")
	}
	if !cfg.S3Enabled() || cfg.S3Bucket != "de-books" {
		t.Fatalf("expected S3 settings from env, got bucket %q", cfg.S3Bucket)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scraper.yaml")
	content := "workers: 4\npage_delay: 250ms\noutput_format: dual\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Workers != 4 || cfg.PageDelay != 250*time.Millisecond || cfg.OutputFormat != "dual" {
		t.Fatalf("unexpected config from file: workers=%d delay=%s format=%s", cfg.Workers, cfg.PageDelay, cfg.OutputFormat)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scraper.yaml")
	if err := os.WriteFile(path, []byte("workers: 0\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "workers") {
		t.Fatalf("expected workers validation error, got %v", err)
	}
}
