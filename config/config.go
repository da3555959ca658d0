package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds crawler configuration. It is built once at startup and treated as
// read-only by every component afterwards.
type Config struct {
	BaseURL    string            `mapstructure:"base_url"`
	Headers    map[string]string `mapstructure:"headers"`
	UserAgent  string            `mapstructure:"user_agent"`
	MinDelay   time.Duration     `mapstructure:"min_delay"`
	MaxDelay   time.Duration     `mapstructure:"max_delay"`
	MaxRetries int               `mapstructure:"max_retries"`
	Timeout    time.Duration     `mapstructure:"timeout"`

	MaxPages    int           `mapstructure:"max_pages"` // 0 walks every page
	Detailed    bool          `mapstructure:"detailed"`
	Workers     int           `mapstructure:"workers"`
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
	PageDelay   time.Duration `mapstructure:"page_delay"`

	OutputDir          string `mapstructure:"output_dir"`
	OutputFormat       string `mapstructure:"output_format"` // csv, json, or dual
	PipelineBufferSize int    `mapstructure:"pipeline_buffer_size"`
	BatchSize          int    `mapstructure:"batch_size"`
	DedupeMaxSize      int    `mapstructure:"dedupe_max_size"`

	MinRatingFilter int     `mapstructure:"min_rating_filter"`
	MaxPriceFilter  float64 `mapstructure:"max_price_filter"`

	MetricsAddr string `mapstructure:"metrics_addr"`
	Verbose     bool   `mapstructure:"verbose"`
	LogFormat   string `mapstructure:"log_format"` // text or json
	LogFile     string `mapstructure:"log_file"`

	S3Endpoint  string `mapstructure:"selectel_endpoint"`
	S3Bucket    string `mapstructure:"selectel_bucket"`
	S3AccessKey string `mapstructure:"selectel_access_key"`
	S3SecretKey string `mapstructure:"selectel_secret_key"`
	S3Region    string `mapstructure:"s3_region"`
	S3PathStyle bool   `mapstructure:"s3_path_style"`
}

// DefaultConfig returns the settings used against the demo catalog.
func DefaultConfig() *Config {
	return &Config{
		BaseURL: "https://books.toscrape.com",
		Headers: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.5",
		},
		UserAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		MinDelay:   1 * time.Second,
		MaxDelay:   3 * time.Second,
		MaxRetries: 3,
		Timeout:    10 * time.Second,

		MaxPages:    0,
		Detailed:    true,
		Workers:     20,
		TaskTimeout: 10 * time.Second,
		PageDelay:   100 * time.Millisecond,

		OutputDir:          "files",
		OutputFormat:       "csv",
		PipelineBufferSize: 512,
		BatchSize:          64,
		DedupeMaxSize:      100000,

		MinRatingFilter: 4,
		MaxPriceFilter:  50.0,

		LogFormat: "text",
		S3Region:  "ru-7",
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.MaxPages < 0 {
		return fmt.Errorf("max pages cannot be negative")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.TaskTimeout <= 0 {
		return fmt.Errorf("task timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.MinDelay < 0 {
		return fmt.Errorf("min delay cannot be negative")
	}
	if c.MaxDelay < 0 {
		return fmt.Errorf("max delay cannot be negative")
	}
	if c.MinDelay > c.MaxDelay {
		return fmt.Errorf("min delay (%s) cannot exceed max delay (%s)", c.MinDelay, c.MaxDelay)
	}
	if c.PageDelay < 0 {
		return fmt.Errorf("page delay cannot be negative")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output dir cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if c.MinRatingFilter < 0 || c.MinRatingFilter > 5 {
		return fmt.Errorf("min rating filter must be between 0 and 5")
	}
	if c.MaxPriceFilter < 0 {
		return fmt.Errorf("max price filter cannot be negative")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log format must be text or json")
	}

	return nil
}

// S3Enabled reports whether object store credentials are configured.
func (c *Config) S3Enabled() bool {
	return c.S3AccessKey != "" && c.S3SecretKey != "" && c.S3Bucket != ""
}
