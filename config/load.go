package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces the crawler's environment variables (SCRAPER_MAX_PAGES, ...).
const EnvPrefix = "SCRAPER"

// Object store credentials keep the variable names the deployment already exports.
var s3EnvBindings = map[string]string{
	"selectel_access_key": "SELECTEL_ACCESS_KEY",
	"selectel_secret_key": "SELECTEL_SECRET_KEY",
	"selectel_bucket":     "SELECTEL_BUCKET",
	"selectel_endpoint":   "SELECTEL_ENDPOINT",
}

// Load builds a Config from defaults, an optional config file (yaml, json, toml
// or .env) and the environment. The result is validated.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, env := range s3EnvBindings {
		if err := v.BindEnv(key, env, EnvPrefix+"_"+strings.ToUpper(key)); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("base_url", d.BaseURL)
	v.SetDefault("headers", d.Headers)
	v.SetDefault("user_agent", d.UserAgent)
	v.SetDefault("min_delay", d.MinDelay)
	v.SetDefault("max_delay", d.MaxDelay)
	v.SetDefault("max_retries", d.MaxRetries)
	v.SetDefault("timeout", d.Timeout)

	v.SetDefault("max_pages", d.MaxPages)
	v.SetDefault("detailed", d.Detailed)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("task_timeout", d.TaskTimeout)
	v.SetDefault("page_delay", d.PageDelay)

	v.SetDefault("output_dir", d.OutputDir)
	v.SetDefault("output_format", d.OutputFormat)
	v.SetDefault("pipeline_buffer_size", d.PipelineBufferSize)
	v.SetDefault("batch_size", d.BatchSize)
	v.SetDefault("dedupe_max_size", d.DedupeMaxSize)

	v.SetDefault("min_rating_filter", d.MinRatingFilter)
	v.SetDefault("max_price_filter", d.MaxPriceFilter)

	v.SetDefault("metrics_addr", d.MetricsAddr)
	v.SetDefault("verbose", d.Verbose)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("log_file", d.LogFile)

	v.SetDefault("selectel_endpoint", d.S3Endpoint)
	v.SetDefault("selectel_bucket", d.S3Bucket)
	v.SetDefault("selectel_access_key", d.S3AccessKey)
	v.SetDefault("selectel_secret_key", d.S3SecretKey)
	v.SetDefault("s3_region", d.S3Region)
	v.SetDefault("s3_path_style", d.S3PathStyle)
}
