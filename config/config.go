package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultDebounceWindow is the quiet window a conversion request must
	// survive before it is committed to the executor.
	DefaultDebounceWindow = 300 * time.Millisecond

	// DefaultProviderURL is the public currencybeacon API base.
	DefaultProviderURL = "https://api.currencybeacon.com/v1"

	apiKeyEnvVar = "CURRENCY_BEACON_API_KEY"
)

type Config struct {
	Convertflow ConvertflowConfig `yaml:"convertflow"`
	Channels    ChannelsConfig    `yaml:"channels"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Provider    ProviderConfig    `yaml:"provider"`
	Converter   ConverterConfig   `yaml:"converter"`
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ConvertflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ChannelsConfig struct {
	RequestBuffer   int `yaml:"request_buffer"`
	CommittedBuffer int `yaml:"committed_buffer"`
	PreviewBuffer   int `yaml:"preview_buffer"`
	EventBuffer     int `yaml:"event_buffer"`
}

type PipelineConfig struct {
	DebounceWindow time.Duration `yaml:"debounce_window"`
}

type ProviderConfig struct {
	BaseURL        string               `yaml:"base_url"`
	APIKey         string               `yaml:"api_key"`
	Timeout        time.Duration        `yaml:"timeout"`
	UserAgent      string               `yaml:"user_agent"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

type ConverterConfig struct {
	Enabled     bool   `yaml:"enabled"`
	DefaultFrom string `yaml:"default_from"`
	DefaultTo   string `yaml:"default_to"`
}

type ServerConfig struct {
	Enabled    bool          `yaml:"enabled"`
	ListenAddr string        `yaml:"listen_addr"`
	Timeout    time.Duration `yaml:"timeout"`
}

type LoggingConfig struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	Output        string `yaml:"output"`
	MaxAge        int    `yaml:"max_age"`
	DashboardName string `yaml:"dashboard_name"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Pipeline: PipelineConfig{
			DebounceWindow: DefaultDebounceWindow,
		},
		Provider: ProviderConfig{
			BaseURL: DefaultProviderURL,
			Timeout: 10 * time.Second,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// The API key never lives in config files; the environment wins.
	if v := os.Getenv(apiKeyEnvVar); v != "" {
		config.Provider.APIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("PORT"); v != "" {
		config.Server.ListenAddr = ":" + strings.TrimSpace(v)
	}

	config.Provider.BaseURL = strings.TrimRight(strings.TrimSpace(config.Provider.BaseURL), "/")

	applyDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Channels.RequestBuffer <= 0 {
		cfg.Channels.RequestBuffer = 64
	}
	if cfg.Channels.CommittedBuffer <= 0 {
		cfg.Channels.CommittedBuffer = 16
	}
	if cfg.Channels.PreviewBuffer <= 0 {
		cfg.Channels.PreviewBuffer = 16
	}
	if cfg.Channels.EventBuffer <= 0 {
		cfg.Channels.EventBuffer = 64
	}
	if cfg.Pipeline.DebounceWindow <= 0 {
		cfg.Pipeline.DebounceWindow = DefaultDebounceWindow
	}
	if cfg.Provider.Timeout <= 0 {
		cfg.Provider.Timeout = 10 * time.Second
	}
	if cfg.Provider.UserAgent == "" {
		cfg.Provider.UserAgent = "convertflow/" + cfg.Convertflow.Version
	}
	if cfg.Provider.RateLimit.RequestsPerSecond <= 0 {
		cfg.Provider.RateLimit.RequestsPerSecond = 5
	}
	if cfg.Provider.RateLimit.BurstSize <= 0 {
		cfg.Provider.RateLimit.BurstSize = cfg.Provider.RateLimit.RequestsPerSecond
	}
	if cfg.Provider.ConnectionPool.MaxIdleConns <= 0 {
		cfg.Provider.ConnectionPool.MaxIdleConns = 10
	}
	if cfg.Provider.ConnectionPool.MaxConnsPerHost <= 0 {
		cfg.Provider.ConnectionPool.MaxConnsPerHost = 10
	}
	if cfg.Provider.ConnectionPool.IdleConnTimeout <= 0 {
		cfg.Provider.ConnectionPool.IdleConnTimeout = 90 * time.Second
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.Timeout <= 0 {
		cfg.Server.Timeout = 15 * time.Second
	}
	if cfg.Converter.DefaultFrom == "" {
		cfg.Converter.DefaultFrom = "USD"
	}
	if cfg.Converter.DefaultTo == "" {
		cfg.Converter.DefaultTo = "EUR"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Convertflow.Name == "" {
		return fmt.Errorf("convertflow.name is required")
	}

	if cfg.Convertflow.Version == "" {
		return fmt.Errorf("convertflow.version is required")
	}

	if cfg.Provider.BaseURL == "" {
		return fmt.Errorf("provider.base_url is required")
	}

	if !strings.HasPrefix(cfg.Provider.BaseURL, "http://") && !strings.HasPrefix(cfg.Provider.BaseURL, "https://") {
		return fmt.Errorf("provider.base_url must be an http(s) URL, got %q", cfg.Provider.BaseURL)
	}

	if cfg.Converter.DefaultFrom == cfg.Converter.DefaultTo {
		return fmt.Errorf("converter.default_from and converter.default_to must differ")
	}

	if cfg.Provider.APIKey == "" && IsProductionLike(AppEnvironment()) {
		return fmt.Errorf("provider api key is required, set %s", apiKeyEnvVar)
	}

	return nil
}
