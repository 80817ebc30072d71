// Package config loads gateway configuration from the environment.
// Priority: ENV vars > .env file > defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all gateway configuration.
type Config struct {
	// Listeners
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8000"`
	RPCAddr  string `env:"RPC_ADDR" envDefault:":50051"`

	// Operational mode: sim, live_ro, live_rw
	AppMode string `env:"APP_MODE" envDefault:"sim"`

	// Vendor driver name; the simulated driver is always registered.
	VendorDriver string `env:"VENDOR_DRIVER" envDefault:"sim"`
	// VendorPath is the userdata path handed to the vendor driver.
	VendorPath string `env:"VENDOR_PATH" envDefault:""`

	// API keys accepted as bearer tokens. Empty list disables auth.
	APIKeys []string `env:"API_KEYS" envSeparator:","`

	// Executor
	ExecutorWorkers int `env:"EXECUTOR_WORKERS" envDefault:"50"`

	// Per-operation-class timeouts
	DefaultTimeout      time.Duration `env:"DEFAULT_TIMEOUT" envDefault:"30s"`
	MarketDataTimeout   time.Duration `env:"MARKET_DATA_TIMEOUT" envDefault:"60s"`
	FinancialTimeout    time.Duration `env:"FINANCIAL_DATA_TIMEOUT" envDefault:"60s"`
	DownloadTimeout     time.Duration `env:"DOWNLOAD_TIMEOUT" envDefault:"300s"`
	TradingTimeout      time.Duration `env:"TRADING_TIMEOUT" envDefault:"30s"`
	SubscriptionTimeout time.Duration `env:"SUBSCRIPTION_TIMEOUT" envDefault:"60s"`

	// Quote subscriptions
	MaxSubscriptions   int  `env:"MAX_SUBSCRIPTIONS" envDefault:"100"`
	MaxStreamsPerSub   int  `env:"MAX_STREAMS_PER_SUBSCRIPTION" envDefault:"16"`
	MaxQueue           int  `env:"MAX_QUEUE" envDefault:"1000"`
	EnableWholeMarket  bool `env:"ENABLE_WHOLE_MARKET" envDefault:"false"`
	DisableDownload    bool `env:"DISABLE_DOWNLOAD" envDefault:"false"`

	// Stream heartbeats
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"30s"`
	HeartbeatTimeout  time.Duration `env:"HEARTBEAT_TIMEOUT" envDefault:"60s"`

	// Trading-callback history ring size
	CallbackHistory int `env:"CALLBACK_HISTORY" envDefault:"100"`

	// WebSocket accept rate limiting, per client IP
	WSAcceptRate  float64 `env:"WS_ACCEPT_RATE" envDefault:"5"`
	WSAcceptBurst int     `env:"WS_ACCEPT_BURST" envDefault:"10"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// Load reads configuration from the optional .env file and environment
// variables, then validates it.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("No .env file found (using environment variables only)")
		}
	} else if logger != nil {
		logger.Info().Msg("Loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("HTTP_ADDR is required")
	}
	if c.RPCAddr == "" {
		return fmt.Errorf("RPC_ADDR is required")
	}

	switch strings.ToLower(c.AppMode) {
	case "sim", "live_ro", "live_rw":
	default:
		return fmt.Errorf("APP_MODE must be one of: sim, live_ro, live_rw (got: %s)", c.AppMode)
	}

	if c.ExecutorWorkers < 1 {
		return fmt.Errorf("EXECUTOR_WORKERS must be > 0, got %d", c.ExecutorWorkers)
	}
	if c.MaxSubscriptions < 1 {
		return fmt.Errorf("MAX_SUBSCRIPTIONS must be > 0, got %d", c.MaxSubscriptions)
	}
	if c.MaxStreamsPerSub < 1 {
		return fmt.Errorf("MAX_STREAMS_PER_SUBSCRIPTION must be > 0, got %d", c.MaxStreamsPerSub)
	}
	if c.MaxQueue < 1 {
		return fmt.Errorf("MAX_QUEUE must be > 0, got %d", c.MaxQueue)
	}
	if c.CallbackHistory < 1 {
		return fmt.Errorf("CALLBACK_HISTORY must be > 0, got %d", c.CallbackHistory)
	}
	if c.HeartbeatTimeout < c.HeartbeatInterval {
		return fmt.Errorf("HEARTBEAT_TIMEOUT (%s) must be >= HEARTBEAT_INTERVAL (%s)",
			c.HeartbeatTimeout, c.HeartbeatInterval)
	}

	for _, d := range []struct {
		name string
		v    time.Duration
	}{
		{"DEFAULT_TIMEOUT", c.DefaultTimeout},
		{"MARKET_DATA_TIMEOUT", c.MarketDataTimeout},
		{"FINANCIAL_DATA_TIMEOUT", c.FinancialTimeout},
		{"DOWNLOAD_TIMEOUT", c.DownloadTimeout},
		{"TRADING_TIMEOUT", c.TradingTimeout},
		{"SUBSCRIPTION_TIMEOUT", c.SubscriptionTimeout},
	} {
		if d.v <= 0 {
			return fmt.Errorf("%s must be > 0, got %s", d.name, d.v)
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", c.LogLevel)
	}
	validLogFormats := map[string]bool{"json": true, "pretty": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, pretty (got: %s)", c.LogFormat)
	}

	return nil
}

// Timeout returns the budget for the given operation class.
func (c *Config) Timeout(class string) time.Duration {
	switch class {
	case "market_data":
		return c.MarketDataTimeout
	case "financial_data":
		return c.FinancialTimeout
	case "download":
		return c.DownloadTimeout
	case "trading":
		return c.TradingTimeout
	case "subscription":
		return c.SubscriptionTimeout
	default:
		return c.DefaultTimeout
	}
}

// LogConfig logs the effective configuration at startup.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("environment", c.Environment).
		Str("http_addr", c.HTTPAddr).
		Str("rpc_addr", c.RPCAddr).
		Str("app_mode", c.AppMode).
		Str("vendor_driver", c.VendorDriver).
		Int("api_keys", len(c.APIKeys)).
		Int("executor_workers", c.ExecutorWorkers).
		Int("max_subscriptions", c.MaxSubscriptions).
		Int("max_streams_per_sub", c.MaxStreamsPerSub).
		Int("max_queue", c.MaxQueue).
		Bool("enable_whole_market", c.EnableWholeMarket).
		Bool("disable_download", c.DisableDownload).
		Dur("heartbeat_interval", c.HeartbeatInterval).
		Dur("heartbeat_timeout", c.HeartbeatTimeout).
		Int("callback_history", c.CallbackHistory).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("Gateway configuration loaded")
}
