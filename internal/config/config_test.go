package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.HTTPAddr)
	assert.Equal(t, ":50051", cfg.RPCAddr)
	assert.Equal(t, "sim", cfg.AppMode)
	assert.Equal(t, "sim", cfg.VendorDriver)
	assert.Empty(t, cfg.APIKeys)
	assert.Equal(t, 50, cfg.ExecutorWorkers)
	assert.Equal(t, 30*time.Second, cfg.DefaultTimeout)
	assert.Equal(t, 300*time.Second, cfg.DownloadTimeout)
	assert.Equal(t, 100, cfg.MaxSubscriptions)
	assert.Equal(t, 16, cfg.MaxStreamsPerSub)
	assert.Equal(t, 1000, cfg.MaxQueue)
	assert.Equal(t, 100, cfg.CallbackHistory)
	assert.False(t, cfg.EnableWholeMarket)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("APP_MODE", "live_ro")
	t.Setenv("API_KEYS", "key-a,key-b")
	t.Setenv("EXECUTOR_WORKERS", "8")
	t.Setenv("MARKET_DATA_TIMEOUT", "90s")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "live_ro", cfg.AppMode)
	assert.Equal(t, []string{"key-a", "key-b"}, cfg.APIKeys)
	assert.Equal(t, 8, cfg.ExecutorWorkers)
	assert.Equal(t, 90*time.Second, cfg.MarketDataTimeout)
}

func TestLoadRejectsBadMode(t *testing.T) {
	t.Setenv("APP_MODE", "production")
	_, err := Load(nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load(nil)
		require.NoError(t, err)
		return cfg
	}

	cases := map[string]func(*Config){
		"empty http addr":       func(c *Config) { c.HTTPAddr = "" },
		"empty rpc addr":        func(c *Config) { c.RPCAddr = "" },
		"bad mode":              func(c *Config) { c.AppMode = "paper" },
		"zero workers":          func(c *Config) { c.ExecutorWorkers = 0 },
		"zero subscriptions":    func(c *Config) { c.MaxSubscriptions = 0 },
		"zero streams":          func(c *Config) { c.MaxStreamsPerSub = 0 },
		"zero queue":            func(c *Config) { c.MaxQueue = 0 },
		"zero history":          func(c *Config) { c.CallbackHistory = 0 },
		"zero timeout":          func(c *Config) { c.TradingTimeout = 0 },
		"heartbeat inversion":   func(c *Config) { c.HeartbeatTimeout = c.HeartbeatInterval / 2 },
		"bad log level":         func(c *Config) { c.LogLevel = "trace2" },
		"bad log format":        func(c *Config) { c.LogFormat = "xml" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, valid().Validate())
}

func TestTimeoutClasses(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, cfg.MarketDataTimeout, cfg.Timeout("market_data"))
	assert.Equal(t, cfg.FinancialTimeout, cfg.Timeout("financial_data"))
	assert.Equal(t, cfg.DownloadTimeout, cfg.Timeout("download"))
	assert.Equal(t, cfg.TradingTimeout, cfg.Timeout("trading"))
	assert.Equal(t, cfg.SubscriptionTimeout, cfg.Timeout("subscription"))
	assert.Equal(t, cfg.DefaultTimeout, cfg.Timeout("anything_else"))
}
