package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CONTRACT_ACCOUNT_ID", "counter.test.near")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("AUDIT_ENABLED", "false")
	t.Setenv("CALLER_HEADER", "X-Account-Id")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "120")
}

func TestLoadConfigDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "counter.test.near", cfg.ContractAccountID)
	assert.Equal(t, StoreMemory, cfg.StoreDriver)
	assert.Equal(t, "X-Account-Id", cfg.CallerHeader)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRequiresContractAccount(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("CONTRACT_ACCOUNT_ID", "")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			ContractAccountID: "counter.test.near",
			StoreDriver:       "Redis",
			RedisAddr:         "127.0.0.1:6379",
			CallerHeader:      "X-Account-Id",
		}
	}

	cfg := base()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, StoreRedis, cfg.StoreDriver)

	cases := map[string]func(*Config){
		"unknown driver":  func(c *Config) { c.StoreDriver = "etcd" },
		"redis no addr":   func(c *Config) { c.RedisAddr = "" },
		"postgres no dsn": func(c *Config) { c.StoreDriver = StorePostgres; c.PGDSN = "" },
		"blank account":   func(c *Config) { c.ContractAccountID = "  " },
		"blank header":    func(c *Config) { c.CallerHeader = "" },
		"negative limit":  func(c *Config) { c.RateLimitPerMinute = -1 },
		"audit no redis":  func(c *Config) { c.StoreDriver = StoreMemory; c.RedisAddr = ""; c.AuditEnabled = true },
	}
	for name, mutate := range cases {
		cfg := base()
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), name)
	}
}

func TestTestModeFlag(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	assert.True(t, InTestMode())

	t.Setenv(testModeEnv, "")
	RefreshTestMode()
	assert.False(t, InTestMode())
}
