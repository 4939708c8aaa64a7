package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
wallet:
  private_key: "`+testKey+`"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "v1.0", cfg.Dealer.APIVersion)
	assert.Equal(t, 10*time.Second, cfg.Dealer.Timeout)
	assert.Equal(t, 3, cfg.Chain.ProtocolVersion)
	assert.Equal(t, 2*time.Second, cfg.Chain.PollInterval)
	assert.Equal(t, "memory", cfg.Settlement.Store)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, `
dealer:
  base_url: "http://dealer.local/api"
`)
	t.Setenv("ZAIDAN_WALLET_PRIVATE_KEY", testKey)
	t.Setenv("ZAIDAN_CHAIN_POLL_INTERVAL", "250ms")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, testKey, cfg.Wallet.PrivateKey)
	assert.Equal(t, 250*time.Millisecond, cfg.Chain.PollInterval)
	assert.Equal(t, "http://dealer.local/api", cfg.Dealer.BaseURL)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server:     ServerConfig{Port: "8080"},
			Log:        LogConfig{Level: "info", Format: "json"},
			Dealer:     DealerConfig{BaseURL: "http://localhost:8000/api", APIVersion: "v1.0", Timeout: time.Second},
			Chain:      ChainConfig{RPCURL: "http://localhost:8545", ProtocolVersion: 3, PollInterval: time.Second, RPCTimeout: time.Second},
			Wallet:     WalletConfig{Provider: "wallet", PrivateKey: testKey},
			Settlement: SettlementConfig{Store: "memory"},
		}
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	t.Run("unknown protocol version", func(t *testing.T) {
		cfg := base()
		cfg.Chain.ProtocolVersion = 4
		assert.Error(t, cfg.Validate())
	})

	t.Run("wallet without key", func(t *testing.T) {
		cfg := base()
		cfg.Wallet.PrivateKey = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("node without address", func(t *testing.T) {
		cfg := base()
		cfg.Wallet.Provider = "node"
		assert.Error(t, cfg.Validate())

		cfg.Wallet.Address = "0x5409ed021d9299bf6814279a6a1411a7e866a631"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("redis store without addr", func(t *testing.T) {
		cfg := base()
		cfg.Settlement.Store = "redis"
		assert.Error(t, cfg.Validate())
	})

	t.Run("postgres store without dsn", func(t *testing.T) {
		cfg := base()
		cfg.Settlement.Store = "postgres"
		assert.Error(t, cfg.Validate())
	})

	t.Run("half a deployment override", func(t *testing.T) {
		cfg := base()
		cfg.Chain.ExchangeAddress = "0x48bacb9266a570d521063ef5dd96e61686dbe788"
		assert.Error(t, cfg.Validate())
	})
}
