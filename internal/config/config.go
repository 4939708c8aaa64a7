package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const envPrefix = "zaidan"

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Dealer     DealerConfig     `mapstructure:"dealer"`
	Chain      ChainConfig      `mapstructure:"chain"`
	Wallet     WalletConfig     `mapstructure:"wallet"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Port        string        `mapstructure:"port" validate:"required"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// APIKey, when set, is required in X-Gateway-Key on every /v1 request.
	APIKey string `mapstructure:"api_key"`
	// ReadOnly refuses trades and approvals.
	ReadOnly bool `mapstructure:"read_only"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

type DealerConfig struct {
	BaseURL      string        `mapstructure:"base_url" validate:"required,url"`
	APIVersion   string        `mapstructure:"api_version" validate:"required"`
	Timeout      time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
}

type ChainConfig struct {
	RPCURL          string `mapstructure:"rpc_url" validate:"required"`
	ChainID         int64  `mapstructure:"chain_id"`
	ProtocolVersion int    `mapstructure:"protocol_version" validate:"oneof=2 3"`
	// Optional overrides for networks without a built-in deployment.
	ExchangeAddress   string        `mapstructure:"exchange_address" validate:"omitempty,eth_addr"`
	ERC20ProxyAddress string        `mapstructure:"erc20_proxy_address" validate:"omitempty,eth_addr"`
	PollInterval      time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	// RefreshInterval paces the gas price and market snapshot refresh.
	RefreshInterval   time.Duration `mapstructure:"refresh_interval" validate:"gte=0"`
	RPCTimeout        time.Duration `mapstructure:"rpc_timeout" validate:"gt=0"`
	GasLimit          uint64        `mapstructure:"gas_limit"`
	EIP1271CacheTTL   time.Duration `mapstructure:"eip1271_cache_ttl"`
	EIP1271Retries    int           `mapstructure:"eip1271_retries" validate:"gte=0"`
}

type WalletConfig struct {
	// "wallet" signs locally with PrivateKey; "node" delegates to the RPC node's unlocked Address.
	Provider   string `mapstructure:"provider" validate:"oneof=wallet node"`
	PrivateKey string `mapstructure:"private_key"`
	Address    string `mapstructure:"address" validate:"omitempty,eth_addr"`
}

type SettlementConfig struct {
	Store       string        `mapstructure:"store" validate:"oneof=memory redis postgres"`
	AutoApprove bool          `mapstructure:"auto_approve"`
	Retention   time.Duration `mapstructure:"retention"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type DatabaseConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type RateLimitConfig struct {
	QPS   float64 `mapstructure:"qps" validate:"gte=0"`
	Burst int     `mapstructure:"burst" validate:"gte=0"`
}

// Load reads config.yaml from path, or from "." and "./configs" when path is empty,
// and overlays ZAIDAN_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}
	v.SetConfigType("yaml")

	// e.g. ZAIDAN_WALLET_PRIVATE_KEY
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.read_only", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("dealer.base_url", "http://localhost:8000/api")
	v.SetDefault("dealer.api_version", "v1.0")
	v.SetDefault("dealer.timeout", "10s")
	v.SetDefault("dealer.max_idle_conns", 16)

	v.SetDefault("chain.rpc_url", "http://localhost:8545")
	v.SetDefault("chain.chain_id", 0)
	v.SetDefault("chain.protocol_version", 3)
	v.SetDefault("chain.poll_interval", "2s")
	v.SetDefault("chain.refresh_interval", "30s")
	v.SetDefault("chain.rpc_timeout", "10s")
	v.SetDefault("chain.gas_limit", 100000)
	v.SetDefault("chain.eip1271_cache_ttl", "1m")
	v.SetDefault("chain.eip1271_retries", 1)
	v.SetDefault("chain.exchange_address", "")
	v.SetDefault("chain.erc20_proxy_address", "")

	v.SetDefault("wallet.provider", "wallet")
	v.SetDefault("wallet.private_key", "")
	v.SetDefault("wallet.address", "")

	v.SetDefault("settlement.store", "memory")
	v.SetDefault("settlement.auto_approve", false)
	v.SetDefault("settlement.retention", "168h")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "zaidan:settlement:")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 4)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("rate_limit.qps", 20)
	v.SetDefault("rate_limit.burst", 40)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate checks field constraints and the combinations between sections.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	switch c.Wallet.Provider {
	case "wallet":
		if strings.TrimSpace(c.Wallet.PrivateKey) == "" {
			return errors.New("invalid config: wallet.private_key is required for the wallet provider")
		}
	case "node":
		if c.Wallet.Address == "" {
			return errors.New("invalid config: wallet.address is required for the node provider")
		}
	}

	switch c.Settlement.Store {
	case "redis":
		if c.Redis.Addr == "" {
			return errors.New("invalid config: redis.addr is required for the redis settlement store")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("invalid config: database.dsn is required for the postgres settlement store")
		}
	}

	if (c.Chain.ExchangeAddress == "") != (c.Chain.ERC20ProxyAddress == "") {
		return errors.New("invalid config: chain.exchange_address and chain.erc20_proxy_address must be set together")
	}
	return nil
}
