// Package config loads the client configuration from flags, SIMPLEST_*
// environment variables and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. SIMPLEST_RPC.
const EnvPrefix = "SIMPLEST"

var (
	// ErrInvalidConfig is returned when a loaded value is malformed.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrMissingValue is returned when a command needs a value that was not provided.
	ErrMissingValue = errors.New("missing configuration value")
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL       string
	PoolAddress  common.Address
	TokenAddress common.Address
	Account      common.Address
	ChainID      uint64

	SlippageBps   uint16
	RetryAttempts uint
	RetryDelay    time.Duration

	BufferSize           uint
	MaxReconnectAttempts uint

	ListenAddr     string
	RequestTimeout time.Duration

	LogLevel  string
	LogFormat string
}

// Load merges config file, environment variables, and flags into Config.
// An empty cfgFile looks for an optional config.yaml in the working directory.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("slippage-bps", 50)
	v.SetDefault("retry-attempts", 3)
	v.SetDefault("retry-delay", 200*time.Millisecond)
	v.SetDefault("buffer-size", 100)
	v.SetDefault("max-reconnect-attempts", 0)
	v.SetDefault("listen", ":8080")
	v.SetDefault("request-timeout", 10*time.Second)
	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "json")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:               strings.TrimSpace(v.GetString("rpc")),
		ChainID:              v.GetUint64("chain-id"),
		RetryAttempts:        v.GetUint("retry-attempts"),
		RetryDelay:           v.GetDuration("retry-delay"),
		BufferSize:           v.GetUint("buffer-size"),
		MaxReconnectAttempts: v.GetUint("max-reconnect-attempts"),
		ListenAddr:           v.GetString("listen"),
		RequestTimeout:       v.GetDuration("request-timeout"),
		LogLevel:             strings.ToLower(v.GetString("log-level")),
		LogFormat:            strings.ToLower(v.GetString("log-format")),
	}

	var err error
	if cfg.PoolAddress, err = parseAddress(v, "pool"); err != nil {
		return Config{}, err
	}
	if cfg.TokenAddress, err = parseAddress(v, "token"); err != nil {
		return Config{}, err
	}
	if cfg.Account, err = parseAddress(v, "account"); err != nil {
		return Config{}, err
	}

	bps := v.GetInt("slippage-bps")
	if bps < 0 || bps > 10000 {
		return Config{}, fmt.Errorf("%w: slippage-bps %d is outside [0, 10000]", ErrInvalidConfig, bps)
	}
	cfg.SlippageBps = uint16(bps)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parseAddress(v *viper.Viper, key string) (common.Address, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: %s %q is not a hex address", ErrInvalidConfig, key, raw)
	}
	return common.HexToAddress(raw), nil
}

// validate checks the loaded values that every command relies on.
func (c *Config) validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: unknown log-level %q", ErrInvalidConfig, c.LogLevel)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("%w: unknown log-format %q", ErrInvalidConfig, c.LogFormat)
	}
	if c.RetryAttempts == 0 {
		return fmt.Errorf("%w: retry-attempts must be at least 1", ErrInvalidConfig)
	}
	if c.BufferSize == 0 {
		return fmt.Errorf("%w: buffer-size must be at least 1", ErrInvalidConfig)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("%w: request-timeout cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// RequireChain reports an error unless the RPC endpoint and both contract
// addresses are set.
func (c *Config) RequireChain() error {
	if c.RPCURL == "" {
		return fmt.Errorf("%w: rpc", ErrMissingValue)
	}
	if c.PoolAddress == (common.Address{}) {
		return fmt.Errorf("%w: pool", ErrMissingValue)
	}
	if c.TokenAddress == (common.Address{}) {
		return fmt.Errorf("%w: token", ErrMissingValue)
	}
	return nil
}

// RequireAccount is RequireChain plus the tracked account.
func (c *Config) RequireAccount() error {
	if err := c.RequireChain(); err != nil {
		return err
	}
	if c.Account == (common.Address{}) {
		return fmt.Errorf("%w: account", ErrMissingValue)
	}
	return nil
}
