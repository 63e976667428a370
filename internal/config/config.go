package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL string
	PGDSN  string

	SPPAddress      string
	VotingAddress   string
	MultisigAddress string

	NotifyURL string
	Listen    string

	ChunkSize            uint64
	MaxBlocks            uint64
	MinInterval          time.Duration
	MaxConsecutiveErrors int
	RequestDelay         time.Duration
	RetryBackoff         time.Duration

	LogLevel string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GOVSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen", ":8080")
	v.SetDefault("chunk-size", uint64(1000))
	v.SetDefault("max-blocks", uint64(50000))
	v.SetDefault("min-interval", 60*time.Second)
	v.SetDefault("max-consecutive-errors", 10)
	v.SetDefault("request-delay", 200*time.Millisecond)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")

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
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:               v.GetString("rpc"),
		PGDSN:                v.GetString("pg-dsn"),
		SPPAddress:           v.GetString("spp-address"),
		VotingAddress:        v.GetString("voting-address"),
		MultisigAddress:      v.GetString("multisig-address"),
		NotifyURL:            v.GetString("notify-url"),
		Listen:               v.GetString("listen"),
		ChunkSize:            v.GetUint64("chunk-size"),
		MaxBlocks:            v.GetUint64("max-blocks"),
		MinInterval:          v.GetDuration("min-interval"),
		MaxConsecutiveErrors: v.GetInt("max-consecutive-errors"),
		RequestDelay:         v.GetDuration("request-delay"),
		RetryBackoff:         v.GetDuration("retry-backoff"),
		LogLevel:             v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate checks the values every subcommand needs.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if c.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}
	if c.SPPAddress == "" || c.VotingAddress == "" || c.MultisigAddress == "" {
		return fmt.Errorf("spp, voting, and multisig contract addresses are required")
	}
	return nil
}
