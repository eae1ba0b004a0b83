package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/marketplace"
	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/tracing"
)

const envPrefix = "SECURE_MINT"

// devPlatformAccount receives platform fees when no account is configured.
const devPlatformAccount = "0x0000000000000000000000000000000000000fee"

// Config is the runtime configuration of the ledger server and tools.
type Config struct {
	DBPath             string         `mapstructure:"db_path"`
	Port               int            `mapstructure:"port"`
	TestName           string         `mapstructure:"testname"`
	LogDir             string         `mapstructure:"log_dir"`
	LogLevel           string         `mapstructure:"log_level"`
	BlockInterval      time.Duration  `mapstructure:"block_interval"`
	PlatformAccount    string         `mapstructure:"platform_account"`
	PlatformFeePercent uint64         `mapstructure:"platform_fee_percent"`
	GenesisFile        string         `mapstructure:"genesis_file"`
	Faucet             bool           `mapstructure:"faucet"`
	CacheTTL           time.Duration  `mapstructure:"cache_ttl"`
	ServerURL          string         `mapstructure:"server_url"`
	Tracing            tracing.Config `mapstructure:"tracing"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		DBPath:             "secure-mint.db",
		Port:               3000,
		LogDir:             ".",
		LogLevel:           "info",
		BlockInterval:      2 * time.Second,
		PlatformAccount:    devPlatformAccount,
		PlatformFeePercent: marketplace.DefaultPlatformFeePercent,
		CacheTTL:           5 * time.Minute,
		ServerURL:          "http://localhost:3000",
		Tracing:            tracing.DefaultConfig(),
	}
}

// setDefaults registers every key so env vars and config files can reach it.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("db_path", d.DBPath)
	v.SetDefault("port", d.Port)
	v.SetDefault("testname", d.TestName)
	v.SetDefault("log_dir", d.LogDir)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("block_interval", d.BlockInterval)
	v.SetDefault("platform_account", d.PlatformAccount)
	v.SetDefault("platform_fee_percent", d.PlatformFeePercent)
	v.SetDefault("genesis_file", d.GenesisFile)
	v.SetDefault("faucet", d.Faucet)
	v.SetDefault("cache_ttl", d.CacheTTL)
	v.SetDefault("server_url", d.ServerURL)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
}

// initViper sets defaults, environment lookup and reads the optional
// config file. A missing default config file is not an error.
func initViper(v *viper.Viper, cfgFile string) error {
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// PORT is honoured without prefix, as hosting platforms set it.
	if err := v.BindEnv("port", envPrefix+"_PORT", "PORT"); err != nil {
		return err
	}
	// SERVER_URL is what the client commands have always read.
	if err := v.BindEnv("server_url", envPrefix+"_SERVER_URL", "SERVER_URL"); err != nil {
		return err
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("secure-mint")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}
	return nil
}

// loadConfig decodes and validates the configuration held by v.
func loadConfig(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return cfg, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.BlockInterval <= 0 {
		return cfg, fmt.Errorf("block_interval must be positive, got %s", cfg.BlockInterval)
	}
	if _, err := cfg.MarketplaceParams(); err != nil {
		return cfg, err
	}
	if cfg.Tracing.Exporter == "file" && cfg.Tracing.FilePath == "" {
		cfg.Tracing.FilePath = filepath.Join(cfg.LogDir, "traces.jsonl")
	}
	return cfg, nil
}

// MarketplaceParams builds the marketplace parameters from the config.
func (c Config) MarketplaceParams() (marketplace.Params, error) {
	if !common.IsHexAddress(c.PlatformAccount) {
		return marketplace.Params{}, fmt.Errorf("platform_account %q is not a hex address", c.PlatformAccount)
	}
	params := marketplace.Params{
		PlatformAccount:    common.HexToAddress(c.PlatformAccount),
		PlatformFeePercent: c.PlatformFeePercent,
	}
	if err := params.Validate(); err != nil {
		return params, fmt.Errorf("invalid marketplace params: %w", err)
	}
	return params, nil
}
