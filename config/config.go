package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// EVMConfig holds the connection settings for the EVM leg.
type EVMConfig struct {
	RPCUrl       string
	ChainID      int64
	HTLCContract string // deployed HTLC escrow contract address
	PrivateKey   string // hex-encoded, with or without 0x prefix
	GasLimit     uint64 // 0 means estimate
	GasPrice     int64  // wei; 0 means ask the node
}

// StellarConfig holds the connection settings for the Stellar leg.
type StellarConfig struct {
	HorizonURL        string
	NetworkPassphrase string
	SecretSeed        string // S... seed of the bridge account
	BaseFee           int64  // stroops
}

// TimelockConfig controls the swap timing parameters.
type TimelockConfig struct {
	Window       time.Duration // T: source-leg lock duration
	SafetyMargin time.Duration // dest timelock = now + Window - SafetyMargin
	MinWindow    time.Duration // adapters reject timelocks closer than this
	MaxWindow    time.Duration // adapters reject timelocks further than this
}

// Config holds the application configuration
type Config struct {
	RegistryPath string // SQLite database for the swap registry
	DemoMode     bool   // run both legs on in-memory ledgers
	FeeBps       int64  // bridge fee in basis points, deducted from the dest leg
	Timelock     TimelockConfig
	EVM          EVMConfig
	Stellar      StellarConfig
}

var globalConfig *Config

// Load reads configuration from environment variables and config file
func Load() (*Config, error) {
	viper.SetConfigName(".swapsage")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME")
	viper.AddConfigPath(".")

	// Set default values
	viper.SetDefault("registry_path", ".swapsage-swaps.db")
	viper.SetDefault("demo_mode", false)
	viper.SetDefault("fee_bps", 30)
	viper.SetDefault("timelock_window", "1h")
	viper.SetDefault("timelock_safety_margin", "30m")
	viper.SetDefault("timelock_min_window", "10m")
	viper.SetDefault("timelock_max_window", "24h")
	viper.SetDefault("stellar_horizon_url", "https://horizon-testnet.stellar.org")
	viper.SetDefault("stellar_network_passphrase", "Test SDF Network ; September 2015")
	viper.SetDefault("stellar_base_fee", 100)

	// Read from environment variables
	viper.SetEnvPrefix("SWAPSAGE")
	viper.AutomaticEnv()

	// Read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		RegistryPath: viper.GetString("registry_path"),
		DemoMode:     viper.GetBool("demo_mode"),
		FeeBps:       viper.GetInt64("fee_bps"),
		Timelock: TimelockConfig{
			Window:       viper.GetDuration("timelock_window"),
			SafetyMargin: viper.GetDuration("timelock_safety_margin"),
			MinWindow:    viper.GetDuration("timelock_min_window"),
			MaxWindow:    viper.GetDuration("timelock_max_window"),
		},
		EVM: EVMConfig{
			RPCUrl:       viper.GetString("evm_rpc_url"),
			ChainID:      viper.GetInt64("evm_chain_id"),
			HTLCContract: viper.GetString("evm_htlc_contract"),
			PrivateKey:   viper.GetString("evm_private_key"),
			GasLimit:     viper.GetUint64("evm_gas_limit"),
			GasPrice:     viper.GetInt64("evm_gas_price"),
		},
		Stellar: StellarConfig{
			HorizonURL:        viper.GetString("stellar_horizon_url"),
			NetworkPassphrase: viper.GetString("stellar_network_passphrase"),
			SecretSeed:        viper.GetString("stellar_secret_seed"),
			BaseFee:           viper.GetInt64("stellar_base_fee"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	globalConfig = cfg
	return cfg, nil
}

// Validate checks the cross-field constraints that the coordinator relies on.
func (c *Config) Validate() error {
	if c.Timelock.SafetyMargin <= 0 {
		return fmt.Errorf("timelock safety margin must be positive")
	}
	if c.Timelock.SafetyMargin >= c.Timelock.Window {
		return fmt.Errorf("timelock safety margin (%s) must be shorter than the timelock window (%s)",
			c.Timelock.SafetyMargin, c.Timelock.Window)
	}
	if c.Timelock.Window-c.Timelock.SafetyMargin < c.Timelock.MinWindow {
		return fmt.Errorf("timelock window minus safety margin (%s) falls below the minimum window (%s)",
			c.Timelock.Window-c.Timelock.SafetyMargin, c.Timelock.MinWindow)
	}
	if c.Timelock.MinWindow > c.Timelock.MaxWindow {
		return fmt.Errorf("timelock min window (%s) exceeds max window (%s)",
			c.Timelock.MinWindow, c.Timelock.MaxWindow)
	}
	if c.FeeBps < 0 || c.FeeBps >= 10000 {
		return fmt.Errorf("fee_bps must be in [0, 10000)")
	}
	return nil
}

// Get returns the global configuration
func Get() *Config {
	if globalConfig == nil {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		return cfg
	}
	return globalConfig
}

// Set updates the global configuration
func Set(cfg *Config) {
	globalConfig = cfg
}
