package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"

	"logane/internal/networks"
)

// Config holds all configuration for the application
type Config struct {
	Server  ServerConfig
	Chain   ChainConfig
	Wallet  WalletConfig
	Verbose bool
	LogFile string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port    string
	GinMode string
}

// ChainConfig selects the default chain and the per-network endpoints
type ChainConfig struct {
	DefaultChainID uint64
	Sepolia        NetworkConfig
	Mainnet        NetworkConfig
}

// NetworkConfig overrides the built-in endpoints of one network
type NetworkConfig struct {
	RPCURL          string
	ExplorerURL     string
	ContractAddress string
}

// WalletConfig configures the local signing wallet
type WalletConfig struct {
	PrivateKey     string
	AutoApprove    bool
	BalanceRefresh time.Duration
}

// Load reads configuration from an optional config file and LOGANE_*
// environment variables. An empty path searches ./config.yaml and
// ./config/config.yaml.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	v.SetEnvPrefix("LOGANE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Environment variables and defaults are enough without a file.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	v.SetDefault("Server.Port", "8080")
	v.SetDefault("Server.GinMode", "release")
	v.SetDefault("Chain.DefaultChainID", networks.BaseSepoliaChainID)
	v.SetDefault("Chain.Sepolia.RPCURL", networks.BaseSepolia.RPCURL)
	v.SetDefault("Chain.Sepolia.ExplorerURL", networks.BaseSepolia.ExplorerURL)
	v.SetDefault("Chain.Sepolia.ContractAddress", "")
	v.SetDefault("Chain.Mainnet.RPCURL", networks.BaseMainnet.RPCURL)
	v.SetDefault("Chain.Mainnet.ExplorerURL", networks.BaseMainnet.ExplorerURL)
	v.SetDefault("Chain.Mainnet.ContractAddress", "")
	v.SetDefault("Wallet.PrivateKey", "")
	v.SetDefault("Wallet.AutoApprove", true)
	v.SetDefault("Wallet.BalanceRefresh", 30*time.Second)
	v.SetDefault("Verbose", false)
	v.SetDefault("LogFile", "")
}

// Registry builds the network registry with the configured overrides applied.
func (c *Config) Registry() *networks.Registry {
	sepolia := apply(networks.BaseSepolia, c.Chain.Sepolia)
	mainnet := apply(networks.BaseMainnet, c.Chain.Mainnet)
	reg := networks.NewRegistry(sepolia, mainnet)
	if c.Chain.DefaultChainID != 0 {
		reg.SetDefault(c.Chain.DefaultChainID)
	}
	return reg
}

func apply(n networks.Network, o NetworkConfig) networks.Network {
	if o.RPCURL != "" {
		n.RPCURL = o.RPCURL
	}
	if o.ExplorerURL != "" {
		n.ExplorerURL = o.ExplorerURL
	}
	n.ContractAddress = strings.TrimSpace(o.ContractAddress)
	return n
}
