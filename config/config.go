// Package config handles klingnet-wallet configuration.
//
// Settings come from three layers, later ones winning: per-network
// defaults, the klingnet-wallet.conf file in the data directory, and
// command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// Storage backends for the simulated node.
const (
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// Config holds the wallet's runtime configuration.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// Simulated node
	Node NodeConfig

	// Wallet
	Wallet WalletConfig

	// Logging
	Log LogConfig
}

// NodeConfig holds settings for the in-process node the wallet follows.
type NodeConfig struct {
	Backend string `conf:"node.backend"` // badger or memory
}

// WalletConfig holds wallet settings.
type WalletConfig struct {
	Addresses []string `conf:"wallet.addresses"` // bech32 or hex, comma-separated
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// HRP returns the bech32 address prefix for the configured network.
func (c *Config) HRP() string {
	if c.Network == Testnet {
		return types.TestnetHRP
	}
	return types.MainnetHRP
}

// OwnedAddresses parses Wallet.Addresses.
func (c *Config) OwnedAddresses() ([]types.Address, error) {
	out := make([]types.Address, 0, len(c.Wallet.Addresses))
	for i, s := range c.Wallet.Addresses {
		a, err := types.ParseAddress(s)
		if err != nil {
			return nil, fmt.Errorf("wallet.addresses[%d]: %w", i, err)
		}
		out = append(out, a)
	}
	return out, nil
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.klingnet-wallet
//	macOS:   ~/Library/Application Support/KlingnetWallet
//	Windows: %APPDATA%\KlingnetWallet
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".klingnet-wallet"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "KlingnetWallet")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "KlingnetWallet")
		}
		return filepath.Join(home, "AppData", "Roaming", "KlingnetWallet")
	default:
		return filepath.Join(home, ".klingnet-wallet")
	}
}

// ChainDataDir returns the network-specific data directory.
func (c *Config) ChainDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// NodeDir returns the simulated node's block database directory.
func (c *Config) NodeDir() string {
	return filepath.Join(c.ChainDataDir(), "node")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "klingnet-wallet.conf")
}
